package rpcclient

import (
	"context"
	"testing"
	"time"

	"github.com/sigweb/signal-web/internal/testupstream"
	"github.com/stretchr/testify/require"
)

func TestRealUpstreamVersion(t *testing.T) {
	c := NewUpstream(testupstream.Get(t), WithLogger(quietLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, c.WaitForUpstream(ctx, 20*time.Second))
	info, err := c.Version(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, info.Version)
}
