package httputil

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForTCPListener(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, WaitForTCPListener(context.Background(), l.Addr().String(), 2*time.Second))
}

func TestWaitForTCPListenerTimesOut(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	err = WaitForTCPListener(context.Background(), addr, 300*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForTCPListenerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitForTCPListener(ctx, "127.0.0.1:1", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDialAddress(t *testing.T) {
	assert.Equal(t, "localhost:3000", DialAddress(":3000"))
	assert.Equal(t, "localhost:3000", DialAddress("0.0.0.0:3000"))
	assert.Equal(t, "10.0.0.1:80", DialAddress("10.0.0.1:80"))
	assert.Equal(t, "garbage", DialAddress("garbage"))
}
