package root

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sigweb/signal-web/cfg"
	"github.com/sigweb/signal-web/internal/mockrpc"
	"github.com/sigweb/signal-web/model"
	"github.com/sigweb/signal-web/monitor"
	"github.com/sigweb/signal-web/relay"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfig(t *testing.T, c *cfg.Config) {
	t.Helper()
	old := Config
	Config = c
	t.Cleanup(func() { Config = old })
}

func newCmd(flags map[string]string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("upstream", "", "")
	cmd.Flags().String("relay", "", "")
	for k, v := range flags {
		_ = cmd.Flags().Set(k, v)
	}
	return cmd
}

func TestUpstreamFromFlagOrConfig(t *testing.T) {
	withConfig(t, &cfg.Config{DefaultUpstream: "http://configured:8080"})

	u, err := Upstream(newCmd(map[string]string{"upstream": "http://flag:8080"}))
	require.NoError(t, err)
	assert.Equal(t, "http://flag:8080", u)

	u, err = Upstream(newCmd(nil))
	require.NoError(t, err)
	assert.Equal(t, "http://configured:8080", u)

	Config = &cfg.Config{}
	_, err = Upstream(newCmd(nil))
	assert.ErrorIs(t, err, ErrNoUpstream)
}

func TestClientDirectAndThroughRelay(t *testing.T) {
	withConfig(t, nil)
	backend := mockrpc.NewBackend()
	backend.Groups = []model.Group{{ID: "g1", Name: "friends"}}
	upstream := mockrpc.NewServer(t, mockrpc.NewProvider(backend))

	m, _ := monitor.NewNull()
	relaySrv := httptest.NewServer(relay.New(relay.Config{Monitor: m}).Routes())
	defer relaySrv.Close()

	direct, err := Client(newCmd(map[string]string{"upstream": upstream.URL}))
	require.NoError(t, err)
	assert.Equal(t, rpcclient.UpstreamRoute, direct.Route)

	viaRelay, err := Client(newCmd(map[string]string{"upstream": upstream.URL, "relay": relaySrv.URL}))
	require.NoError(t, err)
	assert.Equal(t, rpcclient.RelayRoute, viaRelay.Route)

	for _, c := range []*rpcclient.Client{direct, viaRelay} {
		groups, err := c.ListGroups(context.Background())
		require.NoError(t, err)
		assert.Equal(t, backend.Groups, groups)
	}
	assert.Equal(t, []string{"listGroups", "listGroups"}, backend.Received())
}

func TestClientUsesConfiguredPlaceholder(t *testing.T) {
	withConfig(t, &cfg.Config{AvatarPlaceholder: "/anon.png", UpstreamRPCPath: "/rpc"})
	c, err := NewClient("", "http://backend:8080")
	require.NoError(t, err)
	assert.Equal(t, "/anon.png", c.AvatarPlaceholder)
	assert.Equal(t, "/rpc", c.Route)
}

func TestExecuteHelperEChecksArguments(t *testing.T) {
	withConfig(t, &cfg.Config{DefaultUpstream: "http://backend:8080"})
	called := false
	run := ExecuteHelperE(func(*rpcclient.Client, []string, io.Writer, *pflag.FlagSet) error {
		called = true
		return nil
	}, 1)
	assert.Error(t, run(newCmd(nil), nil))
	assert.False(t, called)
	assert.NoError(t, run(newCmd(nil), []string{"x"}))
	assert.True(t, called)
}

func TestWriteValue(t *testing.T) {
	value := map[string]any{"id": "g1", "isMember": true}

	cmd := &cobra.Command{}
	AddOutputFlags(cmd)
	buf := &bytes.Buffer{}
	require.NoError(t, WriteValue(cmd.Flags(), buf, value))
	assert.Equal(t, "id: g1\nisMember: true\n", buf.String())

	require.NoError(t, cmd.Flags().Set("format", "json"))
	buf.Reset()
	require.NoError(t, WriteValue(cmd.Flags(), buf, value))
	assert.JSONEq(t, `{"id":"g1","isMember":true}`, buf.String())

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, cmd.Flags().Set("output", path))
	buf.Reset()
	require.NoError(t, WriteValue(cmd.Flags(), buf, value))
	assert.Empty(t, buf.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"g1","isMember":true}`, string(data))

	require.NoError(t, cmd.Flags().Set("format", "xml"))
	assert.EqualError(t, WriteValue(cmd.Flags(), buf, value), "unsupported output format 'xml'")
}

func TestCommandTree(t *testing.T) {
	for _, name := range []string{"verbose", "config", "upstream", "relay"} {
		assert.NotNil(t, Command.PersistentFlags().Lookup(name), name)
	}
}
