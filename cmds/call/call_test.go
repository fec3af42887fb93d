package call

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sigweb/signal-web/internal/mockrpc"
	"github.com/sigweb/signal-web/model"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type FakeServerSuite struct {
	suite.Suite
	backend *mockrpc.Backend
	client  *rpcclient.Client
}

func (suite *FakeServerSuite) SetupTest() {
	suite.backend = mockrpc.NewBackend()
	suite.backend.Groups = []model.Group{{ID: "g1", Name: "friends"}}
	suite.backend.Avatars["+1555"] = "aGk="
	srv := mockrpc.NewServer(suite.T(), mockrpc.NewProvider(suite.backend))
	logger, _ := nullLog.NewNullLogger()
	suite.client = rpcclient.NewUpstream(srv.URL, rpcclient.WithLogger(logrus.NewEntry(logger)))
}

func TestFakeServerSuite(t *testing.T) {
	suite.Run(t, new(FakeServerSuite))
}

func setUpCommand() (*bytes.Buffer, *cobra.Command) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.Flags().Bool("dry-run", false, "")
	cmd.Flags().String("format", "yaml", "")
	cmd.Flags().String("output", "", "")
	return buf, cmd
}

func (suite *FakeServerSuite) TestCallKebabCaseMethod() {
	buf, cmd := setUpCommand()
	suite.NoError(runCall(suite.client, []string{"list-groups"}, cmd.OutOrStdout(), cmd.Flags()))
	suite.Equal([]string{"listGroups"}, suite.backend.Received())
	suite.Equal("- id: g1\n  isBlocked: false\n  isMember: false\n  name: friends\n", buf.String())
}

func (suite *FakeServerSuite) TestCallYAMLParams() {
	buf, cmd := setUpCommand()
	suite.NoError(cmd.Flags().Set("format", "json"))
	suite.NoError(runCall(suite.client, []string{"getAvatar", `profile: "+1555"`}, cmd.OutOrStdout(), cmd.Flags()))
	call, ok := suite.backend.LastCall()
	suite.Require().True(ok)
	suite.JSONEq(`{"profile":"+1555"}`, string(call.Params))
	suite.JSONEq(`{"data":"aGk="}`, buf.String())
}

func (suite *FakeServerSuite) TestCallRPCError() {
	buf, cmd := setUpCommand()
	err := runCall(suite.client, []string{"list-stickers"}, cmd.OutOrStdout(), cmd.Flags())
	suite.Error(err)
	suite.True(rpcclient.IsRPCError(err))
	suite.Equal("", buf.String())
}

func (suite *FakeServerSuite) TestCallDryRun() {
	buf, cmd := setUpCommand()
	suite.NoError(cmd.Flags().Set("dry-run", "true"))
	suite.NoError(cmd.Flags().Set("format", "json"))
	suite.NoError(runCall(suite.client, []string{"send", `{"recipient": ["+1555"], "message": "hi"}`}, cmd.OutOrStdout(), cmd.Flags()))
	suite.Empty(suite.backend.Calls)

	var env map[string]any
	suite.Require().NoError(json.Unmarshal(buf.Bytes(), &env))
	suite.Equal("send", env["method"])
	suite.Equal("2.0", env["jsonrpc"])
	suite.Equal(map[string]any{"recipient": []any{"+1555"}, "message": "hi"}, env["params"])
}

func TestMethodName(t *testing.T) {
	for in, want := range map[string]string{
		"list-groups":  "listGroups",
		"listGroups":   "listGroups",
		"get_avatar":   "getAvatar",
		"version":      "version",
		"ListContacts": "listContacts",
	} {
		assert.Equal(t, want, methodName(in), in)
	}
}

func TestParseParams(t *testing.T) {
	p, err := parseParams("")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = parseParams("profile: x\nsize: 3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"profile":"x","size":3}`, string(p))

	p, err = parseParams(`["a", "b"]`)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(p))

	_, err = parseParams("a: [unclosed")
	assert.Error(t, err)
}
