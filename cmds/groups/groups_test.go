package groups

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sigweb/signal-web/internal/mockrpc"
	"github.com/sigweb/signal-web/jsonrpc"
	"github.com/sigweb/signal-web/model"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"
)

type FakeServerSuite struct {
	suite.Suite
	backend *mockrpc.Backend
	client  *rpcclient.Client
}

func (suite *FakeServerSuite) SetupTest() {
	suite.backend = mockrpc.NewBackend()
	suite.backend.Groups = []model.Group{
		{ID: "g1", Name: "friends", IsMember: true},
		{ID: "g2", Name: "old work"},
	}
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
	cmd.Flags().String("format-string", defaultFormat, "")
	cmd.Flags().Bool("member", false, "")
	cmd.Flags().Bool("raw", false, "")
	cmd.Flags().String("format", "yaml", "")
	cmd.Flags().String("output", "", "")
	return buf, cmd
}

func (suite *FakeServerSuite) TestRunList() {
	buf, cmd := setUpCommand()
	suite.NoError(runList(suite.client, nil, cmd.OutOrStdout(), cmd.Flags()))
	suite.Equal("g1 friends\ng2 old work\n", buf.String())
}

func (suite *FakeServerSuite) TestRunListMembersOnly() {
	buf, cmd := setUpCommand()
	suite.NoError(cmd.Flags().Set("member", "true"))
	suite.NoError(runList(suite.client, nil, cmd.OutOrStdout(), cmd.Flags()))
	suite.Equal("g1 friends\n", buf.String())
}

func (suite *FakeServerSuite) TestRunListFormatString() {
	buf, cmd := setUpCommand()
	suite.NoError(cmd.Flags().Set("format-string", "{{ .Name }}"))
	suite.NoError(runList(suite.client, nil, cmd.OutOrStdout(), cmd.Flags()))
	suite.Equal("friends\nold work\n", buf.String())
}

func (suite *FakeServerSuite) TestRunListRaw() {
	buf, cmd := setUpCommand()
	suite.NoError(cmd.Flags().Set("raw", "true"))
	suite.NoError(cmd.Flags().Set("format", "json"))
	suite.NoError(runList(suite.client, nil, cmd.OutOrStdout(), cmd.Flags()))
	suite.Contains(buf.String(), `"id": "g1"`)
	suite.Contains(buf.String(), `"isMember": true`)
}

func (suite *FakeServerSuite) TestRunListBadTemplate() {
	buf, cmd := setUpCommand()
	suite.NoError(cmd.Flags().Set("format-string", "{{ .Name"))
	suite.Error(runList(suite.client, nil, cmd.OutOrStdout(), cmd.Flags()))
	suite.Equal("", buf.String())
}

func (suite *FakeServerSuite) TestRunListRPCError() {
	buf, cmd := setUpCommand()
	suite.backend.Methods["listGroups"] = func(json.RawMessage) (any, *jsonrpc.Error) {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: "no account"}
	}
	err := runList(suite.client, nil, cmd.OutOrStdout(), cmd.Flags())
	suite.ErrorContains(err, "no account")
	suite.Equal("", buf.String())
}
