// Package call implements a generic JSON-RPC call subcommand.
package call

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/iancoleman/strcase"
	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/jsonrpc"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

func init() {
	callCmd := &cobra.Command{
		Use:   "call <method> [params]",
		Short: "Call any backend method.",
		Long: `Calls a backend method and prints its result.

The method may be given in camel case (listGroups) or kebab case (list-groups).
Params are a YAML or JSON document, for example:

  signal-web call get-avatar 'profile: "+15550001"'
  signal-web call send '{"recipient": ["+15550001"], "message": "hi"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: root.ExecuteHelperE(runCall, 1),
	}
	callCmd.Flags().Bool("dry-run", false, "Print the envelope instead of sending it.")
	root.AddOutputFlags(callCmd)
	root.Command.AddCommand(callCmd)
}

// methodName converts a command line method name to the backend's camel
// case.
func methodName(arg string) string {
	return strcase.ToLowerCamel(arg)
}

// parseParams converts a YAML or JSON document into JSON params. An empty
// document means no params.
func parseParams(doc string) (json.RawMessage, error) {
	if doc == "" {
		return nil, nil
	}
	data, err := yaml.YAMLToJSON([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("params are neither YAML nor JSON: %v", err)
	}
	return data, nil
}

func runCall(client *rpcclient.Client, args []string, out io.Writer, flags *pflag.FlagSet) error {
	method := methodName(args[0])
	var params json.RawMessage
	if len(args) > 1 {
		var err error
		if params, err = parseParams(args[1]); err != nil {
			return err
		}
	}
	b := jsonrpc.NewBuilder().SetMethod(method)
	if params != nil {
		b = b.SetPayload(params)
	}
	env := b.Build()

	if dryRun, _ := flags.GetBool("dry-run"); dryRun {
		if err := env.Validate(); err != nil {
			return err
		}
		return root.WriteValue(flags, out, env)
	}

	resp, _, err := client.Dispatch(context.Background(), env)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return root.WriteValue(flags, out, resp.Result)
}
