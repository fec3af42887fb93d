// Package status implements the status subcommand, reporting whether the
// relay and the backend are reachable.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sigweb/signal-web/cmds/root"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/spf13/cobra"
)

const timeout = 10 * time.Second

var httpClient = &http.Client{Timeout: timeout}

// PingResponse is the reply of the relay's ping endpoint. Alive is sent as
// a string by the relay; booleans are accepted too.
type PingResponse struct {
	Alive   json.RawMessage `json:"alive"`
	Version string          `json:"version"`
}

// IsAlive reports whether the ping said the service is alive.
func (p PingResponse) IsAlive() bool {
	v := strings.Trim(string(p.Alive), `"`)
	return v == "true"
}

func init() {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "status queries the running status of the relay and the backend",
		Long: `Pings the relay given with --relay, if any, and checks the health endpoint
of the backend. Exits with an error when any of them is down.`,
		RunE: status,
	}
	root.Command.AddCommand(statusCmd)
}

func status(cmd *cobra.Command, _ []string) error {
	relayURL, _ := cmd.Flags().GetString("relay")
	upstream, err := root.Upstream(cmd)
	if err != nil && relayURL == "" {
		return err
	}
	return report(cmd.OutOrStdout(), relayURL, upstream)
}

// report prints one line per service, and fails if any of them is down.
func report(out io.Writer, relayURL, upstream string) error {
	down := []string{}
	if relayURL != "" {
		var ping PingResponse
		err := objectFromJSONURL(strings.TrimSuffix(relayURL, "/")+"/api/ping", &ping)
		switch {
		case err != nil:
			fmt.Fprintf(out, "relay     %v\n", err)
			down = append(down, "relay")
		case !ping.IsAlive():
			fmt.Fprintf(out, "relay     not alive\n")
			down = append(down, "relay")
		default:
			fmt.Fprintf(out, "relay     alive (version %s)\n", ping.Version)
		}
	}
	if upstream != "" {
		if err := checkUpstream(upstream); err != nil {
			fmt.Fprintf(out, "upstream  %v\n", err)
			down = append(down, "upstream")
		} else {
			fmt.Fprintf(out, "upstream  alive\n")
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("%s down", strings.Join(down, " and "))
	}
	return nil
}

func checkUpstream(upstream string) error {
	resp, err := httpClient.Get(strings.TrimSuffix(upstream, "/") + rpcclient.CheckRoute)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("bad (!= 2xx) status code %v from %v", resp.StatusCode, resp.Request.URL)
	}
	return nil
}

func objectFromJSONURL(urlReturningJSON string, object any) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlReturningJSON, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad (!= 200) status code %v from %v", resp.StatusCode, urlReturningJSON)
	}
	return json.NewDecoder(resp.Body).Decode(object)
}
