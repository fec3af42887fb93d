package rpcclient

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	"github.com/taskcluster/httpbackoff/v3"
)

// WaitForUpstream polls the backend health endpoint until it answers with a
// success status, backing off exponentially for at most maxWait. The base
// URL must be the backend itself, not a relay.
func (c *Client) WaitForUpstream(ctx context.Context, maxWait time.Duration) error {
	u, err := setURL(c.BaseURL, CheckRoute, nil)
	if err != nil {
		return err
	}
	settings := backoff.NewExponentialBackOff()
	settings.InitialInterval = 100 * time.Millisecond
	settings.MaxInterval = 5 * time.Second
	settings.MaxElapsedTime = maxWait
	retryClient := &httpbackoff.Client{BackOffSettings: settings}

	resp, attempts, err := retryClient.Retry(func() (*http.Response, error, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, nil, err
		}
		resp, err := c.httpClient().Do(req)
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return resp, err, nil
	})
	if resp != nil {
		_ = resp.Body.Close()
		if err == nil && resp.StatusCode/100 != 2 {
			err = httpbackoff.BadHttpResponseCode{HttpResponseCode: resp.StatusCode, Message: resp.Status}
		}
	}
	if err != nil {
		return errors.Wrapf(err, "upstream %s not ready after %d attempts", u, attempts)
	}
	c.Logger.WithField("attempts", attempts).Info("upstream is ready")
	return nil
}
