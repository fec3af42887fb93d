package rpcclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/johncgriffin/overflow"
	"github.com/orcaman/writerseeker"
	"github.com/pkg/errors"
	"github.com/sigweb/signal-web/version"
	"github.com/taskcluster/httpbackoff/v3"
)

// AttachmentRoute is the relay endpoint serving attachment downloads.
const AttachmentRoute = "/api/attachments"

// ErrAttachmentNotFound is returned when the relay answers a download with
// 404.
var ErrAttachmentNotFound = errors.New("attachment not found")

// Download describes a completed attachment download.
type Download struct {
	ContentType        string
	ContentDisposition string
	ContentLength      int64
	Attempts           int
}

// DownloadAttachmentToBuf is a convenience method to download an attachment
// through the relay to an in-memory byte slice.
func (c *Client) DownloadAttachmentToBuf(ctx context.Context, ref AttachmentRef) (buf []byte, d *Download, err error) {
	writeSeeker := &writerseeker.WriterSeeker{}
	d, err = c.DownloadAttachmentToWriteSeeker(ctx, ref, writeSeeker)
	if err != nil {
		return
	}
	buf, err = io.ReadAll(writeSeeker.BytesReader())
	return
}

// DownloadAttachmentToFile is a convenience method to download an attachment
// through the relay to a file. The file is overwritten if it already exists.
func (c *Client) DownloadAttachmentToFile(ctx context.Context, ref AttachmentRef, filepath string) (d *Download, err error) {
	writeSeeker, err := os.Create(filepath)
	if err != nil {
		return nil, err
	}
	defer func() {
		err2 := writeSeeker.Close()
		if err == nil {
			err = err2
		}
	}()
	return c.DownloadAttachmentToWriteSeeker(ctx, ref, writeSeeker)
}

// DownloadAttachmentToWriteSeeker downloads an attachment through the
// relay's attachment endpoint and writes it to writeSeeker, retrying if
// intermittent errors occur. Each attempt starts writing at offset zero.
func (c *Client) DownloadAttachmentToWriteSeeker(ctx context.Context, ref AttachmentRef, writeSeeker io.WriteSeeker) (*Download, error) {
	if ref.ID == "" {
		return nil, errors.New("attachment id is required")
	}
	query := url.Values{"id": {ref.ID}}
	if ref.GroupID != "" {
		query.Set("groupId", ref.GroupID)
	}
	if ref.RecipientID != "" {
		query.Set("recipientId", ref.RecipientID)
	}
	u, err := setURL(c.BaseURL, AttachmentRoute, query)
	if err != nil {
		return nil, err
	}

	settings := backoff.NewExponentialBackOff()
	settings.InitialInterval = 100 * time.Millisecond
	settings.MaxElapsedTime = 30 * time.Second
	retryClient := &httpbackoff.Client{BackOffSettings: settings}

	d := new(Download)
	resp, attempts, err := retryClient.Retry(func() (*http.Response, error, error) {
		if _, err := writeSeeker.Seek(0, io.SeekStart); err != nil {
			return nil, nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("User-Agent", version.UserAgent())
		resp, err := c.httpClient().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			return nil, err, nil
		}
		if resp.StatusCode/100 != 2 {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return resp, nil, nil
		}
		defer resp.Body.Close()
		d.ContentLength, err = copyCounting(writeSeeker, resp.Body)
		if err != nil {
			return resp, err, nil
		}
		if resp.ContentLength >= 0 && resp.ContentLength != d.ContentLength {
			return resp, fmt.Errorf("expected %d bytes but got %d", resp.ContentLength, d.ContentLength), nil
		}
		return resp, nil, nil
	})
	d.Attempts = attempts
	if resp != nil && err == nil && resp.StatusCode/100 != 2 {
		err = httpbackoff.BadHttpResponseCode{HttpResponseCode: resp.StatusCode, Message: resp.Status}
	}
	if err != nil {
		var bad httpbackoff.BadHttpResponseCode
		if errors.As(err, &bad) && bad.HttpResponseCode == http.StatusNotFound {
			return d, ErrAttachmentNotFound
		}
		return d, errors.Wrapf(err, "downloading attachment %s", ref.ID)
	}
	d.ContentType = resp.Header.Get("Content-Type")
	d.ContentDisposition = resp.Header.Get("Content-Disposition")
	c.Logger.WithField("attachment", ref.ID).WithField("bytes", d.ContentLength).Debug("downloaded attachment")
	return d, nil
}

// copyCounting is io.Copy with an overflow checked byte count.
func copyCounting(w io.Writer, r io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total = overflow.Add64p(total, int64(written))
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
