package relay

import (
	"encoding/base64"
	"encoding/hex"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sigweb/signal-web/jsonrpc"
	"github.com/sigweb/signal-web/model"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/zeebo/blake3"
)

const defaultContentType = "application/octet-stream"

// attachmentQuery reads the attachment reference from the query string. The
// short names a, g and r are accepted for id, groupId and recipientId.
func attachmentQuery(r *http.Request) rpcclient.AttachmentRef {
	q := r.URL.Query()
	param := func(long, short string) string {
		if v := q.Get(long); v != "" {
			return v
		}
		return q.Get(short)
	}
	return rpcclient.AttachmentRef{
		ID:          param("id", "a"),
		GroupID:     param("groupId", "g"),
		RecipientID: param("recipientId", "r"),
	}
}

// AttachmentHandler fetches an attachment from the session's upstream and
// writes its decoded bytes as a download.
func (rl *Relay) AttachmentHandler(w http.ResponseWriter, r *http.Request) {
	m := requestMonitor(r.Context(), rl.monitor)
	session, err := rl.sessions.Extract(r)
	if err != nil {
		m.WithError(err).Info("rejecting attachment request")
		writeSessionError(w, err)
		return
	}
	ref := attachmentQuery(r)
	if ref.ID == "" {
		writeError(w, http.StatusBadRequest, msgMissingAttachmentID, "")
		return
	}
	am := m.WithTag("upstream", session.BaseURL()).WithTag("attachment", ref.ID)

	client := rpcclient.NewUpstream(session.BaseURL(),
		rpcclient.WithHTTPClient(rl.httpClient),
		rpcclient.WithLogger(am.Entry),
		rpcclient.WithRoute(rl.rpcPath),
	)
	env := jsonrpc.NewBuilder().SetMethod("getAttachment").SetPayload(ref).Build()
	resp, _, err := client.Dispatch(r.Context(), env)
	if err != nil {
		am.ReportWarning(err, "attachment fetch failed")
		writeError(w, http.StatusInternalServerError, msgInternal, "")
		return
	}
	if resp.Error != nil {
		am.WithError(resp.Error).Info("upstream has no such attachment")
		writeError(w, http.StatusNotFound, msgNotFound, "")
		return
	}

	attachment, data, err := decodeAttachment(resp)
	if err != nil {
		am.ReportWarning(err, "attachment result is not an attachment")
		writeError(w, http.StatusInternalServerError, msgInternal, "")
		return
	}
	sum := blake3.Sum256(data)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", "private, max-age=3600")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", contentDisposition(attachment.Filename))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		am.WithError(err).Debug("client went away during download")
	}
}

// decodeAttachment reads a getAttachment result. The data member must be
// present; an empty string is a zero-byte attachment.
func decodeAttachment(resp *jsonrpc.Response) (model.Attachment, []byte, error) {
	var result struct {
		model.Attachment
		Data *string `json:"data"`
	}
	if err := resp.DecodeResult(&result); err != nil {
		return model.Attachment{}, nil, errors.Wrap(err, "decoding attachment result")
	}
	if result.Data == nil {
		return model.Attachment{}, nil, errors.New("attachment result has no data")
	}
	data, err := decodeAttachmentData(*result.Data)
	if err != nil {
		return model.Attachment{}, nil, err
	}
	attachment := result.Attachment
	attachment.Data = *result.Data
	return attachment, data, nil
}

// decodeAttachmentData accepts padded and unpadded standard base64.
func decodeAttachmentData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	decoded, rawErr := base64.RawStdEncoding.DecodeString(data)
	if rawErr == nil {
		return decoded, nil
	}
	return nil, errors.Wrap(err, "decoding attachment data")
}

func contentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
