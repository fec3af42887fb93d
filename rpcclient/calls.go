package rpcclient

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sigweb/signal-web/jsonrpc"
	"github.com/sigweb/signal-web/model"
)

// DefaultAvatarPlaceholder is the image shown for profiles without an
// avatar.
const DefaultAvatarPlaceholder = "https://gravatar.com/avatar/27205e5c51cb03f862138b22bcb5dc20f94a342e744ff6df1b8dc8af3c865109?f=y"

// AttachmentRef identifies an attachment. GroupID or RecipientID scope the
// lookup to a conversation; both are optional.
type AttachmentRef struct {
	ID          string `json:"id"`
	GroupID     string `json:"groupId,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
}

// ListGroups returns the groups of the account. The backend may answer with
// a bare array or with an object holding a "groups" array; both are
// accepted.
func (c *Client) ListGroups(ctx context.Context) ([]model.Group, error) {
	var raw json.RawMessage
	if err := c.callInto(ctx, "listGroups", map[string]any{}, &raw); err != nil {
		return nil, err
	}
	var groups []model.Group
	if err := json.Unmarshal(raw, &groups); err == nil {
		return groups, nil
	}
	var wrapped struct {
		Groups []model.Group `json:"groups"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errors.Wrap(err, "listGroups result is neither an array nor an object with groups")
	}
	return wrapped.Groups, nil
}

// ListContacts returns the contacts of the account.
func (c *Client) ListContacts(ctx context.Context) ([]model.Contact, error) {
	var contacts []model.Contact
	if err := c.callInto(ctx, "listContacts", map[string]any{}, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// GetAvatar returns an image reference for a profile: a data URI when the
// backend has an avatar, the placeholder when it answers with an error or
// no data. Only transport failures are returned as errors.
func (c *Client) GetAvatar(ctx context.Context, profileID string) (string, error) {
	resp, err := c.Call(ctx, "getAvatar", map[string]any{"profile": profileID})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		c.Logger.WithField("profile", profileID).WithError(resp.Error).Debug("no avatar, using placeholder")
		return c.placeholder(), nil
	}
	var avatar model.Avatar
	if err := resp.DecodeResult(&avatar); err != nil || avatar.Data == "" {
		return c.placeholder(), nil
	}
	return AvatarDataURI(avatar.Data), nil
}

// IsPlaceholder reports whether ref is the client's placeholder image.
func (c *Client) IsPlaceholder(ref string) bool {
	return ref == c.placeholder()
}

func (c *Client) placeholder() string {
	if c.AvatarPlaceholder != "" {
		return c.AvatarPlaceholder
	}
	return DefaultAvatarPlaceholder
}

// AvatarDataURI wraps base64 PNG data in a data URI.
func AvatarDataURI(data string) string {
	return "data:image/png;base64," + data
}

// GetAttachment fetches an attachment with its base64 encoded content.
func (c *Client) GetAttachment(ctx context.Context, ref AttachmentRef) (*model.Attachment, error) {
	if ref.ID == "" {
		return nil, errors.New("attachment id is required")
	}
	attachment := new(model.Attachment)
	if err := c.callInto(ctx, "getAttachment", ref, attachment); err != nil {
		return nil, err
	}
	if attachment.ID == "" {
		attachment.ID = ref.ID
	}
	return attachment, nil
}

// Send sends a message to recipients or to a group.
func (c *Client) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	if len(req.Recipients) == 0 && req.GroupID == "" {
		return nil, errors.New("send needs recipients or a group id")
	}
	result := new(model.SendResult)
	if err := c.callInto(ctx, "send", req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Version asks the backend for its version.
func (c *Client) Version(ctx context.Context) (*model.VersionInfo, error) {
	info := new(model.VersionInfo)
	if err := c.callInto(ctx, "version", nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

// IsRPCError reports whether err is an error returned by the backend, as
// opposed to a transport failure.
func IsRPCError(err error) bool {
	var rpcErr *jsonrpc.Error
	return errors.As(err, &rpcErr)
}
