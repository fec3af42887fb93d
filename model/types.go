// Package model holds the records exchanged with the messaging backend.
package model

import (
	"encoding/json"
	"time"
)

type (
	// Message is an envelope received from the backend, either an incoming
	// data message or a sync message describing something sent from another
	// linked device.
	Message struct {
		Source                   string       `json:"source"`
		SourceNumber             string       `json:"sourceNumber,omitempty"`
		SourceUUID               string       `json:"sourceUuid"`
		SourceName               string       `json:"sourceName"`
		SourceDevice             int          `json:"sourceDevice"`
		Timestamp                int64        `json:"timestamp"`
		ServerReceivedTimestamp  int64        `json:"serverReceivedTimestamp"`
		ServerDeliveredTimestamp int64        `json:"serverDeliveredTimestamp"`
		DataMessage              *DataMessage `json:"dataMessage,omitempty"`
		SyncMessage              *SyncMessage `json:"syncMessage,omitempty"`
	}

	SyncMessage struct {
		SentMessage SentMessage `json:"sentMessage"`
	}

	SentMessage struct {
		// Free form in the backend; usually a phone number string or null.
		DestinationNumber json.RawMessage `json:"destinationNumber,omitempty"`
		Destination       string          `json:"destination"`
		DestinationUUID   string          `json:"destinationUuid"`
		Timestamp         int64           `json:"timestamp"`
		Message           string          `json:"message"`
		ExpiresInSeconds  int             `json:"expiresInSeconds"`
		ViewOnce          bool            `json:"viewOnce"`
	}

	DataMessage struct {
		Timestamp        int64        `json:"timestamp"`
		Message          string       `json:"message,omitempty"`
		ExpiresInSeconds int          `json:"expiresInSeconds"`
		ViewOnce         bool         `json:"viewOnce"`
		GroupInfo        *GroupInfo   `json:"groupInfo,omitempty"`
		Reaction         *Reaction    `json:"reaction,omitempty"`
		Attachments      []Attachment `json:"attachments,omitempty"`
	}

	Reaction struct {
		Emoji               string `json:"emoji"`
		TargetAuthor        string `json:"targetAuthor"`
		TargetAuthorNumber  string `json:"targetAuthorNumber"`
		TargetAuthorUUID    string `json:"targetAuthorUuid"`
		TargetSentTimestamp int64  `json:"targetSentTimestamp"`
		IsRemove            bool   `json:"isRemove"`
	}

	// GroupInfo is the group reference carried inside a data message.
	GroupInfo struct {
		GroupID   string `json:"groupId"`
		GroupName string `json:"groupName"`
		Revision  int    `json:"revision"`
		Type      string `json:"type"`
	}

	// Attachment describes a file attached to a message. Data is only
	// populated by the getAttachment call, and holds the base64 encoded
	// content.
	Attachment struct {
		ID              string          `json:"id"`
		ContentType     string          `json:"contentType"`
		Filename        string          `json:"filename,omitempty"`
		Size            int64           `json:"size"`
		Width           int             `json:"width,omitempty"`
		Height          int             `json:"height,omitempty"`
		Caption         json.RawMessage `json:"caption,omitempty"`
		UploadTimestamp int64           `json:"uploadTimestamp,omitempty"`
		Data            string          `json:"data,omitempty"`
	}

	// Group is an entry of the listGroups result.
	Group struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		IsMember    bool     `json:"isMember"`
		IsBlocked   bool     `json:"isBlocked"`
		Members     []Member `json:"members,omitempty"`
		Admins      []Member `json:"admins,omitempty"`
	}

	Member struct {
		Number string `json:"number,omitempty"`
		UUID   string `json:"uuid,omitempty"`
	}

	// Contact is an entry of the listContacts result.
	Contact struct {
		Number      string `json:"number,omitempty"`
		UUID        string `json:"uuid,omitempty"`
		Username    string `json:"username,omitempty"`
		Name        string `json:"name,omitempty"`
		GivenName   string `json:"givenName,omitempty"`
		FamilyName  string `json:"familyName,omitempty"`
		Color       string `json:"color,omitempty"`
		IsBlocked   bool   `json:"isBlocked"`
		ProfileName string `json:"profileName,omitempty"`
	}

	// Avatar is the raw result of the getAvatar call.
	Avatar struct {
		Data string `json:"data"`
	}

	// SendRequest is the params object of the send call. Exactly one of
	// Recipients and GroupID is expected to be set.
	SendRequest struct {
		Recipients  []string `json:"recipient,omitempty"`
		GroupID     string   `json:"groupId,omitempty"`
		Message     string   `json:"message"`
		Attachments []string `json:"attachments,omitempty"`
	}

	// SendResult is the result of the send call.
	SendResult struct {
		Timestamp int64        `json:"timestamp"`
		Results   []SendStatus `json:"results,omitempty"`
	}

	SendStatus struct {
		RecipientAddress Member `json:"recipientAddress"`
		Type             string `json:"type"`
	}

	// VersionInfo is the result of the version call.
	VersionInfo struct {
		Version string `json:"version"`
	}
)

// Time converts a backend timestamp (milliseconds since the epoch) to a
// time.Time.
func Time(millis int64) time.Time {
	return time.UnixMilli(millis)
}

// Text returns the visible text of a message, whether it arrived as a data
// message or as a sync message from another device.
func (m *Message) Text() string {
	switch {
	case m.DataMessage != nil:
		return m.DataMessage.Message
	case m.SyncMessage != nil:
		return m.SyncMessage.SentMessage.Message
	}
	return ""
}

// GroupID returns the id of the group the message belongs to, or "" for a
// direct message.
func (m *Message) GroupID() string {
	if m.DataMessage != nil && m.DataMessage.GroupInfo != nil {
		return m.DataMessage.GroupInfo.GroupID
	}
	return ""
}
