// Package query runs condition trees against the message store.
package query

import (
	"time"

	"github.com/wesm/msgsearch/internal/mime"
)

// MessageSummary is a message as shown in result lists.
type MessageSummary struct {
	ID              int64     `json:"id"`
	AccountID       int64     `json:"account_id"`
	FolderID        int64     `json:"folder_id"`
	UID             string    `json:"uid"`
	MessageID       string    `json:"message_id,omitempty"`
	ThreadRoot      int64     `json:"thread_root,omitempty"`
	Subject         string    `json:"subject"`
	From            string    `json:"from"`
	Preview         string    `json:"preview,omitempty"`
	Date            time.Time `json:"date"`
	AttachmentCount int       `json:"attachment_count"`
	Read            bool      `json:"read"`
	Flagged         bool      `json:"flagged"`
}

// MessageDetail adds recipients, keywords and the decoded body.
type MessageDetail struct {
	MessageSummary
	FolderName  string            `json:"folder"`
	To          string            `json:"to,omitempty"`
	Cc          string            `json:"cc,omitempty"`
	Bcc         string            `json:"bcc,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Flags       []string          `json:"flags,omitempty"`
	BodyText    string            `json:"body,omitempty"`
	Attachments []mime.Attachment `json:"attachments,omitempty"`
}

// Options narrows and pages a search.
type Options struct {
	// AccountUUIDs limits the search to these accounts. Empty means all.
	AccountUUIDs []string
	// IncludeDeleted keeps messages marked deleted in the results.
	IncludeDeleted bool
	Limit          int
	Offset         int
}
