// Package email builds raw RFC 5322 messages for tests.
package email

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type attachment struct {
	filename    string
	contentType string
	data        []byte
}

// MessageBuilder constructs MIME messages with a fluent API. Output uses
// \r\n line endings.
type MessageBuilder struct {
	headers     [][2]string
	contentType string
	body        string
	attachments []attachment
	boundary    string
}

// NewMessage creates a MessageBuilder with default From, To, Subject and Date
// headers.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		headers: [][2]string{
			{"From", "sender@example.com"},
			{"To", "recipient@example.com"},
			{"Subject", "Test Message"},
			{"Date", "Mon, 01 Jan 2024 12:00:00 +0000"},
		},
		body:     "This is a test message body.",
		boundary: "boundary123",
	}
}

// Header sets a header, replacing an earlier value with the same name. An
// empty value removes the header.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	for i, h := range b.headers {
		if strings.EqualFold(h[0], key) {
			if value == "" {
				b.headers = append(b.headers[:i], b.headers[i+1:]...)
			} else {
				b.headers[i][1] = value
			}
			return b
		}
	}
	if value != "" {
		b.headers = append(b.headers, [2]string{key, value})
	}
	return b
}

func (b *MessageBuilder) From(v string) *MessageBuilder    { return b.Header("From", v) }
func (b *MessageBuilder) To(v string) *MessageBuilder      { return b.Header("To", v) }
func (b *MessageBuilder) Cc(v string) *MessageBuilder      { return b.Header("Cc", v) }
func (b *MessageBuilder) Bcc(v string) *MessageBuilder     { return b.Header("Bcc", v) }
func (b *MessageBuilder) ReplyTo(v string) *MessageBuilder { return b.Header("Reply-To", v) }
func (b *MessageBuilder) Subject(v string) *MessageBuilder { return b.Header("Subject", v) }
func (b *MessageBuilder) Date(v string) *MessageBuilder    { return b.Header("Date", v) }

// MessageID sets the Message-ID header; angle brackets are added.
func (b *MessageBuilder) MessageID(id string) *MessageBuilder {
	return b.Header("Message-ID", "<"+id+">")
}

// InReplyTo sets the In-Reply-To header; angle brackets are added.
func (b *MessageBuilder) InReplyTo(id string) *MessageBuilder {
	return b.Header("In-Reply-To", "<"+id+">")
}

// ContentType overrides the Content-Type of a single-part message.
func (b *MessageBuilder) ContentType(v string) *MessageBuilder { b.contentType = v; return b }

// Body sets the message body text.
func (b *MessageBuilder) Body(v string) *MessageBuilder { b.body = v; return b }

// WithAttachment adds a base64-encoded attachment part.
func (b *MessageBuilder) WithAttachment(filename, contentType string, data []byte) *MessageBuilder {
	b.attachments = append(b.attachments, attachment{filename, contentType, data})
	return b
}

// Bytes builds the complete MIME message.
func (b *MessageBuilder) Bytes() []byte {
	const nl = "\r\n"
	var s strings.Builder

	for _, h := range b.headers {
		s.WriteString(h[0] + ": " + h[1] + nl)
	}
	s.WriteString("MIME-Version: 1.0" + nl)

	if len(b.attachments) == 0 {
		ct := b.contentType
		if ct == "" {
			ct = `text/plain; charset="utf-8"`
		}
		s.WriteString("Content-Type: " + ct + nl + nl)
		s.WriteString(b.body + nl)
		return []byte(s.String())
	}

	fmt.Fprintf(&s, "Content-Type: multipart/mixed; boundary=%q%s%s", b.boundary, nl, nl)
	s.WriteString("--" + b.boundary + nl)
	s.WriteString(`Content-Type: text/plain; charset="utf-8"` + nl + nl)
	s.WriteString(b.body + nl)
	for _, att := range b.attachments {
		ct := att.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		s.WriteString("--" + b.boundary + nl)
		fmt.Fprintf(&s, "Content-Type: %s; name=%q%s", ct, att.filename, nl)
		fmt.Fprintf(&s, "Content-Disposition: attachment; filename=%q%s", att.filename, nl)
		s.WriteString("Content-Transfer-Encoding: base64" + nl + nl)
		s.WriteString(base64.StdEncoding.EncodeToString(att.data) + nl)
	}
	s.WriteString("--" + b.boundary + "--" + nl)
	return []byte(s.String())
}
