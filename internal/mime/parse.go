// Package mime turns raw RFC 5322 messages into the fields the message store
// indexes: address lists, threading headers, preview text and the full-text
// document.
package mime

import (
	"bytes"
	"html"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/wesm/msgsearch/internal/textutil"
)

// PreviewLength is the number of characters kept in a message preview.
const PreviewLength = 512

// Message is a parsed email message.
type Message struct {
	Subject     string
	Date        time.Time
	From        []*mail.Address
	To          []*mail.Address
	Cc          []*mail.Address
	Bcc         []*mail.Address
	ReplyTo     []*mail.Address
	MessageID   string
	InReplyTo   string
	References  []string
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
	Errors      []string // non-fatal parse problems reported by enmime
}

// Attachment describes a non-body MIME part.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Inline      bool   `json:"inline,omitempty"`
}

// Parse parses raw MIME data.
func Parse(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Subject:    textutil.EnsureUTF8(env.GetHeader("Subject")),
		MessageID:  trimID(env.GetHeader("Message-ID")),
		InReplyTo:  firstID(env.GetHeader("In-Reply-To")),
		References: splitIDs(env.GetHeader("References")),
		BodyText:   textutil.EnsureUTF8(env.Text),
		BodyHTML:   textutil.EnsureUTF8(env.HTML),
		From:       addressList(env, "From"),
		To:         addressList(env, "To"),
		Cc:         addressList(env, "Cc"),
		Bcc:        addressList(env, "Bcc"),
		ReplyTo:    addressList(env, "Reply-To"),
	}
	if d, ok := parseDate(env.GetHeader("Date")); ok {
		msg.Date = d
	}

	for _, p := range env.Attachments {
		if !isBodyPart(p) {
			msg.Attachments = append(msg.Attachments, attachment(p, false))
		}
	}
	for _, p := range env.Inlines {
		if !isBodyPart(p) {
			msg.Attachments = append(msg.Attachments, attachment(p, true))
		}
	}
	for _, e := range env.Errors {
		msg.Errors = append(msg.Errors, e.Error())
	}
	return msg, nil
}

func addressList(env *enmime.Envelope, header string) []*mail.Address {
	list, err := env.AddressList(header)
	if err != nil {
		return nil
	}
	out := list[:0]
	for _, a := range list {
		if a != nil && a.Address != "" {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func attachment(p *enmime.Part, inline bool) Attachment {
	return Attachment{
		Filename:    p.FileName,
		ContentType: p.ContentType,
		Size:        len(p.Content),
		Inline:      inline,
	}
}

// mediaType strips parameters and lowercases a Content-Type or
// Content-Disposition value.
func mediaType(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// isBodyPart reports whether an unnamed text part was split off by enmime
// even though it belongs to the body.
func isBodyPart(p *enmime.Part) bool {
	switch mediaType(p.ContentType) {
	case "text/plain", "text/html":
	default:
		return false
	}
	return p.FileName == "" && mediaType(p.Disposition) != "attachment"
}

func trimID(s string) string {
	return strings.Trim(strings.TrimSpace(s), "<>")
}

// firstID returns the first message ID in an In-Reply-To header. Some
// clients append comments or several IDs.
func firstID(s string) string {
	ids := splitIDs(s)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func splitIDs(s string) []string {
	var ids []string
	for _, f := range strings.Fields(s) {
		if id := trimID(f); id != "" && strings.Contains(id, "@") {
			ids = append(ids, id)
		}
	}
	return ids
}

var dateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// parseDate parses a Date header and returns it in UTC.
func parseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t.UTC(), true
	}
	// Drop a trailing "(PST)" style zone comment.
	if i := strings.LastIndexByte(s, '('); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var (
	dropTagsRe  = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	blockTagRe  = regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|ul|ol)\b[^>]*>`)
	anyTagRe    = regexp.MustCompile(`<[^>]*>`)
	blankLineRe = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces an HTML body to plain text. Block elements become line
// breaks and runs of spaces within a line collapse to one.
func StripHTML(s string) string {
	s = dropTagsRe.ReplaceAllString(s, "")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u00a0", " ").Replace(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	s = blankLineRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}

// Text returns the plain text body, falling back to the stripped HTML body.
func (m *Message) Text() string {
	if strings.TrimSpace(m.BodyText) != "" {
		return m.BodyText
	}
	if m.BodyHTML != "" {
		return StripHTML(m.BodyHTML)
	}
	return ""
}

// FullText is the document indexed for MESSAGE_CONTENTS searches.
func (m *Message) FullText() string {
	return m.Text()
}

// Preview is the single-line summary stored with the message.
func (m *Message) Preview() string {
	return textutil.Preview(m.Text(), PreviewLength)
}

// FormatAddresses renders an address list the way it is stored and matched
// by sender and recipient searches. Display names stay unencoded so LIKE
// matches see the decoded text.
func FormatAddresses(list []*mail.Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		if a.Name == "" {
			parts = append(parts, a.Address)
			continue
		}
		name := a.Name
		if strings.ContainsAny(name, `",;:<>@()`) {
			name = `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
		}
		parts = append(parts, name+" <"+a.Address+">")
	}
	return strings.Join(parts, ", ")
}
