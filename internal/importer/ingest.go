// Package importer loads raw RFC 5322 messages into the message store.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/msgsearch/internal/mime"
	"github.com/wesm/msgsearch/internal/store"
	"github.com/wesm/msgsearch/internal/textutil"
)

// RawUID derives a stable per-folder UID from the raw message bytes, so
// importing the same file twice updates the existing row.
func RawUID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

// IngestRawMessage parses raw and stores it in folder. It writes the
// message row, links the thread, keeps the raw MIME and indexes the full
// text. A message enmime cannot parse is still stored with a placeholder
// subject so the raw data is not lost. fallbackDate is used when the Date
// header is missing or unparseable.
func IngestRawMessage(
	ctx context.Context, st *store.Store, folder *store.Folder,
	uid string, raw []byte, fallbackDate time.Time, log *slog.Logger,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	parsed, parseErr := mime.Parse(raw)
	if parseErr != nil {
		first, _, _ := strings.Cut(parseErr.Error(), "\n")
		log.Warn("mime parse failed", "uid", uid, "error", first)
		parsed = &mime.Message{
			Subject:  "(MIME parse error)",
			BodyText: "[MIME parsing failed: " + first + "]",
		}
	}
	date := parsed.Date
	if date.IsZero() {
		date = fallbackDate
	}

	msg := &store.Message{
		AccountID:       folder.AccountID,
		FolderID:        folder.ID,
		UID:             uid,
		MessageID:       normalizeMessageID(parsed.MessageID),
		Subject:         parsed.Subject,
		Date:            date,
		SenderList:      mime.FormatAddresses(parsed.From),
		ToList:          mime.FormatAddresses(parsed.To),
		CcList:          mime.FormatAddresses(parsed.Cc),
		BccList:         mime.FormatAddresses(parsed.Bcc),
		ReplyToList:     mime.FormatAddresses(parsed.ReplyTo),
		AttachmentCount: len(parsed.Attachments),
		Preview:         parsed.Preview(),
		NewMessage:      true,
	}
	id, err := st.UpsertMessage(msg)
	if err != nil {
		return 0, err
	}

	refs := make([]string, 0, len(parsed.References))
	for _, r := range parsed.References {
		refs = append(refs, normalizeMessageID(r))
	}
	if _, err := st.AssignThread(id, normalizeMessageID(parsed.InReplyTo), refs); err != nil {
		return 0, fmt.Errorf("assign thread: %w", err)
	}

	if err := st.UpsertMessageRaw(id, raw); err != nil {
		return 0, fmt.Errorf("store raw: %w", err)
	}

	if st.FullTextAvailable() {
		if err := st.UpsertFullText(id, parsed.FullText()); err != nil {
			log.Warn("failed to index message", "message", id, "error", err)
		}
	}
	return id, nil
}

func normalizeMessageID(id string) string {
	return textutil.EnsureUTF8(strings.Trim(strings.TrimSpace(id), "<>"))
}
