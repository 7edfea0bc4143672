package store

import (
	"bytes"
	"compress/zlib"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Message is a stored message row. Address lists hold RFC 5322 formatted
// address lists; Flags holds the message's keywords.
type Message struct {
	ID              int64
	AccountID       int64
	FolderID        int64
	UID             string
	MessageID       string
	Subject         string
	Date            time.Time
	SenderList      string
	ToList          string
	CcList          string
	BccList         string
	ReplyToList     string
	Flags           []string
	AttachmentCount int
	Preview         string
	Read            bool
	Flagged         bool
	Deleted         bool
	NewMessage      bool
	// ThreadRoot is populated on reads; writes go through AssignThread.
	ThreadRoot int64
}

// MessageFlag names a boolean message column that can be toggled.
type MessageFlag string

const (
	FlagRead    MessageFlag = "read"
	FlagFlagged MessageFlag = "flagged"
	FlagDeleted MessageFlag = "deleted"
	FlagNew     MessageFlag = "new_message"
)

func joinFlags(flags []string) string {
	return strings.Join(flags, ",")
}

func splitFlags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// UpsertMessage inserts a message or updates the existing row with the same
// folder and UID. It returns the message ID.
func (s *Store) UpsertMessage(msg *Message) (int64, error) {
	var date int64
	if !msg.Date.IsZero() {
		date = msg.Date.UnixMilli()
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (
			account_id, folder_id, uid, message_id, subject, date,
			sender_list, to_list, cc_list, bcc_list, reply_to_list,
			flags, attachment_count, preview,
			read, flagged, deleted, new_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id, uid) DO UPDATE SET
			message_id = excluded.message_id,
			subject = excluded.subject,
			date = excluded.date,
			sender_list = excluded.sender_list,
			to_list = excluded.to_list,
			cc_list = excluded.cc_list,
			bcc_list = excluded.bcc_list,
			reply_to_list = excluded.reply_to_list,
			flags = excluded.flags,
			attachment_count = excluded.attachment_count,
			preview = excluded.preview,
			read = excluded.read,
			flagged = excluded.flagged,
			deleted = excluded.deleted,
			new_message = excluded.new_message
	`, msg.AccountID, msg.FolderID, msg.UID, msg.MessageID, msg.Subject, date,
		msg.SenderList, msg.ToList, msg.CcList, msg.BccList, msg.ReplyToList,
		joinFlags(msg.Flags), msg.AttachmentCount, msg.Preview,
		msg.Read, msg.Flagged, msg.Deleted, msg.NewMessage)
	if err != nil {
		return 0, fmt.Errorf("upsert message: %w", err)
	}

	// LastInsertId is unreliable for the update branch of an upsert.
	var id int64
	err = s.db.QueryRow(`SELECT id FROM messages WHERE folder_id = ? AND uid = ?`,
		msg.FolderID, msg.UID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get message id: %w", err)
	}
	msg.ID = id
	return id, nil
}

// AssignThread links a message into a thread. The parent is the newest
// message of the same account whose Message-ID appears in inReplyTo or
// references (checked last to first). Without a parent the message starts a
// new thread. It returns the thread root.
func (s *Store) AssignThread(messageID int64, inReplyTo string, references []string) (int64, error) {
	var root int64
	err := s.withTx(func(tx *sql.Tx) error {
		var accountID int64
		if err := tx.QueryRow(`SELECT account_id FROM messages WHERE id = ?`, messageID).Scan(&accountID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
			}
			return err
		}

		candidates := make([]string, 0, len(references)+1)
		if inReplyTo != "" {
			candidates = append(candidates, inReplyTo)
		}
		for i := len(references) - 1; i >= 0; i-- {
			candidates = append(candidates, references[i])
		}

		var parent, parentRoot sql.NullInt64
		for _, ref := range candidates {
			err := tx.QueryRow(`
				SELECT t.id, t.root FROM threads t
				JOIN messages m ON m.id = t.message_id
				WHERE m.account_id = ? AND m.message_id = ? AND m.id != ?
				ORDER BY m.id DESC LIMIT 1
			`, accountID, ref, messageID).Scan(&parent, &parentRoot)
			if err == nil {
				break
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("find parent: %w", err)
			}
		}

		_, err := tx.Exec(`
			INSERT INTO threads (message_id, root, parent) VALUES (?, ?, ?)
			ON CONFLICT(message_id) DO UPDATE SET root = excluded.root, parent = excluded.parent
		`, messageID, parentRoot, parent)
		if err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
		if parentRoot.Valid {
			root = parentRoot.Int64
			return nil
		}

		// A new thread is rooted at its own row.
		var threadID int64
		if err := tx.QueryRow(`SELECT id FROM threads WHERE message_id = ?`, messageID).Scan(&threadID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE threads SET root = id WHERE id = ?`, threadID); err != nil {
			return fmt.Errorf("set thread root: %w", err)
		}
		root = threadID
		return nil
	})
	return root, err
}

const messageColumns = `
	messages.id, messages.account_id, messages.folder_id, messages.uid,
	COALESCE(messages.message_id, ''), COALESCE(messages.subject, ''), messages.date,
	messages.sender_list, messages.to_list, messages.cc_list, messages.bcc_list,
	messages.reply_to_list, messages.flags, messages.attachment_count, messages.preview,
	messages.read, messages.flagged, messages.deleted, messages.new_message,
	COALESCE(threads.root, 0)`

// MessageFrom joins the tables compiled search clauses refer to. Tables are
// not aliased because compiled clauses use qualified table names.
const MessageFrom = `
	FROM messages
	LEFT JOIN threads ON threads.message_id = messages.id
	LEFT JOIN folders ON folders.id = messages.folder_id`

// MessageSelect reads full message rows; append a WHERE clause built from a
// compiled search.
const MessageSelect = `SELECT ` + messageColumns + MessageFrom

// ScanMessage reads one row produced by MessageSelect.
func ScanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var date int64
	var flags string
	err := row.Scan(
		&m.ID, &m.AccountID, &m.FolderID, &m.UID, &m.MessageID,
		&m.Subject, &date,
		&m.SenderList, &m.ToList, &m.CcList, &m.BccList, &m.ReplyToList,
		&flags, &m.AttachmentCount, &m.Preview,
		&m.Read, &m.Flagged, &m.Deleted, &m.NewMessage,
		&m.ThreadRoot,
	)
	if err != nil {
		return nil, err
	}
	if date != 0 {
		m.Date = time.UnixMilli(date).UTC()
	}
	m.Flags = splitFlags(flags)
	return &m, nil
}

// GetMessage returns a message by ID.
func (s *Store) GetMessage(id int64) (*Message, error) {
	m, err := ScanMessage(s.db.QueryRow(MessageSelect+` WHERE messages.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// HasMessage reports whether folderID already holds a message with uid.
func (s *Store) HasMessage(folderID int64, uid string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE folder_id = ? AND uid = ?`, folderID, uid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return n > 0, nil
}

// SetFlag sets one of the boolean message columns.
func (s *Store) SetFlag(messageID int64, flag MessageFlag, on bool) error {
	switch flag {
	case FlagRead, FlagFlagged, FlagDeleted, FlagNew:
	default:
		return fmt.Errorf("unknown message flag %q", flag)
	}
	res, err := s.db.Exec(`UPDATE messages SET `+string(flag)+` = ? WHERE id = ?`, on, messageID)
	if err != nil {
		return fmt.Errorf("set %s: %w", flag, err)
	}
	return expectOneRow(res, fmt.Sprintf("message %d", messageID))
}

// DeleteMessage removes a message and its full-text row.
func (s *Store) DeleteMessage(messageID int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		if s.fullTextReady {
			if _, err := tx.Exec(`DELETE FROM messages_fulltext WHERE docid = ?`, messageID); err != nil {
				return fmt.Errorf("delete fulltext row: %w", err)
			}
		}
		res, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, messageID)
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		return expectOneRow(res, fmt.Sprintf("message %d", messageID))
	})
}

// UpsertMessageRaw stores the raw MIME data of a message, zlib-compressed.
func (s *Store) UpsertMessageRaw(messageID int64, rawData []byte) error {
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(rawData); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT INTO message_raw (message_id, raw_data, compression)
		VALUES (?, ?, 'zlib')
		ON CONFLICT(message_id) DO UPDATE SET
			raw_data = excluded.raw_data,
			compression = excluded.compression
	`, messageID, compressed.Bytes())
	if err != nil {
		return fmt.Errorf("store raw message: %w", err)
	}
	return nil
}

// GetMessageRaw retrieves and decompresses the raw MIME data for a message.
func (s *Store) GetMessageRaw(messageID int64) ([]byte, error) {
	var data []byte
	var compression sql.NullString
	err := s.db.QueryRow(`
		SELECT raw_data, compression FROM message_raw WHERE message_id = ?
	`, messageID).Scan(&data, &compression)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raw message %d: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if compression.Valid && compression.String == "zlib" {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return data, nil
}

// UpsertFullText replaces the full-text document of a message.
func (s *Store) UpsertFullText(messageID int64, text string) error {
	if !s.fullTextReady {
		return ErrFullTextUnavailable
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO messages_fulltext (docid, fulltext) VALUES (?, ?)`,
		messageID, text)
	if err != nil {
		return fmt.Errorf("index message %d: %w", messageID, err)
	}
	return nil
}

// MatchFullText returns the IDs of messages whose full-text document
// matches an FTS query, in ascending order.
func (s *Store) MatchFullText(query string) ([]int64, error) {
	if !s.fullTextReady {
		return nil, ErrFullTextUnavailable
	}
	rows, err := s.db.Query(`SELECT docid FROM messages_fulltext WHERE fulltext MATCH ? ORDER BY docid`, query)
	if err != nil {
		return nil, fmt.Errorf("match fulltext: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearFullText removes every full-text document.
func (s *Store) ClearFullText() error {
	if !s.fullTextReady {
		return ErrFullTextUnavailable
	}
	if _, err := s.db.Exec(`DELETE FROM messages_fulltext`); err != nil {
		return fmt.Errorf("clear fulltext: %w", err)
	}
	return nil
}

// MessageIDsAfter returns up to limit message IDs greater than afterID in
// ascending order, for batch processing.
func (s *Store) MessageIDsAfter(afterID int64, limit int) ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM messages WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountMessages returns the number of stored messages.
func (s *Store) CountMessages() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
