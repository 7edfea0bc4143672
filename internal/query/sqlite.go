package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/wesm/msgsearch/internal/mime"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
)

// DefaultLimit caps a search that does not set Options.Limit.
const DefaultLimit = 100

// ErrUnknownFolder is returned when a FOLDER condition names no folder in
// the searched accounts.
var ErrUnknownFolder = errors.New("unknown folder")

// SQLiteEngine implements Engine on top of the SQLite message store.
type SQLiteEngine struct {
	st     *store.Store
	logger *slog.Logger
}

// NewSQLiteEngine creates an engine over st. The engine does not own st.
func NewSQLiteEngine(st *store.Store) *SQLiteEngine {
	return &SQLiteEngine{st: st, logger: slog.Default()}
}

// WithLogger sets the logger used for query tracing.
func (e *SQLiteEngine) WithLogger(l *slog.Logger) *SQLiteEngine {
	if l != nil {
		e.logger = l
	}
	return e
}

// Close is a no-op; the store is closed by its owner.
func (e *SQLiteEngine) Close() error {
	return nil
}

// Search implements Engine.
func (e *SQLiteEngine) Search(ctx context.Context, n search.Node, opts Options) ([]MessageSummary, error) {
	where, args, err := e.where(n, opts)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := store.MessageSelect + " WHERE " + where +
		" ORDER BY messages.date DESC, messages.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, max(opts.Offset, 0))

	e.logger.Debug("search", "where", where, "args", len(args))
	rows, err := e.st.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var out []MessageSummary
	for rows.Next() {
		m, err := store.ScanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, summarize(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Count implements Engine.
func (e *SQLiteEngine) Count(ctx context.Context, n search.Node, opts Options) (int64, error) {
	where, args, err := e.where(n, opts)
	if err != nil {
		return 0, err
	}
	return e.countWhere(ctx, where, args)
}

func (e *SQLiteEngine) countWhere(ctx context.Context, where string, args []interface{}) (int64, error) {
	var count int64
	err := e.st.DB().QueryRowContext(ctx, "SELECT COUNT(*)"+store.MessageFrom+" WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// GetMessage implements Engine. The body is decoded from the stored raw
// MIME when present.
func (e *SQLiteEngine) GetMessage(ctx context.Context, id int64) (*MessageDetail, error) {
	m, err := e.st.GetMessage(id)
	if err != nil {
		return nil, err
	}
	d := &MessageDetail{
		MessageSummary: summarize(m),
		To:             m.ToList,
		Cc:             m.CcList,
		Bcc:            m.BccList,
		ReplyTo:        m.ReplyToList,
		Flags:          m.Flags,
	}
	if f, err := e.st.GetFolder(m.FolderID); err == nil {
		d.FolderName = f.Name
	}

	raw, err := e.st.GetMessageRaw(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return d, nil
	case err != nil:
		return nil, err
	}
	parsed, err := mime.Parse(raw)
	if err != nil {
		// A broken body should not hide the stored headers.
		e.logger.Warn("parse stored message", "id", id, "error", err)
		return d, nil
	}
	d.BodyText = parsed.Text()
	d.Attachments = parsed.Attachments
	return d, nil
}

// UnreadCount implements Engine.
func (e *SQLiteEngine) UnreadCount(ctx context.Context, accountUUID string) (int64, error) {
	return e.scopedCount(ctx, accountUUID, search.UnreadSearch)
}

// FlaggedCount implements Engine.
func (e *SQLiteEngine) FlaggedCount(ctx context.Context, accountUUID string) (int64, error) {
	return e.scopedCount(ctx, accountUUID, search.FlaggedSearch)
}

// scopedCount counts the account's messages matching a built-in search.
// Those trees name folders by ID already, so they skip name resolution.
func (e *SQLiteEngine) scopedCount(ctx context.Context, accountUUID string, build func(search.AccountScope) search.Node) (int64, error) {
	acct, err := e.st.GetAccount(accountUUID)
	if err != nil {
		return 0, err
	}
	where, args, err := e.filter(build(acct.Scope()), []int64{acct.ID}, false)
	if err != nil {
		return 0, err
	}
	return e.countWhere(ctx, where, args)
}

// where builds the WHERE clause for a user search: FOLDER names are
// resolved to IDs before the account and deletion filters are added.
func (e *SQLiteEngine) where(n search.Node, opts Options) (string, []interface{}, error) {
	accountIDs, err := e.accountIDs(opts.AccountUUIDs)
	if err != nil {
		return "", nil, err
	}
	if n != nil {
		if n, err = e.resolveFolders(n, accountIDs); err != nil {
			return "", nil, err
		}
	}
	return e.filter(n, accountIDs, opts.IncludeDeleted)
}

// filter compiles n, whose FOLDER values are folder IDs, and appends the
// account and deletion filters.
func (e *SQLiteEngine) filter(n search.Node, accountIDs []int64, includeDeleted bool) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}
	if n != nil {
		for _, c := range search.Conditions(n) {
			if c.Field == search.FieldMessageContents && !e.st.FullTextAvailable() {
				return "", nil, store.ErrFullTextUnavailable
			}
		}
		q, err := search.Compile(n)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "("+q.SQL+")")
		args = append(args, q.Args...)
	}
	if len(accountIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(accountIDs)), ", ")
		clauses = append(clauses, "messages.account_id IN ("+marks+")")
		for _, id := range accountIDs {
			args = append(args, id)
		}
	}
	if !includeDeleted {
		clauses = append(clauses, "messages.deleted = 0")
	}
	if len(clauses) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (e *SQLiteEngine) accountIDs(uuids []string) ([]int64, error) {
	ids := make([]int64, 0, len(uuids))
	for _, uuid := range uuids {
		a, err := e.st.GetAccount(uuid)
		if err != nil {
			return nil, err
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// resolveFolders replaces FOLDER values given as names with folder IDs. A
// name shared by several folders expands to an OR of them, or an AND for
// NOT_EQUALS. A numeric value that names no folder is taken as an ID.
func (e *SQLiteEngine) resolveFolders(n search.Node, accountIDs []int64) (search.Node, error) {
	cache := make(map[string][]int64)
	return search.Rewrite(n, func(c search.Condition) (search.Node, error) {
		if c.Field != search.FieldFolder || c.Attribute == search.Contains {
			return search.NewLeaf(c), nil
		}
		ids, ok := cache[c.Value]
		if !ok {
			var err error
			ids, err = e.st.FolderIDsByName(c.Value, accountIDs...)
			if err != nil {
				return nil, err
			}
			cache[c.Value] = ids
		}
		if len(ids) == 0 {
			if _, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
				return search.NewLeaf(c), nil
			}
			return nil, fmt.Errorf("%w %q", ErrUnknownFolder, c.Value)
		}

		var out search.Node
		for _, id := range ids {
			leaf := search.NewLeaf(search.NewCondition(search.FieldFolder, c.Attribute, search.FolderID(id)))
			if c.Attribute == search.NotEquals {
				out = search.And(out, leaf)
			} else {
				out = search.Or(out, leaf)
			}
		}
		return out, nil
	})
}

func summarize(m *store.Message) MessageSummary {
	return MessageSummary{
		ID:              m.ID,
		AccountID:       m.AccountID,
		FolderID:        m.FolderID,
		UID:             m.UID,
		MessageID:       m.MessageID,
		ThreadRoot:      m.ThreadRoot,
		Subject:         m.Subject,
		From:            m.SenderList,
		Preview:         m.Preview,
		Date:            m.Date,
		AttachmentCount: m.AttachmentCount,
		Read:            m.Read,
		Flagged:         m.Flagged,
	}
}
