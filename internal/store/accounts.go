package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wesm/msgsearch/internal/search"
)

// Account is a mail account whose folders and messages live in the store.
type Account struct {
	ID          int64
	UUID        string
	Email       string
	Description string
	FolderMode  search.FolderMode
	// Special folder IDs; zero when the account has no such folder.
	InboxFolderID  int64
	TrashFolderID  int64
	DraftsFolderID int64
	SpamFolderID   int64
	OutboxFolderID int64
	SentFolderID   int64
	CreatedAt      time.Time
}

// Scope returns the folder configuration used to restrict searches to the
// account's displayable folders.
func (a *Account) Scope() search.AccountScope {
	return search.AccountScope{
		Mode:   a.FolderMode,
		Inbox:  a.InboxFolderID,
		Trash:  a.TrashFolderID,
		Drafts: a.DraftsFolderID,
		Spam:   a.SpamFolderID,
		Outbox: a.OutboxFolderID,
		Sent:   a.SentFolderID,
	}
}

// SpecialFolder names one of an account's role folders.
type SpecialFolder string

const (
	SpecialInbox  SpecialFolder = "inbox"
	SpecialTrash  SpecialFolder = "trash"
	SpecialDrafts SpecialFolder = "drafts"
	SpecialSpam   SpecialFolder = "spam"
	SpecialOutbox SpecialFolder = "outbox"
	SpecialSent   SpecialFolder = "sent"
)

// ParseSpecialFolder validates a special folder role name.
func ParseSpecialFolder(s string) (SpecialFolder, error) {
	switch r := SpecialFolder(s); r {
	case SpecialInbox, SpecialTrash, SpecialDrafts, SpecialSpam, SpecialOutbox, SpecialSent:
		return r, nil
	}
	return "", fmt.Errorf("unknown special folder %q", s)
}

const accountColumns = `
	id, uuid, email, COALESCE(description, ''), folder_mode,
	COALESCE(inbox_folder_id, 0), COALESCE(trash_folder_id, 0),
	COALESCE(drafts_folder_id, 0), COALESCE(spam_folder_id, 0),
	COALESCE(outbox_folder_id, 0), COALESCE(sent_folder_id, 0),
	created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var mode string
	var createdAt sql.NullString
	err := row.Scan(
		&a.ID, &a.UUID, &a.Email, &a.Description, &mode,
		&a.InboxFolderID, &a.TrashFolderID, &a.DraftsFolderID,
		&a.SpamFolderID, &a.OutboxFolderID, &a.SentFolderID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	a.FolderMode = search.FolderMode(mode)
	if createdAt.Valid {
		a.CreatedAt = parseDBTime(createdAt.String)
	}
	return &a, nil
}

// parseDBTime accepts the formats SQLite's CURRENT_TIMESTAMP and the driver
// produce for DATETIME columns.
func parseDBTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GetOrCreateAccount returns the account with the given UUID, creating it
// when missing.
func (s *Store) GetOrCreateAccount(uuid, email string) (*Account, error) {
	a, err := s.GetAccount(uuid)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = s.db.Exec(`
		INSERT INTO accounts (uuid, email, folder_mode)
		VALUES (?, ?, ?)
	`, uuid, email, string(search.FolderModeAll))
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetAccount(uuid)
}

// GetAccount returns the account with the given UUID.
func (s *Store) GetAccount(uuid string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE uuid = ?`, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccountByID returns the account with the given internal ID.
func (s *Store) GetAccountByID(id int64) (*Account, error) {
	a, err := scanAccount(s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by email.
func (s *Store) ListAccounts() ([]*Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY email, uuid`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// SetFolderMode changes which folder classes the account displays.
func (s *Store) SetFolderMode(accountID int64, mode search.FolderMode) error {
	res, err := s.db.Exec(`UPDATE accounts SET folder_mode = ? WHERE id = ?`, string(mode), accountID)
	if err != nil {
		return fmt.Errorf("set folder mode: %w", err)
	}
	return expectOneRow(res, fmt.Sprintf("account %d", accountID))
}

// SetSpecialFolder assigns folderID to the given role for the account. A
// zero folderID clears the role.
func (s *Store) SetSpecialFolder(accountID int64, role SpecialFolder, folderID int64) error {
	column := string(role) + "_folder_id"
	if _, err := ParseSpecialFolder(string(role)); err != nil {
		return err
	}
	var value any
	if folderID != 0 {
		value = folderID
	}
	// column is one of six fixed names validated above.
	res, err := s.db.Exec(`UPDATE accounts SET `+column+` = ? WHERE id = ?`, value, accountID)
	if err != nil {
		return fmt.Errorf("set %s folder: %w", role, err)
	}
	return expectOneRow(res, fmt.Sprintf("account %d", accountID))
}

// RemoveAccount deletes an account with its folders, messages and full-text
// rows.
func (s *Store) RemoveAccount(accountID int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		if s.fullTextReady {
			_, err := tx.Exec(`
				DELETE FROM messages_fulltext
				WHERE docid IN (SELECT id FROM messages WHERE account_id = ?)
			`, accountID)
			if err != nil {
				return fmt.Errorf("delete fulltext rows: %w", err)
			}
		}
		res, err := tx.Exec(`DELETE FROM accounts WHERE id = ?`, accountID)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return expectOneRow(res, fmt.Sprintf("account %d", accountID))
	})
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
