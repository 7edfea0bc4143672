package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/wesm/msgsearch/internal/search"
)

// Folder is a mail folder of an account.
type Folder struct {
	ID           int64
	AccountID    int64
	Name         string
	DisplayClass string
	Integrate    bool
	Visible      bool
}

const folderColumns = `id, account_id, name, display_class, integrate, visible`

func scanFolder(row rowScanner) (*Folder, error) {
	var f Folder
	if err := row.Scan(&f.ID, &f.AccountID, &f.Name, &f.DisplayClass, &f.Integrate, &f.Visible); err != nil {
		return nil, err
	}
	return &f, nil
}

// EnsureFolder returns the account's folder with the given name, creating a
// visible NO_CLASS folder when missing.
func (s *Store) EnsureFolder(accountID int64, name string) (*Folder, error) {
	_, err := s.db.Exec(`
		INSERT INTO folders (account_id, name, display_class)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id, name) DO NOTHING
	`, accountID, name, search.ClassNone)
	if err != nil {
		return nil, fmt.Errorf("ensure folder %q: %w", name, err)
	}

	f, err := scanFolder(s.db.QueryRow(
		`SELECT `+folderColumns+` FROM folders WHERE account_id = ? AND name = ?`,
		accountID, name))
	if err != nil {
		return nil, fmt.Errorf("get folder %q: %w", name, err)
	}
	return f, nil
}

// GetFolder returns a folder by ID.
func (s *Store) GetFolder(id int64) (*Folder, error) {
	f, err := scanFolder(s.db.QueryRow(`SELECT `+folderColumns+` FROM folders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return f, nil
}

// ListFolders returns the folders of an account ordered by name. An
// accountID of zero lists the folders of every account.
func (s *Store) ListFolders(accountID int64) ([]*Folder, error) {
	var rows *sql.Rows
	var err error
	if accountID != 0 {
		rows, err = s.db.Query(`SELECT `+folderColumns+` FROM folders WHERE account_id = ? ORDER BY name`, accountID)
	} else {
		rows, err = s.db.Query(`SELECT ` + folderColumns + ` FROM folders ORDER BY account_id, name`)
	}
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// FolderSettings are the user-adjustable display properties of a folder.
type FolderSettings struct {
	DisplayClass string
	Integrate    bool
	Visible      bool
}

// UpdateFolder changes a folder's display class and flags.
func (s *Store) UpdateFolder(id int64, fs FolderSettings) error {
	switch fs.DisplayClass {
	case search.ClassNone, search.ClassFirst, search.ClassSecond:
	default:
		return fmt.Errorf("unknown display class %q", fs.DisplayClass)
	}
	res, err := s.db.Exec(`
		UPDATE folders SET display_class = ?, integrate = ?, visible = ?
		WHERE id = ?
	`, fs.DisplayClass, fs.Integrate, fs.Visible, id)
	if err != nil {
		return fmt.Errorf("update folder: %w", err)
	}
	return expectOneRow(res, fmt.Sprintf("folder %d", id))
}

// FolderIDsByName returns the IDs of folders named name (case-insensitive).
// When accountIDs is non-empty only those accounts are considered.
func (s *Store) FolderIDsByName(name string, accountIDs ...int64) ([]int64, error) {
	query := `SELECT id FROM folders WHERE name = ? COLLATE NOCASE`
	args := []any{name}
	if len(accountIDs) > 0 {
		query += ` AND account_id IN (` + placeholders(len(accountIDs)) + `)`
		for _, id := range accountIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find folder %q: %w", name, err)
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

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
