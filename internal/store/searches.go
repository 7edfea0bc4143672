package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/msgsearch/internal/search"
)

// ErrDuplicateSearch is returned when a saved search name is already taken.
var ErrDuplicateSearch = errors.New("a saved search with this name already exists")

// SavedSearch is a named condition tree with an account scope.
type SavedSearch struct {
	ID   int64
	Name string
	// Query is the query string the tree was parsed from, if any.
	Query string
	// AccountUUIDs limits the search to these accounts; empty means all.
	AccountUUIDs []string
	Tree         search.Node
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AllAccounts reports whether the search spans every account.
func (ss *SavedSearch) AllAccounts() bool {
	return len(ss.AccountUUIDs) == 0
}

// CreateSavedSearch persists ss and sets its ID.
func (s *Store) CreateSavedSearch(ss *SavedSearch) error {
	if ss.Tree == nil {
		return fmt.Errorf("saved search %q: empty condition tree", ss.Name)
	}
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO saved_searches (name, query, account_uuids)
			VALUES (?, ?, ?)
		`, ss.Name, ss.Query, strings.Join(ss.AccountUUIDs, ","))
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%q: %w", ss.Name, ErrDuplicateSearch)
			}
			return fmt.Errorf("insert saved search: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := insertConditions(tx, id, ss.Tree); err != nil {
			return err
		}
		ss.ID = id
		return nil
	})
}

// UpdateSavedSearch replaces the query, scope and tree of an existing search.
func (s *Store) UpdateSavedSearch(ss *SavedSearch) error {
	if ss.Tree == nil {
		return fmt.Errorf("saved search %q: empty condition tree", ss.Name)
	}
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE saved_searches
			SET name = ?, query = ?, account_uuids = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, ss.Name, ss.Query, strings.Join(ss.AccountUUIDs, ","), ss.ID)
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%q: %w", ss.Name, ErrDuplicateSearch)
			}
			return fmt.Errorf("update saved search: %w", err)
		}
		if err := expectOneRow(res, fmt.Sprintf("saved search %d", ss.ID)); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM search_conditions WHERE search_id = ?`, ss.ID); err != nil {
			return fmt.Errorf("clear conditions: %w", err)
		}
		return insertConditions(tx, ss.ID, ss.Tree)
	})
}

func insertConditions(tx *sql.Tx, searchID int64, tree search.Node) error {
	stmt, err := tx.Prepare(`
		INSERT INTO search_conditions (search_id, op, field, attribute, value, lft, rgt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare condition insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range search.Flatten(tree) {
		var field, attr, value any
		if row.Field.Valid() {
			field, attr, value = row.Field.String(), row.Attribute.String(), row.Value
		}
		if _, err := stmt.Exec(searchID, row.Operator, field, attr, value, row.Left, row.Right); err != nil {
			return fmt.Errorf("insert condition: %w", err)
		}
	}
	return nil
}

// GetSavedSearch loads a saved search and rebuilds its condition tree.
func (s *Store) GetSavedSearch(id int64) (*SavedSearch, error) {
	ss, err := scanSavedSearch(s.db.QueryRow(`
		SELECT id, name, query, account_uuids, created_at, updated_at
		FROM saved_searches WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("saved search %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get saved search: %w", err)
	}
	if ss.Tree, err = s.loadTree(ss.ID); err != nil {
		return nil, err
	}
	return ss, nil
}

// GetSavedSearchByName loads a saved search by its unique name.
func (s *Store) GetSavedSearchByName(name string) (*SavedSearch, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM saved_searches WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("saved search %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find saved search: %w", err)
	}
	return s.GetSavedSearch(id)
}

// ListSavedSearches returns every saved search with its tree, ordered by name.
func (s *Store) ListSavedSearches() ([]*SavedSearch, error) {
	rows, err := s.db.Query(`
		SELECT id, name, query, account_uuids, created_at, updated_at
		FROM saved_searches ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list saved searches: %w", err)
	}
	var searches []*SavedSearch
	for rows.Next() {
		ss, err := scanSavedSearch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan saved search: %w", err)
		}
		searches = append(searches, ss)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Trees are loaded after the cursor is closed; the pool may have a
	// single connection.
	for _, ss := range searches {
		if ss.Tree, err = s.loadTree(ss.ID); err != nil {
			return nil, err
		}
	}
	return searches, nil
}

// DeleteSavedSearch removes a saved search and its conditions.
func (s *Store) DeleteSavedSearch(id int64) error {
	res, err := s.db.Exec(`DELETE FROM saved_searches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete saved search: %w", err)
	}
	return expectOneRow(res, fmt.Sprintf("saved search %d", id))
}

func scanSavedSearch(row rowScanner) (*SavedSearch, error) {
	var ss SavedSearch
	var uuids string
	var createdAt, updatedAt sql.NullString
	if err := row.Scan(&ss.ID, &ss.Name, &ss.Query, &uuids, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if uuids != "" {
		ss.AccountUUIDs = strings.Split(uuids, ",")
	}
	if createdAt.Valid {
		ss.CreatedAt = parseDBTime(createdAt.String)
	}
	if updatedAt.Valid {
		ss.UpdatedAt = parseDBTime(updatedAt.String)
	}
	return &ss, nil
}

func (s *Store) loadTree(searchID int64) (search.Node, error) {
	rows, err := s.db.Query(`
		SELECT op, field, attribute, value, lft, rgt
		FROM search_conditions WHERE search_id = ?
	`, searchID)
	if err != nil {
		return nil, fmt.Errorf("load conditions: %w", err)
	}
	defer rows.Close()

	var flat []search.Row
	for rows.Next() {
		var r search.Row
		var field, attr, value sql.NullString
		if err := rows.Scan(&r.Operator, &field, &attr, &value, &r.Left, &r.Right); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		if field.Valid {
			if r.Field, err = search.ParseField(field.String); err != nil {
				return nil, fmt.Errorf("saved search %d: %w", searchID, err)
			}
			if r.Attribute, err = search.ParseAttribute(attr.String); err != nil {
				return nil, fmt.Errorf("saved search %d: %w", searchID, err)
			}
			r.Value = value.String
		}
		flat = append(flat, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tree, err := search.Rebuild(flat)
	if err != nil {
		return nil, fmt.Errorf("saved search %d: %w", searchID, err)
	}
	return tree, nil
}
