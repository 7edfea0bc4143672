// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
)

// MockEngine implements query.Engine for testing. Each method delegates to an
// optional function field; when the field is nil, the canned data is used.
type MockEngine struct {
	SearchResults []query.MessageSummary
	Messages      map[int64]*query.MessageDetail
	Unread        map[string]int64
	Flagged       map[string]int64

	SearchFunc func(context.Context, search.Node, query.Options) ([]query.MessageSummary, error)
	CountFunc  func(context.Context, search.Node, query.Options) (int64, error)

	mu       sync.Mutex
	searches []search.Node
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

// Searches returns the trees passed to Search and Count, in call order.
func (m *MockEngine) Searches() []search.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]search.Node(nil), m.searches...)
}

func (m *MockEngine) record(n search.Node) {
	m.mu.Lock()
	m.searches = append(m.searches, n)
	m.mu.Unlock()
}

func (m *MockEngine) Search(ctx context.Context, n search.Node, opts query.Options) ([]query.MessageSummary, error) {
	m.record(n)
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, n, opts)
	}
	return m.SearchResults, nil
}

func (m *MockEngine) Count(ctx context.Context, n search.Node, opts query.Options) (int64, error) {
	m.record(n)
	if m.CountFunc != nil {
		return m.CountFunc(ctx, n, opts)
	}
	return int64(len(m.SearchResults)), nil
}

func (m *MockEngine) GetMessage(_ context.Context, id int64) (*query.MessageDetail, error) {
	if msg, ok := m.Messages[id]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
}

func (m *MockEngine) UnreadCount(_ context.Context, accountUUID string) (int64, error) {
	n, ok := m.Unread[accountUUID]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", accountUUID, store.ErrNotFound)
	}
	return n, nil
}

func (m *MockEngine) FlaggedCount(_ context.Context, accountUUID string) (int64, error) {
	n, ok := m.Flagged[accountUUID]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", accountUUID, store.ErrNotFound)
	}
	return n, nil
}

func (m *MockEngine) Close() error { return nil }
