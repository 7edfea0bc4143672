package query

import (
	"context"

	"github.com/wesm/msgsearch/internal/search"
)

// Engine executes searches against stored messages.
type Engine interface {
	// Search returns the messages matching n, newest first. A nil n matches
	// every message in scope.
	Search(ctx context.Context, n search.Node, opts Options) ([]MessageSummary, error)

	// Count returns how many messages match n. Paging options are ignored.
	Count(ctx context.Context, n search.Node, opts Options) (int64, error)

	GetMessage(ctx context.Context, id int64) (*MessageDetail, error)

	// UnreadCount and FlaggedCount evaluate the built-in unread and flagged
	// searches scoped to one account's displayable folders.
	UnreadCount(ctx context.Context, accountUUID string) (int64, error)
	FlaggedCount(ctx context.Context, accountUUID string) (int64, error)

	Close() error
}
