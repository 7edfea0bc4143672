// Package indexer rebuilds the full-text index that MESSAGE_CONTENTS
// searches run against.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/msgsearch/internal/mime"
	"github.com/wesm/msgsearch/internal/statemachine"
	"github.com/wesm/msgsearch/internal/store"
)

// JobName is the scheduler job that runs Rebuild.
const JobName = "index-rebuild"

var (
	// ErrBusy is returned when a rebuild is already running.
	ErrBusy = errors.New("index rebuild already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("indexer is closed")
)

// Options configures an Indexer.
type Options struct {
	Workers    int // parallel MIME extraction; default 4
	BatchSize  int // messages per batch; default 200
	MaxRetries int // extra attempts after a failed rebuild
	Logger     *slog.Logger
}

// Indexer owns the full-text index lifecycle. Rebuild runs are serialized.
type Indexer struct {
	st        *store.Store
	machine   *statemachine.Machine[State, Event]
	workers   int
	batchSize int
	logger    *slog.Logger
	running   sync.Mutex
}

// New creates an indexer in the Idle state.
func New(st *store.Store, opts Options) (*Indexer, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m, err := newMachine(opts.MaxRetries, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("build index state machine: %w", err)
	}
	return &Indexer{
		st:        st,
		machine:   m,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}, nil
}

// State returns the current index state.
func (ix *Indexer) State() State {
	return ix.machine.Current()
}

// Subscribe streams index states until ctx is done. See
// statemachine.Machine.Subscribe for delivery semantics.
func (ix *Indexer) Subscribe(ctx context.Context) <-chan State {
	return ix.machine.Subscribe(ctx)
}

// Close moves the indexer to its final state. It waits for a running
// rebuild to finish.
func (ix *Indexer) Close() error {
	ix.running.Lock()
	defer ix.running.Unlock()
	ix.machine.Process(shutdown{})
	return nil
}

// Rebuild clears the full-text index and re-indexes every message. A failed
// attempt is retried while the retry budget allows. It returns the number
// of indexed messages.
func (ix *Indexer) Rebuild(ctx context.Context) (int64, error) {
	if !ix.running.TryLock() {
		return 0, ErrBusy
	}
	defer ix.running.Unlock()

	if _, ok := ix.machine.Process(start{}).(Rebuilding); !ok {
		return 0, ErrClosed
	}
	for {
		n, err := ix.run(ctx)
		if err == nil {
			ix.machine.Process(finished{indexed: n})
			return n, nil
		}
		ix.machine.Process(errored{err: err})
		if ctx.Err() != nil {
			return 0, err
		}
		if _, ok := ix.machine.Process(retry{}).(Rebuilding); !ok {
			return 0, err
		}
	}
}

func (ix *Indexer) run(ctx context.Context) (int64, error) {
	if !ix.st.FullTextAvailable() {
		return 0, store.ErrFullTextUnavailable
	}
	if err := ix.st.ClearFullText(); err != nil {
		return 0, err
	}

	var total int64
	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := ix.st.MessageIDsAfter(after, ix.batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		docs, err := ix.extract(ctx, ids)
		if err != nil {
			return total, err
		}
		for i, id := range ids {
			if err := ix.st.UpsertFullText(id, docs[i]); err != nil {
				return total, err
			}
		}
		total += int64(len(ids))
		after = ids[len(ids)-1]
		ix.logger.Debug("indexed batch", "messages", len(ids), "total", total)
	}
}

// extract builds the full-text documents for ids in parallel. docs[i]
// belongs to ids[i].
func (ix *Indexer) extract(ctx context.Context, ids []int64) ([]string, error) {
	docs := make([]string, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := ix.document(id)
			if err != nil {
				return fmt.Errorf("message %d: %w", id, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// document returns the text indexed for one message: the parsed body when
// the raw MIME is stored, otherwise the subject and preview.
func (ix *Indexer) document(id int64) (string, error) {
	raw, err := ix.st.GetMessageRaw(id)
	if err == nil {
		parsed, perr := mime.Parse(raw)
		if perr == nil {
			return parsed.FullText(), nil
		}
		ix.logger.Warn("indexing headers only", "message", id, "error", perr)
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	m, err := ix.st.GetMessage(id)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Subject + "\n" + m.Preview), nil
}
