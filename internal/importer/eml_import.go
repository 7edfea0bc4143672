package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wesm/msgsearch/internal/store"
)

const defaultMaxMessageBytes int64 = 64 << 20 // 64 MiB

// EmlImportOptions configures an .eml import.
type EmlImportOptions struct {
	// AccountUUID identifies the target account; it is created when missing.
	AccountUUID string
	// AccountEmail is stored on a newly created account.
	AccountEmail string
	// Folder receives the messages. Defaults to "Inbox".
	Folder string
	// MaxMessageBytes skips larger files. Defaults to 64 MiB.
	MaxMessageBytes int64
	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// ImportSummary reports the results of an import.
type ImportSummary struct {
	Duration        time.Duration
	FilesSeen       int
	MessagesAdded   int64
	MessagesUpdated int64
	MessagesSkipped int64
	Errors          int64
	// MessageIDs lists the stored message IDs in import order.
	MessageIDs []int64
}

// ImportEml imports a single .eml file or every .eml file below a
// directory, in lexical path order. Per-file failures are logged and
// counted; only store failures abort the import.
func ImportEml(ctx context.Context, st *store.Store, path string, opts EmlImportOptions) (*ImportSummary, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.AccountUUID == "" {
		return nil, errors.New("account UUID is required")
	}
	if opts.Folder == "" {
		opts.Folder = "Inbox"
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}

	files, err := collectEml(path)
	if err != nil {
		return nil, err
	}

	acct, err := st.GetOrCreateAccount(opts.AccountUUID, opts.AccountEmail)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	folder, err := st.EnsureFolder(acct.ID, opts.Folder)
	if err != nil {
		return nil, fmt.Errorf("folder: %w", err)
	}
	if acct.InboxFolderID == 0 && strings.EqualFold(opts.Folder, "inbox") {
		if err := st.SetSpecialFolder(acct.ID, store.SpecialInbox, folder.ID); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	sum := &ImportSummary{FilesSeen: len(files)}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			sum.Duration = time.Since(start)
			return sum, err
		}

		raw, modTime, err := readLimited(file, opts.MaxMessageBytes)
		if errors.Is(err, errTooLarge) {
			log.Warn("skipping oversized message", "file", file, "limit", opts.MaxMessageBytes)
			sum.MessagesSkipped++
			continue
		}
		if err != nil {
			log.Warn("read failed", "file", file, "error", err)
			sum.Errors++
			continue
		}

		uid := RawUID(raw)
		existed, err := st.HasMessage(folder.ID, uid)
		if err != nil {
			return sum, err
		}
		id, err := IngestRawMessage(ctx, st, folder, uid, raw, modTime, log)
		if err != nil {
			return sum, fmt.Errorf("ingest %s: %w", file, err)
		}
		if existed {
			sum.MessagesUpdated++
		} else {
			sum.MessagesAdded++
		}
		sum.MessageIDs = append(sum.MessageIDs, id)
		log.Debug("imported", "file", file, "message", id)
	}
	sum.Duration = time.Since(start)
	return sum, nil
}

func collectEml(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".eml") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

var errTooLarge = errors.New("message too large")

func readLimited(path string, limit int64) ([]byte, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	if info.Size() > limit {
		return nil, time.Time{}, errTooLarge
	}
	raw, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, time.Time{}, err
	}
	if int64(len(raw)) > limit {
		return nil, time.Time{}, errTooLarge
	}
	return raw, info.ModTime(), nil
}
