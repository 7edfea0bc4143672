package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/indexer"
	"github.com/wesm/msgsearch/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the full-text index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the full-text index from stored messages",
	Long: `Clear the full-text index and re-index every message from its raw MIME.
Messages without raw MIME are indexed from their stored headers.

Failed attempts are retried up to [index] max_retries times.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		if !s.FullTextAvailable() {
			return store.ErrFullTextUnavailable
		}

		ix, err := newIndexer(s)
		if err != nil {
			return err
		}
		defer ix.Close()

		start := time.Now()
		n, err := ix.Rebuild(cmd.Context())
		if err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
		fmt.Printf("Indexed %d messages in %s\n", n, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func newIndexer(s *store.Store) (*indexer.Indexer, error) {
	return indexer.New(s, indexer.Options{
		Workers:    cfg.Index.Workers,
		BatchSize:  cfg.Index.BatchSize,
		MaxRetries: cfg.Index.MaxRetries,
		Logger:     logger,
	})
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
}
