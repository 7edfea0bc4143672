package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		return printStats(s)
	},
}

func printStats(s *store.Store) error {
	stats, err := s.GetStats()
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("Database: %s\n", cfg.DatabasePath())
	fmt.Printf("  Accounts:       %d\n", stats.AccountCount)
	fmt.Printf("  Folders:        %d\n", stats.FolderCount)
	fmt.Printf("  Messages:       %d\n", stats.MessageCount)
	fmt.Printf("  Threads:        %d\n", stats.ThreadCount)
	fmt.Printf("  Indexed:        %d\n", stats.IndexedCount)
	fmt.Printf("  Saved searches: %d\n", stats.SavedSearchCount)
	fmt.Printf("  Size:           %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
	if !s.FullTextAvailable() {
		fmt.Println("  Full-text:      unavailable (SQLite built without FTS4)")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
