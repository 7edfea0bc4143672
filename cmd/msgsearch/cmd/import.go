package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/importer"
)

var (
	importAccount string
	importEmail   string
	importFolder  string
	importMaxSize int64
)

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import .eml files into a folder",
	Long: `Import RFC 5322 messages from a single .eml file or a directory tree.

Every *.eml file under the path is parsed, stored with its raw MIME, linked
into its thread and added to the full-text index. Re-importing a file
updates the existing message instead of duplicating it.

The account is created on first use. Importing into a folder named Inbox
makes it the account's inbox when none is set yet.

Examples:
  msgsearch import --account work --email me@example.com ~/mail/inbox
  msgsearch import --account work --folder Archive ~/mail/archive/2023`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importAccount == "" {
			return fmt.Errorf("--account is required")
		}
		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("source not found: %w", err)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		sum, err := importer.ImportEml(cmd.Context(), s, args[0], importer.EmlImportOptions{
			AccountUUID:     importAccount,
			AccountEmail:    importEmail,
			Folder:          importFolder,
			MaxMessageBytes: importMaxSize,
			Logger:          logger,
		})
		if sum != nil {
			fmt.Printf("Import summary (%s):\n", sum.Duration.Round(time.Millisecond))
			fmt.Printf("  Files seen: %d\n", sum.FilesSeen)
			fmt.Printf("  Added:      %d\n", sum.MessagesAdded)
			fmt.Printf("  Updated:    %d\n", sum.MessagesUpdated)
			fmt.Printf("  Skipped:    %d\n", sum.MessagesSkipped)
			if sum.Errors > 0 {
				fmt.Printf("  Errors:     %d\n", sum.Errors)
			}
		}
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importAccount, "account", "", "account UUID to import into (required)")
	importCmd.Flags().StringVar(&importEmail, "email", "", "account email, used when the account is created")
	importCmd.Flags().StringVar(&importFolder, "folder", "Inbox", "destination folder name")
	importCmd.Flags().Int64Var(&importMaxSize, "max-size", 0, "skip messages larger than this many bytes (default 64 MiB)")
}
