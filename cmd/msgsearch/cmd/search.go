package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/search"
)

var (
	searchAccounts       []string
	searchLimit          int
	searchOffset         int
	searchJSON           bool
	searchShowSQL        bool
	searchIncludeDeleted bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search messages using Gmail-like query syntax",
	Long: `Search stored messages. The query is parsed into a condition tree and
compiled to SQL.

Supported operators:
  from:, to:, cc:, bcc:, replyto:   Address list substring match
  subject:                          Subject substring match
  in:, folder:                      Folder by name or ID
  is:                               read, unread, flagged, unflagged, deleted, new
  has:attachment                    Messages with attachments
  uid:, thread:, class:, keyword:   Exact UID, thread root, display class, keyword

Bare words and "quoted phrases" perform full-text search. A leading '-'
negates a term and OR joins two terms.

Examples:
  msgsearch search from:alice@example.com has:attachment
  msgsearch search subject:invoice -is:read
  msgsearch search in:Archive budget OR forecast
  msgsearch search --sql 'from:bob is:flagged'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queryStr := strings.Join(args, " ")
		tree := search.Parse(queryStr)
		if tree == nil {
			return fmt.Errorf("empty search query")
		}

		if searchShowSQL {
			q, err := search.Compile(tree)
			if err != nil {
				return err
			}
			fmt.Printf("Tree: %s\n", search.Format(tree))
			fmt.Printf("SQL:  %s\n", q.SQL)
			fmt.Printf("Args: %v\n", q.Args)
			return nil
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		engine := query.NewSQLiteEngine(s).WithLogger(logger)
		results, err := engine.Search(cmd.Context(), tree, query.Options{
			AccountUUIDs:   searchAccounts,
			IncludeDeleted: searchIncludeDeleted,
			Limit:          cfg.ClampLimit(searchLimit),
			Offset:         searchOffset,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if searchJSON {
			if results == nil {
				results = []query.MessageSummary{}
			}
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("No messages found.")
			return nil
		}
		outputSearchResultsTable(results)
		return nil
	},
}

func outputSearchResultsTable(results []query.MessageSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tSUBJECT\tFLAGS")
	fmt.Fprintln(w, "──\t────\t────\t───────\t─────")

	for _, msg := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			msg.ID,
			msg.Date.Local().Format("2006-01-02"),
			truncate(msg.From, 30),
			truncate(msg.Subject, 50),
			flagMarks(msg),
		)
	}

	w.Flush()
	fmt.Printf("\nShowing %d results\n", len(results))
}

// flagMarks renders the read and flagged state in a fixed-width column.
func flagMarks(msg query.MessageSummary) string {
	marks := []byte("  ")
	if !msg.Read {
		marks[0] = 'N'
	}
	if msg.Flagged {
		marks[1] = '*'
	}
	return string(marks)
}

// truncate shortens s to at most max terminal cells, marking the cut with
// "...". Wide characters count as two cells.
func truncate(s string, max int) string {
	s = strings.NewReplacer("\r", "", "\n", " ", "\t", " ").Replace(s)
	if runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= 3 {
		return runewidth.Truncate(s, max, "")
	}
	return runewidth.Truncate(s, max, "...")
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringSliceVar(&searchAccounts, "account", nil, "limit to these account UUIDs (repeatable)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "Maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Skip first N results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
	searchCmd.Flags().BoolVar(&searchShowSQL, "sql", false, "Print the condition tree and compiled SQL instead of searching")
	searchCmd.Flags().BoolVar(&searchIncludeDeleted, "include-deleted", false, "Include messages marked deleted")
}
