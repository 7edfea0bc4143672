package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
)

var (
	savedAccounts []string
	savedJSON     bool
	savedLimit    int
	savedOffset   int
)

var searchesCmd = &cobra.Command{
	Use:   "searches",
	Short: "Manage saved searches",
	Long: `Saved searches store a condition tree under a name, optionally limited to
a set of accounts. Searches are addressed by ID or by name.`,
}

var searchesCreateCmd = &cobra.Command{
	Use:   "create <name> <query>",
	Short: "Save a query under a name",
	Example: `  msgsearch searches create invoices 'subject:invoice has:attachment'
  msgsearch searches create work-unread --account work is:unread`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		queryStr := strings.Join(args[1:], " ")
		tree := search.Parse(queryStr)
		if tree == nil {
			return fmt.Errorf("query %q has no search terms", queryStr)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ss := &store.SavedSearch{
			Name:         args[0],
			Query:        queryStr,
			AccountUUIDs: savedAccounts,
			Tree:         tree,
		}
		if err := s.CreateSavedSearch(ss); err != nil {
			return err
		}
		fmt.Printf("Saved search %d: %s\n", ss.ID, search.Format(tree))
		return nil
	},
}

var searchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		list, err := s.ListSavedSearches()
		if err != nil {
			return err
		}

		if savedJSON {
			out := make([]map[string]interface{}, len(list))
			for i, ss := range list {
				out[i] = map[string]interface{}{
					"id":       ss.ID,
					"name":     ss.Name,
					"query":    ss.Query,
					"tree":     search.Format(ss.Tree),
					"accounts": ss.AccountUUIDs,
				}
			}
			return printJSON(out)
		}
		if len(list) == 0 {
			fmt.Println("No saved searches.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACCOUNTS\tCONDITIONS")
		fmt.Fprintln(w, "──\t────\t────────\t──────────")
		for _, ss := range list {
			scope := "all"
			if !ss.AllAccounts() {
				scope = strings.Join(ss.AccountUUIDs, ",")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ss.ID, ss.Name, scope, truncate(search.Format(ss.Tree), 60))
		}
		w.Flush()
		return nil
	},
}

var searchesRunCmd = &cobra.Command{
	Use:   "run <id|name>",
	Short: "Run a saved search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ss, err := lookupSavedSearch(s, args[0])
		if err != nil {
			return err
		}

		engine := query.NewSQLiteEngine(s).WithLogger(logger)
		results, err := engine.Search(cmd.Context(), ss.Tree, query.Options{
			AccountUUIDs: ss.AccountUUIDs,
			Limit:        cfg.ClampLimit(savedLimit),
			Offset:       savedOffset,
		})
		if err != nil {
			return fmt.Errorf("run %q: %w", ss.Name, err)
		}

		if savedJSON {
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

var searchesDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a saved search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ss, err := lookupSavedSearch(s, args[0])
		if err != nil {
			return err
		}
		if err := s.DeleteSavedSearch(ss.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted saved search %d (%s)\n", ss.ID, ss.Name)
		return nil
	},
}

// lookupSavedSearch resolves a numeric ID first, then a name.
func lookupSavedSearch(s *store.Store, ref string) (*store.SavedSearch, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if ss, err := s.GetSavedSearch(id); err == nil {
			return ss, nil
		}
	}
	ss, err := s.GetSavedSearchByName(ref)
	if err != nil {
		return nil, fmt.Errorf("saved search %q: %w", ref, err)
	}
	return ss, nil
}

func init() {
	rootCmd.AddCommand(searchesCmd)
	searchesCmd.AddCommand(searchesCreateCmd, searchesListCmd, searchesRunCmd, searchesDeleteCmd)

	searchesCreateCmd.Flags().StringSliceVar(&savedAccounts, "account", nil, "limit the search to these account UUIDs (repeatable)")
	searchesListCmd.Flags().BoolVar(&savedJSON, "json", false, "Output as JSON")
	searchesRunCmd.Flags().BoolVar(&savedJSON, "json", false, "Output as JSON")
	searchesRunCmd.Flags().IntVarP(&savedLimit, "limit", "n", 50, "Maximum number of results")
	searchesRunCmd.Flags().IntVar(&savedOffset, "offset", 0, "Skip first N results")
}
