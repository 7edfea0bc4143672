package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/query"
	"github.com/wesm/msgsearch/internal/search"
	"github.com/wesm/msgsearch/internal/store"
)

var (
	accountsJSON  bool
	folderClass   string
	folderHidden  bool
	folderNoMerge bool
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts with unread and flagged counts",
	Long: `List accounts with their folder mode and the unread and flagged counts
of the messages in their displayable folders.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		accounts, err := s.ListAccounts()
		if err != nil {
			return err
		}
		engine := query.NewSQLiteEngine(s).WithLogger(logger)

		type row struct {
			UUID    string `json:"uuid"`
			Email   string `json:"email"`
			Mode    string `json:"folder_mode"`
			Unread  int64  `json:"unread"`
			Flagged int64  `json:"flagged"`
		}
		rows := make([]row, 0, len(accounts))
		for _, a := range accounts {
			unread, err := engine.UnreadCount(cmd.Context(), a.UUID)
			if err != nil {
				return fmt.Errorf("unread count for %s: %w", a.UUID, err)
			}
			flagged, err := engine.FlaggedCount(cmd.Context(), a.UUID)
			if err != nil {
				return fmt.Errorf("flagged count for %s: %w", a.UUID, err)
			}
			rows = append(rows, row{a.UUID, a.Email, string(a.FolderMode), unread, flagged})
		}

		if accountsJSON {
			return printJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Println("No accounts. Import mail with 'msgsearch import'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tEMAIL\tMODE\tUNREAD\tFLAGGED")
		fmt.Fprintln(w, "────\t─────\t────\t──────\t───────")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", r.UUID, r.Email, r.Mode, r.Unread, r.Flagged)
		}
		w.Flush()
		return nil
	},
}

var accountsFoldersCmd = &cobra.Command{
	Use:   "folders <uuid>",
	Short: "List an account's folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		acct, err := s.GetAccount(args[0])
		if err != nil {
			return err
		}
		folders, err := s.ListFolders(acct.ID)
		if err != nil {
			return err
		}
		if accountsJSON {
			return printJSON(folders)
		}

		roles := specialRoles(acct)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCLASS\tVISIBLE\tUNIFIED\tROLE")
		fmt.Fprintln(w, "──\t────\t─────\t───────\t───────\t────")
		for _, f := range folders {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\n", f.ID, f.Name, f.DisplayClass, f.Visible, f.Integrate, roles[f.ID])
		}
		w.Flush()
		return nil
	},
}

var accountsModeCmd = &cobra.Command{
	Use:   "set-mode <uuid> <mode>",
	Short: "Set which folder classes an account displays",
	Long: `Set the account's folder mode. Modes:
  ALL, FIRST_CLASS, FIRST_AND_SECOND_CLASS, NOT_SECOND_CLASS, NONE`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := search.ParseFolderMode(args[1])
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		acct, err := s.GetAccount(args[0])
		if err != nil {
			return err
		}
		if err := s.SetFolderMode(acct.ID, mode); err != nil {
			return err
		}
		fmt.Printf("Folder mode for %s set to %s\n", acct.UUID, mode)
		return nil
	},
}

var accountsSpecialCmd = &cobra.Command{
	Use:   "set-special <uuid> <role> [folder]",
	Short: "Assign a special folder role",
	Long: `Assign one of the roles inbox, trash, drafts, spam, outbox or sent to a
folder of the account. Omit the folder to clear the role.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := store.ParseSpecialFolder(strings.ToLower(args[1]))
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		acct, err := s.GetAccount(args[0])
		if err != nil {
			return err
		}
		var folderID int64
		if len(args) == 3 {
			ids, err := s.FolderIDsByName(args[2], acct.ID)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no folder named %q in account %s", args[2], acct.UUID)
			}
			folderID = ids[0]
		}
		if err := s.SetSpecialFolder(acct.ID, role, folderID); err != nil {
			return err
		}
		if folderID == 0 {
			fmt.Printf("Cleared %s folder for %s\n", role, acct.UUID)
		} else {
			fmt.Printf("Set %s folder for %s to %s\n", role, acct.UUID, args[2])
		}
		return nil
	},
}

var accountsFolderCmd = &cobra.Command{
	Use:   "set-folder <uuid> <folder>",
	Short: "Change a folder's display class and visibility",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		acct, err := s.GetAccount(args[0])
		if err != nil {
			return err
		}
		ids, err := s.FolderIDsByName(args[1], acct.ID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no folder named %q in account %s", args[1], acct.UUID)
		}
		settings := store.FolderSettings{
			DisplayClass: strings.ToUpper(folderClass),
			Integrate:    !folderNoMerge,
			Visible:      !folderHidden,
		}
		if err := s.UpdateFolder(ids[0], settings); err != nil {
			return err
		}
		fmt.Printf("Updated folder %s\n", args[1])
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <uuid>",
	Short: "Remove an account and all of its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		acct, err := s.GetAccount(args[0])
		if err != nil {
			return err
		}
		if err := s.RemoveAccount(acct.ID); err != nil {
			return err
		}
		fmt.Printf("Removed account %s (%s)\n", acct.UUID, acct.Email)
		return nil
	},
}

// specialRoles maps folder IDs to the role names the account assigns them.
func specialRoles(a *store.Account) map[int64]string {
	roles := make(map[int64]string)
	for _, r := range []struct {
		id   int64
		role store.SpecialFolder
	}{
		{a.InboxFolderID, store.SpecialInbox},
		{a.TrashFolderID, store.SpecialTrash},
		{a.DraftsFolderID, store.SpecialDrafts},
		{a.SpamFolderID, store.SpecialSpam},
		{a.OutboxFolderID, store.SpecialOutbox},
		{a.SentFolderID, store.SpecialSent},
	} {
		if r.id == 0 {
			continue
		}
		if roles[r.id] != "" {
			roles[r.id] += ","
		}
		roles[r.id] += string(r.role)
	}
	return roles
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsFoldersCmd, accountsModeCmd, accountsSpecialCmd, accountsFolderCmd, accountsRemoveCmd)

	accountsCmd.PersistentFlags().BoolVar(&accountsJSON, "json", false, "Output as JSON")
	accountsFolderCmd.Flags().StringVar(&folderClass, "class", search.ClassNone, "display class: NO_CLASS, FIRST_CLASS or SECOND_CLASS")
	accountsFolderCmd.Flags().BoolVar(&folderHidden, "hidden", false, "hide the folder from folder lists")
	accountsFolderCmd.Flags().BoolVar(&folderNoMerge, "no-unified", false, "leave the folder out of the unified inbox")
}
