package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/msgsearch/internal/query"
)

var (
	showJSON bool
	showRaw  bool
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show full message details",
	Long: `Show a stored message by its internal ID: headers, flags, attachments and
the body decoded from the raw MIME.

Examples:
  msgsearch show 42
  msgsearch show 42 --json
  msgsearch show 42 --raw > message.eml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message ID %q", args[0])
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if showRaw {
			raw, err := s.GetMessageRaw(id)
			if err != nil {
				return fmt.Errorf("get raw message: %w", err)
			}
			_, err = os.Stdout.Write(raw)
			return err
		}

		msg, err := query.NewSQLiteEngine(s).WithLogger(logger).GetMessage(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get message: %w", err)
		}
		if showJSON {
			return printJSON(msg)
		}
		outputMessageText(msg)
		return nil
	},
}

const rule = "───────────────────────────────────────────────────────────────────────────────"

func outputMessageText(msg *query.MessageDetail) {
	fmt.Println(strings.ReplaceAll(rule, "─", "═"))
	fmt.Printf("Message %d in %s (uid %s)\n", msg.ID, msg.FolderName, msg.UID)
	fmt.Println(rule)

	printHeader("From", msg.From)
	printHeader("To", msg.To)
	printHeader("Cc", msg.Cc)
	printHeader("Bcc", msg.Bcc)
	printHeader("Reply-To", msg.ReplyTo)
	fmt.Printf("Subject:  %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Printf("Date:     %s\n", msg.Date.Local().Format(time.RFC1123))
	}
	printHeader("Keywords", strings.Join(msg.Flags, ", "))

	var state []string
	if !msg.Read {
		state = append(state, "unread")
	}
	if msg.Flagged {
		state = append(state, "flagged")
	}
	printHeader("State", strings.Join(state, ", "))

	if len(msg.Attachments) > 0 {
		fmt.Println("\nAttachments:")
		for _, att := range msg.Attachments {
			fmt.Printf("  • %s (%s, %d bytes)\n", att.Filename, att.ContentType, att.Size)
		}
	}

	fmt.Println()
	fmt.Println(strings.ReplaceAll(rule, "─", "═"))
	switch {
	case msg.BodyText != "":
		fmt.Println(msg.BodyText)
	case msg.Preview != "":
		fmt.Printf("[No body text available. Preview: %s]\n", msg.Preview)
	default:
		fmt.Println("[No body content available]")
	}
	fmt.Println(strings.ReplaceAll(rule, "─", "═"))
}

func printHeader(name, value string) {
	if value != "" {
		fmt.Printf("%-9s %s\n", name+":", value)
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Write the stored raw MIME to stdout")
}
