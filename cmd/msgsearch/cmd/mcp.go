package cmd

import (
	"github.com/spf13/cobra"
	mcpserver "github.com/wesm/msgsearch/internal/mcp"
	"github.com/wesm/msgsearch/internal/query"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server over stdio",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

MCP clients can search messages, compile queries to SQL, read messages and
run saved searches with the tools search_messages, compile_search,
get_message, list_saved_searches, run_saved_search and get_stats.

Example client config:
  {
    "mcpServers": {
      "msgsearch": {
        "command": "msgsearch",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		engine := query.NewSQLiteEngine(s).WithLogger(logger)
		return mcpserver.Serve(cmd.Context(), engine, s)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
