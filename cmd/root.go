package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lsp-bridge",
	Short: "lsp-bridge exposes running language servers to MCP clients",
	Long: `lsp-bridge is a headless process that owns one or more language
server connections and republishes their diagnostics, hover and
definition results over the Model Context Protocol.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
