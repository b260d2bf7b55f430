// Package cmd contains the nebula CLI: the HTTP server, schema migration,
// and version commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nebula",
	Short: "Nebula - AI-assisted content management backend",
	Long: `Nebula is the backend for an AI-assisted CMS: a session-scoped chat
agent with tool calling, a content schema and entry store, and a public
read-only content API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
