// Package cmd implements the reviewly command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reviewly",
	Short: "Reviewly - review-aware shopping assistant",
	Long: `Reviewly is a shopping assistant backed by product reviews.

It answers questions about the catalog, searches products by meaning as well
as by name, and digs into what reviewers actually said about an item.

Running reviewly without arguments starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
