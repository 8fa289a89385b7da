package main

import (
	"os"

	"github.com/spf13/cobra"

	"glimpse/internal/interfaces/cli/migrate"
	"glimpse/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "glimpse",
		Short: "Glimpse - social browsing presence backend",
		Long:  `Glimpse tracks browsing presence and tab usage for a social extension: realtime gateway, aggregation pipeline and REST API.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
