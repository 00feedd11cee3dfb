package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "partyup",
	Short: "PartyUp social events backend",
	Long: `A backend for discovering, hosting and joining social events.
It serves the HTTP and streaming API and runs the background worker
that delivers push notifications and keeps event statuses current.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.yaml or app.env")
}
