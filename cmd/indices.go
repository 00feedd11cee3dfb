package cmd

import (
	"context"
	"time"

	"example.com/backstage/services/partyup/internal/search"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "Create the search indices",
	Long:  `Create every search index with its mapping. Existing indices are left untouched.`,
	RunE:  runIndices,
}

func init() {
	rootCmd.AddCommand(indicesCmd)
}

func runIndices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := client.EnsureIndices(ctx); err != nil {
		return err
	}
	log.Info().Str("prefix", cfg.Elastic.Prefix).Msg("Search indices ready")
	return nil
}
