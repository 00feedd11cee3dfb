package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/backstage/services/partyup/internal/api"
	"example.com/backstage/services/partyup/internal/identity"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server and the event media stream`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	c, err := newComponents(ctx, cfg, "partyup-api")
	if err != nil {
		return err
	}
	defer c.close()

	deps := api.Dependencies{
		Service:  c.service,
		UoW:      c.uow,
		Verifier: identity.NewGoogleVerifier(cfg.Identity),
		Metrics:  c.metrics,
	}
	if c.tracer != nil {
		deps.Tracer = c.tracer
	}
	if c.cache != nil {
		deps.Stream = c.cache
	} else {
		log.Warn().Msg("Redis cache unavailable, event media stream disabled")
	}

	server := api.NewServer(cfg, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			return err
		}
	case <-ctx.Done():
	}

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
		return err
	}
	return nil
}
