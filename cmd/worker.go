package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/backstage/services/partyup/internal/notify"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultSweepInterval = time.Minute

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to deliver queued push notifications and move finished events out of UPCOMING`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	c, err := newComponents(ctx, cfg, "partyup-worker")
	if err != nil {
		return err
	}
	defer c.close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Push.Enabled {
		var delivery notify.Sender = notify.NoopSender{}
		fcm, err := notify.NewFCMSender(ctx, cfg.Push)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize FCM sender, queued notifications will be dropped")
		} else {
			delivery = fcm
		}

		processor, err := notify.NewProcessor(cfg.Azure, delivery)
		if err != nil {
			return err
		}

		// Start the notification queue processor
		g.Go(func() error {
			log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting notification processor")
			return processor.Run(ctx)
		})
	}

	// Start the event status sweep
	g.Go(func() error {
		interval := cfg.Worker.StatusSweepInterval
		if interval <= 0 {
			interval = defaultSweepInterval
		}
		log.Info().Dur("interval", interval).Msg("Starting event status sweep")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				if _, err := c.service.SweepEventStatuses(ctx, c.uow, cfg.Worker.StatusSweepBatch); err != nil {
					log.Error().Err(err).Msg("Failed to sweep event statuses")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
