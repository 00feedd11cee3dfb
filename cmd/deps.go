package cmd

import (
	"context"
	"os"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/cache"
	"example.com/backstage/services/partyup/internal/database"
	"example.com/backstage/services/partyup/internal/geocoding"
	"example.com/backstage/services/partyup/internal/metrics"
	"example.com/backstage/services/partyup/internal/notify"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/services"
	"example.com/backstage/services/partyup/internal/storage"
	"example.com/backstage/services/partyup/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// components bundles the collaborators shared by the api and worker commands
type components struct {
	uow     *database.UnitOfWork
	service *services.Service
	cache   *cache.RedisCache
	search  *search.ElasticClient
	queue   *notify.QueueSender
	tracer  *tracing.NewRelicTracer
	metrics *metrics.Metrics
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if cfg.LogLevel != "" {
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}
	return cfg, nil
}

func newComponents(ctx context.Context, cfg config.Config, source string) (*components, error) {
	rt := &components{metrics: metrics.NewMetrics()}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	rt.uow = database.NewUnitOfWork(db)

	rt.search, err = search.NewElasticClient(cfg.Elastic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize Elasticsearch client")
	}

	deps := services.Dependencies{
		Index:    rt.search,
		Geocoder: geocoding.NewClient(cfg.Geocoding),
		Metrics:  rt.metrics,
		ListTTL:  cfg.Redis.ListTTL,
	}

	if cfg.Redis.Enabled {
		rt.cache, err = cache.NewRedisCache(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		} else {
			deps.Cache = rt.cache
		}
	}

	// Initialize tracer
	rt.tracer, err = tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	} else {
		deps.Tracer = rt.tracer
	}

	blobs, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize blob storage")
	}
	deps.Blobs = blobs

	if cfg.Push.Enabled {
		rt.queue, err = notify.NewQueueSender(cfg.Azure, source)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize notification queue, push notifications disabled")
		} else {
			deps.Push = rt.queue
		}
	}

	rt.service = services.NewService(deps)
	return rt, nil
}

func (rt *components) close() {
	if rt.queue != nil {
		if err := rt.queue.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close notification queue")
		}
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis cache")
		}
	}
	if rt.tracer != nil {
		rt.tracer.Close()
	}
}
