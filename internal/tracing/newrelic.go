package tracing

import (
	"context"
	"time"

	"example.com/backstage/services/partyup/config"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Tracer defines the interface for tracing
type Tracer interface {
	Middleware() []gin.HandlerFunc
	StartSegment(ctx context.Context, name string) func()
	RecordError(ctx context.Context, err error)
	Close()
}

// NewRelicTracer implements Tracer using New Relic
type NewRelicTracer struct {
	app     *newrelic.Application
	enabled bool
}

// NewTracer creates a new tracer. Without a license key every call is a no-op.
func NewTracer(cfg config.TracingConfig) (*NewRelicTracer, error) {
	if cfg.LicenseKey == "" {
		log.Warn().Msg("New Relic license key not provided, tracing will be disabled")
		return &NewRelicTracer{enabled: false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(cfg.DistribTracing),
		newrelic.ConfigAppLogForwardingEnabled(cfg.LogEnabled),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize New Relic")
	}

	return &NewRelicTracer{app: app, enabled: true}, nil
}

// Middleware starts one transaction per request and carries it on the request context
func (t *NewRelicTracer) Middleware() []gin.HandlerFunc {
	if !t.enabled || t.app == nil {
		return nil
	}
	return []gin.HandlerFunc{
		nrgin.Middleware(t.app),
		func(c *gin.Context) {
			if txn := nrgin.Transaction(c); txn != nil {
				c.Request = c.Request.WithContext(newrelic.NewContext(c.Request.Context(), txn))
			}
			c.Next()
		},
	}
}

// StartSegment opens a segment on the transaction carried by ctx and returns its end func
func (t *NewRelicTracer) StartSegment(ctx context.Context, name string) func() {
	txn := newrelic.FromContext(ctx)
	if !t.enabled || txn == nil {
		return func() {}
	}
	seg := txn.StartSegment(name)
	return seg.End
}

// RecordError records an error on the transaction carried by ctx
func (t *NewRelicTracer) RecordError(ctx context.Context, err error) {
	txn := newrelic.FromContext(ctx)
	if !t.enabled || txn == nil || err == nil {
		return
	}
	txn.NoticeError(err)
}

// Close flushes pending data
func (t *NewRelicTracer) Close() {
	if !t.enabled || t.app == nil {
		return
	}
	t.app.Shutdown(shutdownTimeout)
	log.Info().Msg("New Relic tracer shutdown")
}
