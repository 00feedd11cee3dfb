package tracing

import (
	"context"
	"testing"

	"example.com/backstage/services/partyup/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{})
	require.NoError(t, err)

	require.Empty(t, tracer.Middleware())
	end := tracer.StartSegment(context.Background(), "join")
	require.NotNil(t, end)
	end()
	tracer.RecordError(context.Background(), errors.New("boom"))
	tracer.Close()
}
