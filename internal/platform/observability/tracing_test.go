package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupTracing_NoEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "allocation", "")
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}
