package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_UnsetIsNoop(t *testing.T) {
	t.Setenv("TRACECLI_OTEL", "")

	shutdown, err := Setup(context.Background(), "tracecli-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_Stdout(t *testing.T) {
	t.Setenv("TRACECLI_OTEL", "stdout")

	shutdown, err := Setup(context.Background(), "tracecli-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
