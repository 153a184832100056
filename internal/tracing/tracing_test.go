package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureDisabledIsNoOp(t *testing.T) {
	shutdown, err := Configure(nil, false)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestConfigureEnabledWritesSpansOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Configure(&buf, true)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "test.span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "test.span")
}
