//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/herald/internal/capture"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestPulseSourceCapturesIntegration(t *testing.T) {
	recorder := capture.NewRecorder(PulseSource{Input: "default", Fallback: "default"}, capture.DefaultFormat, capture.Hooks{})

	_, err := recorder.Start(context.Background())
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	artifact, ok := recorder.Stop()
	require.True(t, ok)
	require.Equal(t, capture.EncodingWAV, artifact.Encoding)
}
