package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "family-assistant", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestExporterOptions(t *testing.T) {
	tests := []struct {
		endpoint string
		want     int
		wantErr  bool
	}{
		{endpoint: "collector:4318", want: 2},
		{endpoint: "http://collector:4318", want: 2},
		{endpoint: "http://collector:4318/v1/traces", want: 3},
		{endpoint: "https://collector.example.com", want: 1},
		{endpoint: "http://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			opts, err := exporterOptions(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, opts, tt.want)
		})
	}
}
