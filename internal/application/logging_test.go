package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/logging"
)

func TestServiceLogger_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	var baseBuf, ctxBuf bytes.Buffer
	base := zerolog.New(&baseBuf)
	ctx := logging.ContextWithLogger(context.Background(), zerolog.New(&ctxBuf).With().Str("request_id", "req-1").Logger())

	logger := serviceLogger(ctx, base, "BookingService", "Create", "booking_id", "b-1")
	logger.Info().Msg("hello")

	assert.Empty(t, baseBuf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal(ctxBuf.Bytes(), &entry))
	assert.Equal(t, "BookingService", entry["service"])
	assert.Equal(t, "Create", entry["operation"])
	assert.Equal(t, "b-1", entry["booking_id"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestLogOutcome_LevelsByErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantKind  string
	}{
		{name: "success", err: nil, wantLevel: "info"},
		{name: "expected failure", err: domain.ErrSlotConflict, wantLevel: "warn", wantKind: "slot_conflict"},
		{name: "unexpected failure", err: errors.New("disk full"), wantLevel: "error", wantKind: "unexpected"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logOutcome(zerolog.New(&buf), tt.err, "failed", "done")

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, entry["error_kind"])
			}
		})
	}
}
