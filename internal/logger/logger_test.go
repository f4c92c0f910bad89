package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetup_Level(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
	require.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
}

func TestWithBuild(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := base.WithContext(context.Background())

	ctx = WithBuild(ctx, "b-1", "production")
	zerolog.Ctx(ctx).Info().Msg("hello")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	require.Equal(t, "b-1", event["build_id"])
	require.Equal(t, "production", event["mode"])
}

func TestTimed(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	Timed(ctx, "stage")(errors.New("boom"))

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	require.Equal(t, "error", event["level"])
	require.Equal(t, "boom", event["error"])
	require.Contains(t, event, "duration")
}
