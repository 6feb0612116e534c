package api

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicCounter struct {
	panics int
}

func (c *panicCounter) ApiErrorOccurred()                                   {}
func (c *panicCounter) ServerPanicked(error)                                { c.panics++ }
func (c *panicCounter) RequestRateLimited(string)                           {}
func (c *panicCounter) OracleCallFailed(string)                             {}
func (c *panicCounter) UserOperationSubmitted(string)                       {}
func (c *panicCounter) MeasureRequestDuration(time.Time, prometheus.Labels) {}

func TestCrashHandler(t *testing.T) {
	var out bytes.Buffer
	collector := &panicCounter{}
	handler := &crashHandler{
		logger:    zerolog.New(&out),
		collector: collector,
	}

	assert.False(t, handler.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))

	record := slog.NewRecord(time.Now(), slog.LevelError, "RPC method lazy_buildUserOperation crashed: boom", 0)
	record.AddAttrs(slog.String("stack", "goroutine 1"))
	require.NoError(t, handler.WithAttrs([]slog.Attr{slog.String("conn", "127.0.0.1")}).Handle(context.Background(), record))

	assert.Equal(t, 1, collector.panics)
	assert.Contains(t, out.String(), `"conn":"127.0.0.1"`)
	assert.Contains(t, out.String(), `"stack":"goroutine 1"`)
	assert.Contains(t, out.String(), "lazy_buildUserOperation crashed")

	out.Reset()
	other := slog.NewRecord(time.Now(), slog.LevelError, "Served request with error", 0)
	require.NoError(t, handler.Handle(context.Background(), other))
	assert.Equal(t, 1, collector.panics)
	assert.Contains(t, out.String(), "Served request with error")
}
