package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	gethLog "github.com/ethereum/go-ethereum/log"
	"github.com/rs/zerolog"

	"github.com/zeroknots/lazyaccount/metrics"
)

// crashHandler forwards the error records of the JSON-RPC server to zerolog.
// The server recovers panicking method handlers and reports them as
// "RPC method ... crashed" records.
type crashHandler struct {
	logger    zerolog.Logger
	collector metrics.Collector
	attrs     []slog.Attr
}

// InstallCrashLogger routes the JSON-RPC server logs through logger. It
// replaces the process wide go-ethereum logger.
func InstallCrashLogger(logger zerolog.Logger, collector metrics.Collector) {
	gethLog.SetDefault(gethLog.NewLogger(&crashHandler{
		logger:    logger.With().Str("component", "API").Logger(),
		collector: collector,
	}))
}

func (h *crashHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *crashHandler) Handle(_ context.Context, r slog.Record) error {
	event := h.logger.Error()
	add := func(a slog.Attr) bool {
		event.Str(a.Key, a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	if isCrash(r.Message) {
		h.collector.ServerPanicked(errors.New(r.Message))
	}

	event.Msg(r.Message)
	return nil
}

func (h *crashHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &crashHandler{
		logger:    h.logger,
		collector: h.collector,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *crashHandler) WithGroup(string) slog.Handler {
	return h
}

func isCrash(msg string) bool {
	return strings.HasPrefix(msg, "RPC method") && strings.Contains(msg, "crashed")
}
