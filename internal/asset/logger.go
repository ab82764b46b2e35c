package asset

import (
	"log/slog"
	"sync/atomic"
)

var decodeLog atomic.Pointer[slog.Logger]

func init() {
	decodeLog.Store(slog.New(slog.DiscardHandler))
}

func slogger() *slog.Logger { return decodeLog.Load() }

// SetLogger sets where decode diagnostics go; rendercore.SetLogger calls
// it. Nil discards them.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	decodeLog.Store(l)
}
