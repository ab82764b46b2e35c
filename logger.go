package rendercore

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/rendercore/internal/asset"
)

// silent is installed until SetLogger is called with a real logger.
var silent = slog.New(slog.DiscardHandler)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(silent)
}

// SetLogger routes session diagnostics, including texture decoding, to l.
// Passing nil silences them again. It may be called while sessions run on
// other goroutines.
//
// Debug records resource lifecycle: buffers, textures, pipelines and
// decodes. Info records device selection and session start and release.
// Warn records backend fallbacks, compile and link failures and failed
// texture loads.
//
//	rendercore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr,
//	    &slog.HandlerOptions{Level: slog.LevelDebug})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	logger.Store(l)
	asset.SetLogger(l)
}

// Logger returns the logger rendercore writes to.
func Logger() *slog.Logger {
	return logger.Load()
}
