package rendercore

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/internal/asset"
)

// SessionOption configures a Session during creation.
//
// Example:
//
//	// Default: first working backend, 60 Hz loop, textures read from disk
//	s, err := rendercore.NewSession(800, 600)
//
//	// Host-owned device and an embedded asset tree
//	s, err := rendercore.NewSession(800, 600,
//	    rendercore.WithDeviceProvider(provider),
//	    rendercore.WithAssetFS(assets))
type SessionOption func(*sessionOptions)

// AssetSource opens texture sources by name for RequestLoad.
type AssetSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// sessionOptions holds optional configuration for Session creation.
type sessionOptions struct {
	backends       []gputypes.Backend
	provider       gpucontext.DeviceProvider
	interval       time.Duration
	source         AssetSource
	colorFormat    gputypes.TextureFormat
	depthFormat    gputypes.TextureFormat
	maxTextureSize int
	strict         bool
	pipelineCache  int
	label          string
}

// defaultBackends is the fallback chain tried when no provider is given.
// BackendEmpty is the software rasterizer when hal/software is linked.
var defaultBackends = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// defaultOptions returns the default session options.
func defaultOptions() sessionOptions {
	return sessionOptions{
		backends:      defaultBackends,
		source:        asset.Files(),
		depthFormat:   gputypes.TextureFormatDepth24Plus,
		pipelineCache: 16,
		label:         "rendercore",
	}
}

// WithBackends replaces the fallback chain. Backends are tried in order;
// each failure is logged and the next one is tried.
func WithBackends(backends ...gputypes.Backend) SessionOption {
	return func(o *sessionOptions) {
		o.backends = append([]gputypes.Backend(nil), backends...)
	}
}

// WithDeviceProvider renders on a device owned by the host application,
// typically a gogpu window. The fallback chain is skipped and Release
// leaves the device open.
func WithDeviceProvider(p gpucontext.DeviceProvider) SessionOption {
	return func(o *sessionOptions) {
		o.provider = p
	}
}

// WithRefreshRate paces the render loop at hz frames per second.
// Non-positive values keep the 60 Hz default.
func WithRefreshRate(hz float64) SessionOption {
	return func(o *sessionOptions) {
		if hz > 0 {
			o.interval = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithAssetSource sets where RequestLoad reads texture sources from.
// The default opens names as file paths.
func WithAssetSource(src AssetSource) SessionOption {
	return func(o *sessionOptions) {
		o.source = src
	}
}

// WithAssetFS reads texture sources from fsys, for example an embed.FS.
func WithAssetFS(fsys fs.FS) SessionOption {
	return WithAssetSource(asset.FS(fsys))
}

// WithColorFormat sets the color target format. It must match the host
// surface when SetSurfaceTarget is used. The default is the provider's
// surface format, or RGBA8Unorm for sessions that open their own device.
func WithColorFormat(f gputypes.TextureFormat) SessionOption {
	return func(o *sessionOptions) {
		o.colorFormat = f
	}
}

// WithDepthFormat sets the depth target format.
func WithDepthFormat(f gputypes.TextureFormat) SessionOption {
	return func(o *sessionOptions) {
		o.depthFormat = f
	}
}

// WithMaxTextureSize downscales decoded textures whose larger side
// exceeds n pixels. Zero uses the device limit.
func WithMaxTextureSize(n int) SessionOption {
	return func(o *sessionOptions) {
		o.maxTextureSize = n
	}
}

// WithStrictLayout checks every draw against the uploaded buffer sizes and
// the program's vertex inputs before encoding it.
func WithStrictLayout() SessionOption {
	return func(o *sessionOptions) {
		o.strict = true
	}
}

// WithPipelineCacheSize bounds the render pipelines each program keeps.
// The least recently used one is destroyed when a draw needs a new one.
// Values below one keep a single pipeline.
func WithPipelineCacheSize(n int) SessionOption {
	return func(o *sessionOptions) {
		o.pipelineCache = n
	}
}

// WithLabel sets the debug label prefix for GPU objects.
func WithLabel(label string) SessionOption {
	return func(o *sessionOptions) {
		o.label = label
	}
}
