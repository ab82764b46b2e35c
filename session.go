package rendercore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore/internal/asset"
	"github.com/gogpu/rendercore/internal/frame"
)

// SessionState is the lifecycle state of a Session.
//
//	Created -> Configured -> Drawn
//	                      -> Looping <-> Stopped
//
// Any state moves to Released.
type SessionState uint8

const (
	StateCreated SessionState = iota
	StateConfigured
	StateDrawn
	StateLooping
	StateStopped
	StateReleased
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateDrawn:
		return "drawn"
	case StateLooping:
		return "looping"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("SessionState(%d)", uint8(s))
	}
}

// DrawRecord describes one submitted draw call.
type DrawRecord struct {
	Topology    Topology
	Indexed     bool
	First       int
	VertexCount int
	IndexCount  int
}

// FrameStats counts work submitted by a session.
type FrameStats struct {
	Frames    uint64
	DrawCalls uint64
	Clears    uint64
	LastDraw  DrawRecord
}

type releaser interface{ Release() }

// Session owns a GPU device, an offscreen color and depth target and the
// cycle that runs frame callbacks and load completions.
//
// A Session is single-threaded: call its methods, and the methods of the
// resources it creates, from the goroutine that drives Run or Pump. Use
// Post to hand work to that goroutine from elsewhere.
type Session struct {
	opts   sessionOptions
	dev    *deviceHandle
	target *renderTarget
	// surface replaces the offscreen color view when set.
	surface hal.TextureView

	loop   *frame.Loop
	loader *asset.Loader
	ctx    context.Context
	cancel context.CancelFunc

	state     SessionState
	drawState DrawState
	active    *Program
	fallback  *Texture2D
	resources map[releaser]struct{}
	ids       uint64

	loopCB    func(*Frame)
	loopGen   uint64
	loopStart time.Time
	loopErr   error

	stats FrameStats
}

var _ gpucontext.DeviceProvider = (*Session)(nil)

// NewSession acquires a device and creates a width x height render
// target. Without WithDeviceProvider the backends of the fallback chain
// are tried in order; if none yields a device the error is an
// *UnsupportedContextError.
func NewSession(width, height int, opts ...SessionOption) (*Session, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("rendercore: invalid session size %dx%d", width, height)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dev, err := acquireDevice(&o)
	if err != nil {
		return nil, err
	}

	if o.colorFormat == gputypes.TextureFormatUndefined {
		o.colorFormat = dev.format
		if o.colorFormat == gputypes.TextureFormatUndefined {
			o.colorFormat = gputypes.TextureFormatRGBA8Unorm
		}
	}
	maxSize := o.maxTextureSize
	if limit := int(dev.limits.MaxTextureDimension2D); maxSize <= 0 || maxSize > limit {
		maxSize = limit
	}

	target, err := newRenderTarget(dev.device, o.label, uint32(width), uint32(height), o.colorFormat, o.depthFormat)
	if err != nil {
		dev.close()
		return nil, fmt.Errorf("rendercore: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:      o,
		dev:       dev,
		target:    target,
		loop:      frame.New(o.interval),
		loader:    asset.NewLoader(o.source, maxSize),
		ctx:       ctx,
		cancel:    cancel,
		resources: make(map[releaser]struct{}),
	}
	Logger().Info("rendercore: session created", "width", width, "height", height,
		"adapter", dev.info.Name, "color", o.colorFormat, "interval", s.loop.Interval())
	return s, nil
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Size returns the render target size.
func (s *Session) Size() (width, height int) {
	return int(s.target.width), int(s.target.height)
}

// Stats returns counters of submitted work.
func (s *Session) Stats() FrameStats { return s.stats }

// DrawState returns the current draw state.
func (s *Session) DrawState() DrawState { return s.drawState }

func (s *Session) colorFormat() gputypes.TextureFormat { return s.target.colorFormat }

func (s *Session) nextID() uint64 {
	s.ids++
	return s.ids
}

func (s *Session) track(r releaser)  { s.resources[r] = struct{}{} }
func (s *Session) forget(r releaser) { delete(s.resources, r) }

func (s *Session) halDevice() hal.Device {
	if s.dev == nil {
		return nil
	}
	return s.dev.device
}

func (s *Session) checkAlive(op string) error {
	if s.state == StateReleased {
		return &StateError{Op: op, State: s.state}
	}
	return nil
}

func (s *Session) require(op string, allowed ...SessionState) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return &StateError{Op: op, State: s.state}
}

// Configure sets the clear color, depth test, face culling and winding
// used by later clears and draws. It moves a new session to
// StateConfigured and may be called again until the session has drawn
// once.
func (s *Session) Configure(ds DrawState) error {
	if err := s.require("Configure", StateCreated, StateConfigured, StateLooping, StateStopped); err != nil {
		return err
	}
	s.drawState = ds
	if s.state == StateCreated {
		s.state = StateConfigured
	}
	return nil
}

// Clear clears the color target to the configured clear color, and the
// depth target when depth testing is enabled.
func (s *Session) Clear() error {
	if err := s.require("Clear", StateConfigured, StateLooping, StateStopped); err != nil {
		return err
	}
	return s.clear()
}

func (s *Session) clear() error {
	if err := s.clearTarget(); err != nil {
		return fmt.Errorf("rendercore: clear: %w", err)
	}
	s.stats.Clears++
	return nil
}

// Use makes p the current program for DrawActive. Nil clears it.
func (s *Session) Use(p *Program) error {
	if err := s.checkAlive("Use"); err != nil {
		return err
	}
	if p != nil {
		if p.s != s {
			return ErrForeignResource
		}
		if p.released {
			return ErrReleased
		}
	}
	s.active = p
	return nil
}

// Active returns the current program.
func (s *Session) Active() *Program { return s.active }

// DrawOnce issues exactly one draw call and moves the session to the
// terminal StateDrawn. It is only allowed in StateConfigured.
func (s *Session) DrawOnce(p *Program, g *Geometry, prim Primitive) error {
	if err := s.require("DrawOnce", StateConfigured); err != nil {
		return err
	}
	if err := s.draw(p, g, prim); err != nil {
		return err
	}
	s.state = StateDrawn
	return nil
}

// DrawActive is DrawOnce with the current program.
func (s *Session) DrawActive(g *Geometry, prim Primitive) error {
	if s.active == nil {
		return ErrNoProgram
	}
	return s.DrawOnce(s.active, g, prim)
}

// ReadPixels copies the offscreen color target into an image.
func (s *Session) ReadPixels() (*image.RGBA, error) {
	if err := s.checkAlive("ReadPixels"); err != nil {
		return nil, err
	}
	if s.surface != nil {
		return nil, ErrNoReadback
	}
	img, err := s.readPixels()
	if err != nil {
		return nil, fmt.Errorf("rendercore: read pixels: %w", err)
	}
	return img, nil
}

// SetSurfaceTarget renders into view, typically the current texture of a
// host window surface, instead of the offscreen target. The view must be
// the session's size and color format. Nil restores the offscreen target.
func (s *Session) SetSurfaceTarget(view hal.TextureView) {
	s.surface = view
}

// Post schedules fn on the owning cycle. It is safe to call from any
// goroutine.
func (s *Session) Post(fn func()) { s.loop.Post(fn) }

// Run drives the owning cycle on the calling goroutine: it runs posted
// work, texture load completions and loop frames until nothing is left,
// the loop stops or ctx is done. A frame error that stopped the loop is
// returned.
func (s *Session) Run(ctx context.Context) error {
	if err := s.checkAlive("Run"); err != nil {
		return err
	}
	if err := s.loop.Run(ctx); err != nil {
		return err
	}
	err := s.loopErr
	s.loopErr = nil
	return err
}

// Pump runs pending work and one frame tick at now, returning the number
// of frame callbacks invoked. It lets a host that owns its own loop, or a
// test, drive the session deterministically.
func (s *Session) Pump(now time.Time) int {
	if s.state == StateReleased {
		return 0
	}
	return s.loop.Pump(now)
}

// Err returns the error that stopped the loop, if any.
func (s *Session) Err() error { return s.loopErr }

// fallbackTexture is bound to texture slots without a texture. It samples
// as opaque black.
func (s *Session) fallbackTexture() (*Texture2D, error) {
	if s.fallback != nil && !s.fallback.released {
		return s.fallback, nil
	}
	t, err := s.CreatePlaceholder(1, 1, RGBA8, color.NRGBA{A: 255})
	if err != nil {
		return nil, fmt.Errorf("create fallback texture: %w", err)
	}
	s.fallback = t
	return t, nil
}

// Release stops the loop and frees every shader, program, geometry and
// texture created through the session, then the render target and, if the
// session opened it, the device. It is safe to call more than once.
func (s *Session) Release() {
	if s.state == StateReleased {
		return
	}
	s.Stop()
	s.cancel()

	live := make([]releaser, 0, len(s.resources))
	for r := range s.resources {
		live = append(live, r)
	}
	for _, r := range live {
		r.Release()
	}
	s.active = nil
	s.fallback = nil

	if s.target != nil {
		s.target.destroy(s.dev.device)
	}
	s.dev.close()
	s.state = StateReleased
	Logger().Info("rendercore: session released", "frames", s.stats.Frames, "draws", s.stats.DrawCalls)
}

// Device returns the session's device for sharing with other gogpu
// libraries.
func (s *Session) Device() gpucontext.Device { return s.halDevice() }

// Queue returns the session's queue.
func (s *Session) Queue() gpucontext.Queue {
	if s.dev == nil {
		return nil
	}
	return s.dev.queue
}

// SurfaceFormat returns the color target format.
func (s *Session) SurfaceFormat() gputypes.TextureFormat { return s.target.colorFormat }

// Adapter returns the adapter the device was opened on, if known.
func (s *Session) Adapter() gpucontext.Adapter {
	if s.dev == nil || s.dev.adapter == nil {
		return nil
	}
	return s.dev.adapter
}

// AdapterInfo describes the adapter.
func (s *Session) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: s.dev.info.Name, Type: adapterType(s.dev.info.DeviceType)}
}

// HalDevice returns the HAL device.
func (s *Session) HalDevice() any { return s.halDevice() }

// HalQueue returns the HAL queue.
func (s *Session) HalQueue() any { return s.Queue() }

// draw validates and submits one draw call.
func (s *Session) draw(p *Program, g *Geometry, prim Primitive) error {
	switch {
	case p == nil:
		return ErrNoProgram
	case p.released:
		return fmt.Errorf("rendercore: draw with program: %w", ErrReleased)
	case g == nil:
		return ErrNoVertexBuffer
	case g.released:
		return fmt.Errorf("rendercore: draw with geometry: %w", ErrReleased)
	case p.s != s || g.s != s:
		return ErrForeignResource
	}
	if g.vertex == nil && len(p.layout.Attributes) > 0 {
		return ErrNoVertexBuffer
	}

	rec, err := resolveDraw(g, prim)
	if err != nil {
		return err
	}
	if s.opts.strict {
		if err := checkDraw(p, g, prim, rec); err != nil {
			return err
		}
	}

	rp, err := p.pipeline(g, prim)
	if err != nil {
		return err
	}
	if err := p.flush(); err != nil {
		return fmt.Errorf("rendercore: %w", err)
	}
	groups, err := p.bindings()
	if err != nil {
		return fmt.Errorf("rendercore: %w", err)
	}

	feed := g.vertex != nil && len(g.layout.BufferLayout(g.isEnabled).Attributes) > 0
	desc := s.passDescriptor("rendercore_draw", false, false)
	w, h := float32(s.target.width), float32(s.target.height)
	err = s.submit("rendercore_draw", func(enc hal.CommandEncoder) error {
		pass := enc.BeginRenderPass(desc)
		pass.SetViewport(0, 0, w, h, 0, 1)
		pass.SetPipeline(rp)
		for i, bg := range groups {
			pass.SetBindGroup(uint32(i), bg, nil)
		}
		if feed {
			pass.SetVertexBuffer(0, g.vertex.buf, 0)
		}
		if prim.Indexed {
			pass.SetIndexBuffer(g.index.buf, prim.IndexType.format(), 0)
			pass.DrawIndexed(uint32(rec.IndexCount), 1, uint32(rec.First), 0, 0)
		} else {
			pass.Draw(uint32(rec.VertexCount), 1, uint32(rec.First), 0)
		}
		pass.End()
		return nil
	})
	if err != nil {
		return fmt.Errorf("rendercore: draw: %w", err)
	}
	s.stats.DrawCalls++
	s.stats.LastDraw = rec
	return nil
}

// resolveDraw fills in the element count of prim.
func resolveDraw(g *Geometry, prim Primitive) (DrawRecord, error) {
	rec := DrawRecord{Topology: prim.Topology, Indexed: prim.Indexed, First: prim.First}
	if prim.First < 0 || prim.Count < 0 {
		return rec, fmt.Errorf("%w: negative first %d or count %d", ErrDrawRange, prim.First, prim.Count)
	}
	count := prim.Count
	if prim.Indexed {
		if g.index == nil {
			return rec, ErrNoIndexBuffer
		}
		if count == 0 {
			count = g.IndexCount(prim.IndexType) - prim.First
		}
		rec.IndexCount = count
		rec.VertexCount = g.VertexCount()
	} else {
		if count == 0 {
			count = g.VertexCount() - prim.First
		}
		rec.VertexCount = count
	}
	if count <= 0 {
		return rec, ErrEmptyDraw
	}
	return rec, nil
}

// checkDraw verifies the draw range against the uploaded data and that
// every vertex input of p is fed.
func checkDraw(p *Program, g *Geometry, prim Primitive, rec DrawRecord) error {
	if prim.Indexed {
		if n := g.IndexCount(prim.IndexType); rec.First+rec.IndexCount > n {
			return fmt.Errorf("%w: indices [%d,%d) of %d", ErrDrawRange, rec.First, rec.First+rec.IndexCount, n)
		}
	} else if n := g.VertexCount(); rec.First+rec.VertexCount > n {
		return fmt.Errorf("%w: vertices [%d,%d) of %d", ErrDrawRange, rec.First, rec.First+rec.VertexCount, n)
	}

	var missing []error
	for _, a := range p.layout.Attributes {
		if _, ok := g.layout.Lookup(a.Location); !ok || !g.isEnabled(a.Location) {
			missing = append(missing, fmt.Errorf("%w: attribute %q at location %d is not described and enabled",
				ErrInvalidLayout, a.Name, a.Location))
		}
	}
	return errors.Join(missing...)
}
