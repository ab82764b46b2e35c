package rendercore

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore/internal/asset"
)

// TextureState is the lifecycle state of a Texture2D. A texture moves from
// TexturePlaceholder to TextureLoaded at most once.
type TextureState uint8

const (
	TexturePlaceholder TextureState = iota
	TextureLoaded
)

func (s TextureState) String() string {
	if s == TextureLoaded {
		return "loaded"
	}
	return "placeholder"
}

// PixelFormat is the device format of a texture.
type PixelFormat uint8

const (
	RGBA8 PixelFormat = iota
	SRGBA8
)

func (f PixelFormat) device() gputypes.TextureFormat {
	if f == SRGBA8 {
		return gputypes.TextureFormatRGBA8UnormSrgb
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// Wrap is the texture coordinate wrap mode.
type Wrap uint8

const (
	ClampToEdge Wrap = iota
	Repeat
	MirroredRepeat
)

func (w Wrap) device() gputypes.AddressMode {
	switch w {
	case Repeat:
		return gputypes.AddressModeRepeat
	case MirroredRepeat:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeClampToEdge
	}
}

// Filter is the texture filtering mode.
type Filter uint8

const (
	Linear Filter = iota
	Nearest
)

func (f Filter) device() gputypes.FilterMode {
	if f == Nearest {
		return gputypes.FilterModeNearest
	}
	return gputypes.FilterModeLinear
}

// Sampling holds wrap and filter settings. The zero value clamps to edge
// and filters linearly.
type Sampling struct {
	WrapU, WrapV         Wrap
	MinFilter, MagFilter Filter
}

// Texture2D is a sampled 2D texture. It is created with placeholder
// contents and can be replaced once by an asynchronous load.
type Texture2D struct {
	s     *Session
	id    uint64
	label string

	tex     hal.Texture
	view    hal.TextureView
	sampler hal.Sampler

	width, height int
	format        PixelFormat
	sampling      Sampling
	generation    uint64

	state    TextureState
	pending  bool
	source   string
	err      error
	onLoaded func(*Texture2D, *image.NRGBA) error
	onFailed func(*Texture2D, error)
	released bool
}

// CreatePlaceholder creates a w x h texture filled with fill and uploads it
// synchronously. The texture is usable immediately.
func (s *Session) CreatePlaceholder(w, h int, format PixelFormat, fill color.Color) (*Texture2D, error) {
	if err := s.checkAlive("CreatePlaceholder"); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("rendercore: invalid texture size %dx%d", w, h)
	}
	if fill == nil {
		fill = color.Black
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	c := color.NRGBAModel.Convert(fill).(color.NRGBA)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}

	id := s.nextID()
	t := &Texture2D{s: s, id: id, label: fmt.Sprintf("%s_texture%d", s.opts.label, id), format: format}
	if err := t.write(img); err != nil {
		t.destroy()
		return nil, err
	}
	if err := t.applySampling(Sampling{}); err != nil {
		t.destroy()
		return nil, err
	}
	s.track(t)
	Logger().Debug("rendercore: placeholder texture created", "label", t.label, "width", w, "height", h)
	return t, nil
}

// State returns the texture's lifecycle state.
func (t *Texture2D) State() TextureState { return t.state }

// Err returns the error of the last failed load, if any.
func (t *Texture2D) Err() error { return t.err }

// Size returns the current texture dimensions.
func (t *Texture2D) Size() (w, h int) { return t.width, t.height }

// Sampling returns the current wrap and filter settings.
func (t *Texture2D) Sampling() Sampling { return t.sampling }

// OnLoaded sets the function called with the decoded image when a load
// completes. It runs exactly once per successful load, on the session's
// owning cycle. The default handler uploads the image with the texture's
// current sampling. Only Upload moves the texture to TextureLoaded; a
// handler that returns nil without uploading keeps the placeholder. A
// handler error before the upload is reported like a load failure. After
// the upload it is only logged.
func (t *Texture2D) OnLoaded(fn func(*Texture2D, *image.NRGBA) error) { t.onLoaded = fn }

// OnFailed sets the function called on the owning cycle when a load fails.
// The error is a *TextureLoadError.
func (t *Texture2D) OnFailed(fn func(*Texture2D, error)) { t.onFailed = fn }

// RequestLoad starts decoding source on a worker goroutine and returns
// immediately. The texture keeps its placeholder contents until the
// completion runs on the owning cycle, driven by Session.Run or
// Session.Pump.
func (t *Texture2D) RequestLoad(source string) error {
	if t.released {
		return ErrReleased
	}
	if err := t.s.checkAlive("RequestLoad"); err != nil {
		return err
	}
	switch {
	case t.pending:
		return ErrLoadPending
	case t.state == TextureLoaded:
		return ErrAlreadyLoaded
	}
	t.pending = true
	t.source = source
	t.err = nil

	ctx, loader := t.s.ctx, t.s.loader
	t.s.loop.Go(func() func() {
		img, err := loader.Load(ctx, source)
		return func() { t.complete(source, img, err) }
	})
	Logger().Debug("rendercore: texture load requested", "label", t.label, "source", source)
	return nil
}

// complete runs on the owning cycle.
func (t *Texture2D) complete(source string, img *asset.Image, err error) {
	t.pending = false
	if t.released {
		return
	}
	if err != nil {
		t.fail(&TextureLoadError{Source: source, Reason: err.Error(), Err: err})
		return
	}

	handler := t.onLoaded
	if handler == nil {
		handler = func(t *Texture2D, px *image.NRGBA) error { return t.Upload(px, t.sampling) }
	}
	err = handler(t, img.Pixels)
	switch {
	case err != nil && t.state == TextureLoaded:
		Logger().Warn("rendercore: texture load handler failed after upload", "label", t.label, "source", source, "err", err)
	case err != nil:
		t.fail(&TextureLoadError{Source: source, Reason: err.Error(), Err: err})
	case t.state != TextureLoaded:
		Logger().Debug("rendercore: texture load handler kept placeholder", "label", t.label, "source", source)
	default:
		Logger().Debug("rendercore: texture loaded", "label", t.label, "source", source, "format", img.Format)
	}
}

func (t *Texture2D) fail(err *TextureLoadError) {
	t.err = err
	Logger().Warn("rendercore: texture load failed", "label", t.label, "source", err.Source, "reason", err.Reason)
	if t.onFailed != nil {
		t.onFailed(t, err)
	}
}

// Upload replaces the texture contents with img and applies sampling. The
// device texture is recreated when the size changes. After Upload the
// texture is TextureLoaded.
func (t *Texture2D) Upload(img *image.NRGBA, sampling Sampling) error {
	if t.released {
		return ErrReleased
	}
	if err := t.s.checkAlive("Upload"); err != nil {
		return err
	}
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("rendercore: upload empty image to %s", t.label)
	}
	if err := t.write(img); err != nil {
		return err
	}
	if err := t.applySampling(sampling); err != nil {
		return err
	}
	t.state = TextureLoaded
	return nil
}

// SetSampling changes the wrap and filter settings.
func (t *Texture2D) SetSampling(sampling Sampling) error {
	if t.released {
		return ErrReleased
	}
	return t.applySampling(sampling)
}

// write uploads img, recreating the device texture if its size differs.
func (t *Texture2D) write(img *image.NRGBA) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("rendercore: invalid texture size %dx%d", w, h)
	}
	if limit := int(t.s.dev.limits.MaxTextureDimension2D); limit > 0 && (w > limit || h > limit) {
		return fmt.Errorf("rendercore: texture %dx%d exceeds device limit %d", w, h, limit)
	}

	device := t.s.dev.device
	if t.tex == nil || w != t.width || h != t.height {
		tex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label:         t.label,
			Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        t.format.device(),
			Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("rendercore: create texture: %w", err)
		}
		view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: t.label + "_view"})
		if err != nil {
			device.DestroyTexture(tex)
			return fmt.Errorf("rendercore: create texture view: %w", err)
		}
		t.destroyTexture()
		t.tex, t.view = tex, view
		t.width, t.height = w, h
		t.generation++
	}

	pix := img.Pix
	if img.Stride != w*4 || b.Min != (image.Point{}) {
		pix = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(pix[y*w*4:(y+1)*w*4], row[:w*4])
		}
	}
	err := t.s.dev.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		pix,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(w * 4), RowsPerImage: uint32(h)},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("rendercore: write texture: %w", err)
	}
	return nil
}

func (t *Texture2D) applySampling(s Sampling) error {
	if t.sampler != nil && s == t.sampling {
		return nil
	}
	device := t.s.dev.device
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        t.label + "_sampler",
		AddressModeU: s.WrapU.device(),
		AddressModeV: s.WrapV.device(),
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    s.MagFilter.device(),
		MinFilter:    s.MinFilter.device(),
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("rendercore: create sampler: %w", err)
	}
	if t.sampler != nil {
		device.DestroySampler(t.sampler)
	}
	t.sampler = sampler
	t.sampling = s
	t.generation++
	return nil
}

func (t *Texture2D) destroyTexture() {
	d := t.s.halDevice()
	if d == nil {
		return
	}
	if t.view != nil {
		d.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		d.DestroyTexture(t.tex)
	}
	t.view, t.tex = nil, nil
}

func (t *Texture2D) destroy() {
	t.destroyTexture()
	if d := t.s.halDevice(); d != nil && t.sampler != nil {
		d.DestroySampler(t.sampler)
	}
	t.sampler = nil
}

// Release destroys the texture. A load still in flight completes without
// invoking callbacks. Programs sampling a released texture fall back to
// opaque black. It is safe to call more than once.
func (t *Texture2D) Release() {
	if t == nil || t.released {
		return
	}
	t.released = true
	t.destroy()
	t.s.forget(t)
	Logger().Debug("rendercore: texture released", "label", t.label)
}
