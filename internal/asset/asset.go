// Package asset resolves texture sources and decodes them into
// non-premultiplied RGBA pixels.
package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"

	// Decoders register with the image package.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"
)

// ErrNoSource is returned when a loader has nowhere to open assets from.
var ErrNoSource = errors.New("asset: no source configured")

// Source opens named assets.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, name string) (io.ReadCloser, error)

// Open calls f.
func (f SourceFunc) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return f(ctx, name)
}

type fsSource struct{ fsys fs.FS }

func (s fsSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fsys.Open(name)
}

// FS returns a Source reading from fsys.
func FS(fsys fs.FS) Source { return fsSource{fsys: fsys} }

// Dir returns a Source reading files below dir.
func Dir(dir string) Source { return FS(os.DirFS(dir)) }

// Files returns a Source that opens names as host file paths, relative to
// the working directory unless absolute.
func Files() Source {
	return SourceFunc(func(ctx context.Context, name string) (io.ReadCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.Open(name)
	})
}

// Loader decodes assets, sharing the work between concurrent requests for
// the same name.
type Loader struct {
	src     Source
	maxSize int
	group   singleflight.Group
}

// NewLoader returns a loader reading from src. Images larger than maxSize
// on either side are scaled down to fit; zero disables scaling.
func NewLoader(src Source, maxSize int) *Loader {
	return &Loader{src: src, maxSize: maxSize}
}

// Image is a decoded asset.
type Image struct {
	Pixels *image.NRGBA
	Format string
	// Scaled is set when the source exceeded the loader's size limit.
	Scaled bool
}

// Load opens and decodes name. Concurrent calls for the same name share
// one decode and receive the same Image; callers must not modify it.
func (l *Loader) Load(ctx context.Context, name string) (*Image, error) {
	if l == nil || l.src == nil {
		return nil, ErrNoSource
	}
	v, err, shared := l.group.Do(name, func() (any, error) {
		return l.load(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slogger().Debug("asset: shared decode", "name", name)
	}
	return v.(*Image), nil
}

func (l *Loader) load(ctx context.Context, name string) (*Image, error) {
	rc, err := l.src.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("asset: open %q: %w", name, err)
	}
	defer rc.Close()

	img, err := Decode(rc, l.maxSize)
	if err != nil {
		return nil, fmt.Errorf("asset: %q: %w", name, err)
	}
	b := img.Pixels.Bounds()
	slogger().Debug("asset: decoded", "name", name, "format", img.Format,
		"width", b.Dx(), "height", b.Dy(), "scaled", img.Scaled)
	return img, nil
}

// Decode decodes any registered image format and converts it to NRGBA
// with its origin at (0, 0).
func Decode(r io.Reader, maxSize int) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode: empty %s image", format)
	}

	out := &Image{Format: format}
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		w, h = fit(w, h, maxSize)
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		out.Pixels = dst
		out.Scaled = true
		return out, nil
	}

	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		out.Pixels = n
		return out, nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	out.Pixels = dst
	return out, nil
}

// fit scales w x h down so the longer side equals limit.
func fit(w, h, limit int) (int, int) {
	if w >= h {
		nh := h * limit / w
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := w * limit / h
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}
