// Package layout validates interleaved vertex attribute layouts and maps
// them onto WebGPU vertex formats.
package layout

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// ElementType is the scalar type of one attribute component as stored in
// the vertex buffer.
type ElementType uint8

const (
	Float32 ElementType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
)

// Size returns the component size in bytes.
func (e ElementType) Size() int {
	switch e {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Float32, Uint32, Int32:
		return 4
	default:
		return 0
	}
}

func (e ElementType) String() string {
	switch e {
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(e))
	}
}

var (
	// ErrUnsupportedFormat means the component count, element type and
	// normalization cannot be expressed as a vertex format.
	ErrUnsupportedFormat = errors.New("layout: unsupported vertex format")

	// ErrInvalidLayout reports a layout that breaks the stride or offset
	// invariants.
	ErrInvalidLayout = errors.New("layout: invalid attribute layout")
)

type formatKey struct {
	typ        ElementType
	components int
	normalized bool
}

var formats = map[formatKey]gputypes.VertexFormat{
	{Float32, 1, false}: gputypes.VertexFormatFloat32,
	{Float32, 2, false}: gputypes.VertexFormatFloat32x2,
	{Float32, 3, false}: gputypes.VertexFormatFloat32x3,
	{Float32, 4, false}: gputypes.VertexFormatFloat32x4,
	{Uint32, 1, false}:  gputypes.VertexFormatUint32,
	{Uint32, 2, false}:  gputypes.VertexFormatUint32x2,
	{Uint32, 3, false}:  gputypes.VertexFormatUint32x3,
	{Uint32, 4, false}:  gputypes.VertexFormatUint32x4,
	{Int32, 1, false}:   gputypes.VertexFormatSint32,
	{Int32, 2, false}:   gputypes.VertexFormatSint32x2,
	{Int32, 3, false}:   gputypes.VertexFormatSint32x3,
	{Int32, 4, false}:   gputypes.VertexFormatSint32x4,
	{Uint8, 2, false}:   gputypes.VertexFormatUint8x2,
	{Uint8, 4, false}:   gputypes.VertexFormatUint8x4,
	{Uint8, 2, true}:    gputypes.VertexFormatUnorm8x2,
	{Uint8, 4, true}:    gputypes.VertexFormatUnorm8x4,
	{Int8, 2, false}:    gputypes.VertexFormatSint8x2,
	{Int8, 4, false}:    gputypes.VertexFormatSint8x4,
	{Int8, 2, true}:     gputypes.VertexFormatSnorm8x2,
	{Int8, 4, true}:     gputypes.VertexFormatSnorm8x4,
	{Uint16, 2, false}:  gputypes.VertexFormatUint16x2,
	{Uint16, 4, false}:  gputypes.VertexFormatUint16x4,
	{Uint16, 2, true}:   gputypes.VertexFormatUnorm16x2,
	{Uint16, 4, true}:   gputypes.VertexFormatUnorm16x4,
	{Int16, 2, false}:   gputypes.VertexFormatSint16x2,
	{Int16, 4, false}:   gputypes.VertexFormatSint16x4,
	{Int16, 2, true}:    gputypes.VertexFormatSnorm16x2,
	{Int16, 4, true}:    gputypes.VertexFormatSnorm16x4,
}

// Format maps a component description to a vertex format. Float32 data is
// never normalized; the flag is ignored for it, as in GL.
func Format(components int, typ ElementType, normalized bool) (gputypes.VertexFormat, error) {
	if typ == Float32 {
		normalized = false
	}
	f, ok := formats[formatKey{typ, components, normalized}]
	if !ok {
		return gputypes.VertexFormatUndefined, fmt.Errorf("%w: %d x %s (normalized=%t)", ErrUnsupportedFormat, components, typ, normalized)
	}
	return f, nil
}

// Attribute is one described vertex attribute.
type Attribute struct {
	Name     string
	Location uint32
	Format   gputypes.VertexFormat
	Stride   int
	Offset   int
}

// Span is the number of bytes the attribute occupies inside one vertex.
func (a Attribute) Span() int { return int(a.Format.Size()) }

// Layout is the ordered attribute list of one vertex buffer.
type Layout struct {
	attrs  []Attribute
	stride int
	packed bool
}

// Stride returns the shared vertex stride, or 0 if nothing is described.
func (l *Layout) Stride() int { return l.stride }

// Attributes returns the described attributes in declaration order.
func (l *Layout) Attributes() []Attribute { return l.attrs }

// Add validates a and appends it. A zero stride means tightly packed: while
// every attribute leaves the stride at zero, the stride is the end of the
// furthest attribute and grows as attributes are added. Once an explicit
// stride is set, later zero-stride attributes adopt it. Redescribing a location replaces the earlier entry, which
// is then revalidated against the rest.
func (l *Layout) Add(a Attribute) error {
	if a.Offset < 0 || a.Stride < 0 {
		return fmt.Errorf("%w: %q: negative offset or stride", ErrInvalidLayout, a.Name)
	}
	span := a.Span()
	if span == 0 {
		return fmt.Errorf("%w: %q: undefined format", ErrInvalidLayout, a.Name)
	}

	rest := make([]Attribute, 0, len(l.attrs))
	for _, prev := range l.attrs {
		if prev.Location != a.Location {
			rest = append(rest, prev)
		}
	}

	stride, packed := a.Stride, false
	if stride == 0 {
		stride = l.stride
		if len(rest) == 0 || l.packed || stride == 0 {
			packed = true
			stride = a.Offset + span
			for i := range rest {
				stride = max(stride, rest[i].Offset+rest[i].Span())
			}
			for i := range rest {
				rest[i].Stride = stride
			}
		}
	}
	a.Stride = stride

	if a.Offset+span > stride {
		return fmt.Errorf("%w: %q spans bytes [%d,%d) past stride %d", ErrInvalidLayout, a.Name, a.Offset, a.Offset+span, stride)
	}

	total := span
	for _, prev := range rest {
		if prev.Stride != stride {
			return fmt.Errorf("%w: %q stride %d differs from %q stride %d", ErrInvalidLayout, a.Name, stride, prev.Name, prev.Stride)
		}
		if a.Offset < prev.Offset+prev.Span() && prev.Offset < a.Offset+span {
			return fmt.Errorf("%w: %q bytes [%d,%d) overlap %q bytes [%d,%d)", ErrInvalidLayout,
				a.Name, a.Offset, a.Offset+span, prev.Name, prev.Offset, prev.Offset+prev.Span())
		}
		total += prev.Span()
	}
	if total > stride {
		return fmt.Errorf("%w: attribute spans total %d bytes, more than stride %d", ErrInvalidLayout, total, stride)
	}
	replacing := len(rest) != len(l.attrs)
	if n := len(rest); n > 0 && !replacing && a.Offset < rest[n-1].Offset {
		return fmt.Errorf("%w: %q offset %d precedes %q offset %d", ErrInvalidLayout, a.Name, a.Offset, rest[n-1].Name, rest[n-1].Offset)
	}

	l.attrs = append(rest, a)
	l.stride = stride
	l.packed = packed
	return nil
}

// Lookup returns the attribute described at location.
func (l *Layout) Lookup(location uint32) (Attribute, bool) {
	for _, a := range l.attrs {
		if a.Location == location {
			return a, true
		}
	}
	return Attribute{}, false
}

// VertexCount is the number of whole vertices in n bytes.
func (l *Layout) VertexCount(n int) int {
	if l.stride <= 0 || n <= 0 {
		return 0
	}
	return n / l.stride
}

// BufferLayout builds the pipeline vertex buffer layout from the attributes
// whose locations are in enabled.
func (l *Layout) BufferLayout(enabled func(uint32) bool) gputypes.VertexBufferLayout {
	out := gputypes.VertexBufferLayout{
		ArrayStride: uint64(l.stride),
		StepMode:    gputypes.VertexStepModeVertex,
	}
	for _, a := range l.attrs {
		if !enabled(a.Location) {
			continue
		}
		out.Attributes = append(out.Attributes, gputypes.VertexAttribute{
			Format:         a.Format,
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}
	return out
}

// Signature is a stable string identifying the enabled layout; pipelines
// are cached by it.
func (l *Layout) Signature(enabled func(uint32) bool) string {
	sig := fmt.Sprintf("s%d", l.stride)
	for _, a := range l.attrs {
		if enabled(a.Location) {
			sig += fmt.Sprintf(":%d/%d@%d", a.Location, a.Format, a.Offset)
		}
	}
	return sig
}
