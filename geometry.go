package rendercore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore/internal/layout"
)

// BufferKind selects the role of uploaded geometry data.
type BufferKind uint8

const (
	VertexData BufferKind = iota
	IndexData
)

func (k BufferKind) String() string {
	if k == IndexData {
		return "index"
	}
	return "vertex"
}

// ElementType is the stored type of one attribute component.
type ElementType = layout.ElementType

const (
	Float32 = layout.Float32
	Uint8   = layout.Uint8
	Int8    = layout.Int8
	Uint16  = layout.Uint16
	Int16   = layout.Int16
	Uint32  = layout.Uint32
	Int32   = layout.Int32
)

// IndexType is the width of index buffer elements. The zero value is
// 16-bit.
type IndexType uint8

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// Size returns the element size in bytes.
func (t IndexType) Size() int {
	if t == IndexUint32 {
		return 4
	}
	return 2
}

func (t IndexType) format() gputypes.IndexFormat {
	if t == IndexUint32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

// Topology is the primitive assembly mode of a draw.
type Topology uint8

const (
	Triangles Topology = iota
	TriangleStrip
	Lines
	LineStrip
	Points
)

func (t Topology) primitive() gputypes.PrimitiveTopology {
	switch t {
	case TriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case Lines:
		return gputypes.PrimitiveTopologyLineList
	case LineStrip:
		return gputypes.PrimitiveTopologyLineStrip
	case Points:
		return gputypes.PrimitiveTopologyPointList
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

func (t Topology) strip() bool { return t == TriangleStrip || t == LineStrip }

// Primitive describes one draw. A zero Count draws every vertex (or index)
// from First to the end of the buffer.
type Primitive struct {
	Topology  Topology
	Count     int
	First     int
	Indexed   bool
	IndexType IndexType
}

// Attribute describes how a vertex input is read from the vertex buffer.
// Stride 0 means tightly packed.
type Attribute struct {
	Name       string
	Location   AttributeLocation
	Components int
	Type       ElementType
	Normalized bool
	Stride     int
	Offset     int
}

// BufferHandle identifies an uploaded geometry buffer.
type BufferHandle struct {
	Kind BufferKind
	Size int
	id   uint64
}

// Valid reports whether h refers to an upload.
func (h BufferHandle) Valid() bool { return h.id != 0 }

type geometryBuffer struct {
	buf  hal.Buffer
	size int
	id   uint64
}

// Geometry holds one vertex buffer, an optional index buffer and the
// attribute layout that feeds a program's vertex inputs.
type Geometry struct {
	s       *Session
	label   string
	vertex  *geometryBuffer
	index   *geometryBuffer
	layout  layout.Layout
	enabled map[uint32]bool

	released bool
}

// NewGeometry returns empty geometry. Upload data before describing
// attributes.
func (s *Session) NewGeometry(label string) *Geometry {
	g := &Geometry{s: s, label: label, enabled: make(map[uint32]bool)}
	if s.state != StateReleased {
		s.track(g)
	}
	return g
}

// Upload copies data into a new static device buffer, replacing any
// earlier buffer of the same kind. Buffers are padded to a multiple of
// four bytes for the device copy; the logical size stays len(data).
func (g *Geometry) Upload(kind BufferKind, data []byte) (BufferHandle, error) {
	if g.released {
		return BufferHandle{}, ErrReleased
	}
	if err := g.s.checkAlive("Upload"); err != nil {
		return BufferHandle{}, err
	}
	if len(data) == 0 {
		return BufferHandle{}, fmt.Errorf("rendercore: upload empty %s buffer", kind)
	}
	usage := gputypes.BufferUsageVertex
	if kind == IndexData {
		usage = gputypes.BufferUsageIndex
	}
	padded := data
	if rem := len(data) % 4; rem != 0 {
		padded = make([]byte, len(data)+4-rem)
		copy(padded, data)
	}

	device := g.s.dev.device
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("%s_%s_%s", g.s.opts.label, g.label, kind),
		Size:  uint64(len(padded)),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return BufferHandle{}, fmt.Errorf("rendercore: create %s buffer: %w", kind, err)
	}
	if err := g.s.dev.queue.WriteBuffer(buf, 0, padded); err != nil {
		device.DestroyBuffer(buf)
		return BufferHandle{}, fmt.Errorf("rendercore: write %s buffer: %w", kind, err)
	}

	gb := &geometryBuffer{buf: buf, size: len(data), id: g.s.nextID()}
	slot := &g.vertex
	if kind == IndexData {
		slot = &g.index
	}
	if *slot != nil {
		device.DestroyBuffer((*slot).buf)
	}
	*slot = gb
	Logger().Debug("rendercore: geometry uploaded", "label", g.label, "kind", kind, "bytes", len(data))
	return BufferHandle{Kind: kind, Size: len(data), id: gb.id}, nil
}

// UploadFloat32 uploads little-endian float32 vertex data.
func (g *Geometry) UploadFloat32(v []float32) (BufferHandle, error) {
	b := make([]byte, 0, len(v)*4)
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return g.Upload(VertexData, b)
}

// UploadUint16 uploads 16-bit indices.
func (g *Geometry) UploadUint16(idx []uint16) (BufferHandle, error) {
	b := make([]byte, 0, len(idx)*2)
	for _, i := range idx {
		b = binary.LittleEndian.AppendUint16(b, i)
	}
	return g.Upload(IndexData, b)
}

// UploadUint32 uploads 32-bit indices. Draw them with IndexUint32.
func (g *Geometry) UploadUint32(idx []uint32) (BufferHandle, error) {
	b := make([]byte, 0, len(idx)*4)
	for _, i := range idx {
		b = binary.LittleEndian.AppendUint32(b, i)
	}
	return g.Upload(IndexData, b)
}

// DescribeAttribute records how attr is read from the vertex buffer. It
// requires uploaded vertex data and a resolved location. The attribute
// must fit inside the stride, share the stride of earlier attributes,
// start after them and not overlap them; the spans of all attributes
// must fit in one stride. Describing a location again replaces it.
func (g *Geometry) DescribeAttribute(attr Attribute) error {
	if g.released {
		return ErrReleased
	}
	if err := g.s.checkAlive("DescribeAttribute"); err != nil {
		return err
	}
	if g.vertex == nil {
		return ErrNoVertexBuffer
	}
	if attr.Location < 0 {
		return &AttributeNotFoundError{Name: attr.Name}
	}
	format, err := layout.Format(attr.Components, attr.Type, attr.Normalized)
	if err != nil {
		return err
	}
	return g.layout.Add(layout.Attribute{
		Name:     attr.Name,
		Location: uint32(attr.Location),
		Format:   format,
		Stride:   attr.Stride,
		Offset:   attr.Offset,
	})
}

// Enable marks the attribute at loc as fed from the vertex buffer. Only
// enabled attributes take part in draws. An unresolved location yields an
// *AttributeNotFoundError without a Name; only the location is known here.
func (g *Geometry) Enable(loc AttributeLocation) error {
	if g.released {
		return ErrReleased
	}
	if loc < 0 {
		return &AttributeNotFoundError{}
	}
	g.enabled[uint32(loc)] = true
	return nil
}

// Disable stops feeding the attribute at loc.
func (g *Geometry) Disable(loc AttributeLocation) {
	if loc >= 0 {
		delete(g.enabled, uint32(loc))
	}
}

func (g *Geometry) isEnabled(loc uint32) bool { return g.enabled[loc] }

// Stride returns the vertex stride in bytes, or 0 before any attribute is
// described.
func (g *Geometry) Stride() int { return g.layout.Stride() }

// VertexCount is the number of whole vertices in the vertex buffer: its
// size divided by the stride.
func (g *Geometry) VertexCount() int {
	if g.vertex == nil {
		return 0
	}
	return g.layout.VertexCount(g.vertex.size)
}

// IndexCount is the number of indices of type t in the index buffer.
func (g *Geometry) IndexCount(t IndexType) int {
	if g.index == nil {
		return 0
	}
	return g.index.size / t.Size()
}

// Release destroys the geometry's buffers. Later uploads and draws return
// ErrReleased. It is safe to call more than once.
func (g *Geometry) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if d := g.s.halDevice(); d != nil {
		for _, b := range []*geometryBuffer{g.vertex, g.index} {
			if b != nil {
				d.DestroyBuffer(b.buf)
			}
		}
	}
	g.vertex, g.index = nil, nil
	g.s.forget(g)
}
