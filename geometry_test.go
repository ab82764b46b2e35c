package rendercore

import (
	"errors"
	"strings"
	"testing"
)

func TestDescribeAttributeErrors(t *testing.T) {
	s := newTestSession(t, 8, 8)
	p, err := s.NewProgram(coloredVS, coloredFS)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	pos := p.AttributeLocation("position")

	g := s.NewGeometry("colored")
	if err := g.DescribeAttribute(Attribute{Name: "position", Location: pos, Components: 2, Type: Float32}); !errors.Is(err, ErrNoVertexBuffer) {
		t.Errorf("describe before upload = %v, want ErrNoVertexBuffer", err)
	}
	if _, err := g.UploadFloat32(make([]float32, 15)); err != nil {
		t.Fatalf("UploadFloat32: %v", err)
	}

	tests := []struct {
		name string
		attr Attribute
		want error
	}{
		{"unresolved location", Attribute{Name: "normal", Location: AttributeNotFound, Components: 3, Type: Float32}, nil},
		{"no format", Attribute{Name: "color", Location: 1, Components: 3, Type: Uint8}, ErrUnsupportedFormat},
		{"five components", Attribute{Name: "color", Location: 1, Components: 5, Type: Float32}, ErrUnsupportedFormat},
		{"past stride", Attribute{Name: "position", Location: pos, Components: 2, Type: Float32, Stride: 8, Offset: 4}, ErrInvalidLayout},
		{"negative offset", Attribute{Name: "position", Location: pos, Components: 2, Type: Float32, Offset: -4}, ErrInvalidLayout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.DescribeAttribute(tt.attr)
			if tt.want == nil {
				var nf *AttributeNotFoundError
				if !errors.As(err, &nf) || nf.Name != tt.attr.Name {
					t.Errorf("error = %v, want *AttributeNotFoundError for %q", err, tt.attr.Name)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInterleavedLayout(t *testing.T) {
	s := newTestSession(t, 8, 8)
	configured(t, s, DrawState{})
	p, err := s.NewProgram(coloredVS, coloredFS)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	g := s.NewGeometry("colored")
	h, err := g.UploadFloat32([]float32{
		0, 0.5, 1, 0, 0,
		-0.5, -0.5, 0, 1, 0,
		0.5, -0.5, 0, 0, 1,
	})
	if err != nil {
		t.Fatalf("UploadFloat32: %v", err)
	}
	if !h.Valid() || h.Kind != VertexData || h.Size != 60 {
		t.Errorf("handle = %+v, want valid 60 byte vertex buffer", h)
	}

	pos, col := p.AttributeLocation("position"), p.AttributeLocation("color")
	attrs := []Attribute{
		{Name: "position", Location: pos, Components: 2, Type: Float32, Stride: 20},
		{Name: "color", Location: col, Components: 3, Type: Float32, Stride: 20, Offset: 8},
	}
	for _, a := range attrs {
		if err := g.DescribeAttribute(a); err != nil {
			t.Fatalf("DescribeAttribute(%s): %v", a.Name, err)
		}
		if err := g.Enable(a.Location); err != nil {
			t.Fatalf("Enable(%s): %v", a.Name, err)
		}
	}
	if g.Stride() != 20 {
		t.Errorf("Stride = %d, want 20", g.Stride())
	}
	if g.VertexCount() != 3 {
		t.Errorf("VertexCount = %d, want 3", g.VertexCount())
	}

	overlap := Attribute{Name: "color", Location: col, Components: 3, Type: Float32, Stride: 20, Offset: 4}
	if err := g.DescribeAttribute(overlap); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("overlapping attribute = %v, want ErrInvalidLayout", err)
	}
	mismatched := Attribute{Name: "color", Location: col, Components: 3, Type: Float32, Stride: 24, Offset: 8}
	if err := g.DescribeAttribute(mismatched); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("mismatched stride = %v, want ErrInvalidLayout", err)
	}

	if err := s.DrawOnce(p, g, Primitive{Topology: Triangles}); err != nil {
		t.Fatalf("DrawOnce: %v", err)
	}
	if got := s.Stats().LastDraw.VertexCount; got != 3 {
		t.Errorf("VertexCount = %d, want 3", got)
	}
}

func TestIndexedDraw(t *testing.T) {
	s := newTestSession(t, 8, 8)
	configured(t, s, DrawState{})
	p := triangleProgram(t, s)
	g := s.NewGeometry("quad")
	if _, err := g.UploadFloat32([]float32{-1, -1, 1, -1, 1, 1, -1, 1}); err != nil {
		t.Fatal(err)
	}
	loc := p.AttributeLocation("position")
	if err := g.DescribeAttribute(Attribute{Name: "position", Location: loc, Components: 2, Type: Float32}); err != nil {
		t.Fatal(err)
	}
	if err := g.Enable(loc); err != nil {
		t.Fatal(err)
	}

	if err := s.DrawOnce(p, g, Primitive{Indexed: true}); !errors.Is(err, ErrNoIndexBuffer) {
		t.Errorf("indexed draw without indices = %v, want ErrNoIndexBuffer", err)
	}
	if _, err := g.UploadUint16([]uint16{0, 1, 2, 0, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if g.IndexCount(IndexUint16) != 6 {
		t.Errorf("IndexCount = %d, want 6", g.IndexCount(IndexUint16))
	}
	if err := s.DrawOnce(p, g, Primitive{Indexed: true}); err != nil {
		t.Fatalf("DrawOnce: %v", err)
	}
	rec := s.Stats().LastDraw
	if !rec.Indexed || rec.IndexCount != 6 || rec.VertexCount != 4 {
		t.Errorf("LastDraw = %+v, want 6 indices over 4 vertices", rec)
	}
}

func TestUint16UploadPadding(t *testing.T) {
	s := newTestSession(t, 8, 8)
	g := s.NewGeometry("odd")
	h, err := g.UploadUint16([]uint16{0, 1, 2})
	if err != nil {
		t.Fatalf("UploadUint16: %v", err)
	}
	if h.Size != 6 {
		t.Errorf("Size = %d, want 6", h.Size)
	}
	if g.IndexCount(IndexUint16) != 3 {
		t.Errorf("IndexCount = %d, want 3", g.IndexCount(IndexUint16))
	}
	if _, err := g.Upload(IndexData, nil); err == nil {
		t.Error("empty upload succeeded")
	}
}

func TestDrawWithoutVertexData(t *testing.T) {
	s := newTestSession(t, 8, 8)
	configured(t, s, DrawState{})
	p := triangleProgram(t, s)
	g := s.NewGeometry("empty")
	if err := s.DrawOnce(p, g, Primitive{Count: 3}); !errors.Is(err, ErrNoVertexBuffer) {
		t.Errorf("error = %v, want ErrNoVertexBuffer", err)
	}
	if s.State() != StateConfigured {
		t.Errorf("State = %v, want configured after failed draw", s.State())
	}
}

func TestEmptyDraw(t *testing.T) {
	s := newTestSession(t, 8, 8)
	configured(t, s, DrawState{})
	p := triangleProgram(t, s)
	g := triangleGeometry(t, s, p)
	if err := s.DrawOnce(p, g, Primitive{First: 3}); !errors.Is(err, ErrEmptyDraw) {
		t.Errorf("error = %v, want ErrEmptyDraw", err)
	}
}

func TestStrictLayout(t *testing.T) {
	s := newTestSession(t, 8, 8, WithStrictLayout())
	configured(t, s, DrawState{})
	p := triangleProgram(t, s)
	g := triangleGeometry(t, s, p)

	tests := []struct {
		name string
		prim Primitive
	}{
		{"past end", Primitive{Count: 4}},
		{"offset past end", Primitive{First: 2, Count: 2}},
		{"negative first", Primitive{First: -1, Count: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.DrawOnce(p, g, tt.prim); !errors.Is(err, ErrDrawRange) {
				t.Errorf("error = %v, want ErrDrawRange", err)
			}
		})
	}

	g.Disable(p.AttributeLocation("position"))
	if err := s.DrawOnce(p, g, Primitive{Count: 3}); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("disabled attribute = %v, want ErrInvalidLayout", err)
	}
	if s.Stats().DrawCalls != 0 {
		t.Errorf("DrawCalls = %d, want 0", s.Stats().DrawCalls)
	}
}

func TestEnableNotFound(t *testing.T) {
	s := newTestSession(t, 8, 8)
	g := s.NewGeometry("g")
	var nf *AttributeNotFoundError
	if err := g.Enable(AttributeNotFound); !errors.As(err, &nf) {
		t.Fatalf("Enable(AttributeNotFound) = %v, want *AttributeNotFoundError", err)
	}
	if nf.Name != "" || !strings.Contains(nf.Error(), "AttributeNotFound") {
		t.Errorf("error = %q (Name %q), want the location reported without a name", nf.Error(), nf.Name)
	}
}

func TestGeometryRelease(t *testing.T) {
	s := newTestSession(t, 8, 8)
	g := s.NewGeometry("g")
	if _, err := g.UploadFloat32([]float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	g.Release()
	g.Release()
	if g.VertexCount() != 0 {
		t.Errorf("VertexCount after Release = %d, want 0", g.VertexCount())
	}
	if len(s.resources) != 0 {
		t.Errorf("tracked resources = %d, want 0", len(s.resources))
	}

	if _, err := g.UploadFloat32([]float32{1, 2}); !errors.Is(err, ErrReleased) {
		t.Errorf("Upload after Release = %v, want ErrReleased", err)
	}
	if g.vertex != nil {
		t.Error("Upload after Release created an untracked buffer")
	}
	if err := g.DescribeAttribute(Attribute{Name: "p", Location: 0, Components: 2, Type: Float32}); !errors.Is(err, ErrReleased) {
		t.Errorf("DescribeAttribute after Release = %v, want ErrReleased", err)
	}
	if err := g.Enable(0); !errors.Is(err, ErrReleased) {
		t.Errorf("Enable after Release = %v, want ErrReleased", err)
	}

	p := triangleProgram(t, s)
	if err := s.draw(p, g, Primitive{Count: 3}); !errors.Is(err, ErrReleased) {
		t.Errorf("draw with released geometry = %v, want ErrReleased", err)
	}
}
