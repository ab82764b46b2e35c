package layout

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func attr(t *testing.T, name string, loc uint32, comps int, typ ElementType, stride, offset int) Attribute {
	t.Helper()
	f, err := Format(comps, typ, false)
	if err != nil {
		t.Fatalf("Format(%d, %v) failed: %v", comps, typ, err)
	}
	return Attribute{Name: name, Location: loc, Format: f, Stride: stride, Offset: offset}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		comps      int
		typ        ElementType
		normalized bool
		want       gputypes.VertexFormat
	}{
		{2, Float32, false, gputypes.VertexFormatFloat32x2},
		{3, Float32, true, gputypes.VertexFormatFloat32x3},
		{4, Uint8, true, gputypes.VertexFormatUnorm8x4},
		{2, Int16, true, gputypes.VertexFormatSnorm16x2},
		{1, Uint32, false, gputypes.VertexFormatUint32},
	}
	for _, tt := range tests {
		got, err := Format(tt.comps, tt.typ, tt.normalized)
		if err != nil {
			t.Errorf("Format(%d, %v, %t) error: %v", tt.comps, tt.typ, tt.normalized, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Format(%d, %v, %t) = %v, want %v", tt.comps, tt.typ, tt.normalized, got, tt.want)
		}
	}
}

func TestFormat_Unsupported(t *testing.T) {
	for _, tc := range []struct {
		comps int
		typ   ElementType
	}{
		{3, Uint8},
		{5, Float32},
		{0, Float32},
		{1, Int16},
	} {
		if _, err := Format(tc.comps, tc.typ, false); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Format(%d, %v) error = %v, want ErrUnsupportedFormat", tc.comps, tc.typ, err)
		}
	}
}

func TestLayout_Interleaved(t *testing.T) {
	var l Layout
	if err := l.Add(attr(t, "position", 0, 2, Float32, 20, 0)); err != nil {
		t.Fatalf("add position: %v", err)
	}
	if err := l.Add(attr(t, "color", 1, 3, Float32, 20, 8)); err != nil {
		t.Fatalf("add color: %v", err)
	}
	if l.Stride() != 20 {
		t.Errorf("Stride = %d, want 20", l.Stride())
	}
	if got := l.VertexCount(60); got != 3 {
		t.Errorf("VertexCount(60) = %d, want 3", got)
	}
}

func TestLayout_TightlyPacked(t *testing.T) {
	var l Layout
	if err := l.Add(attr(t, "position", 0, 2, Float32, 0, 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if l.Stride() != 8 {
		t.Errorf("Stride = %d, want 8", l.Stride())
	}
	// Three 2D vertices.
	if got := l.VertexCount(24); got != 3 {
		t.Errorf("VertexCount(24) = %d, want 3", got)
	}
}

func TestLayout_TightlyPackedInterleaved(t *testing.T) {
	var l Layout
	if err := l.Add(attr(t, "position", 0, 2, Float32, 0, 0)); err != nil {
		t.Fatalf("add position: %v", err)
	}
	if err := l.Add(attr(t, "color", 1, 3, Float32, 0, 8)); err != nil {
		t.Fatalf("add color: %v", err)
	}
	if l.Stride() != 20 {
		t.Errorf("Stride = %d, want 20", l.Stride())
	}
	for _, a := range l.Attributes() {
		if a.Stride != 20 {
			t.Errorf("%s stride = %d, want 20", a.Name, a.Stride)
		}
	}
	if got := l.BufferLayout(func(uint32) bool { return true }).ArrayStride; got != 20 {
		t.Errorf("ArrayStride = %d, want 20", got)
	}

	// An explicit stride fixes the layout; zero-stride attributes adopt it.
	var e Layout
	if err := e.Add(attr(t, "position", 0, 2, Float32, 32, 0)); err != nil {
		t.Fatal(err)
	}
	if err := e.Add(attr(t, "color", 1, 3, Float32, 0, 8)); err != nil {
		t.Fatalf("add color: %v", err)
	}
	if e.Stride() != 32 {
		t.Errorf("Stride = %d, want 32", e.Stride())
	}
}

func TestLayout_VertexCountDividesEvenly(t *testing.T) {
	for _, stride := range []int{8, 12, 20, 32} {
		var l Layout
		if err := l.Add(attr(t, "p", 0, 2, Float32, stride, 0)); err != nil {
			t.Fatalf("stride %d: %v", stride, err)
		}
		for n := 0; n <= 10; n++ {
			if got := l.VertexCount(n * stride); got != n {
				t.Errorf("stride %d: VertexCount(%d) = %d, want %d", stride, n*stride, got, n)
			}
		}
	}
}

func TestLayout_Invariants(t *testing.T) {
	tests := []struct {
		name  string
		attrs func(t *testing.T) []Attribute
	}{
		{"past stride", func(t *testing.T) []Attribute {
			return []Attribute{attr(t, "p", 0, 3, Float32, 8, 0)}
		}},
		{"overlap", func(t *testing.T) []Attribute {
			return []Attribute{attr(t, "p", 0, 2, Float32, 20, 0), attr(t, "c", 1, 3, Float32, 20, 4)}
		}},
		{"stride mismatch", func(t *testing.T) []Attribute {
			return []Attribute{attr(t, "p", 0, 2, Float32, 20, 0), attr(t, "c", 1, 2, Float32, 24, 8)}
		}},
		{"offset order", func(t *testing.T) []Attribute {
			return []Attribute{attr(t, "c", 1, 2, Float32, 20, 12), attr(t, "p", 0, 2, Float32, 20, 0)}
		}},
		{"negative offset", func(t *testing.T) []Attribute {
			return []Attribute{attr(t, "p", 0, 2, Float32, 20, -4)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Layout
			var err error
			for _, a := range tt.attrs(t) {
				if err = l.Add(a); err != nil {
					break
				}
			}
			if !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("error = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestLayout_Redescribe(t *testing.T) {
	var l Layout
	if err := l.Add(attr(t, "p", 0, 2, Float32, 20, 0)); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(attr(t, "c", 1, 3, Float32, 20, 8)); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(attr(t, "p", 0, 2, Float32, 20, 0)); err != nil {
		t.Fatalf("redescribing a location: %v", err)
	}
	if n := len(l.Attributes()); n != 2 {
		t.Errorf("len(Attributes) = %d, want 2", n)
	}
}

func TestLayout_BufferLayoutEnabledOnly(t *testing.T) {
	var l Layout
	if err := l.Add(attr(t, "position", 0, 3, Float32, 20, 0)); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(attr(t, "uv", 1, 2, Float32, 20, 12)); err != nil {
		t.Fatal(err)
	}
	onlyZero := func(loc uint32) bool { return loc == 0 }
	bl := l.BufferLayout(onlyZero)
	if bl.ArrayStride != 20 {
		t.Errorf("ArrayStride = %d, want 20", bl.ArrayStride)
	}
	if len(bl.Attributes) != 1 || bl.Attributes[0].ShaderLocation != 0 {
		t.Errorf("Attributes = %+v, want only location 0", bl.Attributes)
	}
	all := func(uint32) bool { return true }
	if l.Signature(onlyZero) == l.Signature(all) {
		t.Error("signature does not depend on enabled set")
	}
}
