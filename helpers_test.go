package rendercore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"
)

const triangleVS = `
@vertex
fn vs_main(@location(0) position: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 0.0, 1.0);
}
`

const triangleFS = `
@group(0) @binding(0) var<uniform> color: vec4<f32>;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return color;
}
`

const coloredVS = `
struct VertexOut {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec3<f32>,
}

@vertex
fn vs_main(@location(0) position: vec2<f32>, @location(1) color: vec3<f32>) -> VertexOut {
    var out: VertexOut;
    out.position = vec4<f32>(position, 0.0, 1.0);
    out.color = color;
    return out;
}
`

const coloredFS = `
@fragment
fn fs_main(@location(0) color: vec3<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(color, 1.0);
}
`

const cubeVS = `
struct Matrices {
    world: mat4x4<f32>,
    view: mat4x4<f32>,
    proj: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> matrices: Matrices;

struct VertexOut {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) uv: vec2<f32>) -> VertexOut {
    var out: VertexOut;
    out.position = matrices.proj * matrices.view * matrices.world * vec4<f32>(position, 1.0);
    out.uv = uv;
    return out;
}
`

const cubeFS = `
@group(0) @binding(1) var cube_texture: texture_2d<f32>;
@group(0) @binding(2) var cube_sampler: sampler;

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(cube_texture, cube_sampler, uv);
}
`

// newTestSession opens a session on the noop backend and releases it when
// the test ends.
func newTestSession(t *testing.T, w, h int, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithBackends(gputypes.BackendEmpty), WithRefreshRate(1000)}, opts...)
	s, err := NewSession(w, h, opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Release)
	return s
}

func configured(t *testing.T, s *Session, ds DrawState) {
	t.Helper()
	if err := s.Configure(ds); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 188, G: 157, B: 63, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// pngFS returns a filesystem holding one w x h PNG at name.
func pngFS(t *testing.T, name string, w, h int) fstest.MapFS {
	t.Helper()
	return fstest.MapFS{name: {Data: pngBytes(t, w, h)}}
}

// runUntilIdle drives the session until no work is left.
func runUntilIdle(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// triangleProgram links the solid color program with its color set.
func triangleProgram(t *testing.T, s *Session) *Program {
	t.Helper()
	p, err := s.NewProgram(triangleVS, triangleFS)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	if err := p.SetUniform4f(p.UniformLocation("color"), 0, 1, 0, 1); err != nil {
		t.Fatalf("SetUniform4f: %v", err)
	}
	return p
}

// triangleGeometry uploads three 2D positions and feeds them to the
// position input of p.
func triangleGeometry(t *testing.T, s *Session, p *Program) *Geometry {
	t.Helper()
	g := s.NewGeometry("triangle")
	if _, err := g.UploadFloat32([]float32{0, 0.5, -0.5, -0.5, 0.5, -0.5}); err != nil {
		t.Fatalf("UploadFloat32: %v", err)
	}
	loc := p.AttributeLocation("position")
	if err := g.DescribeAttribute(Attribute{Name: "position", Location: loc, Components: 2, Type: Float32}); err != nil {
		t.Fatalf("DescribeAttribute: %v", err)
	}
	if err := g.Enable(loc); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return g
}
