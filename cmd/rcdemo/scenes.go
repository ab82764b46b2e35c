package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore"
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

// triangleScene draws one solid green triangle on black.
func triangleScene(_ context.Context, s *rendercore.Session, _ config) error {
	if err := s.Configure(rendercore.DrawState{ClearColor: gputypes.Color{A: 1}}); err != nil {
		return err
	}
	p, err := s.NewProgram(triangleVS, triangleFS)
	if err != nil {
		return err
	}
	if err := p.SetUniform4f(p.UniformLocation("color"), 0, 1, 0, 1); err != nil {
		return err
	}

	g := s.NewGeometry("triangle")
	if _, err := g.UploadFloat32([]float32{0, 0.5, -0.5, -0.5, 0.5, -0.5}); err != nil {
		return err
	}
	pos := p.AttributeLocation("position")
	if err := g.DescribeAttribute(rendercore.Attribute{Name: "position", Location: pos, Components: 2, Type: rendercore.Float32}); err != nil {
		return err
	}
	if err := g.Enable(pos); err != nil {
		return err
	}

	if err := s.Clear(); err != nil {
		return err
	}
	return s.DrawOnce(p, g, rendercore.Primitive{Topology: rendercore.Triangles, Count: 3})
}

// coloredScene draws a triangle with interpolated per-vertex colors.
func coloredScene(_ context.Context, s *rendercore.Session, _ config) error {
	if err := s.Configure(rendercore.DrawState{ClearColor: gputypes.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}}); err != nil {
		return err
	}
	p, err := s.NewProgram(coloredVS, coloredFS)
	if err != nil {
		return err
	}

	g := s.NewGeometry("colored")
	if _, err := g.UploadFloat32([]float32{
		0, 0.5, 1, 0, 0,
		-0.5, -0.5, 0, 1, 0,
		0.5, -0.5, 0, 0, 1,
	}); err != nil {
		return err
	}
	const stride = 5 * 4
	for _, a := range []rendercore.Attribute{
		{Name: "position", Components: 2, Type: rendercore.Float32, Stride: stride},
		{Name: "color", Components: 3, Type: rendercore.Float32, Stride: stride, Offset: 2 * 4},
	} {
		a.Location = p.AttributeLocation(a.Name)
		if err := g.DescribeAttribute(a); err != nil {
			return err
		}
		if err := g.Enable(a.Location); err != nil {
			return err
		}
	}

	if err := s.Clear(); err != nil {
		return err
	}
	return s.DrawOnce(p, g, rendercore.Primitive{})
}

// cubeScene spins a textured cube, one revolution every six seconds, and
// stops after cfg.frames frames.
func cubeScene(ctx context.Context, s *rendercore.Session, cfg config) error {
	err := s.Configure(rendercore.DrawState{
		ClearColor: gputypes.Color{R: 0.75, G: 0.85, B: 0.8, A: 1},
		DepthTest:  true,
		CullFace:   gputypes.CullModeBack,
		FrontFace:  gputypes.FrontFaceCCW,
	})
	if err != nil {
		return err
	}
	p, err := s.NewProgram(cubeVS, cubeFS)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		log.Printf("cube: %v", err)
	}

	vertices, indices := cubeMesh()
	g := s.NewGeometry("cube")
	if _, err := g.UploadFloat32(vertices); err != nil {
		return err
	}
	if _, err := g.UploadUint16(indices); err != nil {
		return err
	}
	const stride = 5 * 4
	for _, a := range []rendercore.Attribute{
		{Name: "position", Components: 3, Type: rendercore.Float32, Stride: stride},
		{Name: "uv", Components: 2, Type: rendercore.Float32, Stride: stride, Offset: 3 * 4},
	} {
		a.Location = p.AttributeLocation(a.Name)
		if err := g.DescribeAttribute(a); err != nil {
			return err
		}
		if err := g.Enable(a.Location); err != nil {
			return err
		}
	}

	tex, err := s.CreatePlaceholder(1, 1, rendercore.RGBA8, color.NRGBA{R: 188, G: 157, B: 63, A: 255})
	if err != nil {
		return err
	}
	if err := p.SetTexture(p.UniformLocation("cube_texture"), tex); err != nil {
		return err
	}
	w, h := s.Size()
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, -8}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := depthZeroToOne.Mul4(mgl32.Perspective(mgl32.DegToRad(45), float32(w)/float32(h), 0.1, 1000))
	if err := p.SetUniformMatrix4fv(p.UniformLocation("view"), view); err != nil {
		return err
	}
	if err := p.SetUniformMatrix4fv(p.UniformLocation("proj"), proj); err != nil {
		return err
	}

	world := p.UniformLocation("world")
	prim := rendercore.Primitive{Topology: rendercore.Triangles, Indexed: true}
	draw := func(f *rendercore.Frame) {
		angle := float32(f.Elapsed.Seconds() / (6 * time.Second).Seconds() * 2 * math.Pi)
		m := mgl32.HomogRotate3DY(angle).Mul4(mgl32.HomogRotate3DX(angle / 4))
		if err := p.SetUniformMatrix4fv(world, m); err != nil {
			log.Printf("cube: %v", err)
		}
		if f.Clear() != nil || f.Draw(p, g, prim) != nil {
			return
		}
		if int(f.Index)+1 >= cfg.frames {
			f.Session().Stop()
		}
	}

	// With a texture file the loop starts once the load settles; until
	// then, or if it fails, the placeholder texel is sampled.
	if cfg.texture == "" {
		err = s.StartLoop(draw)
	} else {
		tex.OnLoaded(func(t *rendercore.Texture2D, img *image.NRGBA) error {
			if err := t.Upload(img, rendercore.Sampling{}); err != nil {
				return err
			}
			return s.StartLoop(draw)
		})
		tex.OnFailed(func(_ *rendercore.Texture2D, err error) {
			log.Printf("cube: %v", err)
			if err := s.StartLoop(draw); err != nil {
				log.Printf("cube: %v", err)
			}
		})
		err = tex.RequestLoad(cfg.texture)
	}
	if err != nil {
		return err
	}
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("render loop: %w", err)
	}
	return nil
}

// depthZeroToOne remaps OpenGL clip depth [-1, 1] to WebGPU's [0, 1].
var depthZeroToOne = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// cubeMesh returns 24 vertices (position, uv) and 36 indices of a 2x2x2
// cube with counter-clockwise faces seen from outside.
func cubeMesh() ([]float32, []uint16) {
	faces := [6][4][3]float32{
		{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}},
		{{1, -1, -1}, {-1, -1, -1}, {-1, 1, -1}, {1, 1, -1}},
		{{-1, -1, -1}, {-1, -1, 1}, {-1, 1, 1}, {-1, 1, -1}},
		{{1, -1, 1}, {1, -1, -1}, {1, 1, -1}, {1, 1, 1}},
		{{-1, 1, 1}, {1, 1, 1}, {1, 1, -1}, {-1, 1, -1}},
		{{-1, -1, -1}, {1, -1, -1}, {1, -1, 1}, {-1, -1, 1}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	vertices := make([]float32, 0, 24*5)
	indices := make([]uint16, 0, 36)
	for f, face := range faces {
		for i, c := range face {
			vertices = append(vertices, c[0], c[1], c[2], uvs[i][0], uvs[i][1])
		}
		base := uint16(f * 4)
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}
