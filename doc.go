// Package rendercore is a minimal immediate-mode rendering core for Go.
//
// # Overview
//
// rendercore compiles WGSL shader programs, uploads vertex and index data
// and textures, and draws either once or from a per-frame callback. It
// runs on the GoGPU Pure Go WebGPU stack: devices come from gogpu/wgpu's
// HAL backends and shaders are compiled and reflected with gogpu/naga.
//
// # Quick Start
//
//	import "github.com/gogpu/rendercore"
//
//	s, err := rendercore.NewSession(800, 600)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Release()
//
//	prog, err := s.NewProgram(vertexWGSL, fragmentWGSL)
//	if err != nil {
//	    log.Fatal(err) // *CompileError or *LinkError with a log
//	}
//	prog.SetUniform4f(prog.UniformLocation("color"), 0, 1, 0, 1)
//
//	geo := s.NewGeometry("triangle")
//	geo.UploadFloat32([]float32{0, 0.5, -0.5, -0.5, 0.5, -0.5})
//	pos := prog.AttributeLocation("position")
//	geo.DescribeAttribute(rendercore.Attribute{Name: "position", Location: pos, Components: 2, Type: rendercore.Float32})
//	geo.Enable(pos)
//
//	s.Configure(rendercore.DrawState{ClearColor: gputypes.Color{A: 1}})
//	s.Clear()
//	s.DrawOnce(prog, geo, rendercore.Primitive{Topology: rendercore.Triangles})
//
// # Backends
//
// Link the backends to try, usually with
//
//	import _ "github.com/gogpu/wgpu/hal/allbackends"
//
// NewSession walks Vulkan, Metal, DX12, GL and finally the software
// backend, logging every backend that fails. Tests link
// github.com/gogpu/wgpu/hal/noop instead and select it with
// WithBackends(gputypes.BackendEmpty).
//
// # Threading
//
// A Session and everything it creates belong to the goroutine that drives
// Session.Run or Session.Pump. Texture decoding runs on worker goroutines;
// its completion, and every frame callback, runs on the owning goroutine.
// Session.Post hands work to it from anywhere.
//
// # Coordinate System
//
// Clip space follows WebGPU: x and y in [-1, 1] with y up, depth in
// [0, 1]. Texture coordinates have their origin at the top-left.
package rendercore

// Version is the current version of the library.
const Version = "0.1.0"
