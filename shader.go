package rendercore

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore/internal/shader"
)

// ShaderStage identifies a programmable pipeline stage.
type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageFragment
)

func (s ShaderStage) String() string { return s.internal().String() }

func (s ShaderStage) internal() shader.Stage {
	if s == StageFragment {
		return shader.Fragment
	}
	return shader.Vertex
}

// Shader is one compiled WGSL stage. A Shader is owned by the Program it
// is linked into; releasing the program releases it too.
type Shader struct {
	s      *Session
	stage  ShaderStage
	module *shader.Module
	handle hal.ShaderModule
	label  string
}

// Stage returns the shader's stage.
func (sh *Shader) Stage() ShaderStage { return sh.stage }

// EntryPoint returns the name of the stage's entry point.
func (sh *Shader) EntryPoint() string { return sh.module.EntryPoint }

// Warnings returns non-fatal compiler diagnostics.
func (sh *Shader) Warnings() []string { return sh.module.Warnings }

// Release destroys the device shader module. It is safe to call more
// than once.
func (sh *Shader) Release() {
	if sh == nil || sh.handle == nil {
		return
	}
	if d := sh.s.halDevice(); d != nil {
		d.DestroyShaderModule(sh.handle)
	}
	sh.handle = nil
	sh.s.forget(sh)
	Logger().Debug("rendercore: shader released", "label", sh.label)
}

// CompileShader compiles WGSL source for stage. It fails with
// *CompileError when the source does not parse, does not lower, or does
// not declare exactly one entry point for the stage; no shader is
// produced in that case.
func (s *Session) CompileShader(stage ShaderStage, source string) (*Shader, error) {
	if err := s.checkAlive("CompileShader"); err != nil {
		return nil, err
	}
	m, err := shader.Compile(stage.internal(), source)
	if err != nil {
		cerr := &CompileError{Stage: stage, Log: err.Error()}
		var serr *shader.Error
		if errors.As(err, &serr) {
			cerr.Log = serr.Log
		}
		Logger().Warn("rendercore: shader compile failed", "stage", stage, "log", cerr.Log)
		return nil, cerr
	}

	label := fmt.Sprintf("%s_%s_%s", s.opts.label, stage, m.EntryPoint)
	handle, err := s.dev.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		Logger().Warn("rendercore: device rejected shader", "stage", stage, "err", err)
		return nil, &CompileError{Stage: stage, Log: err.Error()}
	}

	sh := &Shader{s: s, stage: stage, module: m, handle: handle, label: label}
	s.track(sh)
	Logger().Debug("rendercore: shader compiled", "label", label, "inputs", len(m.Inputs), "resources", len(m.Resources))
	return sh, nil
}
