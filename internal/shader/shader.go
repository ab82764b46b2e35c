// Package shader compiles WGSL stages with naga and reflects the parts of
// the resulting IR that a program needs: vertex inputs, inter-stage
// varyings and resource bindings.
package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/wgsl"
)

// Stage identifies a programmable pipeline stage.
type Stage uint8

const (
	Vertex Stage = iota
	Fragment
)

func (s Stage) String() string {
	switch s {
	case Vertex:
		return "vertex"
	case Fragment:
		return "fragment"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

func (s Stage) irStage() ir.ShaderStage {
	if s == Fragment {
		return ir.StageFragment
	}
	return ir.StageVertex
}

// Error carries a diagnostic log produced while compiling or linking.
// The log is never empty.
type Error struct {
	Log string
}

func (e *Error) Error() string { return e.Log }

func newError(format string, args ...any) *Error {
	return &Error{Log: fmt.Sprintf(format, args...)}
}

// Module is one compiled stage.
type Module struct {
	Stage      Stage
	EntryPoint string
	Source     string
	IR         *ir.Module

	// Warnings are lowering diagnostics that did not prevent compilation.
	Warnings []string

	// Inputs are the stage's @location inputs. For the vertex stage these
	// are the vertex attributes.
	Inputs []Varying

	// Outputs are the stage's @location outputs.
	Outputs []Varying

	// Resources are module-scope globals with @group/@binding.
	Resources []Resource
}

// Compile parses and lowers WGSL source and checks that it declares exactly
// one entry point for stage. Failures are returned as *Error.
func Compile(stage Stage, source string) (*Module, error) {
	if strings.TrimSpace(source) == "" {
		return nil, newError("%s shader: empty source", stage)
	}

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, &Error{Log: formatParseError(err)}
	}

	lowered, err := wgsl.LowerWithWarnings(ast, source)
	if err != nil {
		return nil, newError("%v", err)
	}
	module := lowered.Module

	var entry *ir.EntryPoint
	for i := range module.EntryPoints {
		ep := &module.EntryPoints[i]
		if ep.Stage != stage.irStage() {
			continue
		}
		if entry != nil {
			return nil, newError("%s shader: multiple %s entry points (%s, %s)", stage, stage, entry.Name, ep.Name)
		}
		entry = ep
	}
	if entry == nil {
		return nil, newError("%s shader: no @%s entry point", stage, stage)
	}

	m := &Module{
		Stage:      stage,
		EntryPoint: entry.Name,
		Source:     source,
		IR:         module,
	}
	for _, w := range lowered.Warnings {
		m.Warnings = append(m.Warnings, fmt.Sprintf("%d:%d: %s", w.Span.Start.Line, w.Span.Start.Column, w.Message))
	}

	m.Inputs = entryInputs(module, entry)
	m.Outputs = entryOutputs(module, entry)
	m.Resources = moduleResources(module, stage)
	return m, nil
}

// Validate runs naga's IR validator. The result is advisory: a module that
// fails validation may still be usable by the backend.
func (m *Module) Validate() []string {
	verrs, err := naga.Validate(m.IR)
	if err != nil {
		return []string{fmt.Sprintf("%s shader: validator: %v", m.Stage, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		out = append(out, fmt.Sprintf("%s shader: %s", m.Stage, ve.Error()))
	}
	return out
}

// Input returns the input varying bound to name.
func (m *Module) Input(name string) (Varying, bool) {
	for _, v := range m.Inputs {
		if v.Name == name {
			return v, true
		}
	}
	return Varying{}, false
}

func formatParseError(err error) string {
	msg := err.Error()
	if msg == "" {
		msg = "unknown parse failure"
	}
	return msg
}
