package rendercore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/rendercore/internal/shader"
)

// Uniform values are staged on the CPU and uploaded before the next draw
// that uses the program, so each draw sees the values set before it.

// SetUniform4f sets a vec4<f32> uniform or block member.
func (p *Program) SetUniform4f(loc UniformLocation, x, y, z, w float32) error {
	return p.SetUniformFloats(loc, x, y, z, w)
}

// SetUniformMatrix4fv sets a mat4x4<f32> uniform or block member from a
// column-major matrix, the layout of mgl32.Mat4.
func (p *Program) SetUniformMatrix4fv(loc UniformLocation, m [16]float32) error {
	return p.SetUniformFloats(loc, m[:]...)
}

// SetUniformFloats sets a float uniform or block member. Values are given
// tightly packed; columns of three-row matrices are padded to the uniform
// layout automatically.
func (p *Program) SetUniformFloats(loc UniformLocation, v ...float32) error {
	e, err := p.uniformEntry(loc)
	if err != nil || e == nil {
		return err
	}
	return p.write(e, packFloats(e.typ, v))
}

// SetUniformBytes copies raw bytes into a uniform or block member, for
// integer or struct-typed values.
func (p *Program) SetUniformBytes(loc UniformLocation, data []byte) error {
	e, err := p.uniformEntry(loc)
	if err != nil || e == nil {
		return err
	}
	return p.write(e, data)
}

// SetUniformByName looks name up and sets it from floats. Unlike the
// location-based setters it reports a missing uniform as
// *UniformNotFoundError.
func (p *Program) SetUniformByName(name string, v ...float32) error {
	loc := p.UniformLocation(name)
	if loc == UniformNotFound {
		return &UniformNotFoundError{Name: name}
	}
	return p.SetUniformFloats(loc, v...)
}

func (p *Program) uniformEntry(loc UniformLocation) (*uniformEntry, error) {
	e, err := p.entry(loc)
	if err != nil || e == nil {
		return nil, err
	}
	if e.kind != shader.ResourceUniform {
		return nil, fmt.Errorf("rendercore: %q is a %s, use SetTexture", e.name, e.kind)
	}
	return e, nil
}

func (p *Program) write(e *uniformEntry, data []byte) error {
	if uint32(len(data)) > e.size {
		return fmt.Errorf("rendercore: %d bytes for uniform %q of %d bytes", len(data), e.name, e.size)
	}
	ub := p.buffers[e.res]
	copy(ub.shadow[e.offset:], data)
	ub.dirty = true
	ub.written = true
	return nil
}

func packFloats(t shader.Type, v []float32) []byte {
	if t.Class == shader.ClassMatrix && t.Rows == 3 {
		// mat Nx3 columns are vec3 aligned to 16 bytes.
		out := make([]byte, 0, len(v)/3*16)
		for i := 0; i+3 <= len(v); i += 3 {
			out = appendFloats(out, v[i], v[i+1], v[i+2], 0)
		}
		return out
	}
	return appendFloats(make([]byte, 0, len(v)*4), v...)
}

func appendFloats(b []byte, v ...float32) []byte {
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}
