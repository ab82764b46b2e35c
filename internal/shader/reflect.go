package shader

import (
	"fmt"

	"github.com/gogpu/naga/ir"
)

// TypeClass is the coarse shape of a reflected value type.
type TypeClass uint8

const (
	ClassOther TypeClass = iota
	ClassScalar
	ClassVector
	ClassMatrix
)

// Type is a module-independent description of a scalar, vector or matrix
// type. Two Types compare equal with == when they describe the same type.
type Type struct {
	Class   TypeClass
	Kind    ir.ScalarKind
	Width   uint8
	Rows    uint8 // vector size, or matrix rows
	Columns uint8 // matrix columns, 1 otherwise
}

func (t Type) String() string {
	name := "?"
	switch t.Kind {
	case ir.ScalarFloat:
		name = fmt.Sprintf("f%d", int(t.Width)*8)
	case ir.ScalarSint:
		name = fmt.Sprintf("i%d", int(t.Width)*8)
	case ir.ScalarUint:
		name = fmt.Sprintf("u%d", int(t.Width)*8)
	case ir.ScalarBool:
		name = "bool"
	}
	switch t.Class {
	case ClassScalar:
		return name
	case ClassVector:
		return fmt.Sprintf("vec%d<%s>", t.Rows, name)
	case ClassMatrix:
		return fmt.Sprintf("mat%dx%d<%s>", t.Columns, t.Rows, name)
	default:
		return "opaque"
	}
}

// Components is the number of scalar components of a scalar or vector.
func (t Type) Components() int {
	switch t.Class {
	case ClassScalar:
		return 1
	case ClassVector:
		return int(t.Rows)
	case ClassMatrix:
		return int(t.Rows) * int(t.Columns)
	default:
		return 0
	}
}

func describeType(module *ir.Module, h ir.TypeHandle) Type {
	if int(h) >= len(module.Types) {
		return Type{}
	}
	switch inner := module.Types[h].Inner.(type) {
	case ir.ScalarType:
		return Type{Class: ClassScalar, Kind: inner.Kind, Width: inner.Width, Rows: 1, Columns: 1}
	case ir.VectorType:
		return Type{Class: ClassVector, Kind: inner.Scalar.Kind, Width: inner.Scalar.Width, Rows: uint8(inner.Size), Columns: 1}
	case ir.MatrixType:
		return Type{Class: ClassMatrix, Kind: inner.Scalar.Kind, Width: inner.Scalar.Width, Rows: uint8(inner.Rows), Columns: uint8(inner.Columns)}
	default:
		return Type{}
	}
}

// Varying is an entry point input or output carried by @location.
type Varying struct {
	Name     string
	Location uint32
	Type     Type
}

func locationOf(b *ir.Binding) (uint32, bool) {
	if b == nil || *b == nil {
		return 0, false
	}
	lb, ok := (*b).(ir.LocationBinding)
	if !ok {
		return 0, false
	}
	return lb.Location, true
}

// collect appends the @location values found on a binding or, for struct
// types, on the struct's members.
func collect(module *ir.Module, name string, h ir.TypeHandle, b *ir.Binding, out []Varying) []Varying {
	if loc, ok := locationOf(b); ok {
		return append(out, Varying{Name: name, Location: loc, Type: describeType(module, h)})
	}
	if int(h) >= len(module.Types) {
		return out
	}
	st, ok := module.Types[h].Inner.(ir.StructType)
	if !ok {
		return out
	}
	for _, m := range st.Members {
		if loc, ok := locationOf(m.Binding); ok {
			out = append(out, Varying{Name: m.Name, Location: loc, Type: describeType(module, m.Type)})
		}
	}
	return out
}

func entryInputs(module *ir.Module, ep *ir.EntryPoint) []Varying {
	var out []Varying
	for _, arg := range ep.Function.Arguments {
		out = collect(module, arg.Name, arg.Type, arg.Binding, out)
	}
	return out
}

func entryOutputs(module *ir.Module, ep *ir.EntryPoint) []Varying {
	r := ep.Function.Result
	if r == nil {
		return nil
	}
	return collect(module, "", r.Type, r.Binding, nil)
}

// ResourceKind classifies a bound module-scope global.
type ResourceKind uint8

const (
	ResourceUniform ResourceKind = iota
	ResourceTexture
	ResourceSampler
	ResourceUnsupported
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceUniform:
		return "uniform buffer"
	case ResourceTexture:
		return "texture"
	case ResourceSampler:
		return "sampler"
	default:
		return "unsupported resource"
	}
}

// StageSet is a bit set of stages that reference a resource.
type StageSet uint8

const (
	VertexBit StageSet = 1 << iota
	FragmentBit
)

func (s Stage) bit() StageSet {
	if s == Fragment {
		return FragmentBit
	}
	return VertexBit
}

// Member is a field of a uniform block.
type Member struct {
	Name   string
	Offset uint32
	Size   uint32
	Type   Type
}

// Resource is a global declared with @group/@binding.
type Resource struct {
	Name    string
	Group   uint32
	Binding uint32
	Kind    ResourceKind
	Stages  StageSet

	// Size is the byte size of a uniform buffer's contents.
	Size uint32
	// Type describes a non-struct uniform.
	Type Type
	// Members lists the fields of a struct uniform.
	Members []Member

	// Comparison marks a comparison sampler.
	Comparison bool
	// Dim and Multisampled describe a texture.
	Dim          ir.ImageDimension
	Multisampled bool
	Depth        bool
}

func moduleResources(module *ir.Module, stage Stage) []Resource {
	var out []Resource
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		r := Resource{
			Name:    gv.Name,
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Stages:  stage.bit(),
			Kind:    ResourceUnsupported,
		}
		var inner ir.TypeInner
		if int(gv.Type) < len(module.Types) {
			inner = module.Types[gv.Type].Inner
		}
		switch gv.Space {
		case ir.SpaceUniform:
			r.Kind = ResourceUniform
			r.Size = ir.TypeSize(module, gv.Type)
			if st, ok := inner.(ir.StructType); ok {
				for i, m := range st.Members {
					size := ir.TypeSize(module, m.Type)
					if i+1 < len(st.Members) {
						// Padding belongs to the member.
						size = st.Members[i+1].Offset - m.Offset
					}
					r.Members = append(r.Members, Member{
						Name:   m.Name,
						Offset: m.Offset,
						Size:   size,
						Type:   describeType(module, m.Type),
					})
				}
			} else {
				r.Type = describeType(module, gv.Type)
			}
		case ir.SpaceHandle:
			switch t := inner.(type) {
			case ir.SamplerType:
				r.Comparison = t.Comparison
				if !t.Comparison {
					r.Kind = ResourceSampler
				}
			case ir.ImageType:
				r.Dim = t.Dim
				r.Multisampled = t.Multisampled
				r.Depth = t.Class == ir.ImageClassDepth
				// Only single-sampled color texture_2d is bindable.
				if t.Class == ir.ImageClassSampled && t.SampledKind == ir.ScalarFloat &&
					t.Dim == ir.Dim2D && !t.Arrayed && !t.Multisampled {
					r.Kind = ResourceTexture
				}
			}
		}
		out = append(out, r)
	}
	return out
}
