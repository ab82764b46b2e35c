package shader

import (
	"fmt"
	"sort"
	"strings"
)

// Layout is the linked interface of a vertex and fragment module.
type Layout struct {
	// Attributes are the vertex stage's @location inputs.
	Attributes []Varying

	// Resources are the bindings of both stages merged by (group, binding)
	// and sorted by group then binding.
	Resources []Resource

	// GroupCount is one past the highest bind group index in use.
	GroupCount uint32
}

type bindingKey struct{ group, binding uint32 }

// Link checks that vs and fs form a valid pipeline and merges their
// resource bindings. All problems are reported together in one *Error.
func Link(vs, fs *Module) (*Layout, error) {
	if vs == nil || fs == nil {
		return nil, newError("link: missing shader stage")
	}
	var problems []string
	if vs.Stage != Vertex {
		problems = append(problems, fmt.Sprintf("first stage is a %s shader, want vertex", vs.Stage))
	}
	if fs.Stage != Fragment {
		problems = append(problems, fmt.Sprintf("second stage is a %s shader, want fragment", fs.Stage))
	}
	if len(problems) > 0 {
		return nil, &Error{Log: strings.Join(problems, "\n")}
	}

	problems = append(problems, matchInterface(vs.Outputs, fs.Inputs)...)

	hasColor := false
	for _, o := range fs.Outputs {
		if o.Location == 0 {
			hasColor = true
		}
	}
	if !hasColor {
		problems = append(problems, fmt.Sprintf("fragment entry point %q writes no @location(0) color output", fs.EntryPoint))
	}

	merged := make(map[bindingKey]*Resource)
	var order []bindingKey
	for _, m := range []*Module{vs, fs} {
		for _, r := range m.Resources {
			if r.Kind == ResourceUnsupported {
				problems = append(problems, fmt.Sprintf("%s shader: %q at @group(%d) @binding(%d): only uniform buffers, texture_2d and filtering samplers are supported",
					m.Stage, r.Name, r.Group, r.Binding))
				continue
			}
			key := bindingKey{r.Group, r.Binding}
			prev, ok := merged[key]
			if !ok {
				cp := r
				merged[key] = &cp
				order = append(order, key)
				continue
			}
			if prev.Kind != r.Kind {
				problems = append(problems, fmt.Sprintf("@group(%d) @binding(%d) is a %s in one stage and a %s in another",
					r.Group, r.Binding, prev.Kind, r.Kind))
				continue
			}
			if prev.Kind == ResourceUniform && prev.Size != r.Size {
				problems = append(problems, fmt.Sprintf("@group(%d) @binding(%d) uniform size differs between stages (%d vs %d bytes)",
					r.Group, r.Binding, prev.Size, r.Size))
				continue
			}
			prev.Stages |= r.Stages
		}
	}

	if len(problems) > 0 {
		return nil, &Error{Log: strings.Join(problems, "\n")}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].group != order[j].group {
			return order[i].group < order[j].group
		}
		return order[i].binding < order[j].binding
	})
	layout := &Layout{Attributes: append([]Varying(nil), vs.Inputs...)}
	for _, k := range order {
		layout.Resources = append(layout.Resources, *merged[k])
		if k.group+1 > layout.GroupCount {
			layout.GroupCount = k.group + 1
		}
	}
	return layout, nil
}

func matchInterface(outputs, inputs []Varying) []string {
	var problems []string
	for _, in := range inputs {
		found := false
		for _, out := range outputs {
			if out.Location != in.Location {
				continue
			}
			found = true
			if out.Type != in.Type {
				problems = append(problems, fmt.Sprintf("@location(%d): vertex output is %s but fragment input %q is %s",
					in.Location, out.Type, in.Name, in.Type))
			}
			break
		}
		if !found {
			problems = append(problems, fmt.Sprintf("fragment input %q at @location(%d) is not written by the vertex stage",
				in.Name, in.Location))
		}
	}
	return problems
}

// Advisory collects non-fatal diagnostics for a linked pair: lowering
// warnings and IR validation findings.
func Advisory(vs, fs *Module) []string {
	var out []string
	for _, m := range []*Module{vs, fs} {
		if m == nil {
			continue
		}
		for _, w := range m.Warnings {
			out = append(out, fmt.Sprintf("%s shader: %s", m.Stage, w))
		}
		out = append(out, m.Validate()...)
	}
	return out
}
