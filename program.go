package rendercore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore/internal/cache"
	"github.com/gogpu/rendercore/internal/shader"
)

// AttributeLocation is a vertex input slot resolved by a Program.
type AttributeLocation int32

// AttributeNotFound is returned by Program.AttributeLocation for names
// the vertex stage does not declare.
const AttributeNotFound AttributeLocation = -1

// UniformLocation addresses a uniform, a uniform block member, a texture
// or a sampler within one Program. Locations are only meaningful for the
// program that returned them.
type UniformLocation int32

// UniformNotFound is returned by Program.UniformLocation for names the
// program does not declare. Setters treat it as a no-op.
const UniformNotFound UniformLocation = -1

// uniformEntry is one addressable uniform. res indexes the linked
// resource list; offset and size locate a block member in the buffer.
type uniformEntry struct {
	name   string
	res    int
	kind   shader.ResourceKind
	offset uint32
	size   uint32
	typ    shader.Type
}

type uniformBuffer struct {
	buf     hal.Buffer
	shadow  []byte
	dirty   bool
	written bool
}

// Program is a linked vertex and fragment shader pair together with the
// device objects needed to draw with it: bind group layouts, a pipeline
// layout, one uniform buffer per uniform binding and a cache of render
// pipelines keyed by vertex layout and draw state.
type Program struct {
	s      *Session
	vs, fs *Shader
	layout *shader.Layout
	label  string

	uniforms []uniformEntry
	byName   map[string]UniformLocation

	groupLayouts   []hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	buffers        map[int]*uniformBuffer
	textures       map[int]*Texture2D
	samplers       map[int]*Texture2D

	bindGroups []hal.BindGroup
	bound      []uint64

	pipelines *cache.LRU[pipelineKey, hal.RenderPipeline]
	created   int
	released  bool
}

// LinkProgram links a compiled vertex and fragment shader. It checks the
// stage kinds, that every fragment input is written by the vertex stage
// with the same type, and that bindings shared by both stages agree. On
// success the program owns both shaders. Linking does not make the
// program current; see Session.Use.
func (s *Session) LinkProgram(vs, fs *Shader) (*Program, error) {
	if err := s.checkAlive("LinkProgram"); err != nil {
		return nil, err
	}
	for _, sh := range []*Shader{vs, fs} {
		if sh == nil {
			return nil, &LinkError{Log: "missing shader stage"}
		}
		if sh.s != s {
			return nil, ErrForeignResource
		}
		if sh.handle == nil {
			return nil, fmt.Errorf("link %s shader: %w", sh.stage, ErrReleased)
		}
	}

	lay, err := shader.Link(vs.module, fs.module)
	if err != nil {
		lerr := &LinkError{Log: err.Error()}
		var serr *shader.Error
		if errors.As(err, &serr) {
			lerr.Log = serr.Log
		}
		Logger().Warn("rendercore: program link failed", "log", lerr.Log)
		return nil, lerr
	}

	p := &Program{
		s:        s,
		vs:       vs,
		fs:       fs,
		layout:   lay,
		label:    fmt.Sprintf("%s_program_%s_%s", s.opts.label, vs.module.EntryPoint, fs.module.EntryPoint),
		byName:   make(map[string]UniformLocation),
		buffers:  make(map[int]*uniformBuffer),
		textures: make(map[int]*Texture2D),
		samplers: make(map[int]*Texture2D),
	}
	p.pipelines = cache.New(s.opts.pipelineCache, func(_ pipelineKey, rp hal.RenderPipeline) {
		if d := s.halDevice(); d != nil {
			d.DestroyRenderPipeline(rp)
		}
	})
	p.indexUniforms()
	if err := p.createLayouts(); err != nil {
		p.destroy()
		return nil, fmt.Errorf("rendercore: link program: %w", err)
	}
	s.forget(vs)
	s.forget(fs)
	s.track(p)
	Logger().Debug("rendercore: program linked", "label", p.label,
		"attributes", len(lay.Attributes), "resources", len(lay.Resources))
	return p, nil
}

// NewProgram compiles both stages and links them. Shaders compiled here
// are released again when linking fails.
func (s *Session) NewProgram(vertexSrc, fragmentSrc string) (*Program, error) {
	vs, err := s.CompileShader(StageVertex, vertexSrc)
	if err != nil {
		return nil, err
	}
	fs, err := s.CompileShader(StageFragment, fragmentSrc)
	if err != nil {
		vs.Release()
		return nil, err
	}
	p, err := s.LinkProgram(vs, fs)
	if err != nil {
		vs.Release()
		fs.Release()
		return nil, err
	}
	return p, nil
}

// indexUniforms assigns locations. A uniform block is addressable as a
// whole by its variable name, and each member both as "block.member" and,
// when unambiguous, by the bare member name.
func (p *Program) indexUniforms() {
	add := func(e uniformEntry) UniformLocation {
		loc := UniformLocation(len(p.uniforms))
		p.uniforms = append(p.uniforms, e)
		return loc
	}
	bare := make(map[string]int)
	for i, r := range p.layout.Resources {
		p.byName[r.Name] = add(uniformEntry{name: r.Name, res: i, kind: r.Kind, size: r.Size, typ: r.Type})
		for _, m := range r.Members {
			loc := add(uniformEntry{name: r.Name + "." + m.Name, res: i, kind: r.Kind, offset: m.Offset, size: m.Size, typ: m.Type})
			p.byName[r.Name+"."+m.Name] = loc
			bare[m.Name]++
			if _, taken := p.byName[m.Name]; !taken && bare[m.Name] == 1 {
				p.byName[m.Name] = loc
			}
		}
	}
	for name, n := range bare {
		if n > 1 && p.uniforms[p.byName[name]].name != name {
			delete(p.byName, name)
		}
	}
}

func (p *Program) createLayouts() error {
	device := p.s.dev.device
	groups := make([][]gputypes.BindGroupLayoutEntry, p.layout.GroupCount)
	for i, r := range p.layout.Resources {
		entry := gputypes.BindGroupLayoutEntry{Binding: r.Binding, Visibility: visibility(r.Stages)}
		switch r.Kind {
		case shader.ResourceUniform:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
			size := (uint64(r.Size) + 15) &^ 15
			buf, err := device.CreateBuffer(&hal.BufferDescriptor{
				Label: fmt.Sprintf("%s_uniform_%s", p.label, r.Name),
				Size:  size,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("create uniform buffer %q: %w", r.Name, err)
			}
			p.buffers[i] = &uniformBuffer{buf: buf, shadow: make([]byte, size)}
		case shader.ResourceTexture:
			entry.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case shader.ResourceSampler:
			entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		}
		groups[r.Group] = append(groups[r.Group], entry)
	}

	for g, entries := range groups {
		bgl, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_group%d_layout", p.label, g),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create bind group layout %d: %w", g, err)
		}
		p.groupLayouts = append(p.groupLayouts, bgl)
	}

	pl, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label + "_layout",
		BindGroupLayouts: p.groupLayouts,
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipelineLayout = pl
	return nil
}

func visibility(s shader.StageSet) gputypes.ShaderStages {
	var v gputypes.ShaderStages
	if s&shader.VertexBit != 0 {
		v |= gputypes.ShaderStageVertex
	}
	if s&shader.FragmentBit != 0 {
		v |= gputypes.ShaderStageFragment
	}
	return v
}

// AttributeLocation returns the location of the vertex input name, or
// AttributeNotFound.
func (p *Program) AttributeLocation(name string) AttributeLocation {
	for _, a := range p.layout.Attributes {
		if a.Name == name {
			return AttributeLocation(a.Location)
		}
	}
	return AttributeNotFound
}

// UniformLocation returns the location of a uniform, uniform block member,
// texture or sampler, or UniformNotFound.
func (p *Program) UniformLocation(name string) UniformLocation {
	if loc, ok := p.byName[name]; ok {
		return loc
	}
	return UniformNotFound
}

// Attributes returns the names of the program's vertex inputs in location
// order.
func (p *Program) Attributes() []string {
	names := make([]string, len(p.layout.Attributes))
	for i, a := range p.layout.Attributes {
		names[i] = a.Name
	}
	return names
}

// Validate reports advisory findings: compiler warnings, IR validator
// findings, uniform buffers never written and texture slots never bound.
// It returns nil or a *ValidationError; either way the program remains
// usable.
func (p *Program) Validate() error {
	if p.released {
		return ErrReleased
	}
	findings := shader.Advisory(p.vs.module, p.fs.module)
	for i, r := range p.layout.Resources {
		switch r.Kind {
		case shader.ResourceUniform:
			if !p.buffers[i].written {
				findings = append(findings, fmt.Sprintf("uniform %q is never set", r.Name))
			}
		case shader.ResourceTexture:
			if p.textures[i] == nil {
				findings = append(findings, fmt.Sprintf("texture %q has no texture bound", r.Name))
			}
		}
	}
	if len(findings) == 0 {
		return nil
	}
	verr := &ValidationError{Log: strings.Join(findings, "\n")}
	Logger().Debug("rendercore: program validation", "label", p.label, "findings", len(findings))
	return verr
}

// SetTexture binds tex to the texture slot at loc. The texture's sampler
// feeds the sampler declared at the next binding of the same group, or
// failing that the group's first sampler. Passing a sampler location
// binds only the texture's sampler there. A UniformNotFound location is a
// no-op.
func (p *Program) SetTexture(loc UniformLocation, tex *Texture2D) error {
	e, err := p.entry(loc)
	if err != nil || e == nil {
		return err
	}
	if tex != nil && tex.s != p.s {
		return ErrForeignResource
	}
	switch e.kind {
	case shader.ResourceTexture:
		p.textures[e.res] = tex
	case shader.ResourceSampler:
		p.samplers[e.res] = tex
	default:
		return fmt.Errorf("rendercore: %q is a %s, not a texture or sampler", e.name, e.kind)
	}
	p.bound = nil
	return nil
}

func (p *Program) entry(loc UniformLocation) (*uniformEntry, error) {
	if p.released {
		return nil, ErrReleased
	}
	if loc == UniformNotFound {
		return nil, nil
	}
	if loc < 0 || int(loc) >= len(p.uniforms) {
		return nil, fmt.Errorf("rendercore: uniform location %d out of range for %s", loc, p.label)
	}
	return &p.uniforms[loc], nil
}

// samplerTexture resolves which texture supplies the sampler at res.
func (p *Program) samplerTexture(res int) *Texture2D {
	if t := p.samplers[res]; t != nil {
		return t
	}
	r := p.layout.Resources[res]
	var first *Texture2D
	for i, other := range p.layout.Resources {
		if other.Kind != shader.ResourceTexture || other.Group != r.Group {
			continue
		}
		if other.Binding+1 == r.Binding && p.textures[i] != nil {
			return p.textures[i]
		}
		if first == nil {
			first = p.textures[i]
		}
	}
	return first
}

// flush uploads uniform values changed since the last draw.
func (p *Program) flush() error {
	for i, ub := range p.buffers {
		if !ub.dirty {
			continue
		}
		if err := p.s.dev.queue.WriteBuffer(ub.buf, 0, ub.shadow); err != nil {
			return fmt.Errorf("write uniform %q: %w", p.layout.Resources[i].Name, err)
		}
		ub.dirty = false
	}
	return nil
}

// bindings returns the bind groups for the current texture bindings,
// rebuilding them when a bound texture was replaced or re-uploaded.
func (p *Program) bindings() ([]hal.BindGroup, error) {
	if len(p.groupLayouts) == 0 {
		return nil, nil
	}
	fallback, err := p.s.fallbackTexture()
	if err != nil {
		return nil, err
	}
	resolve := func(t *Texture2D) *Texture2D {
		if t == nil || t.released {
			return fallback
		}
		return t
	}

	// sig is non-nil even without textures; a nil p.bound means rebuild.
	sig := make([]uint64, 0, 2*len(p.layout.Resources))
	for i, r := range p.layout.Resources {
		switch r.Kind {
		case shader.ResourceTexture:
			t := resolve(p.textures[i])
			sig = append(sig, t.id, t.generation)
		case shader.ResourceSampler:
			t := resolve(p.samplerTexture(i))
			sig = append(sig, t.id, t.generation)
		}
	}
	if p.bindGroups != nil && p.bound != nil && equalSig(sig, p.bound) {
		return p.bindGroups, nil
	}

	device := p.s.dev.device
	entries := make([][]gputypes.BindGroupEntry, len(p.groupLayouts))
	for i, r := range p.layout.Resources {
		e := gputypes.BindGroupEntry{Binding: r.Binding}
		switch r.Kind {
		case shader.ResourceUniform:
			ub := p.buffers[i]
			e.Resource = gputypes.BufferBinding{Buffer: ub.buf.NativeHandle(), Size: uint64(len(ub.shadow))}
		case shader.ResourceTexture:
			e.Resource = gputypes.TextureViewBinding{TextureView: resolve(p.textures[i]).view.NativeHandle()}
		case shader.ResourceSampler:
			e.Resource = gputypes.SamplerBinding{Sampler: resolve(p.samplerTexture(i)).sampler.NativeHandle()}
		}
		entries[r.Group] = append(entries[r.Group], e)
	}

	groups := make([]hal.BindGroup, 0, len(p.groupLayouts))
	for g, bgl := range p.groupLayouts {
		bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s_group%d", p.label, g),
			Layout:  bgl,
			Entries: entries[g],
		})
		if err != nil {
			for _, made := range groups {
				device.DestroyBindGroup(made)
			}
			return nil, fmt.Errorf("create bind group %d: %w", g, err)
		}
		groups = append(groups, bg)
	}
	// Every earlier submission has completed, so the old groups are idle.
	p.destroyBindGroups()
	p.bindGroups = groups
	p.bound = sig
	return groups, nil
}

func equalSig(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p *Program) destroyBindGroups() {
	if d := p.s.halDevice(); d != nil {
		for _, bg := range p.bindGroups {
			d.DestroyBindGroup(bg)
		}
	}
	p.bindGroups = nil
}

func (p *Program) destroy() {
	d := p.s.halDevice()
	p.destroyBindGroups()
	if p.pipelines != nil {
		p.pipelines.Purge()
	}
	if d != nil {
		if p.pipelineLayout != nil {
			d.DestroyPipelineLayout(p.pipelineLayout)
		}
		for _, bgl := range p.groupLayouts {
			d.DestroyBindGroupLayout(bgl)
		}
		for _, ub := range p.buffers {
			d.DestroyBuffer(ub.buf)
		}
	}
	p.pipelines = nil
	p.pipelineLayout = nil
	p.groupLayouts = nil
	p.buffers = nil
}

// Release destroys the program's device objects and both shaders. If the
// program is current it is deactivated. It is safe to call more than once.
func (p *Program) Release() {
	if p == nil || p.released {
		return
	}
	p.released = true
	p.destroy()
	p.vs.Release()
	p.fs.Release()
	if p.s.active == p {
		p.s.active = nil
	}
	p.s.forget(p)
	Logger().Debug("rendercore: program released", "label", p.label)
}
