package rendercore

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DrawState is the fixed-function state applied to draws.
// The zero value clears to transparent black, disables depth testing and
// culling, and treats counter-clockwise triangles as front facing.
type DrawState struct {
	ClearColor gputypes.Color
	DepthTest  bool
	CullFace   gputypes.CullMode
	FrontFace  gputypes.FrontFace
	// Blend enables source-over alpha blending.
	Blend bool
}

type pipelineKey struct {
	vertexLayout string
	topology     gputypes.PrimitiveTopology
	stripIndex   gputypes.IndexFormat
	depthTest    bool
	cull         gputypes.CullMode
	front        gputypes.FrontFace
	blend        bool
	color        gputypes.TextureFormat
}

// pipeline returns the render pipeline for drawing g with prim under the
// session's draw state, creating and caching it on first use. The least
// recently used pipeline is destroyed once the cache is full.
func (p *Program) pipeline(g *Geometry, prim Primitive) (hal.RenderPipeline, error) {
	st := p.s.drawState
	key := pipelineKey{
		vertexLayout: g.layout.Signature(g.isEnabled),
		topology:     prim.Topology.primitive(),
		depthTest:    st.DepthTest,
		cull:         st.CullFace,
		front:        st.FrontFace,
		blend:        st.Blend,
		color:        p.s.colorFormat(),
	}
	if prim.Indexed && prim.Topology.strip() {
		key.stripIndex = prim.IndexType.format()
	}
	return p.pipelines.GetOrCreate(key, func() (hal.RenderPipeline, error) {
		return p.createPipeline(g, key)
	})
}

func (p *Program) createPipeline(g *Geometry, key pipelineKey) (hal.RenderPipeline, error) {
	st := p.s.drawState

	var buffers []gputypes.VertexBufferLayout
	if vbl := g.layout.BufferLayout(g.isEnabled); len(vbl.Attributes) > 0 {
		buffers = []gputypes.VertexBufferLayout{vbl}
	}

	depth := &hal.DepthStencilState{
		Format:            p.s.target.depthFormat,
		DepthWriteEnabled: st.DepthTest,
		DepthCompare:      gputypes.CompareFunctionAlways,
		StencilFront: hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		},
		StencilBack: hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		},
	}
	if st.DepthTest {
		depth.DepthCompare = gputypes.CompareFunctionLess
	}

	target := gputypes.ColorTargetState{Format: key.color, WriteMask: gputypes.ColorWriteMaskAll}
	if st.Blend {
		blend := gputypes.BlendStateAlpha()
		target.Blend = &blend
	}

	prims := gputypes.PrimitiveState{
		Topology:  key.topology,
		FrontFace: st.FrontFace,
		CullMode:  st.CullFace,
	}
	if key.stripIndex != gputypes.IndexFormatUndefined {
		f := key.stripIndex
		prims.StripIndexFormat = &f
	}

	rp, err := p.s.dev.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s_pipeline%d", p.label, p.created),
		Layout: p.pipelineLayout,
		Vertex: hal.VertexState{
			Module:     p.vs.handle,
			EntryPoint: p.vs.module.EntryPoint,
			Buffers:    buffers,
		},
		Primitive:    prims,
		DepthStencil: depth,
		Multisample:  gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     p.fs.handle,
			EntryPoint: p.fs.module.EntryPoint,
			Targets:    []gputypes.ColorTargetState{target},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rendercore: create render pipeline: %w", err)
	}
	p.created++
	Logger().Debug("rendercore: pipeline created", "program", p.label, "layout", key.vertexLayout, "topology", key.topology)
	return rp, nil
}
