package rendercore

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/wgpu/hal"
)

func TestCompileShaderError(t *testing.T) {
	s := newTestSession(t, 8, 8)
	src := `
@vertex
fn vs_main(@location(0) position: vec2<f32>) -> @builtin(position) vec4<f32> {
    let p = vec4<f32>(position, 0.0, 1.0)
    return p;
}
`
	sh, err := s.CompileShader(StageVertex, src)
	if sh != nil {
		t.Error("shader returned despite compile error")
	}
	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CompileError", err)
	}
	if cerr.Stage != StageVertex {
		t.Errorf("Stage = %v, want vertex", cerr.Stage)
	}
	if strings.TrimSpace(cerr.Log) == "" {
		t.Error("compile log is empty")
	}
	if len(s.resources) != 0 {
		t.Errorf("tracked resources = %d, want 0", len(s.resources))
	}
}

func TestCompileShaderWrongStage(t *testing.T) {
	s := newTestSession(t, 8, 8)
	_, err := s.CompileShader(StageFragment, triangleVS)
	var cerr *CompileError
	if !errors.As(err, &cerr) || cerr.Stage != StageFragment {
		t.Fatalf("error = %v, want fragment *CompileError", err)
	}
}

func TestCompileShader(t *testing.T) {
	s := newTestSession(t, 8, 8)
	sh, err := s.CompileShader(StageVertex, triangleVS)
	if err != nil {
		t.Fatalf("CompileShader: %v", err)
	}
	if sh.Stage() != StageVertex || sh.EntryPoint() != "vs_main" {
		t.Errorf("shader = %v/%q, want vertex/vs_main", sh.Stage(), sh.EntryPoint())
	}
	sh.Release()
	sh.Release()
	if len(s.resources) != 0 {
		t.Errorf("tracked resources = %d, want 0", len(s.resources))
	}
}

func TestLinkProgramErrors(t *testing.T) {
	s := newTestSession(t, 8, 8)
	compile := func(stage ShaderStage, src string) *Shader {
		t.Helper()
		sh, err := s.CompileShader(stage, src)
		if err != nil {
			t.Fatalf("CompileShader(%v): %v", stage, err)
		}
		return sh
	}

	tests := []struct {
		name   string
		vs, fs *Shader
		want   string
	}{
		{"unwritten varying", compile(StageVertex, triangleVS), compile(StageFragment, coloredFS), "@location(0)"},
		{"swapped stages", compile(StageFragment, triangleFS), compile(StageVertex, triangleVS), "want vertex"},
		{"missing stage", nil, compile(StageFragment, triangleFS), "missing shader stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.LinkProgram(tt.vs, tt.fs)
			if p != nil {
				t.Error("program returned despite link error")
			}
			var lerr *LinkError
			if !errors.As(err, &lerr) {
				t.Fatalf("error = %v, want *LinkError", err)
			}
			if !strings.Contains(lerr.Log, tt.want) {
				t.Errorf("log = %q, want it to contain %q", lerr.Log, tt.want)
			}
		})
	}
}

func TestLinkProgramReleasedShader(t *testing.T) {
	s := newTestSession(t, 8, 8)
	vs, err := s.CompileShader(StageVertex, triangleVS)
	if err != nil {
		t.Fatal(err)
	}
	fs, err := s.CompileShader(StageFragment, triangleFS)
	if err != nil {
		t.Fatal(err)
	}
	vs.Release()
	if _, err := s.LinkProgram(vs, fs); !errors.Is(err, ErrReleased) {
		t.Errorf("error = %v, want ErrReleased", err)
	}
}

func TestNewProgramReleasesShadersOnLinkError(t *testing.T) {
	s := newTestSession(t, 8, 8)
	if _, err := s.NewProgram(triangleVS, coloredFS); err == nil {
		t.Fatal("expected link error")
	}
	if len(s.resources) != 0 {
		t.Errorf("tracked resources = %d, want 0", len(s.resources))
	}
}

func TestLocations(t *testing.T) {
	s := newTestSession(t, 8, 8)
	p, err := s.NewProgram(coloredVS, coloredFS)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	if loc := p.AttributeLocation("position"); loc != 0 {
		t.Errorf("position = %d, want 0", loc)
	}
	if loc := p.AttributeLocation("color"); loc != 1 {
		t.Errorf("color = %d, want 1", loc)
	}
	if loc := p.AttributeLocation("normal"); loc != AttributeNotFound {
		t.Errorf("normal = %d, want AttributeNotFound", loc)
	}
	if got := p.Attributes(); len(got) != 2 || got[0] != "position" || got[1] != "color" {
		t.Errorf("Attributes = %v", got)
	}
	if loc := p.UniformLocation("color"); loc != UniformNotFound {
		t.Errorf("uniform color = %d, want UniformNotFound", loc)
	}
}

func TestUniformLocationsOfBlock(t *testing.T) {
	s := newTestSession(t, 8, 8)
	p, err := s.NewProgram(cubeVS, cubeFS)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	for _, name := range []string{"matrices", "matrices.world", "world", "view", "proj", "cube_texture", "cube_sampler"} {
		if p.UniformLocation(name) == UniformNotFound {
			t.Errorf("UniformLocation(%q) = UniformNotFound", name)
		}
	}
	if p.UniformLocation("matrices.world") != p.UniformLocation("world") {
		t.Error("bare member name resolves to a different location")
	}

	var identity [16]float32
	for i := 0; i < 4; i++ {
		identity[i*5] = 1
	}
	if err := p.SetUniformMatrix4fv(p.UniformLocation("view"), identity); err != nil {
		t.Errorf("SetUniformMatrix4fv: %v", err)
	}
	if err := p.SetUniformFloats(p.UniformLocation("world"), 1, 2, 3); err != nil {
		t.Errorf("short SetUniformFloats: %v", err)
	}
	if err := p.SetUniformFloats(p.UniformLocation("world"), make([]float32, 17)...); err == nil {
		t.Error("oversized SetUniformFloats succeeded")
	}
	if err := p.SetUniform4f(p.UniformLocation("cube_texture"), 0, 0, 0, 0); err == nil {
		t.Error("SetUniform4f on a texture succeeded")
	}
}

func TestUniformNotFound(t *testing.T) {
	s := newTestSession(t, 8, 8)
	p := triangleProgram(t, s)

	if err := p.SetUniform4f(UniformNotFound, 1, 1, 1, 1); err != nil {
		t.Errorf("SetUniform4f(UniformNotFound) = %v, want no-op", err)
	}
	err := p.SetUniformByName("tint", 1, 1, 1, 1)
	var uerr *UniformNotFoundError
	if !errors.As(err, &uerr) || uerr.Name != "tint" {
		t.Fatalf("error = %v, want *UniformNotFoundError for tint", err)
	}
	if err := p.SetUniformByName("color", 1, 0, 0, 1); err != nil {
		t.Errorf("SetUniformByName(color): %v", err)
	}
	if err := p.SetUniform4f(UniformLocation(99), 1, 1, 1, 1); err == nil {
		t.Error("out of range location accepted")
	}
}

func TestValidate(t *testing.T) {
	s := newTestSession(t, 8, 8)
	p, err := s.NewProgram(triangleVS, triangleFS)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}

	err = p.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate = %v, want *ValidationError", err)
	}
	if !strings.Contains(verr.Log, `uniform "color" is never set`) {
		t.Errorf("log = %q, want unset uniform finding", verr.Log)
	}

	if err := p.SetUniform4f(p.UniformLocation("color"), 0, 1, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err != nil && strings.Contains(err.Error(), "never set") {
		t.Errorf("Validate after set = %v", err)
	}
}

func TestValidateUnboundTexture(t *testing.T) {
	s := newTestSession(t, 8, 8)
	p, err := s.NewProgram(cubeVS, cubeFS)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	err = p.Validate()
	if err == nil || !strings.Contains(err.Error(), `texture "cube_texture" has no texture bound`) {
		t.Fatalf("Validate = %v, want unbound texture finding", err)
	}

	tex, err := s.CreatePlaceholder(2, 2, RGBA8, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetTexture(p.UniformLocation("cube_texture"), tex); err != nil {
		t.Fatalf("SetTexture: %v", err)
	}
	if err := p.Validate(); err != nil && strings.Contains(err.Error(), "no texture bound") {
		t.Errorf("Validate after SetTexture = %v", err)
	}
	if err := p.SetTexture(p.UniformLocation("matrices"), tex); err == nil {
		t.Error("SetTexture on a uniform buffer succeeded")
	}
}

func TestProgramRelease(t *testing.T) {
	s := newTestSession(t, 8, 8)
	p := triangleProgram(t, s)
	if err := s.Use(p); err != nil {
		t.Fatal(err)
	}
	p.Release()
	p.Release()
	if s.Active() != nil {
		t.Error("released program still active")
	}
	if err := s.Use(p); !errors.Is(err, ErrReleased) {
		t.Errorf("Use(released) = %v, want ErrReleased", err)
	}
	if err := p.Validate(); !errors.Is(err, ErrReleased) {
		t.Errorf("Validate(released) = %v, want ErrReleased", err)
	}
	if len(s.resources) != 0 {
		t.Errorf("tracked resources = %d, want 0", len(s.resources))
	}
}

func TestPipelineCacheEviction(t *testing.T) {
	s := newTestSession(t, 8, 8, WithPipelineCacheSize(2))
	configured(t, s, DrawState{})
	p := triangleProgram(t, s)
	g := triangleGeometry(t, s, p)

	for _, top := range []Topology{Triangles, Lines, Triangles, Points} {
		if _, err := p.pipeline(g, Primitive{Topology: top}); err != nil {
			t.Fatalf("pipeline(%v): %v", top, err)
		}
	}
	if p.pipelines.Len() != 2 {
		t.Errorf("cached pipelines = %d, want 2", p.pipelines.Len())
	}
	st := p.pipelines.Stats()
	if st.Hits != 1 || st.Evictions != 1 {
		t.Errorf("cache stats = %+v, want 1 hit and 1 eviction", st)
	}
	if p.created != 3 {
		t.Errorf("pipelines created = %d, want 3", p.created)
	}

	p.Release()
	if p.pipelines != nil {
		t.Error("pipeline cache kept after Release")
	}
}

func TestBindGroupsReusedWithoutTextures(t *testing.T) {
	s := newTestSession(t, 8, 8)
	configured(t, s, DrawState{})
	p := triangleProgram(t, s)
	g := triangleGeometry(t, s, p)

	var first []hal.BindGroup
	for i := range 3 {
		if err := s.draw(p, g, Primitive{Count: 3}); err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if len(p.bindGroups) == 0 {
			t.Fatal("no bind groups after draw")
		}
		if i == 0 {
			first = p.bindGroups
			continue
		}
		if &p.bindGroups[0] != &first[0] {
			t.Errorf("draw %d rebuilt the bind groups", i)
		}
	}

	// Binding state changes still force a rebuild.
	p.bound = nil
	if err := s.draw(p, g, Primitive{Count: 3}); err != nil {
		t.Fatal(err)
	}
	if &p.bindGroups[0] == &first[0] {
		t.Error("bind groups kept after invalidation")
	}
}
