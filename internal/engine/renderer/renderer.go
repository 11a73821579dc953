// Package renderer draws terrain tile meshes with OpenGL.
package renderer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/engine/shader"
	"github.com/Faultbox/midgard-terrain/internal/gpu/glgpu"
	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/internal/terrain"
)

// Config holds renderer configuration.
type Config struct {
	Width  int
	Height int
}

// Renderer draws tile meshes with the terrain shader.
type Renderer struct {
	config Config

	program uint32

	// Uniform locations
	locViewProj int32
	locMorph    int32
	locLightDir int32
}

// vertexShader reads the shared tile attribute layout. position2D lies in
// the x=0 plane so the flat map faces the camera at longitude 0.
const vertexShader = `
#version 410 core

in vec3 position3D;
in vec2 textureCoordinates;
in vec2 position2D;

uniform mat4 u_viewProj;
uniform float u_morph;

out vec2 v_uv;
out vec3 v_normal;

void main() {
	vec3 flatPosition = vec3(0.0, position2D.x, position2D.y);
	vec3 p = mix(position3D, flatPosition, u_morph);
	v_uv = textureCoordinates;
	v_normal = mix(normalize(position3D), vec3(1.0, 0.0, 0.0), u_morph);
	gl_Position = u_viewProj * vec4(p, 1.0);
}
`

// fragmentShader shades by a fixed sun and outlines tile borders.
const fragmentShader = `
#version 410 core

in vec2 v_uv;
in vec3 v_normal;

uniform vec3 u_lightDir;

out vec4 FragColor;

void main() {
	vec2 edge = min(v_uv, 1.0 - v_uv);
	float border = 1.0 - step(0.01, min(edge.x, edge.y));
	float diffuse = max(dot(normalize(v_normal), u_lightDir), 0.0) * 0.7 + 0.3;
	vec3 base = mix(vec3(0.30, 0.52, 0.34), vec3(0.95, 0.9, 0.6), border);
	FragColor = vec4(base * diffuse, 1.0);
}
`

// Attributes returns the shader inputs pinned to the tile layout.
func Attributes() []shader.Attribute {
	return []shader.Attribute{
		{Location: terrain.AttributePosition3D, Name: terrain.NamePosition3D},
		{Location: terrain.AttributeTextureCoordinates, Name: terrain.NameTextureCoordinates},
		{Location: terrain.AttributePosition2D, Name: terrain.NamePosition2D},
	}
}

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		config: cfg,
	}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	version := gl.GoStr(gl.GetString(gl.VERSION))
	rendererName := gl.GoStr(gl.GetString(gl.RENDERER))
	logger.Info("OpenGL initialized",
		zap.String("version", version),
		zap.String("renderer", rendererName),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.FrontFace(gl.CCW)
	gl.ClearColor(0.02, 0.02, 0.06, 1.0)

	var err error
	r.program, err = shader.CompileProgram(vertexShader, fragmentShader, Attributes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create terrain shader: %w", err)
	}
	r.locViewProj = shader.MustGetUniform(r.program, "u_viewProj")
	r.locMorph = shader.GetUniform(r.program, "u_morph")
	r.locLightDir = shader.GetUniform(r.program, "u_lightDir")

	gl.Viewport(0, 0, int32(cfg.Width), int32(cfg.Height))
	logger.Debug("terrain shader created", zap.Uint32("program", r.program))
	return r, nil
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	logger.Info("closing renderer")
	if r.program != 0 {
		gl.DeleteProgram(r.program)
	}
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	logger.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// Aspect returns the viewport aspect ratio.
func (r *Renderer) Aspect() float32 {
	if r.config.Height == 0 {
		return 1
	}
	return float32(r.config.Width) / float32(r.config.Height)
}

// Begin clears the frame and loads per-frame uniforms.
func (r *Renderer) Begin(viewProj mgl32.Mat4, morph float32, lightDir mgl32.Vec3) {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.UseProgram(r.program)
	gl.UniformMatrix4fv(r.locViewProj, 1, false, &viewProj[0])
	gl.Uniform1f(r.locMorph, morph)
	l := lightDir.Normalize()
	gl.Uniform3f(r.locLightDir, l.X(), l.Y(), l.Z())
}

// DrawMesh draws one tile mesh.
func (r *Renderer) DrawMesh(m *glgpu.Mesh) {
	m.Draw()
}

// End finishes the current frame.
func (r *Renderer) End() {
	gl.UseProgram(0)
}
