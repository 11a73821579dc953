package terrain

import "github.com/Faultbox/midgard-terrain/internal/gpu"

// Attribute locations shared by every provider and the terrain shader.
// Changing them breaks every shader that consumes tile meshes.
const (
	AttributePosition3D         uint32 = 0
	AttributeTextureCoordinates uint32 = 1
	AttributePosition2D         uint32 = 2
)

// Attribute names as bound in the shader.
const (
	NamePosition3D         = "position3D"
	NameTextureCoordinates = "textureCoordinates"
	NamePosition2D         = "position2D"
)

// Interleaved layout of Geometry.Vertices.
var (
	VertexStrideInBytes      = FloatsPerVertex * gpu.Float.SizeInBytes()
	TextureCoordinatesOffset = 3 * gpu.Float.SizeInBytes()
	Position2DStrideInBytes  = 2 * gpu.Float.SizeInBytes()
)

// Position2DConstant is bound when a mesh has no projected positions.
var Position2DConstant = []float32{0, 0}

// Attributes returns the attribute descriptors for a tile mesh. vertices is
// the interleaved x,y,z,u,v buffer. positions2D is an optional x,y buffer;
// when nil the position2D slot is bound to Position2DConstant.
func Attributes(vertices, positions2D gpu.VertexBuffer) []gpu.AttributeDescriptor {
	attrs := []gpu.AttributeDescriptor{
		{
			Index: AttributePosition3D,
			Name:  NamePosition3D,
			Source: gpu.PerVertexStream{
				Buffer:        vertices,
				Datatype:      gpu.Float,
				Components:    3,
				OffsetInBytes: 0,
				StrideInBytes: VertexStrideInBytes,
			},
		},
		{
			Index: AttributeTextureCoordinates,
			Name:  NameTextureCoordinates,
			Source: gpu.PerVertexStream{
				Buffer:        vertices,
				Datatype:      gpu.Float,
				Components:    2,
				OffsetInBytes: TextureCoordinatesOffset,
				StrideInBytes: VertexStrideInBytes,
			},
		},
	}

	var pos2D gpu.AttributeSource = gpu.Constant{Values: append([]float32(nil), Position2DConstant...)}
	if positions2D != nil {
		pos2D = gpu.PerVertexStream{
			Buffer:        positions2D,
			Datatype:      gpu.Float,
			Components:    2,
			StrideInBytes: Position2DStrideInBytes,
		}
	}
	return append(attrs, gpu.AttributeDescriptor{
		Index:  AttributePosition2D,
		Name:   NamePosition2D,
		Source: pos2D,
	})
}
