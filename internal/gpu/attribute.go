package gpu

import "fmt"

// AttributeSource is where a vertex attribute gets its values.
// It is either a Constant or a PerVertexStream.
type AttributeSource interface {
	isAttributeSource()
}

// Constant binds the same value to every vertex.
type Constant struct {
	Values []float32
}

func (Constant) isAttributeSource() {}

// PerVertexStream reads the attribute from an interleaved vertex buffer.
type PerVertexStream struct {
	Buffer        VertexBuffer
	Datatype      ComponentDatatype
	Components    int
	OffsetInBytes int
	StrideInBytes int
}

func (PerVertexStream) isAttributeSource() {}

// AttributeDescriptor binds a shader attribute location to a source.
type AttributeDescriptor struct {
	Index  uint32
	Name   string
	Source AttributeSource
}

// Validate checks that the descriptor can be bound.
func (a AttributeDescriptor) Validate() error {
	switch src := a.Source.(type) {
	case Constant:
		if len(src.Values) < 1 || len(src.Values) > 4 {
			return fmt.Errorf("attribute %d: constant with %d values: %w", a.Index, len(src.Values), ErrInvalidAttribute)
		}
	case PerVertexStream:
		if src.Buffer == nil {
			return fmt.Errorf("attribute %d: nil vertex buffer: %w", a.Index, ErrInvalidAttribute)
		}
		if src.Components < 1 || src.Components > 4 {
			return fmt.Errorf("attribute %d: %d components: %w", a.Index, src.Components, ErrInvalidAttribute)
		}
		if src.OffsetInBytes < 0 || src.StrideInBytes < 0 {
			return fmt.Errorf("attribute %d: negative offset or stride: %w", a.Index, ErrInvalidAttribute)
		}
	default:
		return fmt.Errorf("attribute %d: no source: %w", a.Index, ErrInvalidAttribute)
	}
	return nil
}

// ValidateAttributes checks every descriptor and rejects duplicate indices.
func ValidateAttributes(attrs []AttributeDescriptor) error {
	seen := make(map[uint32]bool, len(attrs))
	for _, a := range attrs {
		if seen[a.Index] {
			return fmt.Errorf("attribute %d bound twice: %w", a.Index, ErrInvalidAttribute)
		}
		seen[a.Index] = true
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}
