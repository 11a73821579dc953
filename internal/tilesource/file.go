package tilesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// FileSource reads tiles from a directory tree.
type FileSource struct {
	root     string
	template Template
}

// NewFileSource creates a source reading root/template.
func NewFileSource(root string, template Template) (*FileSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("tile directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tile directory %s is not a directory", root)
	}
	return &FileSource{root: root, template: template}, nil
}

// Path returns the file path of addr.
func (s *FileSource) Path(addr tiling.Address) string {
	return filepath.Join(s.root, filepath.FromSlash(s.template.Expand(addr)))
}

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context, addr tiling.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(addr)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("tile %s: %w", addr, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading tile %s: %w", path, err)
	}
	return Inflate(data)
}

// Store writes data as the payload of addr, creating directories as needed.
func (s *FileSource) Store(addr tiling.Address, data []byte) error {
	path := s.Path(addr)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating tile directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing tile %s: %w", path, err)
	}
	return nil
}
