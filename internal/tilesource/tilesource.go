// Package tilesource fetches raw terrain tile payloads from disk or HTTP,
// with an optional shared cache in front.
package tilesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// ErrNotFound is returned when a source has no payload for a tile.
var ErrNotFound = errors.New("tile not found")

// Source returns the payload of one tile. Implementations must be safe for
// concurrent use and return inflated payloads.
type Source interface {
	Fetch(ctx context.Context, addr tiling.Address) ([]byte, error)
}

// DefaultTemplate lays tiles out as level/x/y.
const DefaultTemplate = "{z}/{x}/{y}.terrain"

// Template expands tile addresses into paths or URLs. It understands
// {z}, {x}, {y} and {reverseY}, the row counted from the south as in TMS
// layouts.
type Template struct {
	pattern string
	scheme  tiling.Scheme
}

// NewTemplate parses pattern. scheme is required only for {reverseY}.
func NewTemplate(pattern string, scheme tiling.Scheme) (Template, error) {
	if pattern == "" {
		pattern = DefaultTemplate
	}
	if !strings.Contains(pattern, "{z}") {
		return Template{}, fmt.Errorf("template %q has no {z}", pattern)
	}
	if strings.Contains(pattern, "{reverseY}") && scheme == nil {
		return Template{}, fmt.Errorf("template %q uses {reverseY} without a tiling scheme", pattern)
	}
	return Template{pattern: pattern, scheme: scheme}, nil
}

// Expand returns the path of addr.
func (t Template) Expand(addr tiling.Address) string {
	pairs := []string{
		"{z}", strconv.Itoa(addr.Level),
		"{x}", strconv.FormatInt(addr.X, 10),
		"{y}", strconv.FormatInt(addr.Y, 10),
	}
	if t.scheme != nil {
		pairs = append(pairs, "{reverseY}", strconv.FormatInt(t.scheme.TilesY(addr.Level)-1-addr.Y, 10))
	}
	return strings.NewReplacer(pairs...).Replace(t.pattern)
}

// String returns the pattern.
func (t Template) String() string { return t.pattern }

var gzipMagic = []byte{0x1f, 0x8b}

// Inflate returns data decompressed if it carries the gzip magic, and
// unchanged otherwise. Terrain servers commonly store tiles gzipped.
func Inflate(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	return out, nil
}
