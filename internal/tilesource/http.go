package tilesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// DefaultTimeout bounds a single tile request.
const DefaultTimeout = 10 * time.Second

// maxPayload guards against runaway responses.
const maxPayload = 16 << 20

// HTTPSource fetches tiles from a URL template such as
// "https://example.com/tiles/{z}/{x}/{reverseY}.terrain".
type HTTPSource struct {
	template Template
	client   *http.Client
	// Accept is sent with every request.
	Accept string
}

// NewHTTPSource creates a source. A zero timeout uses DefaultTimeout.
func NewHTTPSource(template Template, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSource{
		template: template,
		client:   &http.Client{Timeout: timeout},
		Accept:   "application/vnd.quantized-mesh,application/octet-stream;q=0.9",
	}
}

// Fetch implements Source. 404 and 204 responses map to ErrNotFound.
func (s *HTTPSource) Fetch(ctx context.Context, addr tiling.Address) ([]byte, error) {
	url := s.template.Expand(addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", addr, err)
	}
	if s.Accept != "" {
		req.Header.Set("Accept", s.Accept)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching tile %s: %w", addr, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("tile %s: %w", addr, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching tile %s: unexpected status %s", addr, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("reading tile %s: %w", addr, err)
	}
	if len(data) > maxPayload {
		return nil, fmt.Errorf("tile %s larger than %d bytes", addr, maxPayload)
	}
	// The transport inflates negotiated gzip itself; tiles stored gzipped
	// and served without Content-Encoding still carry the magic.
	return Inflate(data)
}
