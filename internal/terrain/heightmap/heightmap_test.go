package heightmap

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-terrain/internal/tilesource"
	"github.com/Faultbox/midgard-terrain/pkg/geo"
	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

func rawTile(fill uint16, mask byte, water []byte) []byte {
	data := make([]byte, TileSize*TileSize*2)
	for i := 0; i < TileSize*TileSize; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], fill)
	}
	data = append(data, mask)
	return append(data, water...)
}

func TestDecode(t *testing.T) {
	// 5000 / 5 - 1000 = 0 m
	h, err := Decode(rawTile(5000, ChildNorthwest|ChildSoutheast, []byte{1}))
	require.NoError(t, err)

	assert.Equal(t, TileSize, h.Width)
	assert.Equal(t, TileSize, h.Height)
	assert.Len(t, h.Heights, TileSize*TileSize)
	assert.InDelta(t, 0, h.At(10, 20), 1e-6)
	assert.True(t, h.HasChild(ChildNorthwest))
	assert.True(t, h.HasChild(ChildSoutheast))
	assert.False(t, h.HasChild(ChildSouthwest))
	assert.Equal(t, []byte{1}, h.WaterMask)
	require.NoError(t, h.Validate())
}

func TestDecodeHeights(t *testing.T) {
	data := rawTile(0, 0, nil)
	binary.LittleEndian.PutUint16(data[0:], 65535)
	binary.LittleEndian.PutUint16(data[2*(TileSize+1):], 10000)

	h, err := Decode(data)
	require.NoError(t, err)
	assert.InDelta(t, 12107, h.At(0, 0), 1e-3)
	assert.InDelta(t, 1000, h.At(1, 1), 1e-3)
	assert.InDelta(t, -1000, h.At(2, 2), 1e-3)
	assert.Nil(t, h.WaterMask)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"missing child mask", rawTile(0, 0, nil)[:TileSize*TileSize*2]},
		{"bad water mask", rawTile(0, 0, []byte{1, 2, 3})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	h, err := Decode(rawTile(7500, ChildNortheast, make([]byte, WaterMaskSize*WaterMaskSize)))
	require.NoError(t, err)

	data, err := Encode(h)
	require.NoError(t, err)
	again, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, h, again)

	_, err = Encode(&Heightmap{Width: 2, Height: 2, Heights: make([]float32, 4)})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, (*Heightmap)(nil).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&Heightmap{Width: 1, Height: 5, Heights: make([]float32, 5)}).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&Heightmap{Width: 3, Height: 3, Heights: make([]float32, 8)}).Validate(), ErrMalformed)
	assert.NoError(t, (&Heightmap{Width: 2, Height: 3, Heights: make([]float32, 6)}).Validate())
}

func TestNoiseSourceSharesEdges(t *testing.T) {
	src := NewNoiseSource(DefaultNoiseConfig())
	scheme := tiling.NewGeographicScheme(geo.WGS84)
	ctx := context.Background()

	west := tiling.NewAddress(4, 6, 5)
	east := tiling.NewAddress(4, 7, 5)
	hw, err := src.Heightmap(ctx, west, scheme.TileExtent(west))
	require.NoError(t, err)
	he, err := src.Heightmap(ctx, east, scheme.TileExtent(east))
	require.NoError(t, err)
	require.NoError(t, hw.Validate())

	n := hw.Width
	for row := 0; row < n; row++ {
		assert.InDelta(t, hw.At(n-1, row), he.At(0, row), 1e-3, "row %d", row)
	}

	again, err := NewNoiseSource(DefaultNoiseConfig()).Heightmap(ctx, west, scheme.TileExtent(west))
	require.NoError(t, err)
	assert.Equal(t, hw.Heights, again.Heights)
}

func TestNoiseSourceHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNoiseSource(DefaultNoiseConfig()).Heightmap(ctx, tiling.NewAddress(0, 0, 0), geo.MaxExtent)
	assert.ErrorIs(t, err, context.Canceled)
}

type memSource map[tiling.Address][]byte

func (m memSource) Fetch(_ context.Context, addr tiling.Address) ([]byte, error) {
	if data, ok := m[addr]; ok {
		return data, nil
	}
	return nil, tilesource.ErrNotFound
}

func TestTileSource(t *testing.T) {
	addr := tiling.NewAddress(1, 0, 0)
	src := NewTileSource(memSource{
		addr:                       rawTile(5500, 0, nil),
		tiling.NewAddress(1, 1, 0): []byte("garbage"),
	})
	ctx := context.Background()

	h, err := src.Heightmap(ctx, addr, geo.Extent{})
	require.NoError(t, err)
	assert.InDelta(t, 100, h.At(64, 64), 1e-3)

	_, err = src.Heightmap(ctx, tiling.NewAddress(1, 1, 0), geo.Extent{})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = src.Heightmap(ctx, tiling.NewAddress(1, 0, 1), geo.Extent{})
	assert.ErrorIs(t, err, tilesource.ErrNotFound)
}
