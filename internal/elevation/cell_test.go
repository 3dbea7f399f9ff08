package elevation

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

func encodeCell(samples []int16) []byte {
	data := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.BigEndian.PutUint16(data[2*i:], uint16(v))
	}
	return data
}

func TestCellNames(t *testing.T) {
	tests := []struct {
		id   CellID
		name string
	}{
		{CellID{Lat: -45, Lon: 171}, "S45E171"},
		{CellID{Lat: 0, Lon: 0}, "N00E000"},
		{CellID{Lat: 35, Lon: -90}, "N35W090"},
		{CellID{Lat: -1, Lon: -180}, "S01W180"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.name, tt.id.Name())
			got, err := ParseCellID(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.id, got)
		})
	}

	_, err := ParseCellID("X45E171")
	require.Error(t, err)
	_, err = ParseCellID("N45")
	require.Error(t, err)
}

func degrees(lat, lon float64) geo.Position {
	return geo.Position{Lat: int32(math.Round(lat * geo.Scale)), Lon: int32(math.Round(lon * geo.Scale))}
}

func TestCellFor(t *testing.T) {
	require.Equal(t, CellID{Lat: -45, Lon: 171}, CellFor(degrees(-44.5, 171.2)))
	require.Equal(t, CellID{Lat: -1, Lon: -1}, CellFor(degrees(-0.0001, -0.0001)))
	require.Equal(t, CellID{Lat: 10, Lon: 20}, CellFor(geo.Position{Lat: 10 * geo.Scale, Lon: 20 * geo.Scale}))
}

func TestParseCell(t *testing.T) {
	id := CellID{Lat: 10, Lon: 20}
	c, err := ParseCell(id, encodeCell([]int16{1, 2, 3, -4, 5, 6, 7, 8, 9}), 3)
	require.NoError(t, err)
	require.Equal(t, 3, c.Size)
	require.Equal(t, int16(-4), c.Samples[3])

	// Size inferred from the byte count.
	c, err = ParseCell(id, encodeCell(make([]int16, 16)), 0)
	require.NoError(t, err)
	require.Equal(t, 4, c.Size)

	tests := []struct {
		name string
		data []byte
		size int
	}{
		{"odd byte count", []byte{0, 1, 2}, 0},
		{"wrong edge", encodeCell(make([]int16, 9)), 4},
		{"not square", encodeCell(make([]int16, 10)), 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCell(id, tt.data, tt.size)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrCorruptSource))
		})
	}
}

func cellPos(id CellID, latFrac, lonFrac float64) geo.Position {
	return degrees(float64(id.Lat)+latFrac, float64(id.Lon)+lonFrac)
}

func TestCellSample(t *testing.T) {
	id := CellID{Lat: 10, Lon: 20}

	t.Run("flat", func(t *testing.T) {
		c := FilledCell(id, 3, func(row, col int) int16 { return 100 })
		v, ok := c.Sample(cellPos(id, 0.5, 0.5))
		require.True(t, ok)
		require.InDelta(t, 100, v, 1e-9)
	})

	t.Run("east gradient", func(t *testing.T) {
		c := FilledCell(id, 3, func(row, col int) int16 { return int16(col * 10) })
		v, ok := c.Sample(cellPos(id, 0.5, 0.25))
		require.True(t, ok)
		require.InDelta(t, 5, v, 1e-3)
	})

	t.Run("north is row zero", func(t *testing.T) {
		c := FilledCell(id, 3, func(row, col int) int16 { return int16((2 - row) * 100) })
		v, ok := c.Sample(cellPos(id, 0.75, 0.5))
		require.True(t, ok)
		require.InDelta(t, 150, v, 1e-3)
	})

	t.Run("nodata renormalized", func(t *testing.T) {
		c := FilledCell(id, 2, func(row, col int) int16 {
			if row == 1 && col == 0 {
				return 500
			}
			return Nodata
		})
		v, ok := c.Sample(cellPos(id, 0.25, 0.25))
		require.True(t, ok)
		require.InDelta(t, 500, v, 1e-9)

		// The only measured corner carries almost no weight at the SE edge.
		v, ok = c.Sample(cellPos(id, 0, 0.9999999))
		require.True(t, ok)
		require.InDelta(t, 500, v, 1e-9)
	})

	t.Run("all nodata", func(t *testing.T) {
		c := FilledCell(id, 2, func(row, col int) int16 { return Nodata })
		_, ok := c.Sample(cellPos(id, 0.5, 0.5))
		require.False(t, ok)
	})

	t.Run("outside", func(t *testing.T) {
		c := FilledCell(id, 3, func(row, col int) int16 { return 1 })
		_, ok := c.Sample(cellPos(id, 1.5, 0.5))
		require.False(t, ok)
		_, ok = c.Sample(cellPos(id, 0.5, -0.5))
		require.False(t, ok)
	})
}

func TestParseDataset(t *testing.T) {
	ds, err := ParseDataset("")
	require.NoError(t, err)
	require.Equal(t, SRTM3, ds)
	ds, err = ParseDataset("srtm1")
	require.NoError(t, err)
	require.Equal(t, SRTM1, ds)
	_, err = ParseDataset("srtm90")
	require.Error(t, err)

	require.True(t, SRTM3.Covers(83))
	require.True(t, SRTM3.Covers(-84))
	require.False(t, SRTM3.Covers(84))
	require.False(t, SRTM3.Covers(-85))
	require.False(t, SRTM1.Covers(60))
	require.True(t, SRTM1.Covers(-60))
}

func TestSortCellIDs(t *testing.T) {
	ids := []CellID{{35, 138}, {-45, 171}, {35, -1}, {-45, 170}, {0, 0}}
	SortCellIDs(ids)
	require.Equal(t, []CellID{{-45, 170}, {-45, 171}, {0, 0}, {35, -1}, {35, 138}}, ids)
	require.True(t, CellID{Lat: -1, Lon: 100}.Less(CellID{Lat: 0, Lon: -100}))
	require.False(t, CellID{Lat: 3, Lon: 4}.Less(CellID{Lat: 3, Lon: 4}))
}
