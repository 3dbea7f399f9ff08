package grid

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

func TestPlanCounts(t *testing.T) {
	tests := []struct {
		lat, lon, spacing int
		count, stride     int
	}{
		{0, 0, 100, 1974, 42},
		{-45, 171, 100, 1410, 30},
		{-45, 171, 30, 14725, 95},
		{83, 149, 100, 329, 7},
		{-84, 149, 100, 282, 6},
		{89, 10, 100, 94, 2},
		{60, -90, 100, 1034, 22},
		{10, 179, 100, 1927, 41},
	}

	for _, tt := range tests {
		for _, p := range []geo.Profile{geo.Legacy, geo.V41} {
			l, err := Plan(tt.lat, tt.lon, tt.spacing, p)
			require.NoError(t, err)
			require.Equal(t, tt.count, l.Count, "%d,%d/%d %s", tt.lat, tt.lon, tt.spacing, p)
			require.Equal(t, tt.stride, l.Stride)
			require.Empty(t, l.Skipped)
			require.Len(t, l.Blocks, l.Count)
			require.Equal(t, 0, l.Count%l.Stride)
		}
	}
}

func TestBlockNumBijection(t *testing.T) {
	for _, p := range []geo.Profile{geo.Legacy, geo.V41} {
		for _, deg := range [][2]int{{-45, 171}, {35, -90}, {-1, -1}, {83, 149}} {
			l, err := Plan(deg[0], deg[1], 100, p)
			require.NoError(t, err)

			seen := make(map[[2]int]int, len(l.Blocks))
			for n, b := range l.Blocks {
				require.Equal(t, n, b.BlockNum())
				key := [2]int{b.GridIdxX, b.GridIdxY}
				_, dup := seen[key]
				require.False(t, dup, "indices %v repeated", key)
				seen[key] = n

				corner, err := geo.PositionFromByteOffset(deg[0], deg[1], int64(n)*geo.IOBlockSize, 100, p)
				require.NoError(t, err)
				again, err := Locate(deg[0], deg[1], corner, 100, p)
				require.NoError(t, err)
				require.Equal(t, b.GridIdxX, again.GridIdxX)
				require.Equal(t, b.GridIdxY, again.GridIdxY)
				require.Equal(t, n, again.BlockNum())
				require.Equal(t, 0, again.IdxX)
				require.Equal(t, 0, again.IdxY)
				require.Equal(t, corner, again.Corner)
			}
		}
	}
}

func TestLocateInsideBlock(t *testing.T) {
	p := geo.V41
	ref := geo.Anchor(-45, 171)
	pos := p.Offset(ref, geo.MetricOffset{North: 2400*3 + 550, East: 2800*2 + 1234})

	b, err := Locate(-45, 171, pos, 100, p)
	require.NoError(t, err)
	require.Equal(t, 3, b.GridIdxX)
	require.Equal(t, 2, b.GridIdxY)
	require.Equal(t, 5, b.IdxX)
	require.Equal(t, 12, b.IdxY)
	require.InDelta(t, 0.5, b.FracX, 0.011)
	require.InDelta(t, 0.34, b.FracY, 0.011)
	require.GreaterOrEqual(t, b.FracX, 0.0)
	require.Less(t, b.FracX, 1.0)
	require.Equal(t, 3*b.Stride+2, b.BlockNum())
}

func TestLocateErrors(t *testing.T) {
	_, err := Locate(-45, 171, geo.Anchor(-46, 171), 100, geo.V41)
	require.True(t, errors.Is(err, ErrOutsideDegree))

	_, err = Locate(-45, 171, geo.Anchor(-45, 170), 100, geo.V41)
	require.True(t, errors.Is(err, ErrOutsideDegree))

	_, err = Locate(95, 171, geo.Anchor(0, 0), 100, geo.V41)
	require.True(t, errors.Is(err, geo.ErrMathDomain))

	_, err = Locate(0, 0, geo.Position{Lat: 0, Lon: 1900000000}, 100, geo.V41)
	require.True(t, errors.Is(err, geo.ErrMathDomain))

	_, err = Locate(83, 0, geo.Anchor(83, 0), 65535, geo.V41)
	require.True(t, errors.Is(err, geo.ErrMathDomain))
}

func TestApronSharedWithNeighbours(t *testing.T) {
	p := geo.V41
	l, err := Plan(-45, 171, 100, p)
	require.NoError(t, err)

	b := l.Blocks[l.Stride+3]
	north := l.Blocks[2*l.Stride+3]
	east := l.Blocks[l.Stride+4]

	for gy := 0; gy < p.BlockSizeY(); gy++ {
		require.Equal(t, b.SamplePosition(p.BlockSpacingX(), gy), north.SamplePosition(0, gy))
	}
	for gx := 0; gx < p.BlockSizeX(); gx++ {
		require.Equal(t, b.SamplePosition(gx, p.BlockSpacingY()), east.SamplePosition(gx, 0))
	}
	require.Equal(t, b.Corner, b.SamplePosition(0, 0))
}

func TestSubgridBit(t *testing.T) {
	p := geo.V41
	require.Equal(t, uint(0), SubgridBit(p, 0, 0))
	require.Equal(t, uint(0), SubgridBit(p, 3, 3))
	require.Equal(t, uint(1), SubgridBit(p, 0, 4))
	require.Equal(t, uint(8), SubgridBit(p, 4, 0))
	require.Equal(t, uint(55), SubgridBit(p, 27, 31))
	require.Equal(t, uint64(1)<<56-1, FullBitmap(p))
}

func TestWalk(t *testing.T) {
	var nums []int
	err := Walk(83, 149, 100, geo.V41, func(b Block) error {
		nums = append(nums, b.BlockNum())
		return nil
	})
	require.NoError(t, err)
	require.Len(t, nums, 329)
	for i, n := range nums {
		require.Equal(t, i, n)
	}

	stop := errors.New("stop")
	calls := 0
	err = Walk(83, 149, 100, geo.V41, func(b Block) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 3, calls)

	require.Error(t, Walk(90, 0, 100, geo.V41, func(Block) error { return nil }))
}

func TestPlanCoarseSpacing(t *testing.T) {
	for _, p := range []geo.Profile{geo.Legacy, geo.V41} {
		_, err := Plan(83, 0, 65535, p)
		require.True(t, errors.Is(err, geo.ErrMathDomain), "format=%s: %v", p, err)

		_, err = Plan(89, 0, 20000, p)
		require.True(t, errors.Is(err, geo.ErrMathDomain), "format=%s: %v", p, err)
	}
}
