package diag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

func TestMapDegree(t *testing.T) {
	samples, err := MapDegree(-45, 171, 100, geo.V41)
	require.NoError(t, err)
	require.Len(t, samples, 1410*28*32)

	first := samples[0]
	require.Equal(t, 0, first.BlockNum)
	require.Equal(t, geo.Anchor(-45, 171), first.Pos)
	require.Equal(t, geo.MetricOffset{}, first.Offset)

	second := samples[28*32]
	require.Equal(t, 1, second.BlockNum)
	require.Equal(t, geo.MetricOffset{North: 0, East: 2800}, second.Offset)

	// Block 0 sample (24, 0) is sample (0, 0) of the block above.
	apron := samples[24*32]
	above := samples[30*28*32]
	require.Equal(t, 30, above.BlockNum)
	require.Equal(t, apron.Pos, above.Pos)
	require.Equal(t, apron.Offset, above.Offset)

	_, err = MapDegree(90, 0, 100, geo.V41)
	require.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	reports := map[string]Report{}
	for _, p := range []geo.Profile{geo.Legacy, geo.V41} {
		samples, err := MapDegree(83, 149, 100, p)
		require.NoError(t, err)
		rep := Analyze(samples, 83, 149, 100, p)
		require.Equal(t, len(samples), rep.Samples)
		require.LessOrEqual(t, rep.FlatError.P99, rep.FlatError.Max)
		require.LessOrEqual(t, rep.RoundTripM, 2.0)
		reports[p.Name] = rep
	}

	legacy, current := reports[geo.Legacy.Name], reports[geo.V41.Name]
	require.LessOrEqual(t, legacy.RoundTripLat, int64(1))
	require.LessOrEqual(t, legacy.RoundTripLon, int64(1))
	require.Less(t, current.FlatError.Max, 20.0)
	require.Greater(t, legacy.FlatError.Max, 50.0)
}

func TestAnalyzeEmpty(t *testing.T) {
	rep := Analyze(nil, 0, 0, 100, geo.V41)
	require.Zero(t, rep.Samples)
	require.Zero(t, rep.FlatError.Max)
}
