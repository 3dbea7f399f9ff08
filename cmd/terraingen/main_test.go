package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yakkun/terrain-grid-gen/internal/terrain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := makeTerraingenCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseDegrees(t *testing.T) {
	got, err := parseDegrees([]string{"S45E171", "-1,179"}, "10,20,11,20")
	require.NoError(t, err)
	require.Equal(t, []terrain.Degree{{Lat: 10, Lon: 20}, {Lat: 11, Lon: 20}, {Lat: -45, Lon: 171}, {Lat: -1, Lon: 179}}, got)

	for _, tt := range []struct {
		args []string
		bbox string
	}{
		{nil, ""},
		{[]string{"X45E171"}, ""},
		{[]string{"1,2,3"}, ""},
		{nil, "1,2,3"},
		{nil, "2,0,1,0"},
	} {
		_, err := parseDegrees(tt.args, tt.bbox)
		require.Error(t, err, "%v %q", tt.args, tt.bbox)
	}
}

func TestGenerateAndInspect(t *testing.T) {
	src, outDir := t.TempDir(), t.TempDir()
	common := []string{
		"--config", filepath.Join(src, "none.yaml"),
		"--source", src, "--output", outDir,
	}

	out, err := run(t, append([]string{"generate", "S85E171", "N10E020"}, common...)...)
	require.NoError(t, err, out)
	require.Contains(t, out, "S85E171.DAT  not_covered")
	require.Contains(t, out, "N10E020.DAT  ready")
	require.Contains(t, out, "1 of 2 tiles written")

	path := filepath.Join(outDir, "4.1", "100", "N10E020.DAT")
	raster := filepath.Join(t.TempDir(), "n10e020.raw")
	out, err = run(t, "inspect", path, "--raster", raster)
	require.NoError(t, err, out)
	require.Contains(t, out, "degree 10,20")
	require.True(t, strings.HasSuffix(strings.TrimSpace(out), "raster written to "+raster))
	info, err := os.Stat(raster)
	require.NoError(t, err)
	require.Positive(t, info.Size())

	bad := filepath.Join(t.TempDir(), "N10E020.DAT")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[100] ^= 0xff
	require.NoError(t, os.WriteFile(bad, data, 0o644))
	out, err = run(t, "inspect", bad)
	require.Error(t, err)
	require.Contains(t, out, "FAILED")
}

func TestMapCommand(t *testing.T) {
	src := t.TempDir()
	out, err := run(t, "map", "--config", filepath.Join(src, "none.yaml"), "--source", src,
		"--format", "legacy", "--json", "--", "-45", "171")
	require.NoError(t, err, out)
	require.Contains(t, out, `"profile": "legacy"`)
	require.Contains(t, out, `"lat": -45`)
}
