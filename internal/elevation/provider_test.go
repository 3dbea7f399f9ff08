package elevation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

var tinyDataset = Dataset{Name: "tiny", Size: 3, Spacing: 100, LatLimit: 60}

func writeZip(t *testing.T, path, entry string, data []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.Create(entry)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func writeZstd(t *testing.T, path string, data []byte) {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	require.NoError(t, os.WriteFile(path, enc.EncodeAll(data, nil), 0o644))
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	raw := encodeCell([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "N10E020.hgt"), raw, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Australia"), 0o755))
	writeZip(t, filepath.Join(dir, "Australia", "S45E171.hgt.zip"), "S45E171.hgt", raw)
	writeZstd(t, filepath.Join(dir, "N35W090.hgt.zst"), raw)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "N01E001.hgt"), raw[:5], 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a cell"), 0o644))

	p := NewDirProvider(dir, tinyDataset)
	ctx := context.Background()

	ids, err := p.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []CellID{
		{Lat: -45, Lon: 171},
		{Lat: 1, Lon: 1},
		{Lat: 10, Lon: 20},
		{Lat: 35, Lon: -90},
	}, ids)

	for _, id := range []CellID{{Lat: 10, Lon: 20}, {Lat: -45, Lon: 171}, {Lat: 35, Lon: -90}} {
		t.Run(id.Name(), func(t *testing.T) {
			c, err := p.Fetch(ctx, id)
			require.NoError(t, err)
			require.Equal(t, id, c.ID)
			require.Equal(t, []int16{1, 2, 3, 4, 5, 6, 7, 8, 9}, c.Samples)
		})
	}

	_, err = p.Fetch(ctx, CellID{Lat: 1, Lon: 1})
	require.True(t, errors.Is(err, ErrCorruptSource))

	_, err = p.Fetch(ctx, CellID{Lat: 2, Lon: 2})
	require.True(t, errors.Is(err, ErrCellNotFound))
}

func TestDirProviderZipWithoutCell(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "N10E020.hgt.zip"), "license.txt", []byte("x"))

	p := NewDirProvider(dir, tinyDataset)
	_, err := p.Fetch(context.Background(), CellID{Lat: 10, Lon: 20})
	require.True(t, errors.Is(err, ErrCorruptSource))
}

func TestDirProviderMissingDir(t *testing.T) {
	p := NewDirProvider(filepath.Join(t.TempDir(), "missing"), tinyDataset)
	_, err := p.List(context.Background())
	require.Error(t, err)
}
