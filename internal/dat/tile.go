package dat

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Tile is a decoded terrain file.
type Tile struct {
	LatDegrees int
	LonDegrees int
	Records    []Record
}

// ReadTile loads a terrain file. The degree comes from the file name when
// it parses, otherwise from the first written record.
func ReadTile(path string) (*Tile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	t, err := ParseTile(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	if lat, lon, err := ParseFileName(filepath.Base(path)); err == nil {
		t.LatDegrees, t.LonDegrees = lat, lon
	}
	return t, nil
}

func ParseTile(data []byte) (*Tile, error) {
	if len(data) == 0 || len(data)%RecordSize != 0 {
		return nil, errors.Wrapf(ErrLayout, "%d bytes is not a whole number of %d byte records", len(data), RecordSize)
	}
	t := &Tile{Records: make([]Record, len(data)/RecordSize)}
	found := false
	for i := range t.Records {
		r := &t.Records[i]
		if err := r.UnmarshalBinary(data[i*RecordSize : (i+1)*RecordSize]); err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		if !found && !r.IsEmpty() {
			t.LatDegrees, t.LonDegrees = int(r.LatDegrees), int(r.LonDegrees)
			found = true
		}
	}
	return t, nil
}

// Stride is the number of blocks per row, recovered from the records.
func (t *Tile) Stride() int {
	stride := 0
	for i := range t.Records {
		if y := int(t.Records[i].GridIdxY) + 1; !t.Records[i].IsEmpty() && y > stride {
			stride = y
		}
	}
	return stride
}

// Verify checks every written record and that it sits at its own
// blocknum. It returns the first problem found.
func (t *Tile) Verify() error {
	stride := t.Stride()
	for i := range t.Records {
		r := &t.Records[i]
		if r.IsEmpty() {
			continue
		}
		if err := r.Verify(); err != nil {
			return errors.Wrapf(err, "record %d", i)
		}
		if n := stride*int(r.GridIdxX) + int(r.GridIdxY); n != i {
			return errors.Wrapf(ErrLayout, "record %d holds block %d,%d (blocknum %d)", i, r.GridIdxX, r.GridIdxY, n)
		}
		if int(r.LatDegrees) != t.LatDegrees || int(r.LonDegrees) != t.LonDegrees {
			return errors.Wrapf(ErrLayout, "record %d belongs to degree %d,%d", i, r.LatDegrees, r.LonDegrees)
		}
	}
	return nil
}

type TileStats struct {
	Records   int
	Empty     int
	Spacing   int
	Stride    int
	MinHeight int16
	MaxHeight int16
	NonZero   int
	// FullBitmaps counts records with every sub-grid marked valid.
	FullBitmaps int
}

func (t *Tile) Stats() TileStats {
	st := TileStats{Records: len(t.Records), Stride: t.Stride()}
	first := true
	for i := range t.Records {
		r := &t.Records[i]
		if r.IsEmpty() {
			st.Empty++
			continue
		}
		st.Spacing = int(r.Spacing)
		if r.Bitmap == 1<<((BlockSizeX/4)*(BlockSizeY/4))-1 {
			st.FullBitmaps++
		}
		for gx := range r.Heights {
			for _, h := range r.Heights[gx] {
				if first || h < st.MinHeight {
					st.MinHeight = h
				}
				if first || h > st.MaxHeight {
					st.MaxHeight = h
				}
				first = false
				if h != 0 {
					st.NonZero++
				}
			}
		}
	}
	return st
}

// Raster is a tile with the block aprons removed. Row 0 is the northern
// edge and rows run east.
type Raster struct {
	Width   int
	Height  int
	Spacing int
	Heights []int16
}

func (r *Raster) At(row, col int) int16 {
	return r.Heights[row*r.Width+col]
}

// Detile lays the blocks out as one raster. Each block keeps only the
// samples up to the next block's corner.
func (t *Tile) Detile() (*Raster, error) {
	stride := t.Stride()
	if stride == 0 {
		return nil, errors.Wrap(ErrLayout, "tile has no written records")
	}
	const spanX, spanY = BlockSizeX - 4, BlockSizeY - 4
	rows := (len(t.Records) + stride - 1) / stride

	out := &Raster{Width: stride * spanY, Height: rows * spanX}
	out.Heights = make([]int16, out.Width*out.Height)
	for i := range t.Records {
		r := &t.Records[i]
		if r.IsEmpty() {
			continue
		}
		out.Spacing = int(r.Spacing)
		bx, by := int(r.GridIdxX), int(r.GridIdxY)
		if bx >= rows || by >= stride {
			return nil, errors.Wrapf(ErrLayout, "record %d block %d,%d outside %dx%d", i, bx, by, rows, stride)
		}
		for gx := 0; gx < spanX; gx++ {
			row := out.Height - 1 - (bx*spanX + gx)
			for gy := 0; gy < spanY; gy++ {
				out.Heights[row*out.Width+by*spanY+gy] = r.Heights[gx][gy]
			}
		}
	}
	return out, nil
}
