package elevation

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

// Nodata marks a source sample without a measurement.
const Nodata = int16(-32768)

var ErrCorruptSource = errors.New("corrupt source cell")

// CellID names a one-degree source cell by its SW corner.
type CellID struct {
	Lat int
	Lon int
}

func CellFor(pos geo.Position) CellID {
	return CellID{Lat: floorDegrees(int64(pos.Lat)), Lon: floorDegrees(int64(pos.Lon))}
}

func floorDegrees(e7 int64) int {
	d := e7 / geo.Scale
	if e7%geo.Scale != 0 && e7 < 0 {
		d--
	}
	return int(d)
}

func (id CellID) Name() string {
	ns, ew := 'N', 'E'
	lat, lon := id.Lat, id.Lon
	if lat < 0 {
		ns, lat = 'S', -lat
	}
	if lon < 0 {
		ew, lon = 'W', -lon
	}
	return fmt.Sprintf("%c%02d%c%03d", ns, lat, ew, lon)
}

func (id CellID) String() string { return id.Name() }

// Less orders cells south to north, then west to east.
func (id CellID) Less(other CellID) bool {
	if id.Lat != other.Lat {
		return id.Lat < other.Lat
	}
	return id.Lon < other.Lon
}

func SortCellIDs(ids []CellID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

func ParseCellID(name string) (CellID, error) {
	var ns, ew rune
	var lat, lon int
	if _, err := fmt.Sscanf(name, "%c%2d%c%3d", &ns, &lat, &ew, &lon); err != nil {
		return CellID{}, errors.Wrapf(err, "cell name %q", name)
	}
	switch ns {
	case 'S', 's':
		lat = -lat
	case 'N', 'n':
	default:
		return CellID{}, errors.Newf("cell name %q: bad hemisphere %q", name, ns)
	}
	switch ew {
	case 'W', 'w':
		lon = -lon
	case 'E', 'e':
	default:
		return CellID{}, errors.Newf("cell name %q: bad hemisphere %q", name, ew)
	}
	return CellID{Lat: lat, Lon: lon}, nil
}

// Cell is one decoded source raster. Row 0 is the north edge and the
// first and last rows and columns lie on the cell borders.
type Cell struct {
	ID      CellID
	Size    int
	Samples []int16
}

// ParseCell decodes big-endian int16 samples. A size of 0 accepts any
// square raster.
func ParseCell(id CellID, data []byte, size int) (*Cell, error) {
	if len(data)%2 != 0 {
		return nil, errors.Mark(errors.Newf("%s: odd byte count %d", id, len(data)), ErrCorruptSource)
	}
	n := len(data) / 2
	if size == 0 {
		size = int(math.Round(math.Sqrt(float64(n))))
	}
	if size < 2 || size*size != n {
		return nil, errors.Mark(errors.Newf("%s: %d bytes is not a %dx%d raster", id, len(data), size, size), ErrCorruptSource)
	}

	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(data[2*i:]))
	}
	return &Cell{ID: id, Size: size, Samples: samples}, nil
}

func (c *Cell) pixel(x, y int) (int16, bool) {
	v := c.Samples[x+c.Size*(c.Size-1-y)]
	return v, v != Nodata
}

// Sample interpolates the cell bilinearly at pos. Nodata neighbours drop
// out and the remaining weights are renormalized. ok is false when pos is
// outside the cell or no neighbour has a measurement.
func (c *Cell) Sample(pos geo.Position) (float64, bool) {
	latFrac := float64(int64(pos.Lat)-int64(c.ID.Lat)*geo.Scale) / geo.Scale
	lonFrac := float64(int64(pos.Lon)-int64(c.ID.Lon)*geo.Scale) / geo.Scale
	if latFrac < 0 || latFrac >= 1 || lonFrac < 0 || lonFrac >= 1 {
		return 0, false
	}

	x := lonFrac * float64(c.Size-1)
	y := latFrac * float64(c.Size-1)
	xi, yi := int(x), int(y)
	if xi > c.Size-2 {
		xi = c.Size - 2
	}
	if yi > c.Size-2 {
		yi = c.Size - 2
	}
	xf, yf := x-float64(xi), y-float64(yi)

	corners := [4]struct {
		x, y int
		w    float64
	}{
		{xi, yi, (1 - xf) * (1 - yf)},
		{xi + 1, yi, xf * (1 - yf)},
		{xi, yi + 1, (1 - xf) * yf},
		{xi + 1, yi + 1, xf * yf},
	}

	var sum, wsum, plain float64
	valid := 0
	for _, k := range corners {
		v, ok := c.pixel(k.x, k.y)
		if !ok {
			continue
		}
		valid++
		sum += k.w * float64(v)
		wsum += k.w
		plain += float64(v)
	}
	switch {
	case valid == 0:
		return 0, false
	case wsum > 1e-9:
		return sum / wsum, true
	default:
		return plain / float64(valid), true
	}
}
