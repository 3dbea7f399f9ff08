package elevation

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Dataset describes a source tier: its raster edge length, the output
// spacing it supports and the latitude band it covers.
type Dataset struct {
	Name    string
	Size    int
	Spacing int
	// LatLimit bounds covered cells to -LatLimit <= lat < LatLimit.
	LatLimit int
}

var (
	SRTM1 = Dataset{Name: "SRTM1", Size: 3601, Spacing: 30, LatLimit: 60}
	SRTM3 = Dataset{Name: "SRTM3", Size: 1201, Spacing: 100, LatLimit: 84}
)

func ParseDataset(s string) (Dataset, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "SRTM1":
		return SRTM1, nil
	case "3", "SRTM3", "":
		return SRTM3, nil
	}
	return Dataset{}, errors.Newf("unknown dataset %q", s)
}

// Covers reports whether the cell row at latInt lies inside the band.
func (d Dataset) Covers(latInt int) bool {
	return latInt >= -d.LatLimit && latInt < d.LatLimit
}
