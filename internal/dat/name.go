package dat

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// FileName is the terrain file name of the degree, e.g. S45E171.DAT.
func FileName(latInt, lonInt int) string {
	ns, ew := 'N', 'E'
	if latInt < 0 {
		ns = 'S'
	}
	if lonInt < 0 {
		ew = 'W'
	}
	return fmt.Sprintf("%c%02d%c%03d.DAT", ns, min(abs(latInt), 99), ew, min(abs(lonInt), 999))
}

func ParseFileName(name string) (latInt, lonInt int, err error) {
	base := strings.TrimSuffix(strings.ToUpper(name), ".DAT")
	var ns, ew rune
	if _, err := fmt.Sscanf(base, "%c%2d%c%3d", &ns, &latInt, &ew, &lonInt); err != nil {
		return 0, 0, errors.Wrapf(err, "terrain file name %q", name)
	}
	if len(base) != 7 {
		return 0, 0, errors.Newf("terrain file name %q", name)
	}
	switch ns {
	case 'S':
		latInt = -latInt
	case 'N':
	default:
		return 0, 0, errors.Newf("terrain file name %q: bad hemisphere %q", name, ns)
	}
	switch ew {
	case 'W':
		lonInt = -lonInt
	case 'E':
	default:
		return 0, 0, errors.Newf("terrain file name %q: bad hemisphere %q", name, ew)
	}
	return latInt, lonInt, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
