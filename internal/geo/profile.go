package geo

import (
	"strings"

	"github.com/cockroachdb/errors"
)

type Format int

const (
	FormatLegacy Format = iota
	Format41
)

// Profile carries every constant and behavior that differs between the
// firmware terrain formats. It is passed by value to all geometry calls.
type Profile struct {
	Format  Format
	Name    string
	Version uint16

	// MAVLink sends 4x4 grids; a disk block holds MulX (north) by MulY
	// (east) of them, overlapping its neighbours by one grid.
	MavlinkSize int
	MulX        int
	MulY        int

	ScalingFactor    float64
	ScalingFactorInv float64

	// MidLatitudeScale scales longitude by the cosine of the midpoint
	// latitude instead of the reference latitude.
	MidLatitudeScale bool
	// WrapLongitude takes the short way across the antimeridian.
	WrapLongitude bool
}

var (
	Legacy = Profile{
		Format:           FormatLegacy,
		Name:             "legacy",
		Version:          1,
		MavlinkSize:      4,
		MulX:             7,
		MulY:             8,
		ScalingFactor:    float64(float32(0.011131884502145034)),
		ScalingFactorInv: float64(float32(89.83204953368922)),
	}

	V41 = Profile{
		Format:           Format41,
		Name:             "4.1",
		Version:          1,
		MavlinkSize:      4,
		MulX:             7,
		MulY:             8,
		ScalingFactor:    float64(float32(0.011131884502145034)),
		ScalingFactorInv: float64(float32(89.83204953368922)),
		MidLatitudeScale: true,
		WrapLongitude:    true,
	}
)

func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "4.1", "v4.1", "current":
		return V41, nil
	case "", "legacy", "pre-4.1", "pre4.1":
		return Legacy, nil
	}
	return Profile{}, errors.Newf("unknown terrain format %q", s)
}

func (p Profile) String() string {
	return p.Name
}

// BlockSizeX is the number of samples north in a disk block (28).
func (p Profile) BlockSizeX() int { return p.MavlinkSize * p.MulX }

// BlockSizeY is the number of samples east in a disk block (32).
func (p Profile) BlockSizeY() int { return p.MavlinkSize * p.MulY }

// BlockSpacingX is the north distance between block origins, in samples (24).
func (p Profile) BlockSpacingX() int { return (p.MulX - 1) * p.MavlinkSize }

// BlockSpacingY is the east distance between block origins, in samples (28).
func (p Profile) BlockSpacingY() int { return (p.MulY - 1) * p.MavlinkSize }

func (p Profile) SamplesPerBlock() int { return p.BlockSizeX() * p.BlockSizeY() }
