// Package mosaic samples the source cells under the sample positions of a
// grid block.
package mosaic

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/geo"
	"github.com/yakkun/terrain-grid-gen/internal/grid"
)

type Coverage int

const (
	CoverageNone Coverage = iota
	CoveragePartial
	CoverageFull
)

func (c Coverage) String() string {
	switch c {
	case CoverageFull:
		return "full"
	case CoveragePartial:
		return "partial"
	}
	return "none"
}

// Samples holds the heights of one block, x-major: index gx*SizeY + gy.
type Samples struct {
	SizeX, SizeY int
	Heights      []int16
	Valid        []bool
	Coverage     Coverage
	// Pending lists the cells still being retrieved. Heights are
	// meaningless while it is non-empty.
	Pending []elevation.CellID
}

func (s *Samples) At(gx, gy int) (int16, bool) {
	i := gx*s.SizeY + gy
	return s.Heights[i], s.Valid[i]
}

// ValidCount is the number of samples with a measurement or sea level.
func (s *Samples) ValidCount() int {
	n := 0
	for _, v := range s.Valid {
		if v {
			n++
		}
	}
	return n
}

type Mosaic struct {
	resolver elevation.Resolver
	logger   *zap.Logger
}

func New(resolver elevation.Resolver, logger *zap.Logger) *Mosaic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mosaic{resolver: resolver, logger: logger}
}

func (m *Mosaic) Dataset() elevation.Dataset {
	return m.resolver.Dataset()
}

// Block samples every position of b. Cells are resolved once per block;
// the memo never outlives the call.
func (m *Mosaic) Block(ctx context.Context, b grid.Block) (*Samples, error) {
	p := b.Profile()
	s := &Samples{
		SizeX:   p.BlockSizeX(),
		SizeY:   p.BlockSizeY(),
		Heights: make([]int16, p.SamplesPerBlock()),
		Valid:   make([]bool, p.SamplesPerBlock()),
	}

	r := resolver{ctx: ctx, src: m.resolver, memo: make(map[elevation.CellID]elevation.Lookup)}
	for gx := 0; gx < s.SizeX; gx++ {
		for gy := 0; gy < s.SizeY; gy++ {
			h, ok, err := r.sample(b.SamplePosition(gx, gy))
			if err != nil {
				return nil, errors.Wrapf(err, "block %d of %d,%d", b.BlockNum(), b.LatDegrees, b.LonDegrees)
			}
			i := gx*s.SizeY + gy
			s.Heights[i], s.Valid[i] = h, ok
		}
	}

	s.Pending = r.pendingIDs()
	switch n := s.ValidCount(); {
	case n == len(s.Valid):
		s.Coverage = CoverageFull
	case n > 0:
		s.Coverage = CoveragePartial
	}
	if len(s.Pending) > 0 {
		m.logger.Debug("block waiting on source cells",
			zap.Int("block", b.BlockNum()), zap.Int("pending", len(s.Pending)))
	}
	return s, nil
}

// Point is the height at a single position, as a block sample would
// carry it.
type Point struct {
	Height int16
	Valid  bool
	Cell   elevation.CellID
	Status elevation.Status
}

func (m *Mosaic) Point(ctx context.Context, pos geo.Position) (Point, error) {
	if err := pos.Validate(); err != nil {
		return Point{}, err
	}
	r := resolver{ctx: ctx, src: m.resolver, memo: make(map[elevation.CellID]elevation.Lookup, 1)}
	h, ok, err := r.sample(pos)
	if err != nil {
		return Point{}, err
	}
	id := elevation.CellFor(wrapLongitude(pos))
	return Point{Height: h, Valid: ok, Cell: id, Status: r.memo[id].Status}, nil
}

type resolver struct {
	ctx     context.Context
	src     elevation.Resolver
	memo    map[elevation.CellID]elevation.Lookup
	pending map[elevation.CellID]struct{}
}

func (r *resolver) sample(pos geo.Position) (int16, bool, error) {
	pos = wrapLongitude(pos)
	id := elevation.CellFor(pos)
	look, ok := r.memo[id]
	if !ok {
		var err error
		look, err = r.src.Lookup(r.ctx, id)
		if err != nil {
			return 0, false, err
		}
		r.memo[id] = look
	}

	switch look.Status {
	case elevation.StatusLand:
		v, ok := look.Cell.Sample(pos)
		if !ok {
			return 0, false, nil
		}
		return height(v), true, nil
	case elevation.StatusOcean:
		return 0, true, nil
	case elevation.StatusPending:
		if r.pending == nil {
			r.pending = make(map[elevation.CellID]struct{})
		}
		r.pending[id] = struct{}{}
	}
	return 0, false, nil
}

func (r *resolver) pendingIDs() []elevation.CellID {
	if len(r.pending) == 0 {
		return nil
	}
	ids := make([]elevation.CellID, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	elevation.SortCellIDs(ids)
	return ids
}

// height truncates toward zero and keeps clear of the nodata value.
func height(v float64) int16 {
	v = math.Trunc(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < -math.MaxInt16:
		return -math.MaxInt16
	}
	return int16(v)
}

const (
	lon180 = 180 * geo.Scale
	lon360 = 360 * geo.Scale
)

// wrapLongitude moves block samples that run past the antimeridian back
// into [-180, 180).
func wrapLongitude(pos geo.Position) geo.Position {
	lon := int64(pos.Lon)
	for lon >= lon180 {
		lon -= lon360
	}
	for lon < -lon180 {
		lon += lon360
	}
	pos.Lon = int32(lon)
	return pos
}
