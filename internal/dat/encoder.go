package dat

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/geo"
	"github.com/yakkun/terrain-grid-gen/internal/grid"
	"github.com/yakkun/terrain-grid-gen/internal/mosaic"
)

type State int

const (
	StateReady State = iota
	// StatePending: source cells are still being retrieved. No file was
	// written and the call should be repeated.
	StatePending
	// StateNotCovered: the dataset has no data for the degree. No file is
	// ever written.
	StateNotCovered
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePending:
		return "pending"
	case StateNotCovered:
		return "not_covered"
	}
	return "unknown"
}

type Result struct {
	State State
	Name  string
	Path  string
	Bytes int64

	// Blocks is the number of records in the file, Skipped the blocknums
	// left empty.
	Blocks  int
	Skipped []int

	Full    int
	Partial int
	Empty   int

	Pending []elevation.CellID

	// Reused is set when the file was already on disk and nothing was
	// written.
	Reused bool
}

// BlockObserver is told how long each block took to sample and pack.
type BlockObserver func(coverage mosaic.Coverage, d time.Duration)

type EncoderOption func(*Encoder)

func WithWorkers(n int) EncoderOption {
	return func(e *Encoder) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l *zap.Logger) EncoderOption {
	return func(e *Encoder) { e.logger = l }
}

func WithBlockObserver(fn BlockObserver) EncoderOption {
	return func(e *Encoder) { e.observe = fn }
}

type Encoder struct {
	mosaic  *mosaic.Mosaic
	logger  *zap.Logger
	workers int
	observe BlockObserver
}

func NewEncoder(m *mosaic.Mosaic, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		mosaic:  m,
		logger:  zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDegreeTile writes the terrain file of the degree (latInt, lonInt)
// into outputDir. It never waits for source data: if any cell is still
// being retrieved the result is StatePending and nothing is written.
func (e *Encoder) CreateDegreeTile(ctx context.Context, latInt, lonInt int, outputDir string, spacing int, p geo.Profile) (*Result, error) {
	if err := geo.ValidateDegree(latInt, lonInt); err != nil {
		return nil, err
	}
	if err := geo.ValidateSpacing(spacing); err != nil {
		return nil, err
	}
	if p.BlockSizeX() != BlockSizeX || p.BlockSizeY() != BlockSizeY {
		return nil, errors.Newf("profile %s block %dx%d does not fit the record layout", p, p.BlockSizeX(), p.BlockSizeY())
	}

	name := FileName(latInt, lonInt)
	res := &Result{Name: name}
	ds := e.mosaic.Dataset()
	if !ds.Covers(latInt) {
		res.State = StateNotCovered
		e.logger.Debug("degree outside dataset band", zap.String("tile", name), zap.String("dataset", ds.Name))
		return res, nil
	}

	layout, err := grid.Plan(latInt, lonInt, spacing, p)
	if err != nil {
		return nil, err
	}
	res.Blocks = layout.Count
	res.Skipped = layout.Skipped
	if len(layout.Skipped) > 0 {
		e.logger.Warn("blocknums left empty", zap.String("tile", name), zap.Ints("blocknums", layout.Skipped))
	}

	records := make([]Record, layout.Count)
	var (
		mu      sync.Mutex
		pending = make(map[elevation.CellID]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, b := range layout.Blocks {
		b := b
		g.Go(func() error {
			start := time.Now()
			s, err := e.mosaic.Block(gctx, b)
			if err != nil {
				return err
			}
			if len(s.Pending) > 0 {
				mu.Lock()
				for _, id := range s.Pending {
					pending[id] = struct{}{}
				}
				mu.Unlock()
				return nil
			}
			records[b.BlockNum()] = buildRecord(b, s)

			mu.Lock()
			switch s.Coverage {
			case mosaic.CoverageFull:
				res.Full++
			case mosaic.CoveragePartial:
				res.Partial++
			default:
				res.Empty++
			}
			mu.Unlock()
			if e.observe != nil {
				e.observe(s.Coverage, time.Since(start))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "encoding %s", name)
	}

	if len(pending) > 0 {
		res.State = StatePending
		res.Pending = sortedIDs(pending)
		res.Full, res.Partial, res.Empty = 0, 0, 0
		return res, nil
	}

	path := filepath.Join(outputDir, name)
	n, err := writeAtomic(path, records)
	if err != nil {
		return nil, err
	}
	res.State = StateReady
	res.Path = path
	res.Bytes = n
	e.logger.Info("terrain tile written",
		zap.String("path", path),
		zap.Int("blocks", res.Blocks),
		zap.Int("full", res.Full),
		zap.Int("partial", res.Partial),
		zap.Int("empty", res.Empty))
	return res, nil
}

func buildRecord(b grid.Block, s *mosaic.Samples) Record {
	r := Record{
		Lat:        b.Corner.Lat,
		Lon:        b.Corner.Lon,
		Version:    b.Profile().Version,
		Spacing:    uint16(b.Spacing),
		GridIdxX:   uint16(b.GridIdxX),
		GridIdxY:   uint16(b.GridIdxY),
		LonDegrees: int16(b.LonDegrees),
		LatDegrees: int8(b.LatDegrees),
	}
	var missing uint64
	for gx := 0; gx < BlockSizeX; gx++ {
		for gy := 0; gy < BlockSizeY; gy++ {
			h, ok := s.At(gx, gy)
			r.Heights[gx][gy] = h
			if !ok {
				missing |= 1 << b.Subgrid(gx, gy)
			}
		}
	}
	r.Bitmap = grid.FullBitmap(b.Profile()) &^ missing
	r.Seal()
	return r
}

// writeAtomic publishes the file with a rename so readers never see a
// partial tile.
func writeAtomic(path string, records []Record) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", dir)
	}
	f, err := renameio.NewPendingFile(path, renameio.WithTempDir(dir), renameio.WithPermissions(0o644))
	if err != nil {
		return 0, errors.Wrapf(err, "creating temp file for %s", path)
	}
	defer f.Cleanup()

	var n int64
	for i := range records {
		data, err := records[i].MarshalBinary()
		if err != nil {
			return 0, err
		}
		w, err := f.Write(data)
		n += int64(w)
		if err != nil {
			return 0, errors.Wrapf(err, "writing %s", f.Name())
		}
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return 0, errors.Wrapf(err, "publishing %s", path)
	}
	return n, nil
}

func sortedIDs(set map[elevation.CellID]struct{}) []elevation.CellID {
	ids := make([]elevation.CellID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	elevation.SortCellIDs(ids)
	return ids
}
