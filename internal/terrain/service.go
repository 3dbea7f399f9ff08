// Package terrain ties the encoder to an output directory and owns the
// retry policy for tiles waiting on source data.
package terrain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yakkun/terrain-grid-gen/internal/dat"
	"github.com/yakkun/terrain-grid-gen/internal/diag"
	"github.com/yakkun/terrain-grid-gen/internal/geo"
	"github.com/yakkun/terrain-grid-gen/internal/mosaic"
)

type Options struct {
	OutputDir string
	Spacing   int
	Profile   geo.Profile

	// PollInterval and PollTimeout bound Wait.
	PollInterval time.Duration
	PollTimeout  time.Duration
	// Concurrency is the number of tiles GenerateDegrees builds at once.
	Concurrency int

	Logger *zap.Logger
	// OnTile, when set, sees every result Generate produces. Callers
	// joining an in-flight generation share its result.
	OnTile func(*dat.Result)
}

type Service struct {
	encoder *dat.Encoder
	mosaic  *mosaic.Mosaic
	opts    Options
	logger  *zap.Logger

	// building joins concurrent generations of the same file.
	building singleflight.Group

	startTime time.Time
	requests  uint64
	tiles     uint64
	mu        sync.RWMutex
}

func NewService(m *mosaic.Mosaic, enc *dat.Encoder, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Spacing == 0 {
		opts.Spacing = m.Dataset().Spacing
	}
	if opts.Profile.Name == "" {
		opts.Profile = geo.V41
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Service{
		encoder:   enc,
		mosaic:    m,
		opts:      opts,
		logger:    opts.Logger,
		startTime: time.Now(),
	}
}

// Request names one degree tile. Zero Spacing and Profile take the
// service defaults.
type Request struct {
	LatDegrees int
	LonDegrees int
	Spacing    int
	Profile    geo.Profile
}

func (s *Service) resolve(req Request) Request {
	if req.Spacing == 0 {
		req.Spacing = s.opts.Spacing
	}
	if req.Profile.Name == "" {
		req.Profile = s.opts.Profile
	}
	return req
}

// TileDir is where tiles of one spacing and profile are kept. Files of
// different formats never share a directory.
func (s *Service) TileDir(spacing int, p geo.Profile) string {
	return filepath.Join(s.opts.OutputDir, p.Name, strconv.Itoa(spacing))
}

// Generate makes one attempt at the tile. A tile already on disk is
// returned as is.
func (s *Service) Generate(ctx context.Context, req Request) (*dat.Result, error) {
	req = s.resolve(req)
	s.mu.Lock()
	s.tiles++
	s.mu.Unlock()

	dir := s.TileDir(req.Spacing, req.Profile)
	name := dat.FileName(req.LatDegrees, req.LonDegrees)
	path := filepath.Join(dir, name)

	v, err, _ := s.building.Do(path, func() (interface{}, error) {
		if info, err := os.Stat(path); err == nil {
			res := &dat.Result{
				State:  dat.StateReady,
				Name:   name,
				Path:   path,
				Bytes:  info.Size(),
				Blocks: int(info.Size() / dat.RecordSize),
				Reused: true,
			}
			s.report(res)
			return res, nil
		}

		res, err := s.encoder.CreateDegreeTile(ctx, req.LatDegrees, req.LonDegrees, dir, req.Spacing, req.Profile)
		if err != nil {
			return nil, err
		}
		s.report(res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dat.Result), nil
}

func (s *Service) report(res *dat.Result) {
	if s.opts.OnTile != nil {
		s.opts.OnTile(res)
	}
}

// Wait repeats Generate until the tile is no longer pending, the poll
// timeout passes or ctx ends. On timeout the last pending result is
// returned without an error.
func (s *Service) Wait(ctx context.Context, req Request) (*dat.Result, error) {
	if s.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.PollTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		res, err := s.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		if res.State != dat.StatePending {
			return res, nil
		}
		s.logger.Debug("tile waiting on source cells",
			zap.String("tile", res.Name), zap.Int("attempt", attempt), zap.Int("pending", len(res.Pending)))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return res, nil
			}
			return nil, ctx.Err()
		}
	}
}

type Degree struct {
	Lat int `json:"lat"`
	Lon int `json:"lon"`
}

// DegreesInBox lists the whole degrees whose cells intersect the box,
// south to north and west to east.
func DegreesInBox(minLat, minLon, maxLat, maxLon int) ([]Degree, error) {
	if minLat > maxLat || minLon > maxLon {
		return nil, errors.Newf("empty box %d,%d .. %d,%d", minLat, minLon, maxLat, maxLon)
	}
	if err := geo.ValidateDegree(minLat, minLon); err != nil {
		return nil, err
	}
	if err := geo.ValidateDegree(maxLat, maxLon); err != nil {
		return nil, err
	}
	var out []Degree
	for lat := minLat; lat <= maxLat; lat++ {
		for lon := minLon; lon <= maxLon; lon++ {
			out = append(out, Degree{Lat: lat, Lon: lon})
		}
	}
	return out, nil
}

// GenerateDegrees waits for every degree concurrently. Results keep the
// order of degrees; the first error cancels the rest.
func (s *Service) GenerateDegrees(ctx context.Context, degrees []Degree, spacing int, p geo.Profile) ([]*dat.Result, error) {
	results := make([]*dat.Result, len(degrees))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, d := range degrees {
		i, d := i, d
		g.Go(func() error {
			res, err := s.Wait(gctx, Request{LatDegrees: d.Lat, LonDegrees: d.Lon, Spacing: spacing, Profile: p})
			if err != nil {
				return errors.Wrapf(err, "degree %d,%d", d.Lat, d.Lon)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type BatchPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type ElevationResult struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation int16   `json:"elevation"`
	Valid     bool    `json:"valid"`
	Cell      string  `json:"cell"`
	Status    string  `json:"status"`
}

// GetElevation is the height a tile sample at the position would carry.
// A cell still being retrieved comes back with status "pending".
func (s *Service) GetElevation(ctx context.Context, lat, lon float64) (ElevationResult, error) {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
	return s.elevation(ctx, lat, lon)
}

func (s *Service) elevation(ctx context.Context, lat, lon float64) (ElevationResult, error) {
	pos, err := geo.PositionFromDegrees(lat, lon)
	if err != nil {
		return ElevationResult{}, err
	}
	pt, err := s.mosaic.Point(ctx, pos)
	if err != nil {
		return ElevationResult{}, err
	}
	return ElevationResult{
		Lat:       lat,
		Lon:       lon,
		Elevation: pt.Height,
		Valid:     pt.Valid,
		Cell:      pt.Cell.Name(),
		Status:    pt.Status.String(),
	}, nil
}

func (s *Service) GetBatchElevations(ctx context.Context, points []BatchPoint) ([]ElevationResult, error) {
	s.mu.Lock()
	s.requests += uint64(len(points))
	s.mu.Unlock()

	results := make([]ElevationResult, len(points))
	for i, p := range points {
		r, err := s.elevation(ctx, p.Lat, p.Lon)
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		results[i] = r
	}
	return results, nil
}

// MapDegree reports how the block grid of a degree lands on the ground.
func (s *Service) MapDegree(latInt, lonInt, spacing int, p geo.Profile) (diag.Report, error) {
	req := s.resolve(Request{LatDegrees: latInt, LonDegrees: lonInt, Spacing: spacing, Profile: p})
	samples, err := diag.MapDegree(req.LatDegrees, req.LonDegrees, req.Spacing, req.Profile)
	if err != nil {
		return diag.Report{}, err
	}
	return diag.Analyze(samples, req.LatDegrees, req.LonDegrees, req.Spacing, req.Profile), nil
}

func (s *Service) Defaults() (int, geo.Profile) {
	return s.opts.Spacing, s.opts.Profile
}

type HealthStatus struct {
	Status        string  `json:"status"`
	Dataset       string  `json:"dataset"`
	MemoryMB      int     `json:"memory_mb"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	TotalRequests uint64  `json:"total_requests"`
	TileRequests  uint64  `json:"tile_requests"`
}

func (s *Service) GetHealth() HealthStatus {
	s.mu.RLock()
	requests, tiles := s.requests, s.tiles
	s.mu.RUnlock()

	return HealthStatus{
		Status:        "ok",
		Dataset:       s.mosaic.Dataset().Name,
		MemoryMB:      getMemoryUsageMB(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		TotalRequests: requests,
		TileRequests:  tiles,
	}
}

func getMemoryUsageMB() int {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int(m.Alloc / 1024 / 1024)
}
