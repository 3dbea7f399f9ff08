package elevation

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/karlseguin/ccache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Status int

const (
	// StatusLand: the cell was retrieved and Cell is set.
	StatusLand Status = iota
	// StatusOcean: the cell is inside the dataset band but not listed.
	StatusOcean
	// StatusUncovered: the cell lies outside the dataset band.
	StatusUncovered
	// StatusCorrupt: the cell failed validation and counts as missing.
	StatusCorrupt
	// StatusPending: the cell is still being retrieved.
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusLand:
		return "land"
	case StatusOcean:
		return "ocean"
	case StatusUncovered:
		return "uncovered"
	case StatusCorrupt:
		return "corrupt"
	case StatusPending:
		return "pending"
	}
	return "unknown"
}

type Lookup struct {
	Status Status
	Cell   *Cell
}

// Resolver resolves a cell without blocking on retrieval.
type Resolver interface {
	Lookup(ctx context.Context, id CellID) (Lookup, error)
	Dataset() Dataset
}

type FetchHook func(id CellID, outcome string, d time.Duration)

type CacheOption func(*Cache)

func WithLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

func WithMaxCells(n int) CacheOption {
	return func(c *Cache) { c.maxCells = n }
}

func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = d }
}

func WithFetchHook(h FetchHook) CacheOption {
	return func(c *Cache) { c.hook = h }
}

// Cache sits in front of a Provider. It retrieves each cell at most once
// at a time, keeps decoded cells in an LRU and remembers corrupt cells.
type Cache struct {
	provider Provider
	dataset  Dataset
	logger   *zap.Logger
	hook     FetchHook
	maxCells int
	ttl      time.Duration

	cells   *ccache.Cache[*entry]
	fetches singleflight.Group

	// failed holds the last transient fetch error per cell until a
	// lookup reports it.
	failed sync.Map

	listMu sync.Mutex
	listed map[CellID]struct{}
}

type entry struct {
	cell *Cell
	err  error
}

func NewCache(provider Provider, dataset Dataset, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: provider,
		dataset:  dataset,
		logger:   zap.NewNop(),
		maxCells: 32,
		ttl:      time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	prune := uint32(c.maxCells/4 + 1)
	c.cells = ccache.New(ccache.Configure[*entry]().MaxSize(int64(c.maxCells)).ItemsToPrune(prune))
	return c
}

func (c *Cache) Dataset() Dataset {
	return c.dataset
}

func (c *Cache) Close() {
	c.cells.Stop()
}

// Lookup classifies id and returns its cell when it is available. A cell
// that is not yet retrieved starts a background fetch and reports
// StatusPending; later lookups join the same fetch. A fetch that fails
// for a reason other than corruption is reported once and then retried.
func (c *Cache) Lookup(ctx context.Context, id CellID) (Lookup, error) {
	if !c.dataset.Covers(id.Lat) {
		return Lookup{Status: StatusUncovered}, nil
	}
	listed, err := c.available(ctx)
	if err != nil {
		return Lookup{}, err
	}
	if _, ok := listed[id]; !ok {
		return Lookup{Status: StatusOcean}, nil
	}

	key := id.Name()
	if item := c.cells.Get(key); item != nil && !item.Expired() {
		return item.Value().lookup(), nil
	}
	if err, ok := c.failed.LoadAndDelete(key); ok {
		return Lookup{}, err.(error)
	}

	ch := c.fetches.DoChan(key, func() (interface{}, error) {
		if item := c.cells.Get(key); item != nil && !item.Expired() {
			return item.Value(), nil
		}
		return c.fetch(id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			c.failed.Delete(key)
			return Lookup{}, res.Err
		}
		return res.Val.(*entry).lookup(), nil
	default:
		return Lookup{Status: StatusPending}, nil
	}
}

func (e *entry) lookup() Lookup {
	if e.err != nil {
		return Lookup{Status: StatusCorrupt}
	}
	return Lookup{Status: StatusLand, Cell: e.cell}
}

func (c *Cache) fetch(id CellID) (*entry, error) {
	start := time.Now()
	// The fetch outlives the lookup that started it, so it does not
	// inherit the caller's context.
	cell, err := c.provider.Fetch(context.Background(), id)
	d := time.Since(start)

	switch {
	case err == nil && cell.Size != c.dataset.Size:
		err = errors.Mark(errors.Newf("%s: raster edge %d, dataset %s wants %d", id, cell.Size, c.dataset.Name, c.dataset.Size), ErrCorruptSource)
		fallthrough
	case errors.Is(err, ErrCorruptSource):
		c.logger.Warn("source cell corrupt, treating as missing coverage",
			zap.String("cell", id.Name()), zap.Error(err))
		c.observe(id, "corrupt", d)
		e := &entry{err: err}
		c.cells.Set(id.Name(), e, c.ttl)
		return e, nil
	case err != nil:
		c.logger.Error("source cell fetch failed", zap.String("cell", id.Name()), zap.Error(err))
		c.observe(id, "error", d)
		err = errors.Wrapf(err, "fetching %s", id)
		c.failed.Store(id.Name(), err)
		return nil, err
	}

	c.logger.Debug("source cell fetched", zap.String("cell", id.Name()), zap.Duration("duration", d))
	c.observe(id, "ok", d)
	e := &entry{cell: cell}
	c.cells.Set(id.Name(), e, c.ttl)
	return e, nil
}

func (c *Cache) observe(id CellID, outcome string, d time.Duration) {
	if c.hook != nil {
		c.hook(id, outcome, d)
	}
}

func (c *Cache) available(ctx context.Context) (map[CellID]struct{}, error) {
	c.listMu.Lock()
	defer c.listMu.Unlock()
	if c.listed != nil {
		return c.listed, nil
	}
	ids, err := c.provider.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing source cells")
	}
	listed := make(map[CellID]struct{}, len(ids))
	for _, id := range ids {
		listed[id] = struct{}{}
	}
	c.listed = listed
	c.logger.Info("source cells listed", zap.String("dataset", c.dataset.Name), zap.Int("cells", len(listed)))
	return listed, nil
}
