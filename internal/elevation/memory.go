package elevation

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// MemProvider holds cells in memory. Fetches block while the provider is
// held, which lets callers observe in-flight retrievals.
type MemProvider struct {
	mu      sync.Mutex
	cells   map[CellID]*Cell
	corrupt map[CellID]bool
	gate    chan struct{}
	fetches map[CellID]int
}

func NewMemProvider() *MemProvider {
	return &MemProvider{
		cells:   make(map[CellID]*Cell),
		corrupt: make(map[CellID]bool),
		fetches: make(map[CellID]int),
	}
}

func (p *MemProvider) Add(c *Cell) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cells[c.ID] = c
}

// AddCorrupt lists id but fails every fetch of it with ErrCorruptSource.
func (p *MemProvider) AddCorrupt(id CellID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.corrupt[id] = true
}

func (p *MemProvider) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate == nil {
		p.gate = make(chan struct{})
	}
}

func (p *MemProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// Fetches is the number of Fetch calls made for id.
func (p *MemProvider) Fetches(id CellID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[id]
}

func (p *MemProvider) List(ctx context.Context) ([]CellID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]CellID, 0, len(p.cells)+len(p.corrupt))
	for id := range p.cells {
		ids = append(ids, id)
	}
	for id := range p.corrupt {
		if _, ok := p.cells[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *MemProvider) Fetch(ctx context.Context, id CellID) (*Cell, error) {
	p.mu.Lock()
	p.fetches[id]++
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.corrupt[id] {
		return nil, errors.Mark(errors.Newf("%s: truncated raster", id), ErrCorruptSource)
	}
	c, ok := p.cells[id]
	if !ok {
		return nil, errors.Wrapf(ErrCellNotFound, "%s", id)
	}
	return c, nil
}

// FilledCell builds a cell whose samples come from fn(row, col), row 0 at
// the north edge.
func FilledCell(id CellID, size int, fn func(row, col int) int16) *Cell {
	samples := make([]int16, size*size)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			samples[row*size+col] = fn(row, col)
		}
	}
	return &Cell{ID: id, Size: size, Samples: samples}
}
