package elevation

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

var ErrCellNotFound = errors.New("source cell not available")

// Provider is the source retrieval collaborator. List returns every cell
// the dataset has; a covered cell that is not listed is open ocean.
type Provider interface {
	List(ctx context.Context) ([]CellID, error)
	Fetch(ctx context.Context, id CellID) (*Cell, error)
}

// DirProvider serves cells from a local cache directory holding
// N45E171.hgt, N45E171.hgt.zip or N45E171.hgt.zst files, in any
// subdirectory layout.
type DirProvider struct {
	dir     string
	dataset Dataset

	mu    sync.Mutex
	index map[CellID]string
}

func NewDirProvider(dir string, dataset Dataset) *DirProvider {
	return &DirProvider{dir: dir, dataset: dataset}
}

var cellSuffixes = []string{".hgt", ".hgt.zip", ".hgt.zst"}

func (p *DirProvider) List(ctx context.Context) ([]CellID, error) {
	index, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]CellID, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	SortCellIDs(ids)
	return ids, nil
}

func (p *DirProvider) scan(ctx context.Context) (map[CellID]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index != nil {
		return p.index, nil
	}

	index := make(map[CellID]string)
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		for _, suffix := range cellSuffixes {
			if !strings.HasSuffix(name, suffix) {
				continue
			}
			id, err := ParseCellID(d.Name()[:len(d.Name())-len(suffix)])
			if err != nil {
				return nil
			}
			if prev, ok := index[id]; !ok || len(path) < len(prev) {
				index[id] = path
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s", p.dir)
	}
	p.index = index
	return index, nil
}

func (p *DirProvider) Fetch(ctx context.Context, id CellID) (*Cell, error) {
	index, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}
	path, ok := index[id]
	if !ok {
		return nil, errors.Wrapf(ErrCellNotFound, "%s", id)
	}

	data, err := readCellFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCell(id, data, p.dataset.Size)
}

func readCellFile(path string) ([]byte, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return readZipped(path)
	case strings.HasSuffix(lower, ".zst"):
		return readZstd(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}

func readZipped(path string) ([]byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "opening %s", path), ErrCorruptSource)
	}
	defer r.Close()

	for _, f := range r.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".hgt") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "%s: %s", path, f.Name), ErrCorruptSource)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "%s: %s", path, f.Name), ErrCorruptSource)
		}
		return data, nil
	}
	return nil, errors.Mark(errors.Newf("%s: no .hgt entry", path), ErrCorruptSource)
}

func readZstd(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decoding %s", path), ErrCorruptSource)
	}
	return data, nil
}
