package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gratefulvortex/reviews-scraper/internal/models"
)

// CSVWriter writes reviews as UTF-8 CSV with a header row in the site's
// fixed column order.
type CSVWriter struct {
	mu          sync.Mutex
	path        string
	site        models.Site
	initialized bool
}

func NewCSVWriter(path string, site models.Site) *CSVWriter {
	return &CSVWriter{path: path, site: site}
}

func (w *CSVWriter) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.init(ctx)
}

func (w *CSVWriter) init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", w.path, err)
	}
	if err := w.write(f, nil, true); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	w.initialized = true
	return nil
}

func (w *CSVWriter) Append(ctx context.Context, reviews []*models.Review) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		if err := w.init(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", w.path, err)
	}
	if err := w.write(f, reviews, false); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Replace writes a sibling temp file and renames it over the destination so
// readers never see a partial file.
func (w *CSVWriter) Replace(ctx context.Context, reviews []*models.Review) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := w.write(tmp, reviews, true); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	w.initialized = true
	return nil
}

func (w *CSVWriter) write(out io.Writer, reviews []*models.Review, header bool) error {
	cw := csv.NewWriter(out)
	if header {
		if err := cw.Write(models.Columns(w.site)); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, r := range reviews {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
