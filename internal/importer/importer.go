// Package importer seeds a catalog store from a spreadsheet workbook, with
// optional embedding of each artwork's image.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/storage"
)

// Embedder turns image bytes into an embedding.
type Embedder interface {
	Extract(ctx context.Context, data []byte) ([]float32, error)
}

// PointWriter receives artworks with embeddings for an external vector index.
type PointWriter interface {
	UpsertArtworks(ctx context.Context, artworks []models.Artwork) (int, error)
}

// Importer loads catalog workbooks into a store.
type Importer struct {
	writer   storage.Writer
	embedder Embedder
	points   PointWriter
	logger   *zap.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithEmbedder computes embeddings from the image_file column.
func WithEmbedder(e Embedder) ImporterOption {
	return func(im *Importer) { im.embedder = e }
}

// WithPointWriter also writes embedded artworks to a vector index.
func WithPointWriter(p PointWriter) ImporterOption {
	return func(im *Importer) { im.points = p }
}

// WithLogger sets a logger for per-artwork debug output.
func WithLogger(l *zap.Logger) ImporterOption {
	return func(im *Importer) { im.logger = l }
}

// NewImporter creates an importer writing to w.
func NewImporter(w storage.Writer, opts ...ImporterOption) *Importer {
	im := &Importer{writer: w, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Summary counts what an import wrote.
type Summary struct {
	Galleries   int `json:"galleries"`
	Exhibitions int `json:"exhibitions"`
	Artworks    int `json:"artworks"`
	Embedded    int `json:"embedded"`
	Points      int `json:"points"`
}

// ImportFile imports the workbook at path. image_file cells are resolved
// relative to the workbook's directory.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb, err := ReadWorkbook(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return im.Import(ctx, wb, filepath.Dir(path))
}

// Import writes a parsed workbook. Nothing is written if any image fails to
// embed.
func (im *Importer) Import(ctx context.Context, wb *Workbook, baseDir string) (*Summary, error) {
	sum := &Summary{
		Galleries:   len(wb.Batch.Galleries),
		Exhibitions: len(wb.Batch.Exhibitions),
		Artworks:    len(wb.Batch.Artworks),
	}

	if im.embedder != nil {
		n, err := im.embed(ctx, wb, baseDir)
		if err != nil {
			return nil, err
		}
		sum.Embedded = n
	}

	if err := im.writer.SaveBatch(ctx, &wb.Batch); err != nil {
		return nil, fmt.Errorf("save catalog: %w", err)
	}

	if im.points != nil && sum.Embedded > 0 {
		n, err := im.points.UpsertArtworks(ctx, wb.Batch.Artworks)
		if err != nil {
			return nil, err
		}
		sum.Points = n
	}
	return sum, nil
}

func (im *Importer) embed(ctx context.Context, wb *Workbook, baseDir string) (int, error) {
	embedded := 0
	for i := range wb.Batch.Artworks {
		a := &wb.Batch.Artworks[i]
		file, ok := wb.ImageFiles[a.ID]
		if !ok {
			im.logger.Warn("artwork has no image_file, skipping embedding",
				zap.String("id", a.ID), zap.String("title", a.Title))
			continue
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(baseDir, file)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return 0, fmt.Errorf("artwork %s: %w", a.Title, err)
		}
		vec, err := im.embedder.Extract(ctx, data)
		if err != nil {
			return 0, fmt.Errorf("artwork %s: embed %s: %w", a.Title, file, err)
		}
		a.Embedding = vec
		embedded++
		im.logger.Debug("embedded artwork", zap.String("id", a.ID), zap.String("file", file))
	}
	return embedded, nil
}
