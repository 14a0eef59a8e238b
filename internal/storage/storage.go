// Package storage provides the artwork catalog: galleries, exhibitions and
// artworks, plus similarity ranking for stores that can compute it.
package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/oracle"
)

// Catalog is read-only access to the catalog.
type Catalog interface {
	ListGalleries(ctx context.Context) ([]models.Gallery, error)
	// ListExhibitions returns the exhibitions of a gallery; an unknown gallery gives an empty slice.
	ListExhibitions(ctx context.Context, galleryID int64) ([]models.Exhibition, error)
	ListArtworks(ctx context.Context, exhibitionID int64) ([]models.Artwork, error)
	// GetArtwork fails with errs.ErrNotFound for unknown or malformed ids.
	GetArtwork(ctx context.Context, id string) (*models.Artwork, error)
	Ping(ctx context.Context) error
	Close() error
}

// Store is a catalog that also ranks its own artworks against a query vector.
type Store interface {
	Catalog
	oracle.Ranker
	// Backend names the store implementation ("sqlite", "postgres").
	Backend() string
}

// Batch is a set of catalog records written together.
type Batch struct {
	Galleries   []models.Gallery
	Exhibitions []models.Exhibition
	Artworks    []models.Artwork
}

// Writer seeds a catalog.
type Writer interface {
	SaveBatch(ctx context.Context, batch *Batch) error
}

// Open opens the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreSQLite, "":
		return NewSQLiteStorage(cfg.DatabasePath)
	case config.StorePostgres:
		return NewPostgresStorage(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// canonicalArtworkID returns the lowercase hyphenated form of an artwork
// UUID, so every accepted spelling of an id matches the stored text. Ids
// that cannot name an artwork are not found.
func canonicalArtworkID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: artwork %q", errs.ErrNotFound, id)
	}
	return u.String(), nil
}
