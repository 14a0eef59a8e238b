// Package oracle talks to the service that ranks artworks of one exhibition
// by similarity to a query embedding, and turns its rows into matches.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/docent/internal/errs"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Row is one raw result from a ranker. Every field is optional so that a
// missing id, title or score can be told apart from an empty value.
type Row struct {
	ID               *string
	Title            *string
	Artist           *string
	Description      *string
	ImageURL         *string
	ProductionYear   *string
	Materials        *string
	Dimensions       *string
	ManagementNumber *int64
	IsCurrent        *bool
	Score            *float64
}

// Ranker returns at most limit rows of the given exhibition, most similar
// first. An unknown exhibition yields no rows and no error.
type Ranker interface {
	RankArtworks(ctx context.Context, scopeID int64, query []float32, limit int) ([]Row, error)
}

// Adapter validates queries and normalizes ranker failures.
type Adapter struct {
	ranker     Ranker
	dimensions int
}

// NewAdapter wraps ranker. When dimensions > 0, queries of any other length
// are rejected before the ranker is called.
func NewAdapter(ranker Ranker, dimensions int) *Adapter {
	return &Adapter{ranker: ranker, dimensions: dimensions}
}

// Search returns up to topK rows of scopeID ordered by descending score, as
// the ranker ordered them. The call is not retried.
func (a *Adapter) Search(ctx context.Context, scopeID int64, query []float32, topK int) ([]Row, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1, got %d", errs.ErrInvalidInput, topK)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", errs.ErrInvalidInput)
	}
	if a.dimensions > 0 && len(query) != a.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", errs.ErrInvalidInput, len(query), a.dimensions)
	}

	rows, err := a.ranker.RankArtworks(ctx, scopeID, query, topK)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(rows) > topK {
		rows = rows[:topK]
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, errs.ErrTimeout), errors.Is(err, errs.ErrOracleUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		status.Code(err) == codes.DeadlineExceeded:
		return fmt.Errorf("%w: similarity search: %v", errs.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(ctx.Err(), context.Canceled), status.Code(err) == codes.Canceled:
		return fmt.Errorf("similarity search: %w (%v)", context.Canceled, err)
	default:
		return fmt.Errorf("%w: %v", errs.ErrOracleUnavailable, err)
	}
}
