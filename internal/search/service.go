// Package search runs the image search pipeline: embed the query image, rank
// the exhibition's artworks and assemble the matches.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/observability"
	"github.com/hyperjump/docent/internal/oracle"
)

// Extractor turns image bytes into a unit-length embedding.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]float32, error)
}

// Searcher ranks an exhibition's artworks against a query embedding.
type Searcher interface {
	Search(ctx context.Context, scopeID int64, query []float32, topK int) ([]oracle.Row, error)
}

// Service runs image searches. Each call either returns every match or an
// error; partial results are never returned.
type Service struct {
	extractor Extractor
	searcher  Searcher
	config    config.SearchConfig
	logger    *zap.Logger
}

// NewService creates a search service with the given dependencies.
func NewService(extractor Extractor, searcher Searcher, cfg config.SearchConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		extractor: extractor,
		searcher:  searcher,
		config:    cfg,
		logger:    logger,
	}
}

// TopK returns the configured number of matches per search.
func (s *Service) TopK() int {
	return s.config.TopK
}

// ImageSearch returns the configured top-K artworks of exhibitionID most
// similar to the image, best first.
func (s *Service) ImageSearch(ctx context.Context, exhibitionID int64, image []byte) ([]models.SimilarityMatch, error) {
	return s.ImageSearchTopK(ctx, exhibitionID, image, s.config.TopK)
}

// ImageSearchTopK is ImageSearch with an explicit result count.
func (s *Service) ImageSearchTopK(ctx context.Context, exhibitionID int64, image []byte, topK int) (matches []models.SimilarityMatch, err error) {
	start := time.Now()
	ctx, span := observability.StartSearchSpan(ctx, exhibitionID, len(image))
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1, got %d", errs.ErrInvalidInput, topK)
	}

	query, err := s.embed(ctx, image)
	if err != nil {
		return nil, err
	}
	embedTime := time.Since(start)

	rows, err := s.rank(ctx, exhibitionID, query, topK)
	if err != nil {
		return nil, err
	}

	_, assembleSpan := observability.StartStepSpan(ctx, observability.SpanAssemble,
		attribute.Int("docent.rows", len(rows)))
	matches, err = oracle.Assemble(exhibitionID, rows)
	observability.RecordError(assembleSpan, err)
	assembleSpan.End()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("image search",
		zap.Int64("exhibition_id", exhibitionID),
		zap.Int("matches", len(matches)),
		zap.Duration("embed", embedTime),
		zap.Duration("total", time.Since(start)),
	)
	return matches, nil
}

type embedResult struct {
	vec []float32
	err error
}

// embed runs the extractor under embed_timeout. The deadline is enforced
// here as well, since an inference run may not observe cancellation.
func (s *Service) embed(ctx context.Context, image []byte) (vec []float32, err error) {
	ctx, span := observability.StartStepSpan(ctx, observability.SpanEmbed)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	if s.config.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.EmbedTimeout)
		defer cancel()
	}

	done := make(chan embedResult, 1)
	go func() {
		v, err := s.extractor.Extract(ctx, image)
		done <- embedResult{vec: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, timeoutOr(r.err, "embedding")
		}
		return r.vec, nil
	case <-ctx.Done():
		return nil, timeoutOr(ctx.Err(), "embedding")
	}
}

func (s *Service) rank(ctx context.Context, exhibitionID int64, query []float32, topK int) (rows []oracle.Row, err error) {
	ctx, span := observability.StartStepSpan(ctx, observability.SpanRank,
		attribute.Int64("docent.exhibition_id", exhibitionID),
		attribute.Int("docent.top_k", topK),
	)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	if s.config.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.OracleTimeout)
		defer cancel()
	}
	rows, err = s.searcher.Search(ctx, exhibitionID, query, topK)
	if err != nil {
		return nil, timeoutOr(err, "similarity search")
	}
	return rows, nil
}

// timeoutOr maps an exceeded deadline to errs.ErrTimeout and returns other errors unchanged.
func timeoutOr(err error, step string) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, errs.ErrTimeout) {
		return fmt.Errorf("%w: %s: %v", errs.ErrTimeout, step, err)
	}
	return err
}
