package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/oracle"
)

type stubExtractor struct {
	vec   []float32
	err   error
	delay time.Duration
}

// Extract ignores ctx on purpose to stand in for an inference run that cannot be interrupted.
func (s *stubExtractor) Extract(_ context.Context, data []byte) ([]float32, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(data) == 0 {
		return nil, errs.ErrDecode
	}
	return s.vec, nil
}

type stubRanker struct {
	rows  map[int64][]oracle.Row
	block bool
}

func (s *stubRanker) RankArtworks(ctx context.Context, scopeID int64, _ []float32, _ int) ([]oracle.Row, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.rows[scopeID], nil
}

func ptr[T any](v T) *T { return &v }

func testConfig() config.SearchConfig {
	return config.SearchConfig{TopK: 3, EmbedTimeout: time.Second, OracleTimeout: time.Second}
}

func newTestService(ext Extractor, ranker oracle.Ranker, cfg config.SearchConfig) *Service {
	return NewService(ext, oracle.NewAdapter(ranker, 4), cfg, nil)
}

func exhibition42() *stubRanker {
	return &stubRanker{rows: map[int64][]oracle.Row{
		42: {
			{ID: ptr("a"), Title: ptr("Sunflowers"), Artist: ptr("Vincent van Gogh"), Score: ptr(0.91)},
			{ID: ptr("b"), Title: ptr("Irises"), Artist: ptr("Vincent van Gogh"), Score: ptr(0.77)},
		},
	}}
}

func TestService_ImageSearch(t *testing.T) {
	svc := newTestService(&stubExtractor{vec: []float32{1, 0, 0, 0}}, exhibition42(), testConfig())

	matches, err := svc.ImageSearch(context.Background(), 42, []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Score != 0.91 || matches[0].Artwork.ID != "a" || matches[1].Score != 0.77 || matches[1].Artwork.ID != "b" {
		t.Errorf("matches = %+v, %+v", matches[0], matches[1])
	}
	if matches[0].Artwork.ExhibitionID != 42 {
		t.Errorf("exhibition id = %d", matches[0].Artwork.ExhibitionID)
	}
}

func TestService_UnknownExhibition(t *testing.T) {
	svc := newTestService(&stubExtractor{vec: []float32{1, 0, 0, 0}}, exhibition42(), testConfig())
	matches, err := svc.ImageSearch(context.Background(), 999, []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestService_Errors(t *testing.T) {
	malformed := &stubRanker{rows: map[int64][]oracle.Row{
		1: {{ID: ptr("a"), Score: ptr(0.5)}},
	}}
	tests := []struct {
		name   string
		ext    *stubExtractor
		ranker oracle.Ranker
		scope  int64
		image  []byte
		topK   int
		want   error
	}{
		{"empty image", &stubExtractor{vec: []float32{1, 0, 0, 0}}, exhibition42(), 42, nil, 3, errs.ErrDecode},
		{"model failure", &stubExtractor{err: errs.ErrModelUnavailable}, exhibition42(), 42, []byte("x"), 3, errs.ErrModelUnavailable},
		{"malformed row", &stubExtractor{vec: []float32{1, 0, 0, 0}}, malformed, 1, []byte("x"), 3, errs.ErrMalformedRow},
		{"zero top_k", &stubExtractor{vec: []float32{1, 0, 0, 0}}, exhibition42(), 42, []byte("x"), 0, errs.ErrInvalidInput},
		{"dimension mismatch", &stubExtractor{vec: []float32{1, 0}}, exhibition42(), 42, []byte("x"), 3, errs.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.ext, tt.ranker, testConfig())
			matches, err := svc.ImageSearchTopK(context.Background(), tt.scope, tt.image, tt.topK)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if matches != nil {
				t.Error("expected no partial results")
			}
		})
	}
}

func TestService_EmbedTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.EmbedTimeout = 20 * time.Millisecond
	svc := newTestService(&stubExtractor{vec: []float32{1, 0, 0, 0}, delay: 500 * time.Millisecond}, exhibition42(), cfg)

	start := time.Now()
	_, err := svc.ImageSearch(context.Background(), 42, []byte("img"))
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("timeout took %v, should not wait for the extractor", elapsed)
	}
}

func TestService_OracleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.OracleTimeout = 20 * time.Millisecond
	svc := newTestService(&stubExtractor{vec: []float32{1, 0, 0, 0}}, &stubRanker{block: true}, cfg)

	_, err := svc.ImageSearch(context.Background(), 42, []byte("img"))
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}
