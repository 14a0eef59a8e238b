package storage

import (
	"context"
	"os"
	"testing"
)

// TestPostgresStorage runs against a real database when DOCENT_TEST_POSTGRES_DSN
// is set, e.g. a local Supabase instance with the catalog schema loaded.
func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("DOCENT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCENT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStorage(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.ListGalleries(ctx); err != nil {
		t.Errorf("ListGalleries: %v", err)
	}
	exhibitions, err := store.ListExhibitions(ctx, -1)
	if err != nil {
		t.Errorf("ListExhibitions: %v", err)
	}
	if len(exhibitions) != 0 {
		t.Errorf("expected no exhibitions for gallery -1, got %d", len(exhibitions))
	}
	if _, err := store.GetArtwork(ctx, "unknown-id"); err == nil {
		t.Error("expected not found")
	}
}

func TestPostgresStorage_RejectsMalformedID(t *testing.T) {
	// Malformed ids are rejected before any query, so no connection is needed.
	store := &PostgresStorage{}
	if _, err := store.GetArtwork(context.Background(), "not-a-uuid"); err == nil {
		t.Error("expected not found for malformed id")
	}
}
