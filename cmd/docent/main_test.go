package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/server"
	"github.com/hyperjump/docent/internal/storage"
	"go.uber.org/zap"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after image are moved first",
			args:     []string{"photo.jpg", "-exhibition", "42"},
			expected: []string{"-exhibition", "42", "photo.jpg"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-exhibition", "42", "photo.jpg"},
			expected: []string{"-exhibition", "42", "photo.jpg"},
		},
		{
			name:     "image only returns unchanged",
			args:     []string{"photo.jpg"},
			expected: []string{"photo.jpg"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "double dash flags after image",
			args:     []string{"photo.jpg", "--top-k", "5", "--output", "json"},
			expected: []string{"--top-k", "5", "--output", "json", "photo.jpg"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 8080
store:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug || cfg.Server.Port != 8080 {
		t.Errorf("cwd config.yaml not applied: debug=%v port=%d", cfg.Debug, cfg.Server.Port)
	}
	if filepath.Base(cfg.Store.DatabasePath) != "test.db" || !filepath.IsAbs(cfg.Store.DatabasePath) {
		t.Errorf("database path should resolve next to the config: %s", cfg.Store.DatabasePath)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
search:
  top_k: 7
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 || cfg.Search.TopK != 7 {
		t.Errorf("unexpected config: %+v %+v", cfg.Server, cfg.Search)
	}
}

func TestLoadConfig_missingDefaultFallsBackToEnv(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config is installed")
	}
	t.Chdir(t.TempDir())
	t.Setenv("DOCENT_SEARCH_TOP_K", "9")

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty", resolved)
	}
	if cfg.Search.TopK != 9 || cfg.Server.Port != 8000 {
		t.Errorf("env/defaults not applied: top_k=%d port=%d", cfg.Search.TopK, cfg.Server.Port)
	}
}

func TestLoadConfig_explicitMissingFileFails(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestNewEncoder_unknownBackend(t *testing.T) {
	_, err := newEncoder(config.EmbeddingConfig{Backend: "tpu"}, zap.NewNop())
	if !errors.Is(err, errs.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestNewEncoder_missingModelFile(t *testing.T) {
	_, err := newEncoder(config.EmbeddingConfig{
		Backend:    config.EmbeddingONNX,
		ModelPath:  filepath.Join(t.TempDir(), "missing.onnx"),
		Dimensions: 512,
		ImageSize:  224,
	}, zap.NewNop())
	if !errors.Is(err, errs.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

const (
	sunflowersID = "0b7c6a2e-4c1f-4d8e-9a3b-5f2e1d0c9b8a"
	irisesID     = "1c8d7b3f-5d2a-4e9f-8b4c-6a3f2e1d0c9b"
)

func pngImage(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*6) ^ seed, G: uint8(y*6) + seed, B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Store:     config.StoreConfig{Driver: config.StoreSQLite, DatabasePath: filepath.Join(t.TempDir(), "catalog.db")},
		Embedding: config.EmbeddingConfig{Backend: config.EmbeddingMock, Dimensions: 16, ImageSize: 32, CacheSize: 8},
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

// seededComponents initializes components and stores two artworks whose
// embeddings come from the components' own extractor.
func seededComponents(t *testing.T) (*Components, []byte) {
	t.Helper()
	ctx := context.Background()
	c, err := initializeComponents(ctx, testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	if err := c.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	sunflowers, irises := pngImage(t, 3), pngImage(t, 190)
	vecA, err := c.Extractor.Extract(ctx, sunflowers)
	if err != nil {
		t.Fatal(err)
	}
	vecB, err := c.Extractor.Extract(ctx, irises)
	if err != nil {
		t.Fatal(err)
	}
	w, ok := c.Store.(storage.Writer)
	if !ok {
		t.Fatal("sqlite store should be writable")
	}
	err = w.SaveBatch(ctx, &storage.Batch{
		Galleries:   []models.Gallery{{ID: 1, Name: "Seoul Museum"}},
		Exhibitions: []models.Exhibition{{ID: 42, GalleryID: 1, Name: "Impressions"}},
		Artworks: []models.Artwork{
			{ID: sunflowersID, ExhibitionID: 42, Title: "Sunflowers", Artist: "Vincent van Gogh", Embedding: vecA},
			{ID: irisesID, ExhibitionID: 42, Title: "Irises", Artist: "Vincent van Gogh", Embedding: vecB},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, sunflowers
}

func TestInitializeComponents_directSearch(t *testing.T) {
	c, sunflowers := seededComponents(t)
	if c.Qdrant != nil {
		t.Error("store oracle should not open a qdrant connection")
	}
	if c.Store.Backend() != config.StoreSQLite {
		t.Errorf("backend: got %s", c.Store.Backend())
	}

	matches, err := c.Search.ImageSearch(context.Background(), 42, sunflowers)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Artwork.ID != sunflowersID {
		t.Errorf("best match: got %s", matches[0].Artwork.ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("scores not descending: %v, %v", matches[0].Score, matches[1].Score)
	}

	matches, err = c.Search.ImageSearch(context.Background(), 999, sunflowers)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("unknown exhibition: got %d matches", len(matches))
	}
}

func TestInitializeComponents_badStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "oracle-db"
	if _, err := initializeComponents(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown store driver")
	}
}

func TestSearchViaHTTP(t *testing.T) {
	c, sunflowers := seededComponents(t)
	serverCfg := config.ServerConfig{MaxUploadBytes: 1 << 20}
	srv := server.NewServer(c.Search, c.Store, c.Extractor.Model(), &serverCfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	matches, err := searchViaHTTP(ts.URL, 42, 1, "sunflowers.png", sunflowers)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Artwork.ID != sunflowersID {
		t.Errorf("unexpected matches: %+v", matches)
	}

	_, err = searchViaHTTP(ts.URL, 42, 0, "notes.txt", []byte("not an image"))
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("expected a 400 error, got %v", err)
	}
}
