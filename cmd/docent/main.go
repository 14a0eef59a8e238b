// Package main is the docent CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/hyperjump/docent/internal/cli"
	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/embedding"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/importer"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/observability"
	"github.com/hyperjump/docent/internal/oracle"
	"github.com/hyperjump/docent/internal/search"
	"github.com/hyperjump/docent/internal/server"
	"github.com/hyperjump/docent/internal/storage"
	"github.com/hyperjump/docent/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/docent/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present (for development), and a missing
// default file means environment-only configuration. Returns the config and
// the path that was actually loaded ("" when none).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "import":
		runImport()
	case "init-config":
		runInitConfig()
	case "version", "--version", "-v":
		fmt.Printf("docent version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// mustLoad loads and validates config and builds the logger, exiting on failure.
func mustLoad(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := mustLoad(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("store", cfg.Store.Driver),
		zap.String("oracle", cfg.Oracle.Backend),
		zap.String("embedding", cfg.Embedding.Backend),
	)

	ctx := context.Background()
	tracer, err := observability.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	err = components.Ping(pingCtx)
	pingCancel()
	if err != nil {
		logger.Fatal("Store is not reachable", zap.Error(err))
	}

	srv := server.NewServer(components.Search, components.Store, components.Extractor.Model(), &cfg.Server, logger)
	if components.Qdrant != nil {
		srv.SetOracle(config.OracleQdrant, components.Qdrant)
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", zap.Error(err))
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: docent search --exhibition <id> [flags] <image>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  docent search --exhibition 42 photo.jpg
  docent search photo.jpg --exhibition 42 --top-k 5 --output json
  docent search --server "" --exhibition 42 photo.jpg   # no server: load the model locally
`)
}

// searchArgsReorder moves any flags (and their values) that appear after the
// image path to the front so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = load the model and store directly)")
	exhibitionID := fs.Int64("exhibition", 0, "exhibition id to search within (required)")
	topK := fs.Int("top-k", 0, "number of matches (0 = server/config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 || *exhibitionID == 0 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	image, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	var matches []models.SimilarityMatch
	if *serverURL != "" {
		matches, err = searchViaHTTP(*serverURL, *exhibitionID, *topK, filepath.Base(fs.Arg(0)), image)
	} else {
		matches, err = searchDirect(*configPath, *exhibitionID, *topK, image)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteMatches(os.Stdout, *exhibitionID, matches, time.Since(start), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath string, exhibitionID int64, topK int, image []byte) ([]models.SimilarityMatch, error) {
	cfg, _, logger := mustLoad(configPath, false)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	if topK == 0 {
		topK = cfg.Search.TopK
	}
	return components.Search.ImageSearchTopK(ctx, exhibitionID, image, topK)
}

func searchViaHTTP(serverURL string, exhibitionID int64, topK int, filename string, image []byte) ([]models.SimilarityMatch, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("exhibition_id", strconv.FormatInt(exhibitionID, 10))
	if topK > 0 {
		_ = mw.WriteField("top_k", strconv.Itoa(topK))
	}
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := http.Post(serverURL+"/image-search", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var matches []models.SimilarityMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return matches, nil
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	embed := fs.Bool("embed", false, "compute embeddings from the image_file column")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		fmt.Println("Usage: docent import [--embed] [--config path] <catalog.xlsx>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, logger := mustLoad(*configPath, *debug)
	defer logger.Sync()
	ctx := context.Background()

	sum, err := importCatalog(ctx, cfg, logger, fs.Arg(0), *embed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteImportSummary(os.Stdout, sum, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// importCatalog seeds the configured store from a workbook. Only stores that
// implement storage.Writer can be seeded.
func importCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger, path string, embed bool) (*importer.Summary, error) {
	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()
	writer, ok := store.(storage.Writer)
	if !ok {
		return nil, fmt.Errorf("the %s store is read-only; import seeds the local sqlite store", store.Backend())
	}

	opts := []importer.ImporterOption{importer.WithLogger(logger)}
	if embed {
		enc, err := newEncoder(cfg.Embedding, logger)
		if err != nil {
			return nil, err
		}
		extractor := embedding.NewExtractor(enc, embedding.WithModelName(cfg.Embedding.Model))
		defer extractor.Close()
		opts = append(opts, importer.WithEmbedder(extractor))

		if cfg.Oracle.Backend == config.OracleQdrant {
			q, err := oracle.NewQdrantRanker(cfg.Oracle.Qdrant.Host, cfg.Oracle.Qdrant.Port, cfg.Oracle.Qdrant.Collection)
			if err != nil {
				return nil, err
			}
			defer q.Close()
			if err := q.EnsureCollection(ctx, cfg.Embedding.Dimensions); err != nil {
				return nil, err
			}
			opts = append(opts, importer.WithPointWriter(q))
		}
	}
	return importer.NewImporter(writer, opts...).ImportFile(ctx, path)
}

func runInitConfig() {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", *configPath)
		os.Exit(1)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(*configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", *configPath)
}

// Components holds initialized services.
type Components struct {
	Store     storage.Store
	Extractor *embedding.Extractor
	Qdrant    *oracle.QdrantRanker
	Search    *search.Service
}

// Ping checks the store and, when configured, the Qdrant server.
func (c *Components) Ping(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return fmt.Errorf("%s store: %w", c.Store.Backend(), err)
	}
	if c.Qdrant != nil {
		return c.Qdrant.Ping(ctx)
	}
	return nil
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Extractor != nil {
		_ = c.Extractor.Close()
	}
	if c.Qdrant != nil {
		_ = c.Qdrant.Close()
	}
}

// newEncoder loads the configured vision encoder. A model that cannot be
// loaded is an error; there is no fallback to the mock.
func newEncoder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Encoder, error) {
	switch cfg.Backend {
	case config.EmbeddingMock:
		logger.Warn("using mock embedding backend; search results are not meaningful")
		return embedding.NewMockEncoder(cfg.Dimensions, cfg.ImageSize), nil
	case config.EmbeddingONNX:
		return embedding.NewONNXEncoder(embedding.ONNXOptions{
			ModelPath:          cfg.ModelPath,
			RuntimeLibraryPath: cfg.RuntimeLibraryPath,
			InputName:          cfg.InputName,
			OutputName:         cfg.OutputName,
			Dimensions:         cfg.Dimensions,
			ImageSize:          cfg.ImageSize,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding backend %q", errs.ErrModelUnavailable, cfg.Backend)
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	enc, err := newEncoder(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	c.Extractor = embedding.NewExtractor(enc,
		embedding.WithModelName(cfg.Embedding.Model),
		embedding.WithCache(cfg.Embedding.CacheSize),
	)
	logger.Info("embedding model loaded",
		zap.String("model", cfg.Embedding.Model),
		zap.String("backend", cfg.Embedding.Backend),
		zap.Int("dimensions", enc.Dimensions()))

	c.Store, err = storage.Open(ctx, cfg.Store)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var ranker oracle.Ranker = c.Store
	if cfg.Oracle.Backend == config.OracleQdrant {
		c.Qdrant, err = oracle.NewQdrantRanker(cfg.Oracle.Qdrant.Host, cfg.Oracle.Qdrant.Port, cfg.Oracle.Qdrant.Collection)
		if err != nil {
			c.Close()
			return nil, err
		}
		ranker = c.Qdrant
	}

	adapter := oracle.NewAdapter(ranker, cfg.Embedding.Dimensions)
	c.Search = search.NewService(c.Extractor, adapter, cfg.Search, logger)
	return c, nil
}

func printUsage() {
	fmt.Println(`docent - exhibition artwork recognition by image similarity

Usage:
  docent server [flags]                       Start the HTTP server
  docent search --exhibition <id> <image>     Find the artworks most similar to an image
  docent import [--embed] <catalog.xlsx>      Seed the local catalog from a workbook
  docent init-config [--config path]          Write a config file with defaults
  docent version                              Show version
  docent help                                 Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/docent/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --exhibition int   Exhibition to search within (required)
  --top-k int        Number of matches (default from server/config, 3)
  --server string    Server URL (default: http://localhost:8000). Use --server "" to search without a server.
  --config string    Config file path (direct mode)
  --output string    Output format: text or json (default: text)

Import Flags:
  --embed            Compute embeddings from the image_file column
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Environment:
  DOCENT_* variables override the config file, e.g. DOCENT_STORE_DSN,
  DOCENT_EMBEDDING_MODEL_PATH, DOCENT_SEARCH_TOP_K.

Examples:
  docent server
  docent search --exhibition 42 photo.jpg
  docent search --output json --exhibition 42 photo.jpg
  docent import --embed catalog.xlsx`)
}
