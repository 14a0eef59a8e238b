// Package config provides configuration loading and structs for the docent server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Oracle backends. OracleStore ranks with the catalog store's own procedure.
const (
	OracleStore  = "store"
	OracleQdrant = "qdrant"
)

// Embedding backends.
const (
	EmbeddingONNX = "onnx"
	EmbeddingMock = "mock"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig selects the record store. DatabasePath is used by sqlite, DSN by postgres.
type StoreConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	DSN          string `yaml:"dsn"`
}

// OracleConfig selects the vector ranking service.
type OracleConfig struct {
	Backend string       `yaml:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds the Qdrant gRPC endpoint and collection.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig holds vision encoder settings. Model is the version string
// reported by /health; ModelPath is the exported ONNX graph.
type EmbeddingConfig struct {
	Backend            string `yaml:"backend"`
	Model              string `yaml:"model"`
	ModelPath          string `yaml:"model_path"`
	RuntimeLibraryPath string `yaml:"runtime_library_path"`
	Dimensions         int    `yaml:"dimensions"`
	ImageSize          int    `yaml:"image_size"`
	InputName          string `yaml:"input_name"`
	OutputName         string `yaml:"output_name"`
	CacheSize          int    `yaml:"cache_size"`
}

// SearchConfig holds image search settings.
type SearchConfig struct {
	TopK          int           `yaml:"top_k"`
	EmbedTimeout  time.Duration `yaml:"embed_timeout"`
	OracleTimeout time.Duration `yaml:"oracle_timeout"`
}

// TracingConfig holds OpenTelemetry settings. Tracing is disabled when OTLPEndpoint is empty.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Load reads and parses the config file at path, applies defaults and DOCENT_*
// environment overrides, and expands paths. An empty path skips the file so the
// service can be configured from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Store.DatabasePath = expandPath(cfg.Store.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.RuntimeLibraryPath = expandPath(cfg.Embedding.RuntimeLibraryPath, configDir)

	return &cfg, nil
}

// Save writes the config to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports every missing or inconsistent required setting at once.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.DatabasePath == "" {
			problems = append(problems, "store.database_path is required for the sqlite driver")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			problems = append(problems, "store.dsn (or DOCENT_STORE_DSN) is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q (supported: sqlite, postgres)", c.Store.Driver))
	}
	switch c.Oracle.Backend {
	case OracleStore:
	case OracleQdrant:
		if c.Oracle.Qdrant.Host == "" || c.Oracle.Qdrant.Collection == "" {
			problems = append(problems, "oracle.qdrant.host and oracle.qdrant.collection are required for the qdrant backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown oracle.backend %q (supported: store, qdrant)", c.Oracle.Backend))
	}
	switch c.Embedding.Backend {
	case EmbeddingONNX:
		if c.Embedding.ModelPath == "" {
			problems = append(problems, "embedding.model_path is required for the onnx backend")
		}
	case EmbeddingMock:
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding.backend %q (supported: onnx, mock)", c.Embedding.Backend))
	}
	if c.Embedding.Dimensions <= 0 {
		problems = append(problems, "embedding.dimensions must be positive")
	}
	if c.Search.TopK < 1 {
		problems = append(problems, "search.top_k must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
