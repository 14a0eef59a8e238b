package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCENT_"

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays DOCENT_* environment variables onto cfg. Unset variables
// leave the file value alone; malformed numbers are an error.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	strs := map[string]*string{
		"SERVER_HOST":               &cfg.Server.Host,
		"STORE_DRIVER":              &cfg.Store.Driver,
		"STORE_DATABASE_PATH":       &cfg.Store.DatabasePath,
		"STORE_DSN":                 &cfg.Store.DSN,
		"ORACLE_BACKEND":            &cfg.Oracle.Backend,
		"QDRANT_HOST":               &cfg.Oracle.Qdrant.Host,
		"QDRANT_COLLECTION":         &cfg.Oracle.Qdrant.Collection,
		"EMBEDDING_BACKEND":         &cfg.Embedding.Backend,
		"EMBEDDING_MODEL":           &cfg.Embedding.Model,
		"EMBEDDING_MODEL_PATH":      &cfg.Embedding.ModelPath,
		"EMBEDDING_RUNTIME_LIBRARY": &cfg.Embedding.RuntimeLibraryPath,
		"TRACING_OTLP_ENDPOINT":     &cfg.Tracing.OTLPEndpoint,
		"TRACING_ENVIRONMENT":       &cfg.Tracing.Environment,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":          &cfg.Server.Port,
		"QDRANT_PORT":          &cfg.Oracle.Qdrant.Port,
		"EMBEDDING_DIMENSIONS": &cfg.Embedding.Dimensions,
		"EMBEDDING_CACHE_SIZE": &cfg.Embedding.CacheSize,
		"SEARCH_TOP_K":         &cfg.Search.TopK,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"SEARCH_EMBED_TIMEOUT":  &cfg.Search.EmbedTimeout,
		"SEARCH_ORACLE_TIMEOUT": &cfg.Search.OracleTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", EnvPrefix, err)
		}
		cfg.Debug = b
	}
	return nil
}
