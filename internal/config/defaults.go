package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreSQLite
	}
	if cfg.Store.Driver == StoreSQLite && cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = "/usr/local/var/docent/data/catalog.db"
	}
	if cfg.Oracle.Backend == "" {
		cfg.Oracle.Backend = OracleStore
	}
	if cfg.Oracle.Qdrant.Port == 0 {
		cfg.Oracle.Qdrant.Port = 6334
	}
	if cfg.Oracle.Qdrant.Collection == "" {
		cfg.Oracle.Qdrant.Collection = "artworks"
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = EmbeddingONNX
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "ViT-B-32"
	}
	if cfg.Embedding.Backend == EmbeddingONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/docent/data/models/clip-vit-b-32-visual.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.InputName == "" {
		cfg.Embedding.InputName = "pixel_values"
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "image_embeds"
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 3
	}
	if cfg.Search.EmbedTimeout == 0 {
		cfg.Search.EmbedTimeout = 10 * time.Second
	}
	if cfg.Search.OracleTimeout == 0 {
		cfg.Search.OracleTimeout = 10 * time.Second
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "docent"
	}
	if cfg.Tracing.Environment == "" {
		cfg.Tracing.Environment = "development"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}
