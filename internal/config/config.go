// Package config provides configuration loading and structs for the Spravka server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Watch      WatchConfig      `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Author      string   `yaml:"author"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host" validate:"required"`
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for databases and indices.
type StorageConfig struct {
	DatabasePath       string `yaml:"database_path" validate:"required"`
	CatalogPath        string `yaml:"catalog_path" validate:"required"`
	TitleIndexPath     string `yaml:"title_index_path" validate:"required"`
	VectorSnapshotPath string `yaml:"vector_snapshot_path"`
	CollectionName     string `yaml:"collection_name"`
}

// EmbeddingConfig holds embedder settings. Provider is one of ollama, onnx, mock.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider" validate:"oneof=ollama onnx mock"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	ModelPath     string        `yaml:"model_path"`
	Dimensions    int           `yaml:"dimensions" validate:"min=1"`
	MaxTokens     int           `yaml:"max_tokens"`
	CacheSize     int           `yaml:"cache_size"`
	Timeout       time.Duration `yaml:"timeout"`
	QueryPrefix   string        `yaml:"query_prefix"`
	PassagePrefix string        `yaml:"passage_prefix"`
}

// GenerationConfig holds LLM settings.
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url" validate:"required"`
	Model       string        `yaml:"model" validate:"required"`
	MaxTokens   int           `yaml:"max_tokens" validate:"min=1"`
	Temperature float64       `yaml:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds chunking, ranking and fusion settings.
type RetrievalConfig struct {
	ChunkMaxLength int           `yaml:"chunk_max_length"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
	TopK           int           `yaml:"top_k" validate:"min=1"`
	CandidatePool  int           `yaml:"candidate_pool"`
	Mode           string        `yaml:"mode" validate:"oneof=hybrid semantic"`
	SemanticWeight float64       `yaml:"semantic_weight" validate:"min=0"`
	BM25Weight     float64       `yaml:"bm25_weight" validate:"min=0"`
	BM25K1         float64       `yaml:"bm25_k1" validate:"gt=0"`
	BM25B          float64       `yaml:"bm25_b" validate:"min=0,max=1"`
	IndexTimeout   time.Duration `yaml:"index_timeout"`
}

// PoolSize returns how many candidates each retrieval leg should fetch for topK.
func (r *RetrievalConfig) PoolSize(topK int) int {
	if r.CandidatePool > topK {
		return r.CandidatePool
	}
	return 4 * topK
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	cfg.Storage.TitleIndexPath = expandPath(cfg.Storage.TitleIndexPath, configDir)
	if cfg.Storage.VectorSnapshotPath != "" {
		cfg.Storage.VectorSnapshotPath = expandPath(cfg.Storage.VectorSnapshotPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
