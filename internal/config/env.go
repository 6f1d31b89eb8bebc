package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPRAVKA_"

// envKeys maps environment names (without EnvPrefix) to config paths.
var envKeys = map[string]string{
	"SERVER_HOST":            "server.host",
	"SERVER_PORT":            "server.port",
	"SERVER_REQUEST_TIMEOUT": "server.request_timeout",
	"DEBUG":                  "debug",

	"DATABASE_PATH":        "storage.database_path",
	"CATALOG_PATH":         "storage.catalog_path",
	"TITLE_INDEX_PATH":     "storage.title_index_path",
	"VECTOR_SNAPSHOT_PATH": "storage.vector_snapshot_path",

	"EMBEDDING_PROVIDER":   "embedding.provider",
	"EMBEDDING_BASE_URL":   "embedding.base_url",
	"EMBEDDING_MODEL":      "embedding.model",
	"EMBEDDING_MODEL_PATH": "embedding.model_path",
	"EMBEDDING_DIMENSIONS": "embedding.dimensions",
	"EMBEDDING_CACHE_SIZE": "embedding.cache_size",
	"EMBEDDING_TIMEOUT":    "embedding.timeout",

	"LLM_BASE_URL":    "generation.base_url",
	"LLM_MODEL":       "generation.model",
	"LLM_MAX_TOKENS":  "generation.max_tokens",
	"LLM_TEMPERATURE": "generation.temperature",
	"LLM_TIMEOUT":     "generation.timeout",

	"CHUNK_MAX_LENGTH": "retrieval.chunk_max_length",
	"CHUNK_OVERLAP":    "retrieval.chunk_overlap",
	"TOP_K":            "retrieval.top_k",
	"CANDIDATE_POOL":   "retrieval.candidate_pool",
	"SEARCH_MODE":      "retrieval.mode",
	"SEMANTIC_WEIGHT":  "retrieval.semantic_weight",
	"BM25_WEIGHT":      "retrieval.bm25_weight",
	"BM25_K1":          "retrieval.bm25_k1",
	"BM25_B":           "retrieval.bm25_b",
	"INDEX_TIMEOUT":    "retrieval.index_timeout",
}

// ApplyEnv overrides cfg from SPRAVKA_* environment variables.
// Call after Load and after godotenv has populated the environment.
// A value that does not parse for its field is an error naming the variable.
func ApplyEnv(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envKeys[strings.TrimPrefix(key, EnvPrefix)]
			value = strings.TrimSpace(value)
			if !ok || value == "" {
				return "", nil
			}
			return path, value
		},
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	o := overrides{k: k}
	o.setString("server.host", &cfg.Server.Host)
	o.setInt("server.port", &cfg.Server.Port)
	o.setDuration("server.request_timeout", &cfg.Server.RequestTimeout)
	o.setBool("debug", &cfg.Debug)

	o.setString("storage.database_path", &cfg.Storage.DatabasePath)
	o.setString("storage.catalog_path", &cfg.Storage.CatalogPath)
	o.setString("storage.title_index_path", &cfg.Storage.TitleIndexPath)
	o.setString("storage.vector_snapshot_path", &cfg.Storage.VectorSnapshotPath)

	o.setString("embedding.provider", &cfg.Embedding.Provider)
	o.setString("embedding.base_url", &cfg.Embedding.BaseURL)
	o.setString("embedding.model", &cfg.Embedding.Model)
	o.setString("embedding.model_path", &cfg.Embedding.ModelPath)
	o.setInt("embedding.dimensions", &cfg.Embedding.Dimensions)
	o.setInt("embedding.cache_size", &cfg.Embedding.CacheSize)
	o.setDuration("embedding.timeout", &cfg.Embedding.Timeout)

	o.setString("generation.base_url", &cfg.Generation.BaseURL)
	o.setString("generation.model", &cfg.Generation.Model)
	o.setInt("generation.max_tokens", &cfg.Generation.MaxTokens)
	o.setFloat("generation.temperature", &cfg.Generation.Temperature)
	o.setDuration("generation.timeout", &cfg.Generation.Timeout)

	o.setInt("retrieval.chunk_max_length", &cfg.Retrieval.ChunkMaxLength)
	o.setInt("retrieval.chunk_overlap", &cfg.Retrieval.ChunkOverlap)
	o.setInt("retrieval.top_k", &cfg.Retrieval.TopK)
	o.setInt("retrieval.candidate_pool", &cfg.Retrieval.CandidatePool)
	o.setString("retrieval.mode", &cfg.Retrieval.Mode)
	o.setFloat("retrieval.semantic_weight", &cfg.Retrieval.SemanticWeight)
	o.setFloat("retrieval.bm25_weight", &cfg.Retrieval.BM25Weight)
	o.setFloat("retrieval.bm25_k1", &cfg.Retrieval.BM25K1)
	o.setFloat("retrieval.bm25_b", &cfg.Retrieval.BM25B)
	o.setDuration("retrieval.index_timeout", &cfg.Retrieval.IndexTimeout)

	return o.err
}

// overrides copies present koanf values into config fields, keeping the first parse error.
type overrides struct {
	k   *koanf.Koanf
	err error
}

func (o *overrides) raw(path string) (string, bool) {
	if o.err != nil || !o.k.Exists(path) {
		return "", false
	}
	return o.k.String(path), true
}

func (o *overrides) fail(path string, err error) {
	o.err = fmt.Errorf("invalid value for %s%s: %w", EnvPrefix, envName(path), err)
}

func (o *overrides) setString(path string, dst *string) {
	if v, ok := o.raw(path); ok {
		*dst = v
	}
}

func (o *overrides) setInt(path string, dst *int) {
	if v, ok := o.raw(path); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			o.fail(path, err)
			return
		}
		*dst = n
	}
}

func (o *overrides) setFloat(path string, dst *float64) {
	if v, ok := o.raw(path); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			o.fail(path, err)
			return
		}
		*dst = f
	}
}

func (o *overrides) setBool(path string, dst *bool) {
	if v, ok := o.raw(path); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			o.fail(path, err)
			return
		}
		*dst = b
	}
}

func (o *overrides) setDuration(path string, dst *time.Duration) {
	if v, ok := o.raw(path); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			o.fail(path, err)
			return
		}
		*dst = d
	}
}

func envName(path string) string {
	for name, p := range envKeys {
		if p == path {
			return name
		}
	}
	return path
}
