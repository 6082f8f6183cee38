// Package config loads DocBrain's process configuration: provider
// endpoints, the vector index DSN, the metadata store DSN, object storage,
// queue backend, and retry-policy defaults. Configuration is YAML on disk
// with environment-variable overrides, matching the teacher's
// env-first/YAML-fallback loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config is the top-level process configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`

	Store        StoreConfig        `yaml:"store"`
	ObjectStore  ObjectStoreConfig  `yaml:"object_store"`
	VectorIndex  VectorIndexConfig  `yaml:"vector_index"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	LLM          LLMConfig          `yaml:"llm"`
	Reranker     RerankerConfig     `yaml:"reranker"`
	JobQueue     JobQueueConfig     `yaml:"job_queue"`
	Retry        RetryConfig        `yaml:"retry"`
}

// StoreConfig configures the metadata store.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory" | "postgres"
	DSN     string `yaml:"dsn"`
}

// ObjectStoreConfig configures raw document byte storage.
type ObjectStoreConfig struct {
	Backend               string      `yaml:"backend"` // "memory" | "s3"
	Bucket                string      `yaml:"bucket"`
	Prefix                string      `yaml:"prefix"`
	Region                string      `yaml:"region"`
	Endpoint              string      `yaml:"endpoint"`
	AccessKey             string      `yaml:"access_key"`
	SecretKey             string      `yaml:"secret_key"`
	UsePathStyle          bool        `yaml:"use_path_style"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

// S3SSEConfig configures server-side encryption for S3-compatible backends.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "" | "sse-s3" | "sse-kms"
	KMSKeyID string `yaml:"kms_key_id"`
}

// VectorIndexConfig configures the external vector-index service.
type VectorIndexConfig struct {
	Backend    string `yaml:"backend"` // "memory" | "qdrant"
	DSN        string `yaml:"dsn"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine|l2|ip
}

// EmbeddingConfig configures the embedding model/provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai" | "deterministic"
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
}

// LLMConfig selects and configures the chat-completion provider.
type LLMConfig struct {
	Provider  string          `yaml:"provider"` // "openai" | "anthropic" | "google"
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google    GoogleConfig    `yaml:"google"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RerankerConfig selects the Reranker variant.
type RerankerConfig struct {
	Variant string `yaml:"variant"` // "cross_encoder" | "remote" | "flag_embedding" | "none"
	Host    string `yaml:"host"`
	APIKey  string `yaml:"api_key"`
	RedisDSN string `yaml:"redis_dsn"`
}

// JobQueueConfig configures the durable task queue transport.
type JobQueueConfig struct {
	Backend    string   `yaml:"backend"` // "memory" | "kafka"
	Brokers    []string `yaml:"brokers"`
	RedisDSN   string   `yaml:"redis_dsn"`
	GroupID    string   `yaml:"group_id"`
	WorkerPool int      `yaml:"worker_pool"`
}

// RetryConfig is the default retry policy bound to job handlers.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	TaskTimeLimit time.Duration `yaml:"task_time_limit"`
}

// Load reads YAML from path (if non-empty and present) then applies
// environment variable overrides, mirroring the teacher's env-overrides-YAML
// precedence. Defaults are filled in for anything left unset.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.LogLevel = firstNonEmpty(os.Getenv("DOCBRAIN_LOG_LEVEL"), cfg.LogLevel)
	cfg.LogPath = firstNonEmpty(os.Getenv("DOCBRAIN_LOG_PATH"), cfg.LogPath)

	cfg.Store.Backend = firstNonEmpty(os.Getenv("DOCBRAIN_STORE_BACKEND"), cfg.Store.Backend)
	cfg.Store.DSN = firstNonEmpty(os.Getenv("DOCBRAIN_STORE_DSN"), cfg.Store.DSN)

	cfg.VectorIndex.Backend = firstNonEmpty(os.Getenv("DOCBRAIN_VECTOR_BACKEND"), cfg.VectorIndex.Backend)
	cfg.VectorIndex.DSN = firstNonEmpty(os.Getenv("DOCBRAIN_VECTOR_DSN"), cfg.VectorIndex.DSN)
	if v := os.Getenv("DOCBRAIN_VECTOR_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.VectorIndex.Dimensions = n
		}
	}

	cfg.ObjectStore.Backend = firstNonEmpty(os.Getenv("DOCBRAIN_OBJECTSTORE_BACKEND"), cfg.ObjectStore.Backend)
	cfg.ObjectStore.Bucket = firstNonEmpty(os.Getenv("DOCBRAIN_S3_BUCKET"), cfg.ObjectStore.Bucket)
	cfg.ObjectStore.AccessKey = firstNonEmpty(os.Getenv("AWS_ACCESS_KEY_ID"), cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = firstNonEmpty(os.Getenv("AWS_SECRET_ACCESS_KEY"), cfg.ObjectStore.SecretKey)

	cfg.Embedding.Provider = firstNonEmpty(os.Getenv("DOCBRAIN_EMBEDDING_PROVIDER"), cfg.Embedding.Provider)
	cfg.Embedding.APIKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), cfg.Embedding.APIKey)

	cfg.LLM.Provider = firstNonEmpty(os.Getenv("DOCBRAIN_LLM_PROVIDER"), cfg.LLM.Provider)
	cfg.LLM.OpenAI.APIKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), cfg.LLM.OpenAI.APIKey)
	cfg.LLM.Anthropic.APIKey = firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.Anthropic.APIKey)
	cfg.LLM.Google.APIKey = firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), cfg.LLM.Google.APIKey)

	cfg.JobQueue.RedisDSN = firstNonEmpty(os.Getenv("DOCBRAIN_REDIS_DSN"), cfg.JobQueue.RedisDSN)
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.ObjectStore.Backend == "" {
		cfg.ObjectStore.Backend = "memory"
	}
	if cfg.VectorIndex.Backend == "" {
		cfg.VectorIndex.Backend = "memory"
	}
	if cfg.VectorIndex.Dimensions <= 0 {
		cfg.VectorIndex.Dimensions = 768
	}
	if cfg.VectorIndex.Metric == "" {
		cfg.VectorIndex.Metric = "cosine"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "deterministic"
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = cfg.VectorIndex.Dimensions
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.Reranker.Variant == "" {
		cfg.Reranker.Variant = "none"
	}
	if cfg.JobQueue.Backend == "" {
		cfg.JobQueue.Backend = "memory"
	}
	if cfg.JobQueue.GroupID == "" {
		cfg.JobQueue.GroupID = "docbrain-workers"
	}
	if cfg.JobQueue.WorkerPool <= 0 {
		cfg.JobQueue.WorkerPool = 4
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Retry.TaskTimeLimit <= 0 {
		cfg.Retry.TaskTimeLimit = time.Hour
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
