// Package config provides configuration loading for fraudinteld.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/fraudintel/internal/logging"
)

// ErrInvalidConfig indicates configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration for the daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Search      SearchConfig      `koanf:"search"`
	Extract     ExtractConfig     `koanf:"extract"`
	Crawler     CrawlerConfig     `koanf:"crawler"`
	Generation  GenerationConfig  `koanf:"generation"`
	Router      RouterConfig      `koanf:"router"`
	Webhook     WebhookConfig     `koanf:"webhook"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig controls the persistent embedding store.
type VectorStoreConfig struct {
	// Path is the on-disk directory for the store.
	Path string `koanf:"path"`
	// Compress gzips persisted documents.
	Compress bool `koanf:"compress"`
	// Collection is the default collection name.
	Collection string `koanf:"collection"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of: fastembed, tei, genai.
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	// BaseURL is the endpoint for the tei provider.
	BaseURL string `koanf:"base_url"`
	// APIKey authenticates the genai provider.
	APIKey   string `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// SearchConfig configures web search collection.
type SearchConfig struct {
	APIKey     string `koanf:"api_key"`
	EngineID   string `koanf:"engine_id"`
	MaxResults int    `koanf:"max_results"`
	// RecentCachePath persists the recently-served URL cache across restarts.
	RecentCachePath string `koanf:"recent_cache_path"`
	RecentCacheSize int    `koanf:"recent_cache_size"`
}

// ExtractConfig controls article body extraction.
type ExtractConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	MinLength int           `koanf:"min_length"`
	MaxLength int           `koanf:"max_length"`
	UserAgent string        `koanf:"user_agent"`
}

// CrawlerConfig controls multi-page board crawling.
type CrawlerConfig struct {
	// Delay is the politeness pause between page fetches.
	Delay       time.Duration `koanf:"delay"`
	MaxPages    int           `koanf:"max_pages"`
	MaxArticles int           `koanf:"max_articles"`
}

// GenerationConfig configures the text generation backend.
type GenerationConfig struct {
	APIKey     string `koanf:"api_key"`
	Model      string `koanf:"model"`
	MaxRetries int    `koanf:"max_retries"`
}

// RouterConfig holds relevance thresholds for retrieval routing.
type RouterConfig struct {
	// MinRelevance is the general hit threshold.
	MinRelevance float64 `koanf:"min_relevance"`
	// GuidanceThreshold is the stricter threshold for guidance lookups.
	GuidanceThreshold float64 `koanf:"guidance_threshold"`
	TopK              int     `koanf:"top_k"`
}

// WebhookConfig configures analysis-complete notifications.
// An empty URL disables delivery.
type WebhookConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8200
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	cfg.Logging.ApplyDefaults()
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./data/fraudintel"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "fraud_patterns"
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 10
	}
	if cfg.Search.RecentCacheSize == 0 {
		cfg.Search.RecentCacheSize = 200
	}
	if cfg.Extract.Timeout == 0 {
		cfg.Extract.Timeout = 12 * time.Second
	}
	if cfg.Extract.MinLength == 0 {
		cfg.Extract.MinLength = 100
	}
	if cfg.Extract.MaxLength == 0 {
		cfg.Extract.MaxLength = 3000
	}
	if cfg.Extract.UserAgent == "" {
		cfg.Extract.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	if cfg.Crawler.Delay == 0 {
		cfg.Crawler.Delay = 1500 * time.Millisecond
	}
	if cfg.Crawler.MaxPages == 0 {
		cfg.Crawler.MaxPages = 5
	}
	if cfg.Crawler.MaxArticles == 0 {
		cfg.Crawler.MaxArticles = 20
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-2.0-flash"
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 3
	}
	if cfg.Router.MinRelevance == 0 {
		cfg.Router.MinRelevance = 0.75
	}
	if cfg.Router.GuidanceThreshold == 0 {
		cfg.Router.GuidanceThreshold = 0.80
	}
	if cfg.Router.TopK == 0 {
		cfg.Router.TopK = 5
	}
	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 30 * time.Second
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	switch c.Embeddings.Provider {
	case "fastembed", "tei", "genai":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "tei" && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("%w: tei provider requires embeddings base_url", ErrInvalidConfig)
	}
	if c.Embeddings.Provider == "genai" && c.Embeddings.APIKey == "" {
		return fmt.Errorf("%w: genai provider requires embeddings api_key", ErrInvalidConfig)
	}
	if c.Router.MinRelevance < 0 || c.Router.MinRelevance > 1 {
		return fmt.Errorf("%w: min_relevance %v out of range", ErrInvalidConfig, c.Router.MinRelevance)
	}
	if c.Router.GuidanceThreshold < 0 || c.Router.GuidanceThreshold > 1 {
		return fmt.Errorf("%w: guidance_threshold %v out of range", ErrInvalidConfig, c.Router.GuidanceThreshold)
	}
	if c.Router.TopK < 1 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}
	if c.Extract.MaxLength < c.Extract.MinLength {
		return fmt.Errorf("%w: extract max_length below min_length", ErrInvalidConfig)
	}
	if c.Crawler.MaxPages < 1 || c.Crawler.MaxArticles < 1 {
		return fmt.Errorf("%w: crawler limits must be positive", ErrInvalidConfig)
	}
	return nil
}
