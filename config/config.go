package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects every environment-driven setting of the service and the
// loader. Values are read once at startup; missing keys fall back to the
// defaults documented next to each field.
type Config struct {
	ServerAddr string
	LogLevel   string

	Redis  RedisConfig
	LLM    LLMConfig
	Embed  EmbedConfig
	Cache  CacheConfig
	Memory MemoryConfig
	Search SearchConfig
	Loader LoaderConfig
}

type RedisConfig struct {
	URL       string
	IndexName string
	KeyPrefix string
	VectorDim int
}

type LLMConfig struct {
	Provider    string
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

type EmbedConfig struct {
	Provider  string
	APIURL    string
	APIKey    string
	Model     string
	BatchSize int
	RPS       float64
	Burst     int
	CacheSize int
	CacheTTL  time.Duration
}

type CacheConfig struct {
	Enabled     bool
	Prefix      string
	MaxDistance float64
	TTL         time.Duration
	MaxEntries  int
	PruneCron   string
}

type MemoryConfig struct {
	Prefix string
	Window int
	TTL    time.Duration
}

type SearchConfig struct {
	TopK            int
	MaxDistance     float64
	ContextMaxChars int
}

type LoaderConfig struct {
	SourceDir    string
	ArchiveDir   string
	BadDir       string
	SettleTime   time.Duration
	ChunkSize    int
	ChunkOverlap int
	// PDF header/footer bands to cut before extraction, in points.
	// Zero disables cropping.
	PDFCropTop    float64
	PDFCropBottom float64
}

// FromEnv builds a Config from the process environment. Call godotenv.Load
// before this if a .env file should be honored.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			IndexName: getEnv("INDEX_NAME", "idx:chunks"),
			KeyPrefix: getEnv("KEY_PREFIX", "rag"),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "ollama"),
			APIURL:   getEnv("LLM_API_URL", "http://localhost:11434"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnv("LLM_MODEL", "llama3.1"),
		},
		Embed: EmbedConfig{
			Provider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			APIURL:   getEnv("EMBEDDING_API_URL", "http://localhost:11434"),
			APIKey:   os.Getenv("EMBEDDING_API_KEY"),
			Model:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		},
		Cache: CacheConfig{
			Enabled:   getEnv("CACHE_ENABLED", "true") == "true",
			Prefix:    getEnv("CACHE_PREFIX", "rag:semcache"),
			PruneCron: getEnv("CACHE_PRUNE_CRON", "@every 10m"),
		},
		Memory: MemoryConfig{
			Prefix: getEnv("MEMORY_PREFIX", "rag:memory"),
		},
		Loader: LoaderConfig{
			SourceDir:  getEnv("LOADER_SOURCE_DIR", "./data/in"),
			ArchiveDir: getEnv("LOADER_ARCHIVE_DIR", "./data/archive"),
			BadDir:     getEnv("LOADER_BAD_DIR", "./data/bad"),
		},
	}

	var err error
	if cfg.Redis.VectorDim, err = getInt("VECTOR_DIM", 768); err != nil {
		return nil, err
	}
	if cfg.LLM.Temperature, err = getFloat("LLM_TEMPERATURE", 0.2); err != nil {
		return nil, err
	}
	if cfg.LLM.TopP, err = getFloat("LLM_TOP_P", 0.9); err != nil {
		return nil, err
	}
	if cfg.LLM.MaxTokens, err = getInt("LLM_MAX_TOKENS", 1024); err != nil {
		return nil, err
	}
	if cfg.Embed.BatchSize, err = getInt("EMBED_BATCH_SIZE", 16); err != nil {
		return nil, err
	}
	if cfg.Embed.RPS, err = getFloat("EMBED_RPS", 4); err != nil {
		return nil, err
	}
	if cfg.Embed.Burst, err = getInt("EMBED_BURST", 8); err != nil {
		return nil, err
	}
	if cfg.Embed.CacheSize, err = getInt("EMBED_CACHE_SIZE", 2048); err != nil {
		return nil, err
	}
	if cfg.Embed.CacheTTL, err = getDuration("EMBED_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Cache.MaxDistance, err = getFloat("CACHE_MAX_DISTANCE", 0.2); err != nil {
		return nil, err
	}
	if cfg.Cache.TTL, err = getDuration("CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Cache.MaxEntries, err = getInt("CACHE_MAX_ENTRIES", 10000); err != nil {
		return nil, err
	}
	if cfg.Memory.Window, err = getInt("MEMORY_WINDOW", 20); err != nil {
		return nil, err
	}
	if cfg.Memory.TTL, err = getDuration("MEMORY_TTL", 72*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Search.TopK, err = getInt("SEARCH_TOP_K", 5); err != nil {
		return nil, err
	}
	if cfg.Search.MaxDistance, err = getFloat("SEARCH_MAX_DISTANCE", 0.55); err != nil {
		return nil, err
	}
	if cfg.Search.ContextMaxChars, err = getInt("CONTEXT_MAX_CHARS", 20000); err != nil {
		return nil, err
	}
	if cfg.Loader.SettleTime, err = getDuration("LOADER_SETTLE_TIME", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Loader.ChunkSize, err = getInt("CHUNK_SIZE", 250); err != nil {
		return nil, err
	}
	if cfg.Loader.ChunkOverlap, err = getInt("CHUNK_OVERLAP", 50); err != nil {
		return nil, err
	}
	if cfg.Loader.PDFCropTop, err = getFloat("LOADER_PDF_CROP_TOP", 0); err != nil {
		return nil, err
	}
	if cfg.Loader.PDFCropBottom, err = getFloat("LOADER_PDF_CROP_BOTTOM", 0); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Redis.VectorDim <= 0 {
		return fmt.Errorf("VECTOR_DIM must be positive, got %d", c.Redis.VectorDim)
	}
	if c.Cache.MaxDistance < 0 || c.Cache.MaxDistance > 2 {
		return fmt.Errorf("CACHE_MAX_DISTANCE must be within [0,2], got %g", c.Cache.MaxDistance)
	}
	if c.Loader.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Loader.ChunkSize)
	}
	if c.Loader.ChunkOverlap < 0 || c.Loader.ChunkOverlap >= c.Loader.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be within [0,CHUNK_SIZE), got %d", c.Loader.ChunkOverlap)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("SEARCH_TOP_K must be positive, got %d", c.Search.TopK)
	}
	if c.Memory.Window <= 0 {
		return fmt.Errorf("MEMORY_WINDOW must be positive, got %d", c.Memory.Window)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
