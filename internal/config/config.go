package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the service. The retry ceilings, chunk
// sizes and clamp ranges vary across deployments, so all of them are
// named fields with the production defaults below rather than constants.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	// Scrape provider.
	AmpleBaseURL string
	AmpleAPIKey  string

	// Verification provider.
	NinjaVerifyURL string
	NinjaTokenURL  string
	NinjaAPIKey    string

	// Submission retry policy.
	SubmitMaxAttempts int
	SubmitBaseDelay   time.Duration
	SubmitMaxDelay    time.Duration

	// Polling policy.
	PollInterval    time.Duration
	PollGrowth      float64
	PollMaxAttempts int
	PollMaxDelay    time.Duration

	// Count clamp sent to the scrape provider.
	ProviderMinCount int
	ProviderMaxCount int

	// Batch verifier.
	MaxBatch         int
	ChunkSize        int
	MinChunkSize     int
	ChunkConcurrency int
	ChunkDelay       time.Duration
	RecordAttempts   int
	RecordTimeout    time.Duration
	TokenTTL         time.Duration
	VerdictCacheSize int
	VerdictCacheTTL  time.Duration

	HTTPTimeout time.Duration
}

// Default returns the production defaults, taken from the values the
// dashboard has been running with.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		AmpleBaseURL:      "https://api.ampleleads.io/v1/apollo",
		NinjaVerifyURL:    "https://happy.mailtester.ninja/ninja",
		NinjaTokenURL:     "https://token.mailtester.ninja/token",
		SubmitMaxAttempts: 5,
		SubmitBaseDelay:   10 * time.Second,
		SubmitMaxDelay:    3 * time.Minute,
		PollInterval:      5 * time.Second,
		PollGrowth:        1.5,
		PollMaxAttempts:   30,
		PollMaxDelay:      time.Minute,
		ProviderMinCount:  1,
		ProviderMaxCount:  10000,
		MaxBatch:          1000,
		ChunkSize:         10,
		MinChunkSize:      2,
		ChunkConcurrency:  2,
		ChunkDelay:        500 * time.Millisecond,
		RecordAttempts:    2,
		RecordTimeout:     10 * time.Second,
		TokenTTL:          23 * time.Hour,
		VerdictCacheSize:  4096,
		VerdictCacheTTL:   time.Hour,
		HTTPTimeout:       30 * time.Second,
	}
}

// FromEnv builds a Config from environment variables layered over the
// defaults. Call godotenv.Load first if a .env file should participate.
func FromEnv() (*Config, error) {
	cfg := Default()

	if v, ok := EnvString("LEADPIPE_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := EnvString("DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := EnvString("AMPLELEADS_BASE_URL"); ok {
		cfg.AmpleBaseURL = v
	}
	if v, ok := EnvString("AMPLELEADS_API_KEY"); ok {
		cfg.AmpleAPIKey = v
	}
	if v, ok := EnvString("NINJA_VERIFY_URL"); ok {
		cfg.NinjaVerifyURL = v
	}
	if v, ok := EnvString("NINJA_TOKEN_URL"); ok {
		cfg.NinjaTokenURL = v
	}
	if v, ok := EnvString("NINJA_EMAIL_VERIFIER_API_KEY"); ok {
		cfg.NinjaAPIKey = v
	}

	intFields := map[string]*int{
		"LEADPIPE_SUBMIT_MAX_ATTEMPTS": &cfg.SubmitMaxAttempts,
		"LEADPIPE_POLL_MAX_ATTEMPTS":   &cfg.PollMaxAttempts,
		"LEADPIPE_PROVIDER_MIN_COUNT":  &cfg.ProviderMinCount,
		"LEADPIPE_PROVIDER_MAX_COUNT":  &cfg.ProviderMaxCount,
		"LEADPIPE_MAX_BATCH":           &cfg.MaxBatch,
		"LEADPIPE_CHUNK_SIZE":          &cfg.ChunkSize,
		"LEADPIPE_MIN_CHUNK_SIZE":      &cfg.MinChunkSize,
		"LEADPIPE_CHUNK_CONCURRENCY":   &cfg.ChunkConcurrency,
		"LEADPIPE_RECORD_ATTEMPTS":     &cfg.RecordAttempts,
	}
	for key, dst := range intFields {
		value, ok, err := EnvInt(key)
		if err != nil {
			return nil, err
		}
		if ok {
			*dst = value
		}
	}

	durationFields := map[string]*time.Duration{
		"LEADPIPE_SUBMIT_BASE_DELAY": &cfg.SubmitBaseDelay,
		"LEADPIPE_POLL_INTERVAL":     &cfg.PollInterval,
		"LEADPIPE_CHUNK_DELAY":       &cfg.ChunkDelay,
		"LEADPIPE_RECORD_TIMEOUT":    &cfg.RecordTimeout,
		"LEADPIPE_TOKEN_TTL":         &cfg.TokenTTL,
	}
	for key, dst := range durationFields {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return nil, err
		}
		if ok {
			*dst = value
		}
	}

	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.AmpleBaseURL == "" {
		return fmt.Errorf("scrape provider base URL cannot be empty")
	}
	if c.NinjaVerifyURL == "" || c.NinjaTokenURL == "" {
		return fmt.Errorf("verification provider URLs cannot be empty")
	}
	if c.SubmitMaxAttempts <= 0 {
		return fmt.Errorf("submit max attempts must be positive")
	}
	if c.SubmitBaseDelay <= 0 {
		return fmt.Errorf("submit base delay must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PollGrowth < 1 {
		return fmt.Errorf("poll growth factor must be at least 1")
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("poll max attempts must be positive")
	}
	if c.ProviderMinCount < 1 || c.ProviderMaxCount < c.ProviderMinCount {
		return fmt.Errorf("provider count clamp [%d, %d] is not a valid range", c.ProviderMinCount, c.ProviderMaxCount)
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("max batch must be positive")
	}
	if c.MinChunkSize < 1 || c.ChunkSize < c.MinChunkSize {
		return fmt.Errorf("chunk size %d must be at least the minimum %d", c.ChunkSize, c.MinChunkSize)
	}
	if c.ChunkConcurrency <= 0 {
		return fmt.Errorf("chunk concurrency must be positive")
	}
	if c.ChunkDelay < 0 {
		return fmt.Errorf("chunk delay cannot be negative")
	}
	if c.RecordAttempts < 1 {
		return fmt.Errorf("record attempts must be at least 1")
	}
	if c.RecordTimeout <= 0 {
		return fmt.Errorf("record timeout must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	return nil
}

// EnvString reads a string environment variable.
func EnvString(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration reads a duration environment variable (Go duration syntax).
func EnvDuration(key string) (time.Duration, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, true, nil
}
