// Package config loads docket settings from defaults, an optional config
// file, a .env file and DOCKET_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docket/ai"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DOCKET"

const (
	BlobBackendBadger = "badger"
	BlobBackendS3     = "s3"
)

// Config is the complete runtime configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Deletion  DeletionConfig  `mapstructure:"deletion"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Blobs     BlobsConfig     `mapstructure:"blobs"`
	Server    ServerConfig    `mapstructure:"server"`
	Events    EventsConfig    `mapstructure:"events"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// AIConfig mirrors ai.Config.
type AIConfig struct {
	EmbeddingHost  string  `mapstructure:"embedding_host"`
	ChatHost       string  `mapstructure:"chat_host"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	ChatModel      string  `mapstructure:"chat_model"`
	VisionModel    string  `mapstructure:"vision_model"`
	APIToken       string  `mapstructure:"api_token"`
	Temperature    float64 `mapstructure:"temperature"`
}

type ChunkingConfig struct {
	TargetSize int `mapstructure:"target_size"`
	Overlap    int `mapstructure:"overlap"`
}

type IngestionConfig struct {
	PoolSize         int           `mapstructure:"pool_size"`
	WriteConcurrency int           `mapstructure:"write_concurrency"`
	WriteAttempts    int           `mapstructure:"write_attempts"`
	WriteBaseDelay   time.Duration `mapstructure:"write_base_delay"`
}

type DeletionConfig struct {
	PageSize      int `mapstructure:"page_size"`
	MaxEmptyPages int `mapstructure:"max_empty_pages"`
}

type JobsConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	Lease        time.Duration `mapstructure:"lease"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type RetrievalConfig struct {
	CandidateLimit  int           `mapstructure:"candidate_limit"`
	ManyThreshold   int           `mapstructure:"many_threshold"`
	MaxNames        int           `mapstructure:"max_names"`
	MaxContextChars int           `mapstructure:"max_context_chars"`
	SummaryTimeout  time.Duration `mapstructure:"summary_timeout"`
	MinScore        float64       `mapstructure:"min_score"`
}

type ExtractConfig struct {
	MaxBytes   int           `mapstructure:"max_bytes"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ImageRate  float64       `mapstructure:"image_rate"`
	ImageBurst int           `mapstructure:"image_burst"`
}

type ScrapeConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinTextLength int           `mapstructure:"min_text_length"`
}

// BlobsConfig selects where uploaded bytes are kept.
type BlobsConfig struct {
	Backend string   `mapstructure:"backend"`
	MaxSize int      `mapstructure:"max_size"`
	BaseURL string   `mapstructure:"base_url"` // Prefix of badger blob URLs
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket       string        `mapstructure:"bucket"`
	Region       string        `mapstructure:"region"`
	Prefix       string        `mapstructure:"prefix"`
	Endpoint     string        `mapstructure:"endpoint"`
	UsePathStyle bool          `mapstructure:"use_path_style"`
	AccessKey    string        `mapstructure:"access_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	PresignTTL   time.Duration `mapstructure:"presign_ttl"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TenantClaim    string        `mapstructure:"tenant_claim"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// EventsConfig enables Redis fan-out of file change events when RedisURL is set.
type EventsConfig struct {
	RedisURL      string `mapstructure:"redis_url"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// AIConfig converts the AI section into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithChatHost(c.AI.ChatHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithChatModel(c.AI.ChatModel),
		ai.WithVisionModel(c.AI.VisionModel),
		ai.WithAPIToken(c.AI.APIToken),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Chunking.TargetSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking.target_size must be positive, got %d", c.Chunking.TargetSize))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.TargetSize {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, target_size), got %d", c.Chunking.Overlap))
	}
	if c.Deletion.PageSize <= 0 {
		errs = append(errs, errors.New("deletion.page_size must be positive"))
	}
	if c.Retrieval.ManyThreshold < 1 {
		errs = append(errs, errors.New("retrieval.many_threshold must be at least 1"))
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, errors.New("retrieval.min_score must be between 0 and 1"))
	}

	switch c.Blobs.Backend {
	case BlobBackendBadger:
	case BlobBackendS3:
		if c.Blobs.S3.Bucket == "" {
			errs = append(errs, errors.New("blobs.s3.bucket is required for the s3 backend"))
		}
		if c.Blobs.S3.Region == "" {
			errs = append(errs, errors.New("blobs.s3.region is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("blobs.backend must be %q or %q, got %q",
			BlobBackendBadger, BlobBackendS3, c.Blobs.Backend))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
