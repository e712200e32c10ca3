package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var placeholder = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load builds a Config. path names an optional YAML, TOML or JSON file; an
// empty path skips it. A .env file in the working directory is loaded first
// without overriding variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		if err := loadConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load that panics on failure.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// loadConfigFile reads path, expands ${VAR:default} placeholders and merges
// the result into v.
func loadConfigFile(v *viper.Viper, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "yml" {
		ext = "yaml"
	}
	v.SetConfigType(ext)

	if err := v.MergeConfig(strings.NewReader(expandEnv(string(content)))); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// expandEnv replaces ${VAR} and ${VAR:default}. Undefined variables without a
// default are left as written.
func expandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./docket-data")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ai.embedding_host", "http://localhost:11434/v1")
	v.SetDefault("ai.chat_host", "http://localhost:11434/v1")
	v.SetDefault("ai.embedding_model", "embeddinggemma")
	v.SetDefault("ai.chat_model", "qwen2.5:3b")
	v.SetDefault("ai.vision_model", "llava")
	v.SetDefault("ai.api_token", "none")
	v.SetDefault("ai.temperature", 0.2)

	v.SetDefault("chunking.target_size", 2000)
	v.SetDefault("chunking.overlap", 400)

	v.SetDefault("ingestion.pool_size", 4)
	v.SetDefault("ingestion.write_concurrency", 4)
	v.SetDefault("ingestion.write_attempts", 3)
	v.SetDefault("ingestion.write_base_delay", "200ms")

	v.SetDefault("deletion.page_size", 100)
	v.SetDefault("deletion.max_empty_pages", 3)

	v.SetDefault("jobs.pool_size", 4)
	v.SetDefault("jobs.lease", "10m")
	v.SetDefault("jobs.poll_interval", "1s")
	v.SetDefault("jobs.max_attempts", 5)

	v.SetDefault("retrieval.candidate_limit", 30)
	v.SetDefault("retrieval.many_threshold", 3)
	v.SetDefault("retrieval.max_names", 5)
	v.SetDefault("retrieval.max_context_chars", 12000)
	v.SetDefault("retrieval.summary_timeout", "20s")
	v.SetDefault("retrieval.min_score", 0.0)

	v.SetDefault("extract.max_bytes", 50<<20)
	v.SetDefault("extract.timeout", "2m")
	v.SetDefault("extract.image_rate", 2.0)
	v.SetDefault("extract.image_burst", 2)

	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; docket/1.0; +https://github.com/poiesic/docket)")
	v.SetDefault("scrape.timeout", "10s")
	v.SetDefault("scrape.min_text_length", 50)

	v.SetDefault("blobs.backend", BlobBackendBadger)
	v.SetDefault("blobs.max_size", 64<<20)
	v.SetDefault("blobs.base_url", "/blobs/")
	v.SetDefault("blobs.s3.bucket", "")
	v.SetDefault("blobs.s3.region", "")
	v.SetDefault("blobs.s3.prefix", "")
	v.SetDefault("blobs.s3.endpoint", "")
	v.SetDefault("blobs.s3.use_path_style", false)
	v.SetDefault("blobs.s3.access_key", "")
	v.SetDefault("blobs.s3.secret_key", "")
	v.SetDefault("blobs.s3.presign_ttl", "15m")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.tenant_claim", "org_id")
	v.SetDefault("server.max_upload_bytes", 50<<20)

	v.SetDefault("events.redis_url", "")
	v.SetDefault("events.channel_prefix", "docket:files")
}
