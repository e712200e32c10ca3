package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.Chunking.TargetSize)
	assert.Equal(t, 400, cfg.Chunking.Overlap)
	assert.Equal(t, 100, cfg.Deletion.PageSize)
	assert.Equal(t, 3, cfg.Deletion.MaxEmptyPages)
	assert.Equal(t, 30, cfg.Retrieval.CandidateLimit)
	assert.Equal(t, 3, cfg.Retrieval.ManyThreshold)
	assert.Equal(t, 20*time.Second, cfg.Retrieval.SummaryTimeout)
	assert.Equal(t, 10*time.Second, cfg.Scrape.Timeout)
	assert.Equal(t, BlobBackendBadger, cfg.Blobs.Backend)
	assert.Equal(t, "org_id", cfg.Server.TenantClaim)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileWithPlaceholders(t *testing.T) {
	t.Setenv("DOCKET_TEST_BUCKET", "uploads")

	path := writeFile(t, "docket.yaml", `
data_dir: /var/lib/docket
chunking:
  target_size: 1000
  overlap: 100
blobs:
  backend: s3
  s3:
    bucket: ${DOCKET_TEST_BUCKET}
    region: ${DOCKET_TEST_REGION:eu-west-1}
retrieval:
  summary_timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/docket", cfg.DataDir)
	assert.Equal(t, 1000, cfg.Chunking.TargetSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, "uploads", cfg.Blobs.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Blobs.S3.Region)
	assert.Equal(t, 5*time.Second, cfg.Retrieval.SummaryTimeout)
	// Untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Deletion.PageSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "docket.toml", `
[deletion]
page_size = 25
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Deletion.PageSize)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "docket.yaml", "retrieval:\n  many_threshold: 4\n")
	t.Setenv("DOCKET_RETRIEVAL_MANY_THRESHOLD", "6")
	t.Setenv("DOCKET_AI_CHAT_MODEL", "gpt-4o-mini")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Retrieval.ManyThreshold)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.ChatModel)
	assert.Equal(t, "gpt-4o-mini", cfg.AIConfig().ChatModel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DOCKET_SET", "value")

	assert.Equal(t, "value", expandEnv("${DOCKET_SET}"))
	assert.Equal(t, "value", expandEnv("${DOCKET_SET:other}"))
	assert.Equal(t, "fallback", expandEnv("${DOCKET_UNSET_VAR:fallback}"))
	assert.Equal(t, "", expandEnv("${DOCKET_UNSET_VAR:}"))
	assert.Equal(t, "${DOCKET_UNSET_VAR}", expandEnv("${DOCKET_UNSET_VAR}"))
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("overlap not below target", func(t *testing.T) {
		cfg := base(t)
		cfg.Chunking.Overlap = cfg.Chunking.TargetSize
		assert.ErrorContains(t, cfg.Validate(), "chunking.overlap")
	})

	t.Run("s3 needs bucket and region", func(t *testing.T) {
		cfg := base(t)
		cfg.Blobs.Backend = BlobBackendS3
		err := cfg.Validate()
		assert.ErrorContains(t, err, "blobs.s3.bucket")
		assert.ErrorContains(t, err, "blobs.s3.region")
	})

	t.Run("unknown blob backend", func(t *testing.T) {
		cfg := base(t)
		cfg.Blobs.Backend = "ftp"
		assert.ErrorContains(t, cfg.Validate(), "blobs.backend")
	})

	t.Run("bad log format", func(t *testing.T) {
		cfg := base(t)
		cfg.Log.Format = "xml"
		assert.ErrorContains(t, cfg.Validate(), "log.format")
	})

	t.Run("ai config", func(t *testing.T) {
		cfg := base(t)
		cfg.AI.EmbeddingModel = ""
		assert.ErrorContains(t, cfg.Validate(), "EmbeddingModel")
	})
}
