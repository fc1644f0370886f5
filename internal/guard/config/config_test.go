package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 0.9995, cfg.Detection.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Detection.RetryAttempts)
	assert.Equal(t, 5, cfg.Explorer.PaceEvery)
	assert.Equal(t, time.Second, cfg.Explorer.PaceDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Explorer.WalletPaceDelay)
	assert.Equal(t, int64(42161), cfg.ChainID)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chain_id: 10
detection:
  similarity_threshold: 0.99
  wallet_concurrency: 500
  retry_base_delay: 250ms
store:
  driver: memory
kafka:
  brokers: ["a:9092"]
`), 0o644))
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("EXPLORER_API_KEY=from-dotenv\n"), 0o644))

	t.Setenv("KAFKA_BROKERS", "b:9092, c:9092")
	t.Setenv("EXPLORER_API_KEY", "")

	cfg, err := Load(path, envPath)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cfg.ChainID)
	assert.Equal(t, 0.99, cfg.Detection.SimilarityThreshold)
	assert.Equal(t, 32, cfg.Detection.WalletConcurrency, "clamped")
	assert.Equal(t, 250*time.Millisecond, cfg.Detection.RetryBaseDelay)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, []string{"b:9092", "c:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "from-dotenv", cfg.Explorer.APIKey)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Detection.SimilarityThreshold = 1.5
	cfg.Store.Driver = "postgres"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity_threshold")
	assert.Contains(t, err.Error(), "PG_DSN")
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitCSV(" a,, b ,"))
}
