package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTuningFileOverridesEnvValues(t *testing.T) {
	BREAKER_MIN_REQUESTS = 5
	BREAKER_FAILURE_RATIO = 0.5
	LEDGER_RETRY_MAX_ATTEMPTS = 3
	MSGID_DEDUP_TTL_MINUTES = 30

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
breaker:
  min_requests: 10
  failure_ratio: 0.75
ledger:
  retry_max_attempts: 5
dedup:
  ttl_minutes: 60
`), 0o600))

	applyTuningFile(path)

	assert.Equal(t, 10, BREAKER_MIN_REQUESTS)
	assert.InDelta(t, 0.75, BREAKER_FAILURE_RATIO, 0.0001)
	assert.Equal(t, 5, LEDGER_RETRY_MAX_ATTEMPTS)
	assert.Equal(t, 60, MSGID_DEDUP_TTL_MINUTES)
}

func TestTuningFileAbsentKeepsEnvValues(t *testing.T) {
	BREAKER_MIN_REQUESTS = 5
	applyTuningFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 5, BREAKER_MIN_REQUESTS)
}

func TestTuningFileUnparseableIgnored(t *testing.T) {
	BREAKER_MIN_REQUESTS = 5
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breaker: ["), 0o600))
	applyTuningFile(path)
	assert.Equal(t, 5, BREAKER_MIN_REQUESTS)
}
