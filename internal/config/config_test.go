package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"CareLedger/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 1024, cfg.PersistChanSize)
	assert.Equal(t, 2048, cfg.ProjectionChanSize)
	assert.Equal(t, 50, cfg.PersistBatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.PersistFlushTimeout)
	assert.Equal(t, int64(100_000), cfg.SnapshotInterval)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.Equal(t, 1_000_000, cfg.IdempotencyLRUCapacity)
	assert.Empty(t, cfg.GovernanceFile)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CARE_NATS_URL", "nats://nats.internal:4222")
	t.Setenv("CARE_PERSIST_CHAN_SIZE", "64")
	t.Setenv("CARE_PERSIST_FLUSH_TIMEOUT", "25ms")
	t.Setenv("CARE_SNAPSHOT_INTERVAL", "500")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://nats.internal:4222", cfg.NATSURL)
	assert.Equal(t, 64, cfg.PersistChanSize)
	assert.Equal(t, 25*time.Millisecond, cfg.PersistFlushTimeout)
	assert.Equal(t, int64(500), cfg.SnapshotInterval)
}

func TestLoad_LRUCapacityOverride(t *testing.T) {
	t.Setenv("CARE_IDEMPOTENCY_LRU_CAPACITY", "4096")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.IdempotencyLRUCapacity)
}

func TestLoad_RejectsNonPositiveSizes(t *testing.T) {
	t.Setenv("CARE_PERSIST_CHAN_SIZE", "0")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist channel size")
}

func TestEngineConfig_NoFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	engCfg, err := cfg.EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, int64(1), engCfg.RatingTable.Version)
	assert.True(t, engCfg.Treaty.PolicyPeriodEnd.IsZero(), "no treaty bound by default")
}

func TestEngineConfig_GovernanceFile(t *testing.T) {
	doc := `
treaty:
  specific_attachment_usdc: 50000000000
  specific_coinsurance_bps: 9000
  aggregate_trigger_bps: 12000
  aggregate_ceiling_bps: 15000
  catastrophic_trigger_bps: 20000
  catastrophic_ceiling_bps: 30000
  policy_period_start: 2026-01-01T00:00:00Z
  policy_period_end: 2027-01-01T00:00:00Z
  expected_annual_claims: 1200000000000
reserve_targets:
  tier0_days: 30
  tier1_days: 60
  tier2_days: 90
  reserve_margin_bps: 500
  admin_load_bps: 800
`
	path := filepath.Join(t.TempDir(), "governance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("CARE_GOVERNANCE_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	engCfg, err := cfg.EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, int64(50_000_000_000), engCfg.Treaty.SpecificAttachmentUsdc)
	assert.Equal(t, int64(9000), engCfg.Treaty.SpecificCoinsuranceBps)
	assert.False(t, engCfg.Treaty.PolicyPeriodEnd.IsZero())
	assert.Equal(t, int64(30), engCfg.ReserveTargets.Tier0Days)
	assert.Equal(t, int64(800), engCfg.ReserveTargets.AdminLoadBps)
}

func TestEngineConfig_InvalidGovernanceFileRejected(t *testing.T) {
	doc := `
treaty:
  aggregate_trigger_bps: 15000
  aggregate_ceiling_bps: 12000
`
	path := filepath.Join(t.TempDir(), "governance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("CARE_GOVERNANCE_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = cfg.EngineConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap treaty")
}
