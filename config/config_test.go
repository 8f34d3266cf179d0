package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lendingd.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.OperatorKey)
	require.Equal(t, ":9090", cfg.MetricsAddress)
	require.FileExists(t, path)

	require.NoError(t, ValidateConfig(cfg.Global))
}

func TestLoadPreservesExplicitOperatorKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lendingd.toml")

	contents := `
MetricsAddress = ":9191"
DataDir = "./data"
OperatorKey = "deadbeef"

[global.Governance]
QuorumBPS = 5000
PassThresholdBPS = 5000
VotingPeriodSecs = 3600

[global.Oracle]
MaxAgeBlocks = 50
MaxDeviationBps = 500

[global.Events]
BatchSize = 256
FlushInterval = 30
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", cfg.OperatorKey)
	require.Equal(t, ":9191", cfg.MetricsAddress)
}

func TestValidateConfigRejectsBadGovernance(t *testing.T) {
	g := Global{
		Governance: Governance{QuorumBPS: 100, PassThresholdBPS: 5000, VotingPeriodSecs: MinVotingPeriodSeconds},
		Oracle:     OracleDefaults{MaxAgeBlocks: 50, MaxDeviationBps: 500},
		Events:     EventExport{BatchSize: 1},
	}
	require.Error(t, ValidateConfig(g))
}

func TestValidateConfigRejectsBadOracleDefaults(t *testing.T) {
	g := Global{
		Governance: Governance{QuorumBPS: 5000, PassThresholdBPS: 2000, VotingPeriodSecs: MinVotingPeriodSeconds},
		Oracle:     OracleDefaults{MaxAgeBlocks: 0, MaxDeviationBps: 500},
		Events:     EventExport{BatchSize: 1},
	}
	require.Error(t, ValidateConfig(g))
}
