package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gocrash/internal/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	reset()
	t.Cleanup(reset)

	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, []domain.SafetyLevel{domain.NS7, domain.NS7, domain.NS6}, cfg.Engine.Pattern)
	assert.True(t, cfg.Engine.Targets.Primary.Equal(domain.D("2")))
	assert.True(t, cfg.Engine.Targets.Defense.Equal(domain.D("1.25")))
	assert.Equal(t, 6, cfg.Engine.TriggerSize)
	assert.Equal(t, 120*time.Second, cfg.Engine.AnomalyTimeout)
	assert.Equal(t, 100, cfg.Engine.RegimeWindow)
	assert.Equal(t, 500, cfg.Engine.HistoryCap)
	assert.Equal(t, 250, cfg.Engine.HistoryKeep)
	assert.Equal(t, 25, cfg.Reserve.GatilhosParaEmprestimo)
	assert.True(t, cfg.Reserve.EmprestimoAtivo)
	assert.Equal(t, "paper", cfg.Source.Mode)
	assert.True(t, cfg.ControlPlane.Enabled)
	assert.Same(t, cfg, Get())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	reset()
	t.Cleanup(reset)

	p := writeFile(t, "bot.yaml", `
engine:
  pattern: [8, 6]
  target_primary: 1.99
  anomaly_timeout_seconds: 30
reserve:
  meta_lucro_pct: 0.2
  emprestimo_ativo: false
source:
  mode: replay
  replay_file: rounds.txt
log:
  level: debug
`)
	t.Setenv("ENGINE_TRIGGER_SIZE", "5")
	t.Setenv("ENGINE_PATTERN", "NS9,10")

	cfg, err := LoadFromFile(p)
	require.NoError(t, err)
	assert.Equal(t, []domain.SafetyLevel{domain.NS9, domain.NS10}, cfg.Engine.Pattern)
	assert.True(t, cfg.Engine.Targets.Primary.Equal(domain.D("1.99")))
	assert.Equal(t, 30*time.Second, cfg.Engine.AnomalyTimeout)
	assert.Equal(t, 5, cfg.Engine.TriggerSize)
	assert.True(t, cfg.Reserve.MetaLucroPct.Equal(domain.D("0.2")))
	assert.False(t, cfg.Reserve.EmprestimoAtivo)
	assert.Equal(t, "replay", cfg.Source.Mode)
	assert.Equal(t, "rounds.txt", cfg.Source.ReplayFile)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, p, GetConfigPath())
}

func TestLoadJSON(t *testing.T) {
	reset()
	t.Cleanup(reset)

	p := writeFile(t, "bot.json", `{"engine":{"fixed_level":8},"dry_run":true}`)
	cfg, err := LoadFromFile(p)
	require.NoError(t, err)
	assert.Equal(t, domain.NS8, cfg.Engine.FixedLevel)
	assert.True(t, cfg.DryRun)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad level":     "engine:\n  pattern: [5]\n",
		"bad targets":   "engine:\n  target_defense: 2.5\n",
		"bad mode":      "source:\n  mode: carrier-pigeon\n",
		"missing url":   "source:\n  mode: http\n",
		"bad reserve":   "reserve:\n  pct_reserva: 1.5\n",
		"history order": "engine:\n  history_cap: 100\n  history_keep: 200\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			reset()
			t.Cleanup(reset)
			_, err := LoadFromFile(writeFile(t, "bot.yaml", body))
			require.Error(t, err)
		})
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	reset()
	t.Cleanup(reset)
	_, err := LoadFromFile(writeFile(t, "bot.toml", "x=1"))
	require.Error(t, err)
}
