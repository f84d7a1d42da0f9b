package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gocrash/internal/adapters/paper"
	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/pkg/config"
)

func TestBuildSourceModes(t *testing.T) {
	dir := t.TempDir()
	replayFile := filepath.Join(dir, "replay.txt")
	require.NoError(t, os.WriteFile(replayFile, []byte("1.50\n2.30\n"), 0o644))

	cfg := &config.Config{Source: config.SourceConfig{Mode: modeReplay, ReplayFile: replayFile, PaperBalance: domain.D("500")}}
	set, err := buildSource(cfg)
	require.NoError(t, err)
	_, ok := set.events.(*paper.Source)
	assert.True(t, ok)
	bal, _, err := set.events.ReadBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(domain.D("500")))

	cfg.Source.Mode = modePaper
	set, err = buildSource(cfg)
	require.NoError(t, err)
	assert.NotNil(t, set.actuator)

	cfg.Source.Mode = modeHTTP
	cfg.Source.BaseURL = ""
	_, err = buildSource(cfg)
	assert.Error(t, err)

	cfg.Source.Mode = "carrier-pigeon"
	_, err = buildSource(cfg)
	assert.Error(t, err)
}

func TestBuildSourceDryRunUsesPaperBets(t *testing.T) {
	cfg := &config.Config{DryRun: true, Source: config.SourceConfig{
		Mode:         modeHTTP,
		BaseURL:      "http://127.0.0.1:1",
		Timeout:      100 * time.Millisecond,
		PaperBalance: domain.D("250"),
	}}
	set, err := buildSource(cfg)
	require.NoError(t, err)
	_, ok := set.actuator.(*paper.Table)
	assert.True(t, ok)
	bal, _, err := set.events.ReadBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(domain.D("250")))
}
