package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/adapters/httpio"
	"github.com/betbot/gocrash/internal/adapters/paper"
	"github.com/betbot/gocrash/internal/ports"
	"github.com/betbot/gocrash/pkg/config"
)

const (
	modeHTTP   = "http"
	modeReplay = "replay"
	modePaper  = "paper"
)

type sourceSet struct {
	events   ports.EventSource
	actuator ports.BetActuator
}

// buildSource 按模式组装结果来源和下注执行
func buildSource(cfg *config.Config) (sourceSet, error) {
	sc := cfg.Source
	switch sc.Mode {
	case modeHTTP:
		if sc.BaseURL == "" {
			return sourceSet{}, fmt.Errorf("http 模式需要 source.base_url")
		}
		client := httpio.NewClient(httpio.Config{
			BaseURL:      sc.BaseURL,
			Token:        sc.Token,
			Timeout:      sc.Timeout,
			PollInterval: sc.PollInterval,
			RateLimit:    sc.RateLimit,
			RetryCount:   2,
		})
		src := httpio.NewSource(client)
		if !cfg.DryRun {
			return sourceSet{events: src, actuator: httpio.NewActuator(client)}, nil
		}
		table := paper.NewTable(dryRunBalance(src, sc))
		logrus.Warnf("🧪 DRY-RUN: 结果来自 %s，下注只在纸面上", sc.BaseURL)
		return sourceSet{events: paper.NewMirrorSource(src, table), actuator: table}, nil

	case modeReplay:
		outs, err := paper.LoadReplay(sc.ReplayFile)
		if err != nil {
			return sourceSet{}, err
		}
		table := paper.NewTable(sc.PaperBalance)
		logrus.Infof("📼 回放 %s: %d 个结果", sc.ReplayFile, len(outs))
		return sourceSet{events: paper.NewReplaySource(table, outs, sc.ReplayDelay), actuator: table}, nil

	case modePaper:
		table := paper.NewTable(sc.PaperBalance)
		seed := uint64(time.Now().UnixNano())
		logrus.Infof("🎲 模拟模式 seed=%d", seed)
		return sourceSet{events: paper.NewSimSource(table, seed, sc.ReplayDelay), actuator: table}, nil
	}
	return sourceSet{}, fmt.Errorf("未知的 source.mode: %q (http / replay / paper)", sc.Mode)
}

// dryRunBalance 纸面初始余额优先取真实余额
func dryRunBalance(src ports.EventSource, sc config.SourceConfig) decimal.Decimal {
	ctx, cancel := context.WithTimeout(context.Background(), sc.Timeout)
	defer cancel()
	if b, ok, err := src.ReadBalance(ctx); err == nil && ok && b.IsPositive() {
		return b
	}
	return sc.PaperBalance
}
