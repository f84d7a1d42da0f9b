package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/controlplane"
	"github.com/betbot/gocrash/internal/dashboard"
	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/metrics"
	"github.com/betbot/gocrash/internal/orchestrator"
	"github.com/betbot/gocrash/internal/store"
	"github.com/betbot/gocrash/pkg/commandqueue"
	"github.com/betbot/gocrash/pkg/config"
	"github.com/betbot/gocrash/pkg/logger"
	"github.com/betbot/gocrash/pkg/persistence"
	"github.com/betbot/gocrash/pkg/shutdown"
	"github.com/betbot/gocrash/pkg/syncgroup"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（yaml/json），默认 yml/config.yaml")
	dryRun := flag.Bool("dry-run", false, "真实结果 + 纸面下注")
	replay := flag.String("replay", "", "回放文件（每行一个倍数），回放结束后退出")
	showDashboard := flag.Bool("dashboard", false, "终端面板（日志只写文件）")
	flag.Parse()

	_ = godotenv.Load()

	if err := logger.InitDefault(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	} else if p, ok := firstExistingFile("yml/config.yaml", "config.yaml"); ok {
		config.SetConfigPath(p)
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *replay != "" {
		cfg.Source.Mode = modeReplay
		cfg.Source.ReplayFile = *replay
	}

	logCfg := cfg.Log
	if *showDashboard {
		logCfg.Quiet = true
		logCfg.NoColor = true
		if logCfg.OutputFile == "" {
			logCfg.OutputFile = "logs/bot.log"
		}
	}
	if err := logger.Init(logCfg); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	if err := run(cfg, *showDashboard); err != nil {
		logrus.Errorf("❌ %v", err)
		os.Exit(1)
	}
}

func firstExistingFile(paths ...string) (string, bool) {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func run(cfg *config.Config, showDashboard bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logDone := make(chan struct{})
	defer close(logDone)
	logger.StartRotationChecker(logDone)

	sm := shutdown.NewManager()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		sm.Shutdown(shutdownCtx)
	}()

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}
	logrus.Infof("🚀 启动: 模式=%s dry-run=%v 加速=%v", cfg.Source.Mode, cfg.DryRun, cfg.Engine.Pattern)

	queue, err := commandqueue.Open(commandqueue.OpenOptions{Path: cfg.Paths.QueueDir, EncryptionKey: mustQueueKey(cfg.Paths.QueueKey)})
	if err != nil {
		return fmt.Errorf("打开命令队列失败: %w", err)
	}
	sm.OnShutdown("commandqueue", func(context.Context) error { return queue.Close() })

	deps := orchestrator.Deps{
		Source:      src.events,
		Actuator:    src.actuator,
		Commands:    queue,
		Persistence: persistence.NewJSONFileService(cfg.Paths.StateDir),
	}

	var history controlplane.History
	if cfg.Paths.SQLitePath != "" {
		st, err := store.Open(ctx, cfg.Paths.SQLitePath, 1024)
		if err != nil {
			return fmt.Errorf("打开数据库失败: %w", err)
		}
		sm.OnShutdown("store", st.Close)
		deps.Sinks = append(deps.Sinks, st)
		history = st
	}

	engine, err := orchestrator.New(orchestrator.OptionsFromConfig(cfg), deps)
	if err != nil {
		return err
	}
	if err := engine.Init(ctx); err != nil {
		if errors.Is(err, domain.ErrStartupBalance) {
			return fmt.Errorf("启动余额不可读，拒绝运行: %w", err)
		}
		return err
	}

	if cfg.MetricsAddr != "" {
		hooks := &metrics.Hooks{
			Health: engine.Health,
			Status: func() any { return engine.Snapshot() },
		}
		if _, err := metrics.Serve(ctx, cfg.MetricsAddr, hooks); err != nil {
			logrus.Warnf("⚠️ metrics 服务启动失败: %v", err)
		}
	}

	if cfg.ControlPlane.Enabled {
		cp, err := controlplane.New(controlplane.Config{Addr: cfg.ControlPlane.Addr, Token: cfg.ControlPlane.Token}, engine, queue, history)
		if err != nil {
			return err
		}
		if _, err := cp.Start(); err != nil {
			return fmt.Errorf("控制面启动失败: %w", err)
		}
		sm.OnShutdown("controlplane", cp.Shutdown)
	}

	sg := syncgroup.NewSyncGroup()
	engineErr := make(chan error, 1)
	sg.Add("engine", func() {
		err := engine.Run(ctx)
		if err != nil {
			logrus.Errorf("❌ 引擎退出: %v", err)
		}
		engineErr <- err
		cancel()
	})
	sm.OnShutdown("engine", func(context.Context) error {
		cancel()
		engine.Stop()
		sg.Wait()
		return nil
	})

	if showDashboard {
		sg.Add("dashboard", func() {
			if err := dashboard.Run(ctx, engine, cfg.Engine.TriggerThreshold); err != nil {
				logrus.Errorf("面板退出: %v", err)
			}
			cancel()
		})
	}
	sg.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logrus.Infof("🛑 收到信号 %v，开始关闭", sig)
	case <-engine.SourceDone():
		logrus.Infof("🏁 结果来源已结束")
	case err := <-engineErr:
		engineErr <- err
	case <-ctx.Done():
	}
	printSummary(engine.Snapshot())

	select {
	case err := <-engineErr:
		if err != nil {
			return fmt.Errorf("引擎异常退出: %w", err)
		}
	default:
	}
	return nil
}

func mustQueueKey(raw string) []byte {
	key, err := commandqueue.ParseKey(raw)
	if err != nil {
		logrus.Fatalf("QUEUE_ENCRYPTION_KEY 无效: %v", err)
	}
	return key
}

func printSummary(s orchestrator.Snapshot) {
	logrus.Infof("📊 汇总: 余额=%s 储备=%s 债务=%s WIN=%d LOSS=%d BUST=%d 回合=%d 提交=%d",
		s.Sessao.SaldoAtual.StringFixed(2), s.Reserve.ReservaTotal.StringFixed(2), s.Reserve.DividaReserva.StringFixed(2),
		s.Sessao.SessoesWin, s.Sessao.SessoesLoss, s.Compound.TotalBusts, s.Sessao.TotalRodadas, s.CommitSeq)
}
