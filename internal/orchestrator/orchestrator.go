// Package orchestrator 串行决策循环：喂检测器、驱动会话、执行下注、读取余额、
// 结束后更新储备与加速并持久化。引擎状态只由决策协程修改。
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/acceleration"
	"github.com/betbot/gocrash/internal/common"
	"github.com/betbot/gocrash/internal/domain"
	"github.com/betbot/gocrash/internal/events"
	"github.com/betbot/gocrash/internal/martingale"
	"github.com/betbot/gocrash/internal/metrics"
	"github.com/betbot/gocrash/internal/ports"
	"github.com/betbot/gocrash/internal/regime"
	"github.com/betbot/gocrash/internal/reserve"
	"github.com/betbot/gocrash/internal/risk"
	"github.com/betbot/gocrash/pkg/cache"
	"github.com/betbot/gocrash/pkg/persistence"
	"github.com/betbot/gocrash/pkg/sigchan"
)

var log = logrus.WithField("component", "orchestrator")

const roundDedupeTTL = time.Hour

// Deps 外部依赖
type Deps struct {
	Source      ports.EventSource
	Actuator    ports.BetActuator
	Commands    ports.CommandSource // 可为空
	Persistence persistence.Service // 可为空（不持久化）
	Sinks       []ports.EventSink
}

// Orchestrator 会话编排器
type Orchestrator struct {
	opts Options
	deps Deps

	// 以下字段只由决策协程访问
	trigger     *martingale.TriggerDetector
	regime      *regime.Detector
	session     *martingale.Session
	accel       *acceleration.Manager
	reserve     *reserve.Manager
	compound    *reserve.CompoundManager
	breaker     *risk.CircuitBreaker
	sessao      SessaoState
	manualPause bool
	recent      []domain.Outcome
	lastOutcome time.Time
	commitSeq   uint64
	initialized bool

	buf        *ringBuffer
	signal     *sigchan.Chan
	seen       *cache.InMemoryCache[string, struct{}]
	sourceDone chan struct{}

	snapMu sync.RWMutex
	snap   Snapshot

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	captureOnce  sync.Once
	decisionOnce sync.Once
	cancelMu     sync.Mutex
	cancels      []context.CancelFunc
	wg           sync.WaitGroup
	loopErr      error // 受 cancelMu 保护

	now        func() time.Time
	retryDelay time.Duration
}

// New 创建编排器。储备和加速的初始资金在 Init 读取启动余额后确定。
func New(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Source == nil || deps.Actuator == nil {
		return nil, fmt.Errorf("orchestrator: source 和 actuator 不能为空")
	}
	if err := opts.Targets.Validate(); err != nil {
		return nil, err
	}
	accel, err := acceleration.NewManager(opts.Pattern, opts.FallbackLevel, decimal.Zero)
	if err != nil {
		return nil, err
	}
	if opts.FixedLevel != 0 {
		if err := accel.SetFixedLevel(opts.FixedLevel); err != nil {
			return nil, err
		}
	}
	rm, err := reserve.NewManager(opts.Reserve, decimal.Zero)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		opts:       opts,
		deps:       deps,
		trigger:    martingale.NewTriggerDetector(opts.TriggerThreshold, opts.TriggerSize),
		regime:     regime.NewDetector(opts.RegimeWindow, opts.RegimeThreshold, opts.RegimeFavorable),
		session:    martingale.NewSession(opts.Targets, opts.TriggerSize),
		accel:      accel,
		reserve:    rm,
		compound:   reserve.NewCompoundManager(),
		breaker:    risk.NewCircuitBreaker(opts.Risk),
		buf:        newRingBuffer(opts.BufferSize),
		signal:     sigchan.New(1),
		seen:       cache.NewInMemoryCache[string, struct{}](roundDedupeTTL, 10*time.Minute),
		subs:       make(map[int]chan Snapshot),
		sourceDone: make(chan struct{}),
		now:        time.Now,
		retryDelay: opts.RetryDelay,
	}
	return o, nil
}

// Init 恢复持久化状态并读取启动余额。启动余额读不到时返回 ErrStartupBalance。
func (o *Orchestrator) Init(ctx context.Context) error {
	restored, err := o.restore()
	if err != nil {
		return err
	}

	saldo, err := o.readBalance(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStartupBalance, err)
	}

	if !restored {
		rm, err := reserve.NewManager(o.opts.Reserve, saldo)
		if err != nil {
			return err
		}
		o.reserve = rm
		st := o.accel.State()
		st.BancaPico = saldo
		if err := o.accel.Restore(st); err != nil {
			return err
		}
		o.sessao = newSessaoState(saldo, o.now())
		log.Infof("🆕 新会话统计: 初始余额=%s 模式=%s", saldo.StringFixed(2), o.accel.Position())
	} else {
		diff := saldo.Sub(o.sessao.SaldoAtual)
		if !diff.IsZero() {
			log.Warnf("⚠️ 启动余额与上次记录不同: 当前=%s 记录=%s 差额=%s",
				saldo.StringFixed(2), o.sessao.SaldoAtual.StringFixed(2), diff.StringFixed(2))
		}
	}
	o.sessao.SaldoAtual = saldo
	o.sessao.NivelSeguranca = o.accel.NextLevel()
	o.lastOutcome = o.now()
	o.initialized = true
	o.refreshSnapshot()

	log.Infof("✅ 引擎就绪: 余额=%s 储备=%s 运营资金=%s 下一等级=%s",
		saldo.StringFixed(2), o.reserve.Reserva().StringFixed(2),
		o.reserve.BancaOperacional(saldo).StringFixed(2), o.accel.NextLevel())
	return nil
}

// Run 启动采集与决策协程，阻塞到 ctx 结束。
// 任一协程 panic 时另一个也会停止，Run 返回该 panic 的 *common.PanicError。
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.initialized {
		if err := o.Init(ctx); err != nil {
			return err
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	onPanic := func(err error) {
		o.cancelMu.Lock()
		if o.loopErr == nil {
			o.loopErr = err
		}
		o.cancelMu.Unlock()
		cancel()
	}

	o.wg.Add(2)
	common.StartLoopOnce(runCtx, "capture", &o.captureOnce, o.addCancel, onPanic, 0, func(loopCtx context.Context, _ <-chan time.Time) {
		defer o.wg.Done()
		o.captureLoop(loopCtx)
	})
	common.StartLoopOnce(runCtx, "decision", &o.decisionOnce, o.addCancel, onPanic, o.anomalyTick(), func(loopCtx context.Context, tickC <-chan time.Time) {
		defer o.wg.Done()
		o.decisionLoop(loopCtx, tickC)
	})
	<-runCtx.Done()
	o.wg.Wait()

	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	return o.loopErr
}

// Stop 停止后台协程并释放缓存
func (o *Orchestrator) Stop() {
	o.cancelMu.Lock()
	for _, c := range o.cancels {
		c()
	}
	o.cancels = nil
	o.cancelMu.Unlock()
	o.seen.Close()
}

// Health 后台循环 panic 退出后返回该错误
func (o *Orchestrator) Health() error {
	if !o.initialized {
		return errors.New("orchestrator: 未初始化")
	}
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	return o.loopErr
}

// SourceDone 结果来源返回 EOF（回放结束）后关闭
func (o *Orchestrator) SourceDone() <-chan struct{} {
	return o.sourceDone
}

func (o *Orchestrator) addCancel(c context.CancelFunc) {
	o.cancelMu.Lock()
	o.cancels = append(o.cancels, c)
	o.cancelMu.Unlock()
}

func (o *Orchestrator) anomalyTick() time.Duration {
	tick := time.Second
	if q := o.opts.AnomalyTimeout / 4; q > 0 && q < tick {
		tick = q
	}
	return tick
}

// captureLoop 唯一的生产者：拉取结果写入缓冲并发出信号
func (o *Orchestrator) captureLoop(ctx context.Context) {
	for {
		out, err := o.deps.Source.NextOutcome(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				log.Infof("📭 结果来源已结束")
				close(o.sourceDone)
				return
			}
			log.Warnf("⚠️ 读取结果失败: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		o.buf.Push(out)
		o.signal.Emit()
	}
}

// decisionLoop 唯一的写者
func (o *Orchestrator) decisionLoop(ctx context.Context, tickC <-chan time.Time) {
	var cursor uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.signal.C():
			outs, last, lost := o.buf.Since(cursor)
			cursor = last
			if lost > 0 {
				log.Errorf("❌ 结果缓冲溢出，丢失 %d 个结果", lost)
				o.abortSession(ctx, fmt.Sprintf("丢失 %d 个结果", lost))
				o.trigger.Reset()
			}
			for _, out := range outs {
				o.HandleOutcome(ctx, out)
			}
		case <-tickC:
			o.CheckAnomaly(ctx)
			if !o.session.Active() && o.deps.Commands != nil {
				o.drainCommands(ctx)
				o.refreshSnapshot()
			}
		}
	}
}

// HandleOutcome 处理一个结果（决策协程的单步）。
// 检测器总是先于会话被喂入；会话之外才处理命令。
func (o *Orchestrator) HandleOutcome(ctx context.Context, out domain.Outcome) {
	if p, ok := o.deps.Source.(ports.Pacer); ok {
		defer p.Processed(out)
	}
	if out.RoundID != "" && !o.seen.SetIfAbsent(out.RoundID, struct{}{}, 0) {
		metrics.RoundsDuplicated.Add(1)
		log.Debugf("重复结果已忽略: round=%s", out.RoundID)
		return
	}
	metrics.RoundsObserved.Add(1)
	o.lastOutcome = o.now()
	o.sessao.TotalRodadas++
	o.recent = append(o.recent, out)
	if len(o.recent) > recentOutcomes {
		o.recent = o.recent[len(o.recent)-recentOutcomes:]
	}

	o.regime.Observe(out)
	trig, err := o.trigger.Observe(out)
	if err != nil {
		metrics.TriggersMalformed.Add(1)
		log.Warnf("⚠️ 触发异常，等待补齐: %v", err)
	}

	o.publish(events.RoundObservedEvent{
		Outcome:   out,
		LowRun:    o.trigger.Run(),
		State:     o.session.State(),
		Timestamp: o.now(),
	})

	if o.session.Active() {
		o.settle(ctx, out)
	} else {
		o.resumeIfFavorable()
		if trig != nil {
			o.startSession(ctx, trig)
		}
	}

	if !o.session.Active() {
		o.drainCommands(ctx)
	}
	o.refreshSnapshot()
}

// CheckAnomaly 超时没有结果：请求刷新并强制重置进行中的会话
func (o *Orchestrator) CheckAnomaly(ctx context.Context) {
	now := o.now()
	if o.lastOutcome.IsZero() {
		o.lastOutcome = now
		return
	}
	silence := now.Sub(o.lastOutcome)
	if silence < o.opts.AnomalyTimeout {
		return
	}
	metrics.AnomalyTimeouts.Add(1)
	log.Warnf("⏰ %s 没有新结果 (%v)", silence.Round(time.Second), domain.ErrAnomalyTimeout)

	ev := events.AnomalyEvent{Silence: silence, Timestamp: now}
	if r, ok := o.deps.Source.(ports.Refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			ev.Error = err.Error()
			log.Errorf("❌ 刷新结果来源失败: %v", err)
		} else {
			ev.Refreshed = true
			log.Infof("🔄 已请求刷新结果来源")
		}
	}
	o.publish(ev)

	o.abortSession(ctx, "anomaly timeout")
	o.trigger.Reset()
	o.lastOutcome = now
	o.refreshSnapshot()
}

func (o *Orchestrator) publish(ev events.Event) {
	for _, s := range o.deps.Sinks {
		s.Publish(ev)
	}
}

// readBalance 同步读取余额，失败时按次数重试
func (o *Orchestrator) readBalance(ctx context.Context) (decimal.Decimal, error) {
	attempts := o.opts.BalanceRetries
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && o.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrBalanceUnreadable, ctx.Err())
			case <-time.After(o.retryDelay * time.Duration(i)):
			}
		}
		bal, ok, err := o.deps.Source.ReadBalance(ctx)
		switch {
		case err != nil:
			lastErr = err
		case !ok:
			lastErr = errors.New("balance not available")
		case bal.IsNegative():
			lastErr = errors.Errorf("negative balance %s", bal)
		default:
			return bal, nil
		}
		metrics.BalanceReadFails.Add(1)
		log.Warnf("⚠️ 读取余额失败 (%d/%d): %v", i+1, attempts, lastErr)
	}
	return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrBalanceUnreadable, lastErr)
}
