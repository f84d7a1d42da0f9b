package metrics

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Hooks 引擎状态钩子，由 cmd/bot 注入
type Hooks struct {
	// Health 返回非 nil 时 /healthz 报 503
	Health func() error
	// Status 以 expvar "engine" 发布，需可 JSON 序列化
	Status func() any
}

var hooks atomic.Pointer[Hooks]

func init() {
	expvar.Publish("engine", expvar.Func(func() any {
		if p := hooks.Load(); p != nil && p.Status != nil {
			return p.Status()
		}
		return nil
	}))
}

// SetHooks 替换当前钩子，nil 表示清空
func SetHooks(p *Hooks) {
	hooks.Store(p)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	if p := hooks.Load(); p != nil && p.Health != nil {
		if err := p.Health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", healthz)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Serve 注册引擎钩子并在 addr 上启动调试服务（非阻塞），ctx 结束时关闭。
// 只应监听 localhost。
func Serve(ctx context.Context, addr string, p *Hooks) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	SetHooks(p)
	log := logrus.WithField("component", "metrics")
	s := &http.Server{
		Addr:              addr,
		Handler:           newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("❌ 调试服务退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		SetHooks(nil)
	}()
	log.Infof("📈 调试服务: http://%s/debug/vars /healthz", ln.Addr())
	return s, nil
}
