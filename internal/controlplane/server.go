// Package controlplane 控制面：只读状态查询、命令入队、状态推送（websocket）。
// 不直接修改引擎状态，命令一律进入持久化队列，由决策循环在会话之间执行。
package controlplane

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gocrash/internal/orchestrator"
	"github.com/betbot/gocrash/internal/store"
	"github.com/betbot/gocrash/pkg/commandqueue"
)

var log = logrus.WithField("component", "controlplane")

// Engine 引擎的只读视图
type Engine interface {
	Snapshot() orchestrator.Snapshot
	Subscribe(buffer int) (<-chan orchestrator.Snapshot, func())
}

// Queue 命令队列
type Queue interface {
	Enqueue(name string, params map[string]string) (commandqueue.Command, error)
	Pending(limit int) ([]commandqueue.Command, error)
	History(limit int) ([]commandqueue.Command, error)
}

// History 落库数据（可选）
type History interface {
	RecentSessions(ctx context.Context, limit int) ([]store.SessionRow, error)
	RecentRounds(ctx context.Context, limit int) ([]store.RoundRow, error)
	RecentLogs(ctx context.Context, limit int) ([]store.LogRow, error)
	Summary(ctx context.Context) (store.Summary, error)
}

// Config 控制面参数
type Config struct {
	Addr  string
	Token string // 非空时要求 Authorization: Bearer <token>
}

// Server 控制面 HTTP 服务
type Server struct {
	cfg     Config
	engine  Engine
	queue   Queue
	history History

	mu   sync.Mutex
	http *http.Server
	addr string
}

// New history 可为 nil
func New(cfg Config, engine Engine, queue Queue, history History) (*Server, error) {
	if engine == nil {
		return nil, errors.New("controlplane: engine is required")
	}
	if queue == nil {
		return nil, errors.New("controlplane: queue is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8686"
	}
	return &Server{cfg: cfg, engine: engine, queue: queue, history: history}, nil
}

// Router gin 路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api", s.auth)
	api.GET("/status", s.handleStatus)
	api.GET("/history", s.handleHistory)
	api.GET("/commands", s.handleCommandsList)
	api.POST("/commands", s.handleCommandsCreate)
	api.GET("/sessions", s.handleSessions)
	api.GET("/rounds", s.handleRounds)
	api.GET("/logs", s.handleLogs)
	api.GET("/summary", s.handleSummary)

	r.GET("/ws", s.auth, s.handleWS)
	return r
}

// auth 校验 token；websocket 客户端可用 ?token=
func (s *Server) auth(c *gin.Context) {
	if s.cfg.Token == "" {
		c.Next()
		return
	}
	got := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if got == "" {
		got = c.Query("token")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// Start 在后台监听，返回实际地址
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("❌ 控制面服务异常退出: %v", err)
		}
	}()
	log.Infof("🛰️ 控制面已启动: http://%s", s.addr)
	return s.addr, nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
