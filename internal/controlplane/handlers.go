package controlplane

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/gocrash/internal/orchestrator"
)

type commandRequest struct {
	Command string            `json:"command"`
	Params  map[string]string `json:"params"`
}

func queryLimit(c *gin.Context, def int) int {
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return def
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleHistory(c *gin.Context) {
	h := s.engine.Snapshot().Sessao.HistoricoApostas
	limit := queryLimit(c, len(h))
	if limit < len(h) {
		h = h[len(h)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"historico_apostas": h})
}

func (s *Server) handleCommandsList(c *gin.Context) {
	limit := queryLimit(c, 50)
	pending, err := s.queue.Pending(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	history, err := s.queue.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending, "history": history})
}

func (s *Server) handleCommandsCreate(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if err := orchestrator.ValidateCommand(req.Command, req.Params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd, err := s.queue.Enqueue(req.Command, req.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Infof("📥 命令已入队 #%d %s %v", cmd.Seq, cmd.Name, cmd.Params)
	c.JSON(http.StatusAccepted, gin.H{"command": cmd})
}

// withHistory 没有落库时返回 404
func (s *Server) withHistory(c *gin.Context, fn func(ctx context.Context) (any, error)) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sql sink disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	out, err := fn(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSessions(c *gin.Context) {
	limit := queryLimit(c, 50)
	s.withHistory(c, func(ctx context.Context) (any, error) {
		rows, err := s.history.RecentSessions(ctx, limit)
		return gin.H{"sessions": rows}, err
	})
}

func (s *Server) handleRounds(c *gin.Context) {
	limit := queryLimit(c, 100)
	s.withHistory(c, func(ctx context.Context) (any, error) {
		rows, err := s.history.RecentRounds(ctx, limit)
		return gin.H{"rounds": rows}, err
	})
}

func (s *Server) handleLogs(c *gin.Context) {
	limit := queryLimit(c, 100)
	s.withHistory(c, func(ctx context.Context) (any, error) {
		rows, err := s.history.RecentLogs(ctx, limit)
		return gin.H{"logs": rows}, err
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	s.withHistory(c, func(ctx context.Context) (any, error) {
		return s.history.Summary(ctx)
	})
}
