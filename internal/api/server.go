// Package api provides the admin HTTP server: health, version, live
// job state, the history ledger and a WebSocket event stream. It binds
// to localhost by default and carries no authentication.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/telefetch-project/telefetch/internal/logger"
	"github.com/telefetch-project/telefetch/internal/storage"
	"github.com/telefetch-project/telefetch/internal/version"
	"github.com/telefetch-project/telefetch/internal/websocket"
	"github.com/telefetch-project/telefetch/internal/worker"
)

// Config contains server configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DownloadDir  string
}

// Server represents the admin HTTP server
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	config     Config
	pool       *worker.Pool
	store      storage.Store
	wsMgr      *websocket.Manager
}

// NewServer creates the admin server. store may be nil when the ledger
// is disabled.
func NewServer(config Config, pool *worker.Pool, store storage.Store, wsMgr *websocket.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config: config,
		pool:   pool,
		store:  store,
		wsMgr:  wsMgr,
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.loggerMiddleware())
	s.setupRoutes()

	return s
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Microsecond),
		}).Debug("http request")
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/version", s.handleVersion)
		api.GET("/jobs", s.handleJobs)
		api.GET("/history", s.handleHistory)
		api.GET("/system", s.handleSystem)
	}

	if s.wsMgr != nil {
		s.engine.GET("/ws", s.wsMgr.HandleWebSocket)
	}
}

// Start runs the server in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		logger.Infof("admin server listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("admin server failed")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetVersionInfo())
}

// handleJobs reports the live queue and the jobs currently executing.
func (s *Server) handleJobs(c *gin.Context) {
	type jobDTO struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Mode    string `json:"mode"`
		URL     string `json:"url"`
		Quality string `json:"quality,omitempty"`
	}

	active := s.pool.ActiveJobs()
	dtos := make([]jobDTO, 0, len(active))
	for _, job := range active {
		dto := jobDTO{ID: job.ID, Title: job.Title, Mode: string(job.Mode), URL: job.URL}
		if job.VideoPlan != nil {
			dto.Quality = job.VideoPlan.QualityLabel
		} else if job.AudioPlan != nil {
			dto.Quality = job.AudioPlan.QualityLabel
		}
		dtos = append(dtos, dto)
	}

	c.JSON(http.StatusOK, gin.H{
		"queued": s.pool.QueueLen(),
		"active": dtos,
	})
}

// handleHistory pages through the job ledger, newest first.
func (s *Server) handleHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history ledger disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.store.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	counts, err := s.store.CountByOutcome(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   records,
		"counts": counts,
	})
}

// handleSystem reports host resource usage and connection counts.
func (s *Server) handleSystem(c *gin.Context) {
	resp := gin.H{
		"queued": s.pool.QueueLen(),
	}
	if s.wsMgr != nil {
		resp["wsConnections"] = s.wsMgr.GetConnectionCount()
	}

	if usage, err := disk.Usage(s.config.DownloadDir); err == nil {
		resp["disk"] = gin.H{
			"path":        s.config.DownloadDir,
			"freeBytes":   usage.Free,
			"totalBytes":  usage.Total,
			"usedPercent": usage.UsedPercent,
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory"] = gin.H{
			"totalBytes":  vm.Total,
			"usedBytes":   vm.Used,
			"usedPercent": vm.UsedPercent,
		}
	}

	c.JSON(http.StatusOK, resp)
}
