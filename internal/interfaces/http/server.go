package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/monitoring"
	"github.com/ngoclaw/ngoclaw/bridge/internal/interfaces/http/handlers"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	router *gin.Engine
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host string
	Port int
	Mode string // debug, release
	// Token 管理接口 Bearer 令牌
	Token string
}

// Deps 管理接口依赖
type Deps struct {
	Links   handlers.LinkService
	Log     repository.MessageLogRepository
	Slaves  handlers.SlaveLister
	Worker  handlers.WorkerStatus
	Monitor *monitoring.Monitor
	Events  handlers.EventSource
	// SlaveSocket 远程从通道接入 (可选), 挂载在 /slave/ws
	SlaveSocket http.Handler
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if cfg.Mode == "release" || cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	setupRoutes(router, cfg, deps, logger)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	safego.Go(s.logger, "http-server", func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	})
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, cfg Config, deps Deps, logger *zap.Logger) {
	debugHandler := handlers.NewDebugHandler(deps.Monitor, deps.Slaves, deps.Worker, deps.Events, logger)
	linkHandler := handlers.NewLinkHandler(deps.Links, logger)
	messageHandler := handlers.NewMessageHandler(deps.Log, logger)

	router.GET("/health", debugHandler.Health)
	router.GET("/metrics", bearerAuth(cfg.Token), gin.WrapH(deps.Monitor.PrometheusHandler()))

	// 远程从通道使用自己的令牌
	if deps.SlaveSocket != nil {
		router.GET("/slave/ws", gin.WrapH(deps.SlaveSocket))
	}

	v1 := router.Group("/api/v1", bearerAuth(cfg.Token))
	{
		v1.GET("/links", linkHandler.List)
		v1.POST("/links", linkHandler.Create)
		v1.DELETE("/links", linkHandler.Delete)
		v1.GET("/chats/:channel", linkHandler.Chats)

		v1.GET("/messages/:id", messageHandler.Get)
		v1.GET("/recent/:master", messageHandler.Recent)

		v1.GET("/slaves", debugHandler.GetSlaves)
		v1.GET("/debug/metrics", debugHandler.GetMetrics)
		v1.GET("/debug/dashboard", debugHandler.GetDashboard)
		v1.GET("/debug/runtime", debugHandler.GetRuntime)
		v1.GET("/debug/events", debugHandler.GetEvents)
	}
}

// bearerAuth 校验 Authorization: Bearer <token>, token 为空时放行
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
