package handlers

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/eventbus"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// SlaveLister 从通道列表
type SlaveLister interface {
	List() []usecase.SlaveInfo
}

// WorkerStatus 入站工作协程状态
type WorkerStatus interface {
	Alive() bool
	Pending() int
}

// EventSource 最近的桥接事件
type EventSource interface {
	Recent(limit int) []eventbus.Record
}

// DebugHandler 运行状态 API 处理器
type DebugHandler struct {
	monitor *monitoring.Monitor
	slaves  SlaveLister
	worker  WorkerStatus
	events  EventSource
	logger  *zap.Logger
}

// NewDebugHandler 创建运行状态处理器
func NewDebugHandler(monitor *monitoring.Monitor, slaves SlaveLister, worker WorkerStatus, events EventSource, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		monitor: monitor,
		slaves:  slaves,
		worker:  worker,
		events:  events,
		logger:  logger,
	}
}

// Health reports 503 while the inbound worker is down.
// GET /health
func (h *DebugHandler) Health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	alive := h.worker == nil || h.worker.Alive()
	if !alive {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	resp := gin.H{
		"status":        status,
		"time":          time.Now().Unix(),
		"inbound_alive": alive,
	}
	if h.worker != nil {
		resp["inbound_pending"] = h.worker.Pending()
	}
	c.JSON(code, resp)
}

// GetSlaves 列出已注册的从通道
// GET /api/v1/slaves
func (h *DebugHandler) GetSlaves(c *gin.Context) {
	slaves := h.slaves.List()
	c.JSON(http.StatusOK, gin.H{"slaves": slaves, "count": len(slaves)})
}

// GetMetrics 获取转发指标
// GET /api/v1/debug/metrics
func (h *DebugHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetStats())
}

// GetDashboard 获取仪表盘数据
// GET /api/v1/debug/dashboard
func (h *DebugHandler) GetDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetDashboardData())
}

// GetEvents returns the latest bridge events, newest first.
// GET /api/v1/debug/events?limit=50
func (h *DebugHandler) GetEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusOK, gin.H{"events": []eventbus.Record{}, "count": 0})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	events := h.events.Recent(limit)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// GetRuntime 获取运行时信息
// GET /api/v1/debug/runtime
func (h *DebugHandler) GetRuntime(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.JSON(http.StatusOK, gin.H{
		"go_version":   runtime.Version(),
		"goroutines":   runtime.NumGoroutine(),
		"heap_alloc":   mem.HeapAlloc,
		"heap_objects": mem.HeapObjects,
		"num_gc":       mem.NumGC,
	})
}
