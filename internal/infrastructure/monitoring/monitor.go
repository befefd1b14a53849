package monitoring

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

// directionMetrics 单个方向的转发计数
type directionMetrics struct {
	Relayed      uint64
	Failed       uint64
	LatencySum   uint64 // 纳秒
	LatencyCount uint64
}

// gauge 由外部组件提供的即时值
type gauge struct {
	name string
	help string
	fn   func() float64
}

// Monitor 转发监控器
type Monitor struct {
	toSlave   directionMetrics
	toMaster  directionMetrics
	startTime time.Time
	logger    *zap.Logger

	mu     sync.RWMutex
	kinds  map[entity.Direction]map[entity.MessageKind]uint64
	gauges []gauge

	// 历史数据 (用于管理接口)
	history      []MetricsSnapshot
	historyLimit int
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	ToSlaveTotal  uint64    `json:"to_slave_total"`
	ToMasterTotal uint64    `json:"to_master_total"`
	FailedTotal   uint64    `json:"failed_total"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	MemoryMB      float64   `json:"memory_mb"`
	Goroutines    int       `json:"goroutines"`
}

// NewMonitor 创建监控器
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		startTime: time.Now(),
		logger:    logger.With(zap.String("component", "monitor")),
		kinds: map[entity.Direction]map[entity.MessageKind]uint64{
			entity.DirectionToSlave:  {},
			entity.DirectionToMaster: {},
		},
		history:      make([]MetricsSnapshot, 0, 100),
		historyLimit: 100,
	}
}

func (m *Monitor) direction(d entity.Direction) *directionMetrics {
	if d == entity.DirectionToMaster {
		return &m.toMaster
	}
	return &m.toSlave
}

// RecordRelayed 记录一次成功转发
func (m *Monitor) RecordRelayed(d entity.Direction, kind entity.MessageKind, elapsed time.Duration) {
	dm := m.direction(d)
	atomic.AddUint64(&dm.Relayed, 1)
	atomic.AddUint64(&dm.LatencySum, uint64(elapsed.Nanoseconds()))
	atomic.AddUint64(&dm.LatencyCount, 1)

	m.mu.Lock()
	m.kinds[d][kind]++
	m.mu.Unlock()
}

// RecordFailed 记录一次失败转发
func (m *Monitor) RecordFailed(d entity.Direction) {
	atomic.AddUint64(&m.direction(d).Failed, 1)
}

// RegisterGauge exposes a value read on every scrape, such as a queue depth.
func (m *Monitor) RegisterGauge(name, help string, fn func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = append(m.gauges, gauge{name: name, help: help, fn: fn})
}

// Relayed returns the number of successful relays in one direction.
func (m *Monitor) Relayed(d entity.Direction) uint64 {
	return atomic.LoadUint64(&m.direction(d).Relayed)
}

// Failed returns the number of failed relays in one direction.
func (m *Monitor) Failed(d entity.Direction) uint64 {
	return atomic.LoadUint64(&m.direction(d).Failed)
}

// KindCount 按消息类型统计
func (m *Monitor) KindCount(d entity.Direction, kind entity.MessageKind) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kinds[d][kind]
}

func avgLatencyMs(dm *directionMetrics) float64 {
	count := atomic.LoadUint64(&dm.LatencyCount)
	if count == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&dm.LatencySum)) / float64(count) / 1e6
}

// GetStats 获取当前统计
func (m *Monitor) GetStats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := map[string]interface{}{
		"uptime_seconds":       time.Since(m.startTime).Seconds(),
		"to_slave_total":       m.Relayed(entity.DirectionToSlave),
		"to_slave_failed":      m.Failed(entity.DirectionToSlave),
		"to_slave_latency_ms":  avgLatencyMs(&m.toSlave),
		"to_master_total":      m.Relayed(entity.DirectionToMaster),
		"to_master_failed":     m.Failed(entity.DirectionToMaster),
		"to_master_latency_ms": avgLatencyMs(&m.toMaster),
		"memory_mb":            float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":           runtime.NumGoroutine(),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.gauges {
		stats[g.name] = g.fn()
	}
	return stats
}

// Snapshot 创建快照并保存
func (m *Monitor) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	count := atomic.LoadUint64(&m.toSlave.LatencyCount) + atomic.LoadUint64(&m.toMaster.LatencyCount)
	avg := float64(0)
	if count > 0 {
		sum := atomic.LoadUint64(&m.toSlave.LatencySum) + atomic.LoadUint64(&m.toMaster.LatencySum)
		avg = float64(sum) / float64(count) / 1e6
	}

	snapshot := MetricsSnapshot{
		Timestamp:     time.Now(),
		ToSlaveTotal:  m.Relayed(entity.DirectionToSlave),
		ToMasterTotal: m.Relayed(entity.DirectionToMaster),
		FailedTotal:   m.Failed(entity.DirectionToSlave) + m.Failed(entity.DirectionToMaster),
		AvgLatencyMs:  avg,
		MemoryMB:      float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[1:]
	}
	m.mu.Unlock()

	return snapshot
}

// GetHistory 获取历史快照
func (m *Monitor) GetHistory() []MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]MetricsSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// StartCollector 启动定期收集
func (m *Monitor) StartCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
		}
	}
}

// DashboardData 仪表盘数据
type DashboardData struct {
	Stats   map[string]interface{} `json:"stats"`
	History []MetricsSnapshot      `json:"history"`
}

// GetDashboardData 获取仪表盘数据
func (m *Monitor) GetDashboardData() *DashboardData {
	return &DashboardData{
		Stats:   m.GetStats(),
		History: m.GetHistory(),
	}
}

func (m *Monitor) kindCounts(d entity.Direction) []kindCount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]kindCount, 0, len(m.kinds[d]))
	for k, n := range m.kinds[d] {
		out = append(out, kindCount{kind: k, n: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].kind < out[j].kind })
	return out
}

type kindCount struct {
	kind entity.MessageKind
	n    uint64
}
