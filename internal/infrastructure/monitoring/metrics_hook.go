package monitoring

import (
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

// MetricsHook feeds relay outcomes from both pipelines into a Monitor.
//
// Usage:
//
//	monitor := monitoring.NewMonitor(logger)
//	deps.Hook = monitoring.NewMetricsHook(monitor, logger)
type MetricsHook struct {
	monitor *Monitor
	logger  *zap.Logger
}

// NewMetricsHook creates a metrics-collecting relay hook.
func NewMetricsHook(monitor *Monitor, logger *zap.Logger) *MetricsHook {
	return &MetricsHook{monitor: monitor, logger: logger.With(zap.String("component", "metrics"))}
}

var _ usecase.RelayHook = (*MetricsHook)(nil)

// OnRelayed 成功转发
func (h *MetricsHook) OnRelayed(direction entity.Direction, kind entity.MessageKind, elapsed time.Duration) {
	h.monitor.RecordRelayed(direction, kind, elapsed)
}

// OnRelayFailed 转发失败
func (h *MetricsHook) OnRelayFailed(direction entity.Direction, err error) {
	h.monitor.RecordFailed(direction)
	h.logger.Debug("Relay failed", zap.String("direction", string(direction)), zap.Error(err))
}
