package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// PrometheusHandler serves the relay metrics in Prometheus text format.
// Mount it at "/metrics" in the admin HTTP server.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		writeHeader(w, "bridge_relayed_total", "Messages relayed, by direction and kind", "counter")
		for _, d := range []entity.Direction{entity.DirectionToSlave, entity.DirectionToMaster} {
			for _, kc := range m.kindCounts(d) {
				fmt.Fprintf(w, "bridge_relayed_total{direction=%q,kind=%q} %d\n", d, kc.kind, kc.n)
			}
		}
		fmt.Fprintln(w)

		writeHeader(w, "bridge_relay_failed_total", "Relays that failed, by direction", "counter")
		fmt.Fprintf(w, "bridge_relay_failed_total{direction=%q} %d\n", entity.DirectionToSlave, m.Failed(entity.DirectionToSlave))
		fmt.Fprintf(w, "bridge_relay_failed_total{direction=%q} %d\n\n", entity.DirectionToMaster, m.Failed(entity.DirectionToMaster))

		writeHeader(w, "bridge_relay_latency_avg_ms", "Average relay latency in milliseconds", "gauge")
		fmt.Fprintf(w, "bridge_relay_latency_avg_ms{direction=%q} %f\n", entity.DirectionToSlave, avgLatencyMs(&m.toSlave))
		fmt.Fprintf(w, "bridge_relay_latency_avg_ms{direction=%q} %f\n\n", entity.DirectionToMaster, avgLatencyMs(&m.toMaster))

		m.mu.RLock()
		gauges := append([]gauge(nil), m.gauges...)
		m.mu.RUnlock()
		for _, g := range gauges {
			writeHeader(w, g.name, g.help, "gauge")
			fmt.Fprintf(w, "%s %f\n\n", g.name, g.fn())
		}

		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			{"bridge_uptime_seconds", "Process uptime in seconds", "gauge", time.Since(m.startTime).Seconds()},
			{"bridge_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"bridge_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
			{"bridge_gc_cycles_total", "Total number of completed GC cycles", "counter", memStats.NumGC},
		}
		for _, l := range lines {
			writeHeader(w, l.name, l.help, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case uint32:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			}
			fmt.Fprintln(w)
		}
	})
}

func writeHeader(w http.ResponseWriter, name, help, typ string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
}
