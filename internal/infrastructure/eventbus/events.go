package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// 桥接事件类型
const (
	EventRelayed           = "relay.delivered"
	EventRelayFailed       = "relay.failed"
	EventSlaveConnected    = "slave.connected"
	EventSlaveDisconnected = "slave.disconnected"
)

// RelayPayload 一次成功转发
type RelayPayload struct {
	Direction entity.Direction   `json:"direction"`
	Kind      entity.MessageKind `json:"kind"`
	ElapsedMs int64              `json:"elapsed_ms"`
}

// RelayFailedPayload 一次失败转发
type RelayFailedPayload struct {
	Direction entity.Direction `json:"direction"`
	Error     string           `json:"error"`
}

// SlavePayload 远程从通道上下线
type SlavePayload struct {
	Channel string `json:"channel"`
	Name    string `json:"name,omitempty"`
	Remote  string `json:"remote,omitempty"`
}

// Publisher turns relay outcomes and slave lifecycle changes into events.
// It satisfies usecase.RelayHook.
type Publisher struct {
	bus Bus
}

// NewPublisher 创建事件发布器
func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) OnRelayed(direction entity.Direction, kind entity.MessageKind, elapsed time.Duration) {
	p.bus.Publish(context.Background(), NewEvent(EventRelayed, RelayPayload{
		Direction: direction,
		Kind:      kind,
		ElapsedMs: elapsed.Milliseconds(),
	}))
}

func (p *Publisher) OnRelayFailed(direction entity.Direction, err error) {
	payload := RelayFailedPayload{Direction: direction}
	if err != nil {
		payload.Error = err.Error()
	}
	p.bus.Publish(context.Background(), NewEvent(EventRelayFailed, payload))
}

// SlaveConnected 远程从通道完成握手
func (p *Publisher) SlaveConnected(channel, name, remote string) {
	p.bus.Publish(context.Background(), NewEvent(EventSlaveConnected, SlavePayload{Channel: channel, Name: name, Remote: remote}))
}

// SlaveDisconnected 远程从通道断开
func (p *Publisher) SlaveDisconnected(channel string) {
	p.bus.Publish(context.Background(), NewEvent(EventSlaveDisconnected, SlavePayload{Channel: channel}))
}

// Record is an event as kept by Recorder and returned by the admin API.
type Record struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

// NewRecorder subscribes a ring buffer of size events to every event on bus.
func NewRecorder(bus Bus, size int) *Recorder {
	if size <= 0 {
		size = 100
	}
	r := &Recorder{records: make([]Record, size)}
	bus.Subscribe("*", func(ctx context.Context, event Event) {
		r.add(Record{Type: event.Type(), Timestamp: event.Timestamp(), Payload: event.Payload()})
	})
	return r
}

func (r *Recorder) add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.next] = rec
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit events, newest first.
func (r *Recorder) Recent(limit int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.records)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.records)) % len(r.records)
		out = append(out, r.records[idx])
	}
	return out
}
