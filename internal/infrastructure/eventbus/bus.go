package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
)

// Event 事件接口
type Event interface {
	Type() string
	Timestamp() time.Time
	Payload() any
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType      string
	EventTimestamp time.Time
	EventPayload   any
}

func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() any         { return e.EventPayload }

// NewEvent 创建新事件
func NewEvent(eventType string, payload any) *BaseEvent {
	return &BaseEvent{
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

// Handler 事件处理函数
type Handler func(ctx context.Context, event Event)

// Bus 事件总线接口
type Bus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe registers handler for eventType; "*" receives every event.
	Subscribe(eventType string, handler Handler)
	Close()
}

// InMemoryBus delivers events on one dispatcher goroutine. Publish never
// blocks: when the buffer is full the event is dropped and counted.
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	eventChan chan eventWrapper
	closed    bool
	dropped   atomic.Uint64
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type eventWrapper struct {
	ctx   context.Context
	event Event
}

// NewInMemoryBus 创建内存事件总线
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	bus := &InMemoryBus{
		handlers:  make(map[string][]Handler),
		eventChan: make(chan eventWrapper, bufferSize),
		logger:    logger.With(zap.String("component", "eventbus")),
	}

	bus.wg.Add(1)
	safego.Go(bus.logger, "eventbus-dispatch", bus.dispatch)

	return bus
}

// Publish 发布事件
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
	default:
		// 只在 1, 2, 4, 8... 次时告警, 避免堆满时刷屏
		if n := b.dropped.Add(1); n&(n-1) == 0 {
			b.logger.Warn("Event buffer full, dropping event",
				zap.String("type", event.Type()),
				zap.Uint64("dropped_total", n),
			)
		}
	}
}

// Dropped 因缓冲区满被丢弃的事件数
func (b *InMemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Pending 等待分发的事件数
func (b *InMemoryBus) Pending() int {
	return len(b.eventChan)
}

// Subscribe 订阅事件
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Close stops accepting events and waits until the queued ones are handled.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}

func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()
	for wrapper := range b.eventChan {
		b.dispatchEvent(wrapper.ctx, wrapper.event)
	}
}

// dispatchEvent 按订阅顺序依次调用, 先具体类型后通配符
func (b *InMemoryBus) dispatchEvent(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type()]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		err := safego.Call(b.logger, "event-handler:"+event.Type(), func() error {
			h(ctx, event)
			return nil
		})
		if err != nil {
			b.logger.Warn("Event handler failed, continuing with the next one",
				zap.String("type", event.Type()),
				zap.Error(err),
			)
		}
	}
}
