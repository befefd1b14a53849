package eventbus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// JournalFile 事件日志文件名
const JournalFile = "events.jsonl"

// PersistentBus wraps InMemoryBus and appends every event to a JSON lines
// journal before dispatch. The journal rotates to <file>.old at MaxSize.
type PersistentBus struct {
	inner   *InMemoryBus
	file    *os.File
	writer  *bufio.Writer
	path    string
	mu      sync.Mutex
	logger  *zap.Logger
	maxSize int64
	written int64
}

// PersistentBusConfig configures the persistent event bus.
type PersistentBusConfig struct {
	Dir        string // 日志目录 (必填)
	BufferSize int    // 默认 256
	MaxSize    int64  // 默认 10MB
}

// NewPersistentBus 创建带事件日志的总线
func NewPersistentBus(cfg PersistentBusConfig, logger *zap.Logger) (*PersistentBus, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal dir is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	path := filepath.Join(cfg.Dir, JournalFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	var size int64
	if stat, err := f.Stat(); err == nil {
		size = stat.Size()
	}

	return &PersistentBus{
		inner:   NewInMemoryBus(logger, cfg.BufferSize),
		file:    f,
		writer:  bufio.NewWriterSize(f, 64*1024),
		path:    path,
		logger:  logger.With(zap.String("component", "event-journal")),
		maxSize: cfg.MaxSize,
		written: size,
	}, nil
}

// Publish appends the event to the journal, then dispatches it.
func (b *PersistentBus) Publish(ctx context.Context, event Event) {
	data, err := json.Marshal(Record{Type: event.Type(), Timestamp: event.Timestamp(), Payload: event.Payload()})
	if err != nil {
		b.logger.Error("Failed to marshal event", zap.String("type", event.Type()), zap.Error(err))
	} else {
		b.mu.Lock()
		n, werr := b.writer.Write(append(data, '\n'))
		if werr == nil {
			werr = b.writer.Flush()
		}
		if werr != nil {
			b.logger.Error("Journal write failed", zap.String("type", event.Type()), zap.Error(werr))
		}
		b.written += int64(n)
		if b.written >= b.maxSize {
			b.rotateLocked()
		}
		b.mu.Unlock()
	}

	b.inner.Publish(ctx, event)
}

func (b *PersistentBus) Subscribe(eventType string, handler Handler) {
	b.inner.Subscribe(eventType, handler)
}

// Close flushes the journal and shuts down the bus.
func (b *PersistentBus) Close() {
	b.inner.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.writer.Flush()
	_ = b.file.Sync()
	_ = b.file.Close()
}

// Dropped 见 InMemoryBus.Dropped
func (b *PersistentBus) Dropped() uint64 {
	return b.inner.Dropped()
}

// Path 当前日志文件路径
func (b *PersistentBus) Path() string {
	return b.path
}

// rotateLocked 调用方持有 b.mu
func (b *PersistentBus) rotateLocked() {
	_ = b.writer.Flush()
	_ = b.file.Close()

	old := b.path + ".old"
	_ = os.Remove(old)
	_ = os.Rename(b.path, old)

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		b.logger.Error("Journal rotation failed", zap.Error(err))
		return
	}
	b.file = f
	b.writer = bufio.NewWriterSize(f, 64*1024)
	b.written = 0
	b.logger.Info("Journal rotated", zap.String("old_path", old))
}

// ReadJournal returns the last limit records of the journal at path, oldest
// first. Corrupt lines are skipped. A missing file yields no records.
func ReadJournal(path string, limit int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) > limit {
			records = records[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan journal: %w", err)
	}
	return records, nil
}
