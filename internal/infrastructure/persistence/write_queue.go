package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("write queue closed")

// WriteFunc 一次延迟写入
type WriteFunc func(ctx context.Context) error

type writeTask struct {
	name string
	fn   WriteFunc
}

// WriteQueue 单消费者延迟写队列
// 写入按提交顺序执行, 失败只记录日志不重试
type WriteQueue struct {
	mu      sync.RWMutex
	tasks   chan writeTask
	closed  bool
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *zap.Logger
}

// NewWriteQueue 创建并启动写队列
func NewWriteQueue(logger *zap.Logger, bufferSize int) *WriteQueue {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	q := &WriteQueue{
		tasks:   make(chan writeTask, bufferSize),
		timeout: 30 * time.Second,
		logger:  logger.With(zap.String("component", "write-queue")),
	}

	q.wg.Add(1)
	safego.Go(q.logger, "write-queue", q.run)

	return q
}

// Submit 入队, 缓冲满时阻塞
func (q *WriteQueue) Submit(name string, fn WriteFunc) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.tasks <- writeTask{name: name, fn: fn}
	return nil
}

// Flush blocks until every task submitted before the call has been applied.
func (q *WriteQueue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	err := q.Submit("flush", func(context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending 返回尚未执行的任务数
func (q *WriteQueue) Pending() int {
	return len(q.tasks)
}

// Close 停止接收新任务并等待队列排空
func (q *WriteQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		q.logger.Info("Write queue drained")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Write queue close timed out", zap.Int("pending", len(q.tasks)))
		return ctx.Err()
	}
}

// run 写入循环
func (q *WriteQueue) run() {
	defer q.wg.Done()

	for task := range q.tasks {
		q.apply(task)
	}
}

func (q *WriteQueue) apply(task writeTask) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	err := safego.Call(q.logger, task.name, func() error {
		return task.fn(ctx)
	})
	if err != nil {
		q.logger.Error("Deferred write failed",
			zap.String("task", task.name),
			zap.Error(err),
		)
	}
}

// DeferredMessageLog routes correlation log mutations through a WriteQueue.
type DeferredMessageLog struct {
	repo   repository.MessageLogRepository
	queue  *WriteQueue
	logger *zap.Logger
}

// NewDeferredMessageLog 创建延迟写入的消息日志
func NewDeferredMessageLog(repo repository.MessageLogRepository, queue *WriteQueue, logger *zap.Logger) *DeferredMessageLog {
	return &DeferredMessageLog{
		repo:   repo,
		queue:  queue,
		logger: logger.With(zap.String("component", "message-log")),
	}
}

// PutAsync 异步写入记录
func (d *DeferredMessageLog) PutAsync(record *entity.MessageRecord, update bool) {
	rec := record.Clone()
	d.submit("put", func(ctx context.Context) error {
		stored, err := d.repo.Put(ctx, rec, update)
		if err != nil {
			return err
		}
		if !stored {
			d.logger.Debug("Message suppressed, no slave message id",
				zap.String("master_msg_id", string(rec.MasterMsgID)),
			)
		}
		return nil
	})
}

// DeleteByMasterAsync 异步删除记录
func (d *DeferredMessageLog) DeleteByMasterAsync(id entity.MasterMessageUID) {
	d.submit("delete_by_master", func(ctx context.Context) error {
		return d.repo.DeleteByMaster(ctx, id)
	})
}

// DeleteBySlaveAsync 异步删除记录
func (d *DeferredMessageLog) DeleteBySlaveAsync(slaveMessageID string, origin entity.SlaveChatUID) {
	d.submit("delete_by_slave", func(ctx context.Context) error {
		return d.repo.DeleteBySlave(ctx, slaveMessageID, origin)
	})
}

// Flush waits until every write submitted before the call is stored.
// After Close writes are synchronous, so a closed queue has nothing to wait for.
func (d *DeferredMessageLog) Flush(ctx context.Context) error {
	if err := d.queue.Flush(ctx); err != nil && !errors.Is(err, ErrQueueClosed) {
		return err
	}
	return nil
}

// Repository exposes the underlying store for reads.
func (d *DeferredMessageLog) Repository() repository.MessageLogRepository {
	return d.repo
}

func (d *DeferredMessageLog) submit(name string, fn WriteFunc) {
	err := d.queue.Submit(name, fn)
	if err == nil {
		return
	}

	// 队列已关闭 (关停过程中): 同步写入而不是丢弃
	d.logger.Warn("Write queue unavailable, writing synchronously",
		zap.String("task", name),
		zap.Error(err),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		d.logger.Error("Synchronous write failed", zap.String("task", name), zap.Error(err))
	}
}
