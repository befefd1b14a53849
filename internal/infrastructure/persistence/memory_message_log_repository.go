package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
)

// MemoryMessageLogRepository 内存实现的消息关联日志（用于开发/测试）
type MemoryMessageLogRepository struct {
	mu      sync.RWMutex
	records map[entity.MasterMessageUID]*memoryRecord
	seq     uint64
}

type memoryRecord struct {
	record *entity.MessageRecord
	seq    uint64
}

// NewMemoryMessageLogRepository 创建内存消息关联日志
func NewMemoryMessageLogRepository() repository.MessageLogRepository {
	return &MemoryMessageLogRepository{
		records: make(map[entity.MasterMessageUID]*memoryRecord),
	}
}

// Put 插入或合并更新
func (r *MemoryMessageLogRepository) Put(ctx context.Context, record *entity.MessageRecord, update bool) (bool, error) {
	if record.MasterMsgID == "" {
		return false, errors.NewInvalidInputError("master_msg_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if update {
		if existing, ok := r.records[record.MasterMsgID]; ok {
			existing.record.Apply(entity.PatchFrom(record))
			return true, nil
		}
	}
	if record.SlaveMessageID == "" {
		return false, nil
	}

	stored := record.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.seq++
	r.records[stored.MasterMsgID] = &memoryRecord{record: stored, seq: r.seq}
	return true, nil
}

// GetByMaster 根据主平台消息标识查找
func (r *MemoryMessageLogRepository) GetByMaster(ctx context.Context, id entity.MasterMessageUID) (*entity.MessageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.records[id]; ok {
		return rec.record.Clone(), nil
	}
	return nil, nil
}

// GetBySlave 根据从通道消息标识查找最新一条
func (r *MemoryMessageLogRepository) GetBySlave(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) (*entity.MessageRecord, error) {
	if slaveMessageID == "" || origin == "" {
		return nil, errors.NewInvalidInputError("slave_message_id and slave_origin_uid must be supplied together")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *memoryRecord
	for _, rec := range r.records {
		if rec.record.SlaveMessageID != slaveMessageID || rec.record.SlaveOriginUID != origin {
			continue
		}
		if newest == nil || newer(rec, newest) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, nil
	}
	return newest.record.Clone(), nil
}

// DeleteByMaster 删除记录
func (r *MemoryMessageLogRepository) DeleteByMaster(ctx context.Context, id entity.MasterMessageUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, id)
	return nil
}

// DeleteBySlave 删除记录
func (r *MemoryMessageLogRepository) DeleteBySlave(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) error {
	if slaveMessageID == "" || origin == "" {
		return errors.NewInvalidInputError("slave_message_id and slave_origin_uid must be supplied together")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.records {
		if rec.record.SlaveMessageID == slaveMessageID && rec.record.SlaveOriginUID == origin {
			delete(r.records, id)
		}
	}
	return nil
}

// RecentSlaveChats 最近活跃的从会话
func (r *MemoryMessageLogRepository) RecentSlaveChats(ctx context.Context, master entity.MasterChatUID, limit int) ([]entity.SlaveChatUID, error) {
	if limit <= 0 {
		limit = repository.DefaultRecentChatsLimit
	}

	r.mu.RLock()
	latest := make(map[entity.SlaveChatUID]*memoryRecord)
	for _, rec := range r.records {
		if rec.record.MasterChat() != master || rec.record.SlaveOriginUID == "" {
			continue
		}
		if cur, ok := latest[rec.record.SlaveOriginUID]; !ok || newer(rec, cur) {
			latest[rec.record.SlaveOriginUID] = rec
		}
	}
	r.mu.RUnlock()

	ordered := make([]*memoryRecord, 0, len(latest))
	for _, rec := range latest {
		ordered = append(ordered, rec)
	}
	sort.Slice(ordered, func(i, j int) bool { return newer(ordered[i], ordered[j]) })

	result := make([]entity.SlaveChatUID, 0, limit)
	for _, rec := range ordered {
		if len(result) == limit {
			break
		}
		result = append(result, rec.record.SlaveOriginUID)
	}
	return result, nil
}

func newer(a, b *memoryRecord) bool {
	if !a.record.CreatedAt.Equal(b.record.CreatedAt) {
		return a.record.CreatedAt.After(b.record.CreatedAt)
	}
	return a.seq > b.seq
}
