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

// MemoryChatInfoRepository 内存实现的会话元数据缓存（用于开发/测试）
type MemoryChatInfoRepository struct {
	mu    sync.RWMutex
	infos map[entity.SlaveChatUID]entity.ChatInfo
}

// NewMemoryChatInfoRepository 创建内存会话元数据仓储
func NewMemoryChatInfoRepository() repository.ChatInfoRepository {
	return &MemoryChatInfoRepository{
		infos: make(map[entity.SlaveChatUID]entity.ChatInfo),
	}
}

// Upsert 插入或更新
func (r *MemoryChatInfoRepository) Upsert(ctx context.Context, info *entity.ChatInfo) error {
	if info.ChannelID == "" || info.ChatUID == "" {
		return errors.NewInvalidInputError("chat info requires channel and chat uid")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *info
	stored.UpdatedAt = time.Now().UTC()
	r.infos[info.SlaveUID()] = stored
	return nil
}

// Get 查找会话元数据
func (r *MemoryChatInfoRepository) Get(ctx context.Context, channelID, chatUID string) (*entity.ChatInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.infos[entity.NewSlaveChatUID(channelID, chatUID)]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// Delete 删除会话元数据
func (r *MemoryChatInfoRepository) Delete(ctx context.Context, channelID, chatUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.infos, entity.NewSlaveChatUID(channelID, chatUID))
	return nil
}

// ListByChannel 列出某个从通道的全部会话
func (r *MemoryChatInfoRepository) ListByChannel(ctx context.Context, channelID string) ([]*entity.ChatInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entity.ChatInfo, 0)
	for _, info := range r.infos {
		if info.ChannelID == channelID {
			info := info
			result = append(result, &info)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChatUID < result[j].ChatUID })
	return result, nil
}
