package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
)

// MemoryChatLinkRepository 内存实现的会话绑定仓储（用于开发/测试）
type MemoryChatLinkRepository struct {
	mu    sync.RWMutex
	links []entity.ChatLink // 插入顺序
}

// NewMemoryChatLinkRepository 创建内存会话绑定仓储
func NewMemoryChatLinkRepository() repository.ChatLinkRepository {
	return &MemoryChatLinkRepository{}
}

// Link 绑定主从会话
func (r *MemoryChatLinkRepository) Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID, allowMultiple bool) error {
	if master == "" || slave == "" {
		return errors.NewInvalidInputError("link requires both master and slave")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.links[:0]
	for _, l := range r.links {
		if l.Slave == slave || (!allowMultiple && l.Master == master) {
			continue
		}
		kept = append(kept, l)
	}
	r.links = append(kept, entity.ChatLink{Master: master, Slave: slave, CreatedAt: time.Now().UTC()})
	return nil
}

// Unlink 解除绑定
func (r *MemoryChatLinkRepository) Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error) {
	if (master == "") == (slave == "") {
		return 0, errors.NewInvalidInputError("unlink requires exactly one of master or slave")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	kept := r.links[:0]
	for _, l := range r.links {
		if (master != "" && l.Master == master) || (slave != "" && l.Slave == slave) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.links = kept
	return removed, nil
}

// LinksFromMaster 按插入顺序返回从会话
func (r *MemoryChatLinkRepository) LinksFromMaster(ctx context.Context, master entity.MasterChatUID) ([]entity.SlaveChatUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.SlaveChatUID, 0)
	for _, l := range r.links {
		if l.Master == master {
			result = append(result, l.Slave)
		}
	}
	return result, nil
}

// LinksFromSlave 按插入顺序返回主会话
func (r *MemoryChatLinkRepository) LinksFromSlave(ctx context.Context, slave entity.SlaveChatUID) ([]entity.MasterChatUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.MasterChatUID, 0)
	for _, l := range r.links {
		if l.Slave == slave {
			result = append(result, l.Master)
		}
	}
	return result, nil
}

// All 返回全部绑定
func (r *MemoryChatLinkRepository) All(ctx context.Context) ([]entity.ChatLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.ChatLink, len(r.links))
	copy(result, r.links)
	return result, nil
}
