package repository

import (
	"context"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// ChatLinkRepository 会话绑定仓储接口（遵循依赖倒置原则）
// 定义在领域层，实现在基础设施层
type ChatLinkRepository interface {
	// Link 绑定主从会话
	// allowMultiple 为 false 时先删除同一主会话的全部绑定; 同一从会话的绑定总是先删除
	Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID, allowMultiple bool) error

	// Unlink 解除绑定, master 与 slave 必须恰好提供一个
	Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error)

	// LinksFromMaster 按插入顺序返回主会话绑定的从会话
	LinksFromMaster(ctx context.Context, master entity.MasterChatUID) ([]entity.SlaveChatUID, error)

	// LinksFromSlave 按插入顺序返回从会话绑定的主会话
	LinksFromSlave(ctx context.Context, slave entity.SlaveChatUID) ([]entity.MasterChatUID, error)

	// All 返回全部绑定
	All(ctx context.Context) ([]entity.ChatLink, error)
}
