package repository

import (
	"context"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// ChatInfoRepository 从会话元数据缓存
type ChatInfoRepository interface {
	// Upsert 按 (channel, chat) 插入或更新
	Upsert(ctx context.Context, info *entity.ChatInfo) error

	// Get 未命中时返回 (nil, nil)
	Get(ctx context.Context, channelID, chatUID string) (*entity.ChatInfo, error)

	Delete(ctx context.Context, channelID, chatUID string) error

	ListByChannel(ctx context.Context, channelID string) ([]*entity.ChatInfo, error)
}
