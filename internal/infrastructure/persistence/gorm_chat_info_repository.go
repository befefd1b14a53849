package persistence

import (
	"context"
	"errors"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/persistence/models"
	domainErrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormChatInfoRepository GORM 实现的会话元数据缓存
type GormChatInfoRepository struct {
	db *gorm.DB
}

// NewGormChatInfoRepository 创建 GORM 会话元数据仓储
func NewGormChatInfoRepository(db *gorm.DB) repository.ChatInfoRepository {
	return &GormChatInfoRepository{
		db: db,
	}
}

// Upsert 插入或更新
func (r *GormChatInfoRepository) Upsert(ctx context.Context, info *entity.ChatInfo) error {
	if info.ChannelID == "" || info.ChatUID == "" {
		return domainErrors.NewInvalidInputError("chat info requires channel and chat uid")
	}

	model := &models.ChatInfoModel{
		SlaveChannelID: info.ChannelID,
		SlaveChatUID:   info.ChatUID,
		Name:           info.Name,
		Alias:          info.Alias,
		Type:           string(info.Type),
		ChannelEmoji:   info.ChannelEmoji,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slave_channel_id"}, {Name: "slave_chat_uid"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to upsert chat info: " + err.Error())
	}
	return nil
}

// Get 查找会话元数据
func (r *GormChatInfoRepository) Get(ctx context.Context, channelID, chatUID string) (*entity.ChatInfo, error) {
	var model models.ChatInfoModel
	err := r.db.WithContext(ctx).
		First(&model, "slave_channel_id = ? AND slave_chat_uid = ?", channelID, chatUID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domainErrors.NewInternalError("failed to find chat info: " + err.Error())
	}
	return toChatInfo(&model), nil
}

// Delete 删除会话元数据
func (r *GormChatInfoRepository) Delete(ctx context.Context, channelID, chatUID string) error {
	err := r.db.WithContext(ctx).
		Delete(&models.ChatInfoModel{}, "slave_channel_id = ? AND slave_chat_uid = ?", channelID, chatUID).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to delete chat info: " + err.Error())
	}
	return nil
}

// ListByChannel 列出某个从通道的全部会话
func (r *GormChatInfoRepository) ListByChannel(ctx context.Context, channelID string) ([]*entity.ChatInfo, error) {
	var modelList []models.ChatInfoModel
	err := r.db.WithContext(ctx).
		Where("slave_channel_id = ?", channelID).
		Order("slave_chat_uid asc").
		Find(&modelList).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to list chat info: " + err.Error())
	}

	infos := make([]*entity.ChatInfo, 0, len(modelList))
	for i := range modelList {
		infos = append(infos, toChatInfo(&modelList[i]))
	}
	return infos, nil
}

func toChatInfo(m *models.ChatInfoModel) *entity.ChatInfo {
	return &entity.ChatInfo{
		ChannelID:    m.SlaveChannelID,
		ChatUID:      m.SlaveChatUID,
		Name:         m.Name,
		Alias:        m.Alias,
		Type:         entity.ChatType(m.Type),
		ChannelEmoji: m.ChannelEmoji,
		UpdatedAt:    m.UpdatedAt,
	}
}
