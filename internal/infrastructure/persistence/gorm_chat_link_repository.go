package persistence

import (
	"context"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/persistence/models"
	domainErrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"gorm.io/gorm"
)

// GormChatLinkRepository GORM 实现的会话绑定仓储
type GormChatLinkRepository struct {
	db *gorm.DB
}

// NewGormChatLinkRepository 创建 GORM 会话绑定仓储
func NewGormChatLinkRepository(db *gorm.DB) repository.ChatLinkRepository {
	return &GormChatLinkRepository{
		db: db,
	}
}

// Link 绑定主从会话 (先按策略删除冲突绑定, 再插入)
func (r *GormChatLinkRepository) Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID, allowMultiple bool) error {
	if master == "" || slave == "" {
		return domainErrors.NewInvalidInputError("link requires both master and slave")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !allowMultiple {
			if err := tx.Where("master_uid = ?", string(master)).Delete(&models.ChatLinkModel{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("slave_uid = ?", string(slave)).Delete(&models.ChatLinkModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.ChatLinkModel{
			MasterUID: string(master),
			SlaveUID:  string(slave),
		}).Error
	})
	if err != nil {
		return domainErrors.NewInternalError("failed to link chats: " + err.Error())
	}
	return nil
}

// Unlink 解除绑定
func (r *GormChatLinkRepository) Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error) {
	query := r.db.WithContext(ctx)
	switch {
	case master != "" && slave == "":
		query = query.Where("master_uid = ?", string(master))
	case slave != "" && master == "":
		query = query.Where("slave_uid = ?", string(slave))
	default:
		return 0, domainErrors.NewInvalidInputError("unlink requires exactly one of master or slave")
	}

	result := query.Delete(&models.ChatLinkModel{})
	if result.Error != nil {
		return 0, domainErrors.NewInternalError("failed to unlink chats: " + result.Error.Error())
	}
	return result.RowsAffected, nil
}

// LinksFromMaster 按插入顺序返回从会话
func (r *GormChatLinkRepository) LinksFromMaster(ctx context.Context, master entity.MasterChatUID) ([]entity.SlaveChatUID, error) {
	var uids []string
	err := r.db.WithContext(ctx).
		Model(&models.ChatLinkModel{}).
		Where("master_uid = ?", string(master)).
		Order("seq asc").
		Pluck("slave_uid", &uids).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to find links: " + err.Error())
	}

	result := make([]entity.SlaveChatUID, len(uids))
	for i, uid := range uids {
		result[i] = entity.SlaveChatUID(uid)
	}
	return result, nil
}

// LinksFromSlave 按插入顺序返回主会话
func (r *GormChatLinkRepository) LinksFromSlave(ctx context.Context, slave entity.SlaveChatUID) ([]entity.MasterChatUID, error) {
	var uids []string
	err := r.db.WithContext(ctx).
		Model(&models.ChatLinkModel{}).
		Where("slave_uid = ?", string(slave)).
		Order("seq asc").
		Pluck("master_uid", &uids).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to find links: " + err.Error())
	}

	result := make([]entity.MasterChatUID, len(uids))
	for i, uid := range uids {
		result[i] = entity.MasterChatUID(uid)
	}
	return result, nil
}

// All 返回全部绑定
func (r *GormChatLinkRepository) All(ctx context.Context) ([]entity.ChatLink, error) {
	var modelList []models.ChatLinkModel
	if err := r.db.WithContext(ctx).Order("seq asc").Find(&modelList).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list links: " + err.Error())
	}

	links := make([]entity.ChatLink, 0, len(modelList))
	for _, m := range modelList {
		links = append(links, entity.ChatLink{
			Master:    entity.MasterChatUID(m.MasterUID),
			Slave:     entity.SlaveChatUID(m.SlaveUID),
			CreatedAt: m.CreatedAt,
		})
	}
	return links, nil
}
