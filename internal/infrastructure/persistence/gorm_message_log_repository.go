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

// GormMessageLogRepository GORM 实现的消息关联日志
type GormMessageLogRepository struct {
	db *gorm.DB
}

// NewGormMessageLogRepository 创建 GORM 消息关联日志仓储
func NewGormMessageLogRepository(db *gorm.DB) repository.MessageLogRepository {
	return &GormMessageLogRepository{
		db: db,
	}
}

// Put 插入或合并更新
func (r *GormMessageLogRepository) Put(ctx context.Context, record *entity.MessageRecord, update bool) (bool, error) {
	if record.MasterMsgID == "" {
		return false, domainErrors.NewInvalidInputError("master_msg_id is required")
	}
	if !update && record.SlaveMessageID == "" {
		return false, nil
	}

	if update {
		stored := false
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var model models.MessageLogModel
			err := tx.First(&model, "master_msg_id = ?", string(record.MasterMsgID)).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if record.SlaveMessageID == "" {
					return nil
				}
				stored = true
				return tx.Create(toMessageLogModel(record)).Error
			}
			if err != nil {
				return err
			}

			existing := toMessageRecord(&model)
			if !existing.Apply(entity.PatchFrom(record)) {
				stored = true
				return nil
			}
			stored = true
			return tx.Save(toMessageLogModel(existing)).Error
		})
		if err != nil {
			return false, domainErrors.NewInternalError("failed to update message log: " + err.Error())
		}
		return stored, nil
	}

	// 同一 master_msg_id 只保留一条记录
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "master_msg_id"}},
			UpdateAll: true,
		}).
		Create(toMessageLogModel(record)).Error
	if err != nil {
		return false, domainErrors.NewInternalError("failed to insert message log: " + err.Error())
	}
	return true, nil
}

// GetByMaster 根据主平台消息标识查找
func (r *GormMessageLogRepository) GetByMaster(ctx context.Context, id entity.MasterMessageUID) (*entity.MessageRecord, error) {
	var model models.MessageLogModel
	err := r.db.WithContext(ctx).First(&model, "master_msg_id = ?", string(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domainErrors.NewInternalError("failed to find message log: " + err.Error())
	}
	return toMessageRecord(&model), nil
}

// GetBySlave 根据从通道消息标识查找最新一条
func (r *GormMessageLogRepository) GetBySlave(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) (*entity.MessageRecord, error) {
	if slaveMessageID == "" || origin == "" {
		return nil, domainErrors.NewInvalidInputError("slave_message_id and slave_origin_uid must be supplied together")
	}

	var modelList []models.MessageLogModel
	err := r.db.WithContext(ctx).
		Where("slave_message_id = ? AND slave_origin_uid = ?", slaveMessageID, string(origin)).
		Order("created_at desc").
		Limit(1).
		Find(&modelList).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to find message log: " + err.Error())
	}
	if len(modelList) == 0 {
		return nil, nil
	}
	return toMessageRecord(&modelList[0]), nil
}

// DeleteByMaster 删除记录
func (r *GormMessageLogRepository) DeleteByMaster(ctx context.Context, id entity.MasterMessageUID) error {
	err := r.db.WithContext(ctx).Delete(&models.MessageLogModel{}, "master_msg_id = ?", string(id)).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to delete message log: " + err.Error())
	}
	return nil
}

// DeleteBySlave 删除记录
func (r *GormMessageLogRepository) DeleteBySlave(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) error {
	if slaveMessageID == "" || origin == "" {
		return domainErrors.NewInvalidInputError("slave_message_id and slave_origin_uid must be supplied together")
	}
	err := r.db.WithContext(ctx).
		Delete(&models.MessageLogModel{}, "slave_message_id = ? AND slave_origin_uid = ?", slaveMessageID, string(origin)).Error
	if err != nil {
		return domainErrors.NewInternalError("failed to delete message log: " + err.Error())
	}
	return nil
}

// RecentSlaveChats 最近活跃的从会话
func (r *GormMessageLogRepository) RecentSlaveChats(ctx context.Context, master entity.MasterChatUID, limit int) ([]entity.SlaveChatUID, error) {
	if limit <= 0 {
		limit = repository.DefaultRecentChatsLimit
	}

	var uids []string
	err := r.db.WithContext(ctx).
		Model(&models.MessageLogModel{}).
		Where("master_chat_id = ? AND slave_origin_uid <> ''", string(master)).
		Group("slave_origin_uid").
		Order("MAX(created_at) desc").
		Limit(limit).
		Pluck("slave_origin_uid", &uids).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to find recent chats: " + err.Error())
	}

	result := make([]entity.SlaveChatUID, len(uids))
	for i, uid := range uids {
		result[i] = entity.SlaveChatUID(uid)
	}
	return result, nil
}

// 转换方法

func toMessageLogModel(r *entity.MessageRecord) *models.MessageLogModel {
	return &models.MessageLogModel{
		MasterMsgID:            string(r.MasterMsgID),
		MasterMsgIDAlt:         nullable(string(r.MasterMsgIDAlt)),
		MasterChatID:           string(r.MasterChat()),
		SlaveMessageID:         r.SlaveMessageID,
		SlaveOriginUID:         string(r.SlaveOriginUID),
		SlaveOriginDisplayName: r.SlaveOriginDisplayName,
		SlaveMemberUID:         nullable(r.SlaveMemberUID),
		SlaveMemberDisplayName: nullable(r.SlaveMemberDisplayName),
		MessageType:            string(r.MessageType),
		Direction:              string(r.Direction),
		Text:                   r.Text,
		MediaType:              nullable(r.MediaType),
		MIME:                   nullable(r.MIME),
		FileID:                 nullable(r.FileID),
		Snapshot:               r.Snapshot,
		CreatedAt:              r.CreatedAt.UTC(),
	}
}

func toMessageRecord(m *models.MessageLogModel) *entity.MessageRecord {
	return &entity.MessageRecord{
		MasterMsgID:            entity.MasterMessageUID(m.MasterMsgID),
		MasterMsgIDAlt:         entity.MasterMessageUID(deref(m.MasterMsgIDAlt)),
		SlaveMessageID:         m.SlaveMessageID,
		SlaveOriginUID:         entity.SlaveChatUID(m.SlaveOriginUID),
		SlaveOriginDisplayName: m.SlaveOriginDisplayName,
		SlaveMemberUID:         deref(m.SlaveMemberUID),
		SlaveMemberDisplayName: deref(m.SlaveMemberDisplayName),
		MessageType:            entity.MessageKind(m.MessageType),
		Direction:              entity.Direction(m.Direction),
		Text:                   m.Text,
		MediaType:              deref(m.MediaType),
		MIME:                   deref(m.MIME),
		FileID:                 deref(m.FileID),
		Snapshot:               m.Snapshot,
		CreatedAt:              m.CreatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
