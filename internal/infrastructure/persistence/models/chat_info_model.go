package models

import "time"

// ChatInfoModel 从会话元数据缓存表
type ChatInfoModel struct {
	SlaveChannelID string `gorm:"primaryKey;size:128"`
	SlaveChatUID   string `gorm:"primaryKey;size:255"`
	Name           string `gorm:"size:255"`
	Alias          string `gorm:"size:255"`
	Type           string `gorm:"size:16"`
	ChannelEmoji   string `gorm:"size:16"`
	UpdatedAt      time.Time
}

// TableName 指定表名
func (ChatInfoModel) TableName() string {
	return "slave_chat_infos"
}
