package models

import "time"

// MessageLogModel 消息关联日志表
type MessageLogModel struct {
	MasterMsgID            string  `gorm:"primaryKey;size:255"`
	MasterMsgIDAlt         *string `gorm:"size:255"`
	MasterChatID           string  `gorm:"index;size:128;not null"`
	SlaveMessageID         string  `gorm:"index:idx_slave_message,priority:1;size:255;not null"`
	SlaveOriginUID         string  `gorm:"index:idx_slave_message,priority:2;size:255;not null"`
	SlaveOriginDisplayName string  `gorm:"size:255"`
	SlaveMemberUID         *string `gorm:"size:255"`
	SlaveMemberDisplayName *string `gorm:"size:255"`
	MessageType            string  `gorm:"size:32;not null"`
	Direction              string  `gorm:"size:16;not null"` // to_master, to_slave
	Text                   string  `gorm:"type:text"`
	MediaType              *string `gorm:"size:64"`
	MIME                   *string `gorm:"size:128"`
	FileID                 *string `gorm:"size:255"`
	Snapshot               []byte
	CreatedAt              time.Time `gorm:"index"`
	UpdatedAt              time.Time
}

// TableName 指定表名
func (MessageLogModel) TableName() string {
	return "message_logs"
}
