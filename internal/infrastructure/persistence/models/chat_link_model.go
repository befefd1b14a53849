package models

import "time"

// ChatLinkModel 主从会话绑定表
// Seq 只用于保持插入顺序, 唯一性由仓储层的绑定策略保证
type ChatLinkModel struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	MasterUID string `gorm:"index;size:128;not null"`
	SlaveUID  string `gorm:"index;size:255;not null"`
	CreatedAt time.Time
}

// TableName 指定表名
func (ChatLinkModel) TableName() string {
	return "chat_links"
}
