package entity

import "time"

// ChatType 从通道会话类型
type ChatType string

const (
	ChatTypeUser    ChatType = "user"
	ChatTypeGroup   ChatType = "group"
	ChatTypeSystem  ChatType = "system"
	ChatTypeUnknown ChatType = "unknown"
)

// Emoji returns the marker rendered in message headers for this chat type.
func (t ChatType) Emoji() string {
	switch t {
	case ChatTypeUser:
		return "👤"
	case ChatTypeGroup:
		return "👥"
	case ChatTypeSystem:
		return "💻"
	default:
		return "❓"
	}
}

// Emojis used around chat names outside of the type markers.
const (
	EmojiLink        = "🔗"
	EmojiMuted       = "🔇"
	EmojiMultiLinked = "🖇️"
)

// NotificationState 会话的提醒级别
type NotificationState string

const (
	NotifyAll      NotificationState = "all"
	NotifyMentions NotificationState = "mentions"
	NotifyNone     NotificationState = "none"
)

// Chat 从通道会话
type Chat struct {
	ChannelID    string            `json:"channel_id"`
	ChannelName  string            `json:"channel_name,omitempty"`
	ChannelEmoji string            `json:"channel_emoji,omitempty"`
	UID          string            `json:"uid"`
	Name         string            `json:"name"`
	Alias        string            `json:"alias,omitempty"`
	Type         ChatType          `json:"type"`
	Notification NotificationState `json:"notification,omitempty"`
}

// SlaveUID returns the composite identifier of the chat.
func (c Chat) SlaveUID() SlaveChatUID {
	return NewSlaveChatUID(c.ChannelID, c.UID)
}

// DisplayName prefers the alias set by the operator.
func (c Chat) DisplayName() string {
	if c.Alias != "" {
		return c.Alias
	}
	if c.Name != "" {
		return c.Name
	}
	return c.UID
}

// LongName shows both alias and name when they differ.
func (c Chat) LongName() string {
	if c.Alias != "" && c.Name != "" && c.Alias != c.Name {
		return c.Alias + " (" + c.Name + ")"
	}
	return c.DisplayName()
}

// Author 消息发送者
type Author struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Alias  string `json:"alias,omitempty"`
	IsSelf bool   `json:"is_self,omitempty"`
}

// DisplayName prefers the alias set by the operator.
func (a Author) DisplayName() string {
	if a.Alias != "" {
		return a.Alias
	}
	if a.Name != "" {
		return a.Name
	}
	return a.UID
}

// ChatInfo 从通道会话元数据缓存行
type ChatInfo struct {
	ChannelID    string
	ChatUID      string
	Name         string
	Alias        string
	Type         ChatType
	ChannelEmoji string
	UpdatedAt    time.Time
}

// SlaveUID returns the composite identifier of the cached chat.
func (i *ChatInfo) SlaveUID() SlaveChatUID {
	return NewSlaveChatUID(i.ChannelID, i.ChatUID)
}

// ChatInfoFromChat copies the cached fields of c.
func ChatInfoFromChat(c Chat) *ChatInfo {
	return &ChatInfo{
		ChannelID:    c.ChannelID,
		ChatUID:      c.UID,
		Name:         c.Name,
		Alias:        c.Alias,
		Type:         c.Type,
		ChannelEmoji: c.ChannelEmoji,
	}
}

// Apply overlays the cached metadata on c, leaving fields the cache does not hold.
func (i *ChatInfo) Apply(c Chat) Chat {
	if i == nil {
		return c
	}
	if i.Name != "" {
		c.Name = i.Name
	}
	if i.Alias != "" {
		c.Alias = i.Alias
	}
	if i.Type != "" {
		c.Type = i.Type
	}
	if i.ChannelEmoji != "" {
		c.ChannelEmoji = i.ChannelEmoji
	}
	return c
}

// ChatLink 主从会话绑定
type ChatLink struct {
	Master    MasterChatUID
	Slave     SlaveChatUID
	CreatedAt time.Time
}
