package entity

import (
	"fmt"
	"strings"
	"time"
)

// MasterChatUID 主平台会话标识 (Telegram chat id 的十进制字符串)
type MasterChatUID string

// SlaveChatUID 从通道会话标识, 格式 "channel-id.chat-id"
type SlaveChatUID string

// MasterMessageUID 主平台消息标识, 格式 "masterChat.masterMessageId"
type MasterMessageUID string

// MutedMasterChat is the reserved link target that silences a slave chat.
const MutedMasterChat MasterChatUID = "__muted__"

// PendingPrefix marks identifiers that were logged before delivery succeeded.
const PendingPrefix = "__fail__"

// ChatHeadID is the slave message id of a chat head record: a master prompt
// that only names a slave chat for replies.
const ChatHeadID = "__chathead__"

// uidSeparator joins the two halves of every composite identifier.
const uidSeparator = "."

// NewSlaveChatUID 组合从通道会话标识
func NewSlaveChatUID(channelID, chatID string) SlaveChatUID {
	return SlaveChatUID(channelID + uidSeparator + chatID)
}

// Split returns the channel and chat halves. Channel ids never contain a dot.
func (u SlaveChatUID) Split() (channelID, chatID string, err error) {
	channelID, chatID, ok := strings.Cut(string(u), uidSeparator)
	if !ok || channelID == "" || chatID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSlaveChatUID, string(u))
	}
	return channelID, chatID, nil
}

// ChannelID returns the channel half, or "" for a malformed identifier.
func (u SlaveChatUID) ChannelID() string {
	channelID, _, err := u.Split()
	if err != nil {
		return ""
	}
	return channelID
}

// ChatID returns the chat half, or "" for a malformed identifier.
func (u SlaveChatUID) ChatID() string {
	_, chatID, err := u.Split()
	if err != nil {
		return ""
	}
	return chatID
}

// NewMasterMessageUID 组合主平台消息标识
func NewMasterMessageUID(chat MasterChatUID, messageID string) MasterMessageUID {
	return MasterMessageUID(string(chat) + uidSeparator + messageID)
}

// Split returns the chat and message halves of the identifier.
func (u MasterMessageUID) Split() (MasterChatUID, string, error) {
	chat, msg, ok := strings.Cut(string(u), uidSeparator)
	if !ok || chat == "" || msg == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidMasterMessageUID, string(u))
	}
	return MasterChatUID(chat), msg, nil
}

// Chat returns the master chat half, or "" for a malformed identifier.
func (u MasterMessageUID) Chat() MasterChatUID {
	chat, _, err := u.Split()
	if err != nil {
		return ""
	}
	return chat
}

// MessageID returns the per-chat message half.
func (u MasterMessageUID) MessageID() string {
	_, msg, err := u.Split()
	if err != nil {
		return ""
	}
	return msg
}

// IsPending reports whether the master side of the id is a pending placeholder.
func (u MasterMessageUID) IsPending() bool {
	return IsPendingID(u.MessageID())
}

// NewPendingID 生成待定哨兵 "__fail__.<unix-nanos>"
func NewPendingID(now time.Time) string {
	return fmt.Sprintf("%s%s%d", PendingPrefix, uidSeparator, now.UnixNano())
}

// IsPendingID reports whether id was produced by NewPendingID.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingPrefix)
}
