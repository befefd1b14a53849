package entity

// Status is a non-message update pushed by a slave channel, or sent to one.
type Status interface {
	StatusType() string
}

// ChatListUpdate 会话列表变化
type ChatListUpdate struct {
	ChannelID string
	Added     []Chat
	Modified  []Chat
	Removed   []string
}

func (ChatListUpdate) StatusType() string { return "chat_list" }

// MemberListUpdate 群成员变化, 仅记录日志
type MemberListUpdate struct {
	ChannelID string
	ChatUID   string
	Added     []Author
	Modified  []Author
	Removed   []string
}

func (MemberListUpdate) StatusType() string { return "member_list" }

// MessageRemoval asks the receiving side to delete Message.
type MessageRemoval struct {
	Message *Message
}

func (MessageRemoval) StatusType() string { return "message_removal" }

// MessageReactionsUpdate replaces the full reaction set of one slave message.
type MessageReactionsUpdate struct {
	Chat      Chat
	MessageID string
	Reactions Reactions
}

func (MessageReactionsUpdate) StatusType() string { return "reactions" }

// ReactToMessage sets the reaction of the bridge account on a slave message.
// An empty Reaction withdraws it.
type ReactToMessage struct {
	Chat      Chat
	MessageID string
	Reaction  string
}

func (ReactToMessage) StatusType() string { return "react" }
