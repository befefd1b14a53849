package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// FrameType 帧类型
type FrameType string

const (
	// 远端 → 网桥
	FrameHello   FrameType = "hello"
	FrameMessage FrameType = "message"
	FrameStatus  FrameType = "status"
	FrameResult  FrameType = "result"

	// 网桥 → 远端
	FrameWelcome     FrameType = "welcome"
	FrameSendMessage FrameType = "send_message"
	FrameSendStatus  FrameType = "send_status"
	FrameAck         FrameType = "ack"
	FrameError       FrameType = "error"

	FramePing FrameType = "ping"
	FramePong FrameType = "pong"
)

// Frame is the single JSON envelope exchanged with remote slave channels.
// Request frames carry an ID; the matching result or ack echoes it.
type Frame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id,omitempty"`

	// hello
	Channel string               `json:"channel,omitempty"`
	Name    string               `json:"name,omitempty"`
	Emoji   string               `json:"emoji,omitempty"`
	Kinds   []entity.MessageKind `json:"kinds,omitempty"`

	Message *entity.WireMessage `json:"message,omitempty"`
	Status  *StatusFrame        `json:"status,omitempty"`

	// result
	SlaveID string `json:"slave_id,omitempty"`
	Error   string `json:"error,omitempty"`

	Timestamp int64 `json:"timestamp"`
}

// StatusFrame 状态载荷, Data 的结构由 Type 决定
type StatusFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type chatListData struct {
	ChannelID string        `json:"channel_id,omitempty"`
	Added     []entity.Chat `json:"added,omitempty"`
	Modified  []entity.Chat `json:"modified,omitempty"`
	Removed   []string      `json:"removed,omitempty"`
}

type memberListData struct {
	ChannelID string          `json:"channel_id,omitempty"`
	ChatUID   string          `json:"chat_uid"`
	Added     []entity.Author `json:"added,omitempty"`
	Modified  []entity.Author `json:"modified,omitempty"`
	Removed   []string        `json:"removed,omitempty"`
}

type removalData struct {
	Message *entity.WireMessage `json:"message"`
}

type reactionsData struct {
	Chat      entity.Chat      `json:"chat"`
	MessageID string           `json:"message_id"`
	Reactions entity.Reactions `json:"reactions"`
}

type reactData struct {
	Chat      entity.Chat `json:"chat"`
	MessageID string      `json:"message_id"`
	Reaction  string      `json:"reaction,omitempty"`
}

// EncodeStatus converts a status into its wire form.
func EncodeStatus(status entity.Status) (*StatusFrame, error) {
	var payload any
	switch s := status.(type) {
	case entity.ChatListUpdate:
		payload = chatListData{ChannelID: s.ChannelID, Added: s.Added, Modified: s.Modified, Removed: s.Removed}
	case entity.MemberListUpdate:
		payload = memberListData{ChannelID: s.ChannelID, ChatUID: s.ChatUID, Added: s.Added, Modified: s.Modified, Removed: s.Removed}
	case entity.MessageRemoval:
		if s.Message == nil {
			return nil, fmt.Errorf("message removal without message")
		}
		wire, err := entity.ToWire(s.Message)
		if err != nil {
			return nil, err
		}
		payload = removalData{Message: wire}
	case entity.MessageReactionsUpdate:
		payload = reactionsData{Chat: s.Chat, MessageID: s.MessageID, Reactions: s.Reactions}
	case entity.ReactToMessage:
		payload = reactData{Chat: s.Chat, MessageID: s.MessageID, Reaction: s.Reaction}
	default:
		return nil, fmt.Errorf("unsupported status %q", status.StatusType())
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &StatusFrame{Type: status.StatusType(), Data: data}, nil
}

// DecodeStatus is the inverse of EncodeStatus. channelID fills the channel
// fields the remote side left empty.
func DecodeStatus(f *StatusFrame, channelID string) (entity.Status, error) {
	if f == nil {
		return nil, fmt.Errorf("empty status")
	}
	switch f.Type {
	case entity.ChatListUpdate{}.StatusType():
		var d chatListData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, err
		}
		return entity.ChatListUpdate{ChannelID: channelID, Added: d.Added, Modified: d.Modified, Removed: d.Removed}, nil
	case entity.MemberListUpdate{}.StatusType():
		var d memberListData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, err
		}
		return entity.MemberListUpdate{ChannelID: channelID, ChatUID: d.ChatUID, Added: d.Added, Modified: d.Modified, Removed: d.Removed}, nil
	case entity.MessageRemoval{}.StatusType():
		var d removalData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, err
		}
		if d.Message == nil {
			return nil, fmt.Errorf("message removal without message")
		}
		msg, err := d.Message.ToMessage()
		if err != nil {
			return nil, err
		}
		msg.Chat.ChannelID = channelID
		return entity.MessageRemoval{Message: msg}, nil
	case entity.MessageReactionsUpdate{}.StatusType():
		var d reactionsData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, err
		}
		d.Chat.ChannelID = channelID
		return entity.MessageReactionsUpdate{Chat: d.Chat, MessageID: d.MessageID, Reactions: d.Reactions}, nil
	case entity.ReactToMessage{}.StatusType():
		var d reactData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, err
		}
		d.Chat.ChannelID = channelID
		return entity.ReactToMessage{Chat: d.Chat, MessageID: d.MessageID, Reaction: d.Reaction}, nil
	default:
		return nil, fmt.Errorf("unsupported status %q", f.Type)
	}
}
