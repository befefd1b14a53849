package entity

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// MessageKind 消息类型
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindImage       MessageKind = "image"
	KindFile        MessageKind = "file"
	KindAudio       MessageKind = "audio"
	KindVideo       MessageKind = "video"
	KindLocation    MessageKind = "location"
	KindSticker     MessageKind = "sticker"
	KindLink        MessageKind = "link"
	KindUnsupported MessageKind = "unsupported"
)

// TextFormat 文本格式
type TextFormat string

const (
	FormatPlain    TextFormat = "plain"
	FormatMarkdown TextFormat = "markdown"
)

// Message 桥内部消息表示
type Message struct {
	UID       string     `json:"uid"`
	Chat      Chat       `json:"chat"`
	Author    Author     `json:"author"`
	Text      string     `json:"text,omitempty"`
	Format    TextFormat `json:"format,omitempty"`
	Body      Body       `json:"-"`
	Target    *Message   `json:"-"`
	Edit      bool       `json:"edit,omitempty"`
	EditMedia bool       `json:"edit_media,omitempty"`
	Reactions Reactions  `json:"reactions,omitempty"`
	Mentioned bool       `json:"mentioned,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Content returns the body, defaulting to text.
func (m *Message) Content() Body {
	if m.Body == nil {
		return TextBody{}
	}
	return m.Body
}

// Kind returns the kind of the message body.
func (m *Message) Kind() MessageKind {
	return m.Content().Kind()
}

// LogText is the denormalized preview stored in the correlation log.
func (m *Message) LogText() string {
	if m.Text != "" {
		return m.Text
	}
	return "Sent a " + string(m.Kind()) + "."
}

// Attachment returns the media descriptor of file-like bodies.
func (m *Message) Attachment() *Attachment {
	switch b := m.Content().(type) {
	case ImageBody:
		return &b.Attachment
	case FileBody:
		return &b.Attachment
	case AudioBody:
		return &b.Attachment
	case VideoBody:
		return &b.Attachment
	case StickerBody:
		return &b.Attachment
	}
	return nil
}

// Shallow returns a copy without the quoted target, as stored in snapshots.
func (m *Message) Shallow() *Message {
	c := *m
	c.Target = nil
	return &c
}

// Reaction 一种表情及其用户
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []Author `json:"users"`
}

// Reactions keeps emoji groups in the order the slave reported them.
type Reactions []Reaction

// Footer renders "[👍×1, ❤️×2]"; empty groups are skipped.
func (r Reactions) Footer() string {
	parts := make([]string, 0, len(r))
	for _, reaction := range r {
		if len(reaction.Users) == 0 {
			continue
		}
		parts = append(parts, reaction.Emoji+"×"+strconv.Itoa(len(reaction.Users)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MasterHandle 主平台已渲染消息的句柄
type MasterHandle struct {
	Chat      MasterChatUID
	MessageID string
}

// UID returns the correlation key of the handle.
func (h MasterHandle) UID() MasterMessageUID {
	return NewMasterMessageUID(h.Chat, h.MessageID)
}

// HandleFromUID splits a stored master id back into a handle.
func HandleFromUID(uid MasterMessageUID) (*MasterHandle, error) {
	chat, msg, err := uid.Split()
	if err != nil {
		return nil, err
	}
	return &MasterHandle{Chat: chat, MessageID: msg}, nil
}

// RenderRequest 主平台渲染请求
type RenderRequest struct {
	Destination MasterChatUID
	Header      string
	Footer      string
	Text        string
	Format      TextFormat
	ReplyTo     string
	EditTarget  *MasterHandle
	EditMedia   bool
	Silent      bool
}

// Renderer is the master-platform adapter boundary used by the outbound pipeline.
type Renderer interface {
	RenderText(ctx context.Context, req *RenderRequest) (*MasterHandle, error)
	RenderImage(ctx context.Context, req *RenderRequest, media *Attachment) (*MasterHandle, error)
	RenderFile(ctx context.Context, req *RenderRequest, media *Attachment) (*MasterHandle, error)
	RenderAudio(ctx context.Context, req *RenderRequest, media *Attachment) (*MasterHandle, error)
	RenderVideo(ctx context.Context, req *RenderRequest, media *Attachment) (*MasterHandle, error)
	RenderSticker(ctx context.Context, req *RenderRequest, media *Attachment) (*MasterHandle, error)
	RenderLocation(ctx context.Context, req *RenderRequest, loc *LocationBody) (*MasterHandle, error)
	RenderLink(ctx context.Context, req *RenderRequest, link *LinkBody) (*MasterHandle, error)
	RenderUnsupported(ctx context.Context, req *RenderRequest) (*MasterHandle, error)
}
