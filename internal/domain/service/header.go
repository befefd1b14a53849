package service

import (
	"strings"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// EditedMarker 无法原地编辑时加在消息头前的标记
const EditedMarker = "[edited]"

// BuildHeader renders the line shown above a relayed slave message.
//
// A singly-linked master chat only needs the author (empty when the author is
// the chat itself). Otherwise the header names the origin:
//
//	user:    <channel emoji> 👤 <chat>[, <author>]:
//	group:   <channel emoji> 👥 <author> [<chat>]:
//	system:  <channel emoji> 💻 <chat>:
//	unknown: <channel emoji> ❓ <chat>:
func BuildHeader(msg *entity.Message, singly bool) string {
	chat := msg.Chat
	author := ""
	if !authorIsChat(msg) {
		author = msg.Author.DisplayName()
	}

	if singly {
		if author == "" {
			return ""
		}
		return author + ":"
	}

	prefix := strings.TrimSpace(chat.ChannelEmoji + " " + chat.Type.Emoji())
	name := chat.LongName()

	switch chat.Type {
	case entity.ChatTypeUser:
		if author != "" {
			return prefix + " " + name + ", " + author + ":"
		}
		return prefix + " " + name + ":"
	case entity.ChatTypeGroup:
		if author == "" {
			author = msg.Author.DisplayName()
		}
		return prefix + " " + author + " [" + name + "]:"
	default:
		return prefix + " " + name + ":"
	}
}

// WithEditedMarker prefixes a header for an edit that could not be applied in place.
func WithEditedMarker(header string) string {
	if header == "" {
		return EditedMarker
	}
	return EditedMarker + " " + header
}

func authorIsChat(msg *entity.Message) bool {
	return msg.Author.UID == "" || msg.Author.UID == msg.Chat.UID
}
