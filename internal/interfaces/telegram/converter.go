package telegram

import (
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// FileResolver turns a Telegram file id into a URL slave channels can fetch.
type FileResolver func(fileID string) string

// ConvertMessage maps a Telegram message onto the bridge message model.
// The caption of media messages becomes the message text.
func ConvertMessage(msg *tgbotapi.Message, resolve FileResolver) *entity.Message {
	out := &entity.Message{
		Text:      msg.Text,
		Format:    entity.FormatPlain,
		CreatedAt: time.Unix(int64(msg.Date), 0),
	}
	if msg.From != nil {
		out.Author = entity.Author{
			UID:    strconv.FormatInt(msg.From.ID, 10),
			Name:   fullName(msg.From),
			Alias:  msg.From.UserName,
			IsSelf: true,
		}
	}

	media := func(fileID, uniqueID, mime, name string, size int) entity.Attachment {
		att := entity.Attachment{
			FileID:   fileID,
			UniqueID: uniqueID,
			MIME:     mime,
			Filename: name,
			Size:     int64(size),
		}
		if resolve != nil {
			att.URL = resolve(fileID)
		}
		return att
	}

	switch {
	case len(msg.Photo) > 0:
		// 取最大尺寸
		p := msg.Photo[len(msg.Photo)-1]
		out.Body = entity.ImageBody{Attachment: media(p.FileID, p.FileUniqueID, "image/jpeg", "", p.FileSize)}
	case msg.Sticker != nil:
		mime := "image/webp"
		if msg.Sticker.IsAnimated {
			mime = "application/x-tgsticker"
		}
		out.Body = entity.StickerBody{Attachment: media(msg.Sticker.FileID, msg.Sticker.FileUniqueID, mime, "", msg.Sticker.FileSize)}
	case msg.Animation != nil:
		a := msg.Animation
		out.Body = entity.VideoBody{Attachment: media(a.FileID, a.FileUniqueID, orDefault(a.MimeType, "video/mp4"), a.FileName, a.FileSize), Animated: true}
	case msg.Video != nil:
		v := msg.Video
		out.Body = entity.VideoBody{Attachment: media(v.FileID, v.FileUniqueID, orDefault(v.MimeType, "video/mp4"), "", v.FileSize)}
	case msg.VideoNote != nil:
		v := msg.VideoNote
		out.Body = entity.VideoBody{Attachment: media(v.FileID, v.FileUniqueID, "video/mp4", "", v.FileSize)}
	case msg.Voice != nil:
		v := msg.Voice
		out.Body = entity.AudioBody{Attachment: media(v.FileID, v.FileUniqueID, orDefault(v.MimeType, "audio/ogg"), "", v.FileSize), Voice: true}
	case msg.Audio != nil:
		a := msg.Audio
		out.Body = entity.AudioBody{Attachment: media(a.FileID, a.FileUniqueID, orDefault(a.MimeType, "audio/mpeg"), a.Title, a.FileSize)}
	case msg.Document != nil:
		d := msg.Document
		out.Body = entity.FileBody{Attachment: media(d.FileID, d.FileUniqueID, orDefault(d.MimeType, "application/octet-stream"), d.FileName, d.FileSize)}
	case msg.Venue != nil:
		out.Body = entity.LocationBody{
			Latitude:  msg.Venue.Location.Latitude,
			Longitude: msg.Venue.Location.Longitude,
			Title:     msg.Venue.Title,
			Address:   msg.Venue.Address,
		}
	case msg.Location != nil:
		out.Body = entity.LocationBody{Latitude: msg.Location.Latitude, Longitude: msg.Location.Longitude}
	case msg.Contact != nil:
		out.Body = entity.UnsupportedBody{TypeName: "contact"}
	case msg.Poll != nil:
		out.Body = entity.UnsupportedBody{TypeName: "poll"}
	case msg.Dice != nil:
		out.Body = entity.UnsupportedBody{TypeName: "dice"}
	case msg.Game != nil:
		out.Body = entity.UnsupportedBody{TypeName: "game"}
	}

	if out.Body != nil && out.Text == "" {
		out.Text = msg.Caption
	}
	return out
}

func fullName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// masterChatUID / parseChatID convert between Telegram ids and bridge ids.
func masterChatUID(chatID int64) entity.MasterChatUID {
	return entity.MasterChatUID(strconv.FormatInt(chatID, 10))
}

func parseChatID(uid entity.MasterChatUID) (int64, error) {
	return strconv.ParseInt(string(uid), 10, 64)
}
