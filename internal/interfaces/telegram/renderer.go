package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

const parseModeHTML = "HTML"

// Renderer draws slave messages into Telegram chats. Every method returns
// the handle of the master message the slave message now maps to.
type Renderer struct {
	bot    BotAPI
	logger *zap.Logger
}

// NewRenderer 创建 Telegram 渲染器
func NewRenderer(bot BotAPI, logger *zap.Logger) *Renderer {
	return &Renderer{
		bot:    bot,
		logger: logger.With(zap.String("component", "telegram-renderer")),
	}
}

var _ entity.Renderer = (*Renderer)(nil)

// composed 同一内容的 HTML 与纯文本版本 (HTML 被拒绝时回退)
type composed struct {
	html  string
	plain string
}

func formatBody(text string, format entity.TextFormat) composed {
	if format == entity.FormatMarkdown {
		return composed{html: MarkdownToHTML(text), plain: text}
	}
	return composed{html: html.EscapeString(text), plain: text}
}

func joinLines(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}

func (c composed) join(next composed) composed {
	return composed{html: joinLines(c.html, next.html), plain: joinLines(c.plain, next.plain)}
}

func plainPart(text string) composed {
	return composed{html: html.EscapeString(text), plain: text}
}

// wrap puts the header above the body and the reaction footer below it.
func wrap(header string, body composed, footer string) composed {
	return plainPart(header).join(body).join(plainPart(footer))
}

// RenderText 文本消息, 超长时分段发送, 句柄指向第一段
func (r *Renderer) RenderText(ctx context.Context, req *entity.RenderRequest) (*entity.MasterHandle, error) {
	return r.renderText(req, req.Text, composed{})
}

// RenderLink renders the link preview below the text.
func (r *Renderer) RenderLink(ctx context.Context, req *entity.RenderRequest, link *entity.LinkBody) (*entity.MasterHandle, error) {
	title := link.Title
	if title == "" {
		title = link.URL
	}
	block := composed{
		html:  `<a href="` + html.EscapeString(link.URL) + `">` + html.EscapeString(title) + `</a>`,
		plain: joinLines(title, link.URL),
	}
	if link.Description != "" {
		block = block.join(plainPart(link.Description))
	}
	return r.renderText(req, req.Text, block)
}

// RenderUnsupported 无法渲染的消息类型
func (r *Renderer) RenderUnsupported(ctx context.Context, req *entity.RenderRequest) (*entity.MasterHandle, error) {
	notice := composed{html: "<i>Unsupported message</i>", plain: "Unsupported message"}
	return r.renderText(req, req.Text, notice)
}

func (r *Renderer) renderText(req *entity.RenderRequest, text string, appendix composed) (*entity.MasterHandle, error) {
	chatID, err := parseChatID(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid master chat %q: %w", req.Destination, err)
	}

	if req.EditTarget != nil {
		content := wrap(req.Header, formatBody(truncateText(text, textLimit), req.Format).join(appendix), req.Footer)
		return r.editText(chatID, req.EditTarget, content)
	}

	chunks := splitText(text, textLimit)
	var first *entity.MasterHandle
	for i, chunk := range chunks {
		body := formatBody(chunk, req.Format)
		header, footer := "", ""
		if i == 0 {
			header = req.Header
		}
		if i == len(chunks)-1 {
			body = body.join(appendix)
			footer = req.Footer
		}
		content := wrap(header, body, footer)

		msg := tgbotapi.NewMessage(chatID, content.html)
		msg.ParseMode = parseModeHTML
		msg.DisableNotification = req.Silent
		if i == 0 {
			setReply(&msg.BaseChat, req.ReplyTo)
		}
		sent, err := r.sendMessage(msg, content.plain)
		if err != nil {
			if first != nil {
				r.logger.Warn("Long message partially delivered",
					zap.String("master_msg_id", string(first.UID())),
					zap.Int("sent", i),
					zap.Int("total", len(chunks)),
				)
			}
			return first, fmt.Errorf("send message to %s: %w", req.Destination, err)
		}
		if first == nil {
			first = handleOf(req.Destination, sent)
		}
	}
	return first, nil
}

func (r *Renderer) sendMessage(msg tgbotapi.MessageConfig, plain string) (tgbotapi.Message, error) {
	sent, err := r.bot.Send(msg)
	if err != nil && isParseError(err) {
		r.logger.Debug("HTML rejected, sending plain text", zap.Error(err))
		msg.ParseMode = ""
		msg.Text = plain
		return r.bot.Send(msg)
	}
	return sent, err
}

func (r *Renderer) editText(chatID int64, target *entity.MasterHandle, content composed) (*entity.MasterHandle, error) {
	messageID, err := strconv.Atoi(target.MessageID)
	if err != nil {
		return nil, fmt.Errorf("invalid master message id %q: %w", target.MessageID, err)
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, content.html)
	edit.ParseMode = parseModeHTML
	_, err = r.bot.Request(edit)
	if err != nil && isParseError(err) {
		edit.ParseMode = ""
		edit.Text = content.plain
		_, err = r.bot.Request(edit)
	}
	if err != nil && !isNotModified(err) {
		return nil, fmt.Errorf("edit %s: %w", target.UID(), err)
	}
	h := *target
	return &h, nil
}

// mediaKind Telegram 发送接口
type mediaKind string

const (
	mediaPhoto     mediaKind = "photo"
	mediaDocument  mediaKind = "document"
	mediaAudio     mediaKind = "audio"
	mediaVoice     mediaKind = "voice"
	mediaVideo     mediaKind = "video"
	mediaAnimation mediaKind = "animation"
)

// RenderImage 图片, GIF 按动图发送
func (r *Renderer) RenderImage(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	if media.MIME == "image/gif" {
		return r.renderMedia(req, media, mediaAnimation)
	}
	return r.renderMedia(req, media, mediaPhoto)
}

// RenderFile 文件
func (r *Renderer) RenderFile(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	return r.renderMedia(req, media, mediaDocument)
}

// RenderAudio sends ogg/opus clips as voice notes and everything else as audio.
func (r *Renderer) RenderAudio(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	if strings.HasPrefix(media.MIME, "audio/ogg") || strings.HasPrefix(media.MIME, "audio/opus") {
		return r.renderMedia(req, media, mediaVoice)
	}
	return r.renderMedia(req, media, mediaAudio)
}

// RenderVideo 视频
func (r *Renderer) RenderVideo(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	if media.MIME == "image/gif" {
		return r.renderMedia(req, media, mediaAnimation)
	}
	return r.renderMedia(req, media, mediaVideo)
}

func (r *Renderer) renderMedia(req *entity.RenderRequest, media *entity.Attachment, kind mediaKind) (*entity.MasterHandle, error) {
	chatID, err := parseChatID(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid master chat %q: %w", req.Destination, err)
	}
	caption := wrap(req.Header, formatBody(truncateText(req.Text, captionLimit), req.Format), req.Footer)

	if req.EditTarget != nil && (!req.EditMedia || kind != mediaVoice) {
		return r.editMedia(chatID, req, media, kind, caption)
	}

	file, err := requestFile(media)
	if err != nil {
		return nil, err
	}
	build := func(text, parseMode string) tgbotapi.Chattable {
		return mediaConfig(chatID, kind, file, text, parseMode, req)
	}
	sent, err := r.bot.Send(build(caption.html, parseModeHTML))
	if err != nil && isParseError(err) {
		sent, err = r.bot.Send(build(caption.plain, ""))
	}
	if err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", kind, req.Destination, err)
	}
	return handleOf(req.Destination, sent), nil
}

// editMedia replaces the file when it changed, otherwise only the caption.
func (r *Renderer) editMedia(chatID int64, req *entity.RenderRequest, media *entity.Attachment, kind mediaKind, caption composed) (*entity.MasterHandle, error) {
	messageID, err := strconv.Atoi(req.EditTarget.MessageID)
	if err != nil {
		return nil, fmt.Errorf("invalid master message id %q: %w", req.EditTarget.MessageID, err)
	}

	if req.EditMedia {
		file, err := requestFile(media)
		if err != nil {
			return nil, err
		}
		edit := tgbotapi.EditMessageMediaConfig{
			BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: messageID},
			Media:    inputMedia(kind, file, caption.html),
		}
		if _, err := r.bot.Request(edit); err != nil && !isNotModified(err) {
			return nil, fmt.Errorf("edit media of %s: %w", req.EditTarget.UID(), err)
		}
		h := *req.EditTarget
		return &h, nil
	}

	edit := tgbotapi.NewEditMessageCaption(chatID, messageID, caption.html)
	edit.ParseMode = parseModeHTML
	_, err = r.bot.Request(edit)
	if err != nil && isParseError(err) {
		edit.ParseMode = ""
		edit.Caption = caption.plain
		_, err = r.bot.Request(edit)
	}
	if err != nil && !isNotModified(err) {
		return nil, fmt.Errorf("edit caption of %s: %w", req.EditTarget.UID(), err)
	}
	h := *req.EditTarget
	return &h, nil
}

// RenderSticker shows the header as a button below the sticker since
// stickers carry no caption.
func (r *Renderer) RenderSticker(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	chatID, err := parseChatID(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid master chat %q: %w", req.Destination, err)
	}
	markup := stickerMarkup(req)

	// 贴纸本身无法编辑, 仅更新标题按钮
	if req.EditTarget != nil && !req.EditMedia {
		messageID, err := strconv.Atoi(req.EditTarget.MessageID)
		if err != nil {
			return nil, fmt.Errorf("invalid master message id %q: %w", req.EditTarget.MessageID, err)
		}
		if markup == nil {
			h := *req.EditTarget
			return &h, nil
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, *markup)
		if _, err := r.bot.Request(edit); err != nil && !isNotModified(err) {
			return nil, fmt.Errorf("edit sticker of %s: %w", req.EditTarget.UID(), err)
		}
		h := *req.EditTarget
		return &h, nil
	}

	file, err := requestFile(media)
	if err != nil {
		return nil, err
	}
	cfg := tgbotapi.NewSticker(chatID, file)
	cfg.DisableNotification = req.Silent
	setReply(&cfg.BaseChat, replyFor(req))
	if markup != nil {
		cfg.ReplyMarkup = *markup
	}
	sent, err := r.bot.Send(cfg)
	if err != nil {
		return nil, fmt.Errorf("send sticker to %s: %w", req.Destination, err)
	}
	return handleOf(req.Destination, sent), nil
}

func stickerMarkup(req *entity.RenderRequest) *tgbotapi.InlineKeyboardMarkup {
	label := strings.TrimSpace(joinLines(req.Header, req.Footer))
	if label == "" {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(truncateText(strings.ReplaceAll(label, "\n", " "), 60), callbackVoid),
	))
	return &markup
}

// RenderLocation sends a venue. Venues cannot be edited, so an edit posts a
// new venue replying to the old one and returns the new handle.
func (r *Renderer) RenderLocation(ctx context.Context, req *entity.RenderRequest, loc *entity.LocationBody) (*entity.MasterHandle, error) {
	chatID, err := parseChatID(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid master chat %q: %w", req.Destination, err)
	}

	title := strings.TrimSpace(joinLines(req.Header, loc.Title))
	if title == "" {
		title = "Location"
	}
	address := joinLines(loc.Address, req.Text)
	if address == "" {
		address = fmt.Sprintf("%.5f, %.5f", loc.Latitude, loc.Longitude)
	}
	address = joinLines(address, req.Footer)

	cfg := tgbotapi.NewVenue(chatID, strings.ReplaceAll(title, "\n", " "), address, loc.Latitude, loc.Longitude)
	cfg.DisableNotification = req.Silent
	setReply(&cfg.BaseChat, replyFor(req))
	sent, err := r.bot.Send(cfg)
	if err != nil {
		return nil, fmt.Errorf("send location to %s: %w", req.Destination, err)
	}
	return handleOf(req.Destination, sent), nil
}

// replyFor 编辑无法原地完成时回复旧消息
func replyFor(req *entity.RenderRequest) string {
	if req.EditTarget != nil {
		return req.EditTarget.MessageID
	}
	return req.ReplyTo
}

func setReply(base *tgbotapi.BaseChat, replyTo string) {
	if id, err := strconv.Atoi(replyTo); err == nil && id > 0 {
		base.ReplyToMessageID = id
		base.AllowSendingWithoutReply = true
	}
}

func handleOf(chat entity.MasterChatUID, sent tgbotapi.Message) *entity.MasterHandle {
	return &entity.MasterHandle{Chat: chat, MessageID: strconv.Itoa(sent.MessageID)}
}

// requestFile picks the cheapest source: bytes, local path, URL, then a
// Telegram file id.
func requestFile(media *entity.Attachment) (tgbotapi.RequestFileData, error) {
	name := media.Filename
	if name == "" {
		name = "file"
	}
	switch {
	case len(media.Data) > 0:
		return tgbotapi.FileBytes{Name: name, Bytes: media.Data}, nil
	case media.Path != "":
		return tgbotapi.FilePath(media.Path), nil
	case media.URL != "":
		return tgbotapi.FileURL(media.URL), nil
	case media.FileID != "":
		return tgbotapi.FileID(media.FileID), nil
	}
	return nil, fmt.Errorf("%w: attachment has no data", entity.ErrDeliveryFailure)
}

func mediaConfig(chatID int64, kind mediaKind, file tgbotapi.RequestFileData, caption, parseMode string, req *entity.RenderRequest) tgbotapi.Chattable {
	switch kind {
	case mediaPhoto:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, parseMode
		applyChat(&cfg.BaseChat, req)
		return cfg
	case mediaAudio:
		cfg := tgbotapi.NewAudio(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, parseMode
		applyChat(&cfg.BaseChat, req)
		return cfg
	case mediaVoice:
		cfg := tgbotapi.NewVoice(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, parseMode
		applyChat(&cfg.BaseChat, req)
		return cfg
	case mediaVideo:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, parseMode
		applyChat(&cfg.BaseChat, req)
		return cfg
	case mediaAnimation:
		cfg := tgbotapi.NewAnimation(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, parseMode
		applyChat(&cfg.BaseChat, req)
		return cfg
	default:
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, parseMode
		applyChat(&cfg.BaseChat, req)
		return cfg
	}
}

func applyChat(base *tgbotapi.BaseChat, req *entity.RenderRequest) {
	base.DisableNotification = req.Silent
	setReply(base, replyFor(req))
}

func inputMedia(kind mediaKind, file tgbotapi.RequestFileData, caption string) interface{} {
	switch kind {
	case mediaPhoto:
		m := tgbotapi.NewInputMediaPhoto(file)
		m.Caption, m.ParseMode = caption, parseModeHTML
		return m
	case mediaAudio:
		m := tgbotapi.NewInputMediaAudio(file)
		m.Caption, m.ParseMode = caption, parseModeHTML
		return m
	case mediaVideo:
		m := tgbotapi.NewInputMediaVideo(file)
		m.Caption, m.ParseMode = caption, parseModeHTML
		return m
	case mediaAnimation:
		m := tgbotapi.NewInputMediaAnimation(file)
		m.Caption, m.ParseMode = caption, parseModeHTML
		return m
	default:
		m := tgbotapi.NewInputMediaDocument(file)
		m.Caption, m.ParseMode = caption, parseModeHTML
		return m
	}
}

func isParseError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
