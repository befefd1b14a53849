package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

func newTestRenderer() (*Renderer, *fakeBot) {
	bot := newFakeBot()
	return NewRenderer(bot, testLogger()), bot
}

func TestRenderer_TextWithHeader(t *testing.T) {
	r, bot := newTestRenderer()
	req := &entity.RenderRequest{
		Destination: "100",
		Header:      "🟢 👤 Alice:",
		Text:        "a<b",
		ReplyTo:     "7",
		Silent:      true,
	}

	handle, err := r.RenderText(context.Background(), req)
	if err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	if handle.Chat != "100" || handle.MessageID != "101" {
		t.Errorf("unexpected handle %+v", handle)
	}

	sent := bot.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	msg := sent[0].(tgbotapi.MessageConfig)
	if msg.Text != "🟢 👤 Alice:\na&lt;b" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.ParseMode != parseModeHTML {
		t.Errorf("parse mode = %q", msg.ParseMode)
	}
	if msg.ReplyToMessageID != 7 || !msg.DisableNotification {
		t.Errorf("reply/silent not applied: %+v", msg.BaseChat)
	}
}

func TestRenderer_Markdown(t *testing.T) {
	r, bot := newTestRenderer()
	_, err := r.RenderText(context.Background(), &entity.RenderRequest{
		Destination: "100",
		Text:        "**x**",
		Format:      entity.FormatMarkdown,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := bot.Sent()[0].(tgbotapi.MessageConfig).Text; got != "<b>x</b>" {
		t.Errorf("text = %q", got)
	}
}

func TestRenderer_LongTextIsSplit(t *testing.T) {
	r, bot := newTestRenderer()
	handle, err := r.RenderText(context.Background(), &entity.RenderRequest{
		Destination: "100",
		Header:      "Bob:",
		Footer:      "[👍×1]",
		Text:        strings.Repeat("word ", 1000),
	})
	if err != nil {
		t.Fatal(err)
	}
	sent := bot.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	first := sent[0].(tgbotapi.MessageConfig).Text
	last := sent[1].(tgbotapi.MessageConfig).Text
	if !strings.HasPrefix(first, "Bob:\n") || strings.HasPrefix(last, "Bob:") {
		t.Error("header must only head the first part")
	}
	if !strings.HasSuffix(last, "[👍×1]") || strings.HasSuffix(first, "[👍×1]") {
		t.Error("footer must only end the last part")
	}
	if handle.MessageID != "101" {
		t.Errorf("handle should point at the first part, got %s", handle.MessageID)
	}
}

func TestRenderer_PlainFallback(t *testing.T) {
	r, bot := newTestRenderer()
	bot.sendErr = func(c tgbotapi.Chattable) error {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ParseMode == parseModeHTML {
			return errParse
		}
		return nil
	}

	_, err := r.RenderText(context.Background(), &entity.RenderRequest{
		Destination: "100",
		Text:        "**x**",
		Format:      entity.FormatMarkdown,
	})
	if err != nil {
		t.Fatal(err)
	}
	msg := bot.Sent()[0].(tgbotapi.MessageConfig)
	if msg.ParseMode != "" || msg.Text != "**x**" {
		t.Errorf("expected plain retry, got %q (%q)", msg.Text, msg.ParseMode)
	}
}

func TestRenderer_EditText(t *testing.T) {
	r, bot := newTestRenderer()
	bot.requestErr = func(c tgbotapi.Chattable) error {
		return errors.New("Bad Request: message is not modified")
	}
	target := &entity.MasterHandle{Chat: "100", MessageID: "55"}

	handle, err := r.RenderText(context.Background(), &entity.RenderRequest{
		Destination: "100",
		Text:        "same",
		EditTarget:  target,
	})
	if err != nil {
		t.Fatalf("not modified must be ignored: %v", err)
	}
	if *handle != *target {
		t.Errorf("edit should keep the handle, got %+v", handle)
	}
	if len(bot.Sent()) != 0 {
		t.Error("edit must not send a new message")
	}
}

func TestRenderer_ImageByURL(t *testing.T) {
	r, bot := newTestRenderer()
	_, err := r.RenderImage(context.Background(), &entity.RenderRequest{
		Destination: "100",
		Header:      "Bob:",
		Text:        "look",
	}, &entity.Attachment{URL: "https://x.example/y.jpg", MIME: "image/jpeg"})
	if err != nil {
		t.Fatal(err)
	}
	photo, ok := bot.Sent()[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("expected photo, got %T", bot.Sent()[0])
	}
	if photo.File != tgbotapi.FileURL("https://x.example/y.jpg") {
		t.Errorf("file = %v", photo.File)
	}
	if photo.Caption != "Bob:\nlook" {
		t.Errorf("caption = %q", photo.Caption)
	}
}

func TestRenderer_MediaEdit(t *testing.T) {
	target := &entity.MasterHandle{Chat: "100", MessageID: "55"}
	media := &entity.Attachment{FileID: "f2", MIME: "image/png"}

	t.Run("caption only", func(t *testing.T) {
		r, bot := newTestRenderer()
		_, err := r.RenderImage(context.Background(), &entity.RenderRequest{Destination: "100", Text: "new", EditTarget: target}, media)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := bot.Requests()[0].(tgbotapi.EditMessageCaptionConfig); !ok {
			t.Errorf("expected caption edit, got %T", bot.Requests()[0])
		}
	})

	t.Run("replace file", func(t *testing.T) {
		r, bot := newTestRenderer()
		_, err := r.RenderImage(context.Background(), &entity.RenderRequest{Destination: "100", Text: "new", EditTarget: target, EditMedia: true}, media)
		if err != nil {
			t.Fatal(err)
		}
		edit, ok := bot.Requests()[0].(tgbotapi.EditMessageMediaConfig)
		if !ok {
			t.Fatalf("expected media edit, got %T", bot.Requests()[0])
		}
		if edit.MessageID != 55 {
			t.Errorf("message id = %d", edit.MessageID)
		}
	})
}

func TestRenderer_StickerHeaderButton(t *testing.T) {
	r, bot := newTestRenderer()
	_, err := r.RenderSticker(context.Background(), &entity.RenderRequest{
		Destination: "100",
		Header:      "Bob:",
	}, &entity.Attachment{FileID: "st1"})
	if err != nil {
		t.Fatal(err)
	}
	sticker := bot.Sent()[0].(tgbotapi.StickerConfig)
	markup, ok := sticker.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline markup, got %T", sticker.ReplyMarkup)
	}
	btn := markup.InlineKeyboard[0][0]
	if btn.Text != "Bob:" || btn.CallbackData == nil || *btn.CallbackData != callbackVoid {
		t.Errorf("unexpected button %+v", btn)
	}
}

func TestRenderer_LocationEditSendsNew(t *testing.T) {
	r, bot := newTestRenderer()
	handle, err := r.RenderLocation(context.Background(), &entity.RenderRequest{
		Destination: "100",
		EditTarget:  &entity.MasterHandle{Chat: "100", MessageID: "55"},
	}, &entity.LocationBody{Latitude: 1.5, Longitude: 2.5})
	if err != nil {
		t.Fatal(err)
	}
	venue := bot.Sent()[0].(tgbotapi.VenueConfig)
	if venue.ReplyToMessageID != 55 {
		t.Errorf("new venue should reply to the old one, got %d", venue.ReplyToMessageID)
	}
	if venue.Title != "Location" || venue.Address != "1.50000, 2.50000" {
		t.Errorf("unexpected venue %q / %q", venue.Title, venue.Address)
	}
	if handle.MessageID != "101" {
		t.Errorf("expected a new handle, got %s", handle.MessageID)
	}
}

func TestRenderer_AttachmentWithoutSource(t *testing.T) {
	r, _ := newTestRenderer()
	_, err := r.RenderFile(context.Background(), &entity.RenderRequest{Destination: "100"}, &entity.Attachment{})
	if !errors.Is(err, entity.ErrDeliveryFailure) {
		t.Errorf("expected delivery failure, got %v", err)
	}
}

func TestRenderer_InvalidDestination(t *testing.T) {
	r, _ := newTestRenderer()
	if _, err := r.RenderText(context.Background(), &entity.RenderRequest{Destination: "abc", Text: "x"}); err == nil {
		t.Error("expected error for non-numeric chat")
	}
}
