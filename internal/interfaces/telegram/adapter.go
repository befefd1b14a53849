package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
)

// Config Telegram 适配器配置
type Config struct {
	BotToken string
	// Admins 允许操作 bot 的用户 ID, 为空时拒绝所有人
	Admins      []int64
	Debug       bool
	PollTimeout int
}

// BotAPI is the part of *tgbotapi.BotAPI the adapter talks to.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// InboundSink receives master chat events; implemented by usecase.InboundPipeline.
type InboundSink interface {
	Enqueue(ctx context.Context, ev *usecase.InboundEvent) error
	Choose(ctx context.Context, suggestionID string, index int) (*usecase.Suggestion, error)
}

// ChatPicker backs the /link and /chat pickers; implemented by usecase.ChatPicker.
type ChatPicker interface {
	Open(ctx context.Context, master entity.MasterChatUID, purpose usecase.PickPurpose, filter string) (*usecase.Suggestion, error)
	SetPromptMessage(id, messageID string)
	Pick(ctx context.Context, id string, index int) (*usecase.Suggestion, error)
}

// Picker prompts and replies.
const (
	linkPickerText = "Choose a remote chat to link to this chat:"
	chatPickerText = "Choose a remote chat to start a conversation with:"
	noChatsText    = "No remote chat is available. Chats appear here once their channel reports them."
	linkedChatText = "This chat is linked to %s. Send a message to this chat to deliver it to the remote chat."
)

// Adapter Telegram 主平台适配器
type Adapter struct {
	bot      BotAPI
	config   *Config
	admins   map[int64]bool
	renderer *Renderer
	logger   *zap.Logger

	mu       sync.RWMutex
	sink     InboundSink
	commands *CommandRegistry
	picker   ChatPicker

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdapter 创建 Telegram 适配器
func NewAdapter(config *Config, logger *zap.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = config.Debug

	logger.Info("Telegram bot authorized",
		zap.String("username", bot.Self.UserName),
	)
	return NewAdapterWithBot(bot, config, logger), nil
}

// NewAdapterWithBot wraps an existing bot client.
func NewAdapterWithBot(bot BotAPI, config *Config, logger *zap.Logger) *Adapter {
	admins := make(map[int64]bool, len(config.Admins))
	for _, id := range config.Admins {
		admins[id] = true
	}
	if len(admins) == 0 {
		logger.Warn("No Telegram admins configured, every update will be ignored")
	}
	return &Adapter{
		bot:      bot,
		config:   config,
		admins:   admins,
		renderer: NewRenderer(bot, logger),
		logger:   logger.With(zap.String("component", "telegram")),
	}
}

// SetInboundSink 设置入站事件接收方
func (a *Adapter) SetInboundSink(sink InboundSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// SetCommandRegistry 设置命令注册表
func (a *Adapter) SetCommandRegistry(registry *CommandRegistry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = registry
}

// SetChatPicker enables the argument-less /link and the /chat pickers.
func (a *Adapter) SetChatPicker(picker ChatPicker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.picker = picker
}

func (a *Adapter) chatPicker() ChatPicker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.picker
}

// Renderer returns the master renderer backed by this bot.
func (a *Adapter) Renderer() *Renderer {
	return a.renderer
}

// Start 启动适配器 (轮询模式)
// Updates are handled one at a time so relay order matches chat order.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.SetupBotCommands(); err != nil {
		a.logger.Warn("Failed to setup bot commands", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.config.PollTimeout
	if u.Timeout <= 0 {
		u.Timeout = 60
	}
	updates := a.bot.GetUpdatesChan(u)

	innerCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	a.logger.Info("Starting Telegram polling")
	safego.Go(a.logger, "telegram-poll", func() {
		defer close(a.done)
		for {
			select {
			case <-innerCtx.Done():
				a.bot.StopReceivingUpdates()
				a.logger.Info("Telegram polling stopped")
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if err := safego.Call(a.logger, "telegram-update", func() error {
					a.handleUpdate(innerCtx, update)
					return nil
				}); err != nil {
					a.logger.Error("Update dropped", zap.Int("update_id", update.UpdateID), zap.Error(err))
				}
			}
		}
	})
	return nil
}

// Stop stops polling and waits for the update in flight.
func (a *Adapter) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
}

// SetupBotCommands 设置 Bot 命令菜单
func (a *Adapter) SetupBotCommands() error {
	a.mu.RLock()
	registry, picker := a.commands, a.picker
	a.mu.RUnlock()

	commands := []tgbotapi.BotCommand{
		{Command: "rm", Description: "Remove the replied message from the remote chat"},
		{Command: "react", Description: "React to the replied message: /react [<emoji>|-]"},
	}
	if picker != nil {
		commands = append(commands, tgbotapi.BotCommand{Command: "chat", Description: "Start a conversation with a remote chat: /chat [<keyword>]"})
	}
	if registry != nil {
		commands = append(commands, registry.Menu()...)
	}

	if _, err := a.bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	a.logger.Info("Bot commands menu configured", zap.Int("count", len(commands)))
	return nil
}

func (a *Adapter) isAdmin(userID int64) bool {
	return a.admins[userID]
}

// handleUpdate 处理更新
func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		a.handleCallback(ctx, update.CallbackQuery)
		return
	}

	msg, edit := update.Message, false
	if msg == nil && update.EditedMessage != nil {
		msg, edit = update.EditedMessage, true
	}
	if msg == nil || msg.From == nil {
		return
	}

	if !a.isAdmin(msg.From.ID) {
		a.logger.Warn("Unauthorized access",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName),
		)
		return
	}

	if !edit {
		if cmd := ParseCommand(msg.Text); cmd != nil {
			if a.handleCommand(ctx, msg, cmd) {
				return
			}
			a.logger.Debug("Unknown command, relaying as text", zap.String("command", cmd.Name))
		}
	}

	a.enqueue(ctx, a.toEvent(msg, edit))
}

// handleCommand returns false when the command is not a bridge command.
func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message, cmd *Command) bool {
	cmd.ChatID = msg.Chat.ID
	cmd.UserID = msg.From.ID
	cmd.MessageID = msg.MessageID
	if msg.ReplyToMessage != nil {
		cmd.ReplyTo = msg.ReplyToMessage.MessageID
	}

	// /rm 和 /react 依赖之前消息的关联记录, 与普通消息同队列
	switch cmd.Name {
	case "rm", "react":
		ev := &usecase.InboundEvent{
			Kind:       usecase.EventRemove,
			MasterChat: masterChatUID(msg.Chat.ID),
			MessageID:  strconv.Itoa(msg.MessageID),
			ReceivedAt: time.Now(),
		}
		if cmd.Name == "react" {
			ev.Kind = usecase.EventReact
			ev.Reaction = cmd.RawArgs
		}
		if cmd.ReplyTo != 0 {
			ev.ReplyTo = strconv.Itoa(cmd.ReplyTo)
		}
		a.enqueue(ctx, ev)
		return true
	case "chat", "link":
		picker := a.chatPicker()
		if picker != nil && (cmd.Name == "chat" || len(cmd.Args) == 0) {
			a.openPicker(ctx, picker, msg, cmd)
			return true
		}
	}

	a.mu.RLock()
	registry := a.commands
	a.mu.RUnlock()
	if registry == nil {
		return false
	}

	reply, handled, err := registry.Handle(ctx, cmd)
	if !handled {
		return false
	}
	if err != nil {
		a.logger.Error("Failed to handle command", zap.String("command", cmd.Name), zap.Error(err))
		reply = "Error: " + err.Error()
	}
	if reply != "" {
		a.replyCommand(ctx, msg, cmd, reply)
	}
	return true
}

func (a *Adapter) replyCommand(ctx context.Context, msg *tgbotapi.Message, cmd *Command, text string) {
	if err := a.Notify(ctx, masterChatUID(msg.Chat.ID), strconv.Itoa(msg.MessageID), text); err != nil {
		a.logger.Warn("Command reply failed", zap.String("command", cmd.Name), zap.Error(err))
	}
}

// openPicker sends the chat keyboard of /link or /chat.
func (a *Adapter) openPicker(ctx context.Context, picker ChatPicker, msg *tgbotapi.Message, cmd *Command) {
	purpose, text := usecase.PickLink, linkPickerText
	if cmd.Name == "chat" {
		purpose, text = usecase.PickChatHead, chatPickerText
	}

	sug, err := picker.Open(ctx, masterChatUID(msg.Chat.ID), purpose, cmd.RawArgs)
	var linked *usecase.LinkedChatError
	switch {
	case errors.As(err, &linked):
		a.replyCommand(ctx, msg, cmd, fmt.Sprintf(linkedChatText, linked.Label))
		return
	case errors.Is(err, usecase.ErrNoChats):
		a.replyCommand(ctx, msg, cmd, noChatsText)
		return
	case err != nil:
		a.logger.Error("Failed to open chat picker", zap.String("command", cmd.Name), zap.Error(err))
		a.replyCommand(ctx, msg, cmd, "Error: "+err.Error())
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	out.AllowSendingWithoutReply = true
	out.ReplyMarkup = BuildPickerKeyboard(sug)
	sent, err := a.bot.Send(out)
	if err != nil {
		a.logger.Warn("Failed to send chat picker", zap.String("command", cmd.Name), zap.Error(err))
		return
	}
	picker.SetPromptMessage(sug.ID, strconv.Itoa(sent.MessageID))
}

func (a *Adapter) enqueue(ctx context.Context, ev *usecase.InboundEvent) {
	a.mu.RLock()
	sink := a.sink
	a.mu.RUnlock()
	if sink == nil {
		a.logger.Error("Inbound sink not set, event dropped", zap.String("master_msg_id", string(ev.UID())))
		return
	}
	// 失败提示由管线发出
	if err := sink.Enqueue(ctx, ev); err != nil {
		a.logger.Debug("Event not queued", zap.String("master_msg_id", string(ev.UID())), zap.Error(err))
	}
}

func (a *Adapter) toEvent(msg *tgbotapi.Message, edit bool) *usecase.InboundEvent {
	ev := &usecase.InboundEvent{
		Kind:       usecase.EventMessage,
		MasterChat: masterChatUID(msg.Chat.ID),
		MessageID:  strconv.Itoa(msg.MessageID),
		Edit:       edit,
		Message:    ConvertMessage(msg, a.fileURL),
		ReceivedAt: time.Now(),
	}
	if msg.ReplyToMessage != nil {
		ev.ReplyTo = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}
	return ev
}

func (a *Adapter) fileURL(fileID string) string {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		a.logger.Warn("Failed to resolve file URL", zap.String("file_id", fileID), zap.Error(err))
		return ""
	}
	return url
}

// handleCallback 处理内联按钮回调
func (a *Adapter) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil || !a.isAdmin(callback.From.ID) {
		a.answer(callback.ID, "Unauthorized")
		return
	}
	if callback.Data == callbackVoid {
		a.answer(callback.ID, "")
		return
	}

	if id, index, ok := parsePickerCallback(callback.Data); ok {
		a.handlePick(ctx, callback, id, index)
		return
	}

	id, index, ok := parseSuggestionCallback(callback.Data)
	if !ok {
		a.answer(callback.ID, "Unknown action")
		return
	}

	a.mu.RLock()
	sink := a.sink
	a.mu.RUnlock()
	if sink == nil {
		a.answer(callback.ID, "Bridge is not ready")
		return
	}

	sug, err := sink.Choose(ctx, id, index)
	var result string
	switch {
	case errors.Is(err, entity.ErrUnknownCorrelation):
		a.answer(callback.ID, "Prompt expired")
		result = "This prompt has expired. Please send the message again."
	case err != nil:
		a.logger.Warn("Recipient choice failed", zap.String("suggestion", id), zap.Error(err))
		a.answer(callback.ID, "Failed")
		result = "Failed to send message.\n\n" + err.Error()
	case index < 0:
		a.answer(callback.ID, "Cancelled")
		result = "Message is not sent."
	default:
		a.answer(callback.ID, "")
		result = "Sending to " + sug.Candidates[index].Label + "."
	}

	a.updatePrompt(callback, result)
}

// handlePick answers a /link or /chat picker button.
func (a *Adapter) handlePick(ctx context.Context, callback *tgbotapi.CallbackQuery, id string, index int) {
	picker := a.chatPicker()
	if picker == nil {
		a.answer(callback.ID, "Bridge is not ready")
		return
	}
	// 会话头以选择器消息本身作为关联键
	if callback.Message != nil {
		picker.SetPromptMessage(id, strconv.Itoa(callback.Message.MessageID))
	}

	sug, err := picker.Pick(ctx, id, index)
	var result string
	switch {
	case errors.Is(err, entity.ErrUnknownCorrelation):
		a.answer(callback.ID, "Prompt expired")
		result = "This prompt has expired. Please run the command again."
	case err != nil:
		a.logger.Warn("Chat pick failed", zap.String("picker", id), zap.Error(err))
		a.answer(callback.ID, "Failed")
		result = "Error: " + err.Error()
	case index < 0:
		a.answer(callback.ID, "Cancelled")
		result = "Cancelled."
	case sug.Purpose == usecase.PickChatHead:
		a.answer(callback.ID, "")
		result = usecase.ChatHeadText(sug.Candidates[index].Label)
	default:
		a.answer(callback.ID, "")
		result = "Linked to " + sug.Candidates[index].Label + "."
	}
	a.updatePrompt(callback, result)
}

// updatePrompt 替换提示并移除键盘
func (a *Adapter) updatePrompt(callback *tgbotapi.CallbackQuery, text string) {
	if callback.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID, text)
	if _, err := a.bot.Request(edit); err != nil && !isNotModified(err) {
		a.logger.Debug("Failed to update prompt", zap.Error(err))
	}
}

func (a *Adapter) answer(callbackID, text string) {
	if _, err := a.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		a.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

// Notify 发送提示消息
func (a *Adapter) Notify(ctx context.Context, chat entity.MasterChatUID, replyTo string, text string) error {
	chatID, err := parseChatID(chat)
	if err != nil {
		return fmt.Errorf("invalid master chat %q: %w", chat, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if id, err := strconv.Atoi(replyTo); err == nil && id > 0 {
		msg.ReplyToMessageID = id
		msg.AllowSendingWithoutReply = true
	}
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("send notice to %s: %w", chat, err)
	}
	return nil
}

// DeleteMessage 删除主会话消息
func (a *Adapter) DeleteMessage(ctx context.Context, chat entity.MasterChatUID, messageID string) error {
	chatID, err := parseChatID(chat)
	if err != nil {
		return fmt.Errorf("invalid master chat %q: %w", chat, err)
	}
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid master message id %q: %w", messageID, err)
	}
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
		return fmt.Errorf("delete %s.%s: %w", chat, messageID, err)
	}
	return nil
}

// PromptRecipient asks the operator to pick a recipient for an unroutable message.
func (a *Adapter) PromptRecipient(ctx context.Context, sug *usecase.Suggestion) (string, error) {
	chatID, err := parseChatID(sug.Event.MasterChat)
	if err != nil {
		return "", fmt.Errorf("invalid master chat %q: %w", sug.Event.MasterChat, err)
	}
	msg := tgbotapi.NewMessage(chatID, usecase.RecipientPromptText)
	if id, err := strconv.Atoi(sug.Event.MessageID); err == nil {
		msg.ReplyToMessageID = id
		msg.AllowSendingWithoutReply = true
	}
	msg.ReplyMarkup = BuildRecipientKeyboard(sug)

	sent, err := a.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("send recipient prompt: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}
