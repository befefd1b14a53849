package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
)

// Notices posted back into master chats.
const (
	noticeNoRecipient       = "Error: No recipient specified.\nPlease reply to a previous message."
	noticeEditNotFound      = "Message is not found in database. Please try with another one."
	noticeRemoveNeedsReply  = "Reply /rm to a message to remove it from its remote chat."
	noticeRemoveNotFound    = "This message is not found in database. You cannot remove it from its remote chat."
	noticeRemoveFailed      = "Failed to remove this message from remote chat.\n\n%v"
	noticeRemovedRemote     = "Message is removed in remote chat."
	noticeSendFailed        = "Failed to send message to remote chat.\n\n%v"
	noticeSlaveNotFound     = "Internal error: Slave channel “%s” not found."
	noticeQuickReply        = "This message is sent to “%s” with quick reply feature."
	noticeWorkerUnavailable = "Message could not be processed because the relay worker is not running. Please retry later."
	noticeProcessFailed     = "Failed to process this message.\n\n%v"
	noticeReactNeedsReply   = "Reply /react to a message to react to it in its remote chat.\nUse /react - to withdraw your reaction."
	noticeReactNotFound     = "The message you replied to is not recorded in the database. You cannot react to this message."
	noticeReactFailed       = "Failed to react to this message.\n\n%v"
	noticeNoReactions       = "This message has no reactions yet. Reply /react <emoji> to this message to react to it."
)

// ReactionWithdraw is the /react argument that removes the own reaction.
const ReactionWithdraw = "-"

// RecipientPromptText heads the disambiguation prompt.
const RecipientPromptText = "Error: No recipient specified.\nPlease reply to a previous message, or choose a recipient:"

// EventKind 主平台事件类型
type EventKind string

const (
	EventMessage EventKind = "message"
	// EventRemove is the /rm command; ReplyTo names the message to remove.
	EventRemove EventKind = "remove"
	// EventReact is the /react command; Reaction is its argument.
	EventReact EventKind = "react"
)

// InboundEvent is one update from the master chat waiting to be relayed.
type InboundEvent struct {
	Kind       EventKind
	MasterChat entity.MasterChatUID
	MessageID  string
	ReplyTo    string
	Edit       bool
	Message    *entity.Message
	// Forced is the recipient picked from a disambiguation prompt.
	Forced     entity.SlaveChatUID
	Reaction   string
	ReceivedAt time.Time
}

// UID 主平台消息关联键
func (e *InboundEvent) UID() entity.MasterMessageUID {
	return entity.NewMasterMessageUID(e.MasterChat, e.MessageID)
}

// ReplyUID returns the correlation key of the replied message, or "".
func (e *InboundEvent) ReplyUID() entity.MasterMessageUID {
	if e.ReplyTo == "" {
		return ""
	}
	return entity.NewMasterMessageUID(e.MasterChat, e.ReplyTo)
}

// RelayHook observes finished relays (metrics, event journal).
type RelayHook interface {
	OnRelayed(direction entity.Direction, kind entity.MessageKind, elapsed time.Duration)
	OnRelayFailed(direction entity.Direction, err error)
}

// RelayHooks fans one relay outcome out to several hooks in order.
type RelayHooks []RelayHook

func (hs RelayHooks) OnRelayed(direction entity.Direction, kind entity.MessageKind, elapsed time.Duration) {
	for _, h := range hs {
		h.OnRelayed(direction, kind, elapsed)
	}
}

func (hs RelayHooks) OnRelayFailed(direction entity.Direction, err error) {
	for _, h := range hs {
		h.OnRelayFailed(direction, err)
	}
}

// PipelineDeps are the collaborators shared by both relay directions.
type PipelineDeps struct {
	Resolver  *service.Resolver
	Slaves    *SlaveRegistry
	Log       repository.MessageLogRepository
	LogWriter MessageLogWriter
	ChatInfos repository.ChatInfoRepository
	Flags     config.RelaySource
	Notifier  MasterNotifier
	Hook      RelayHook
	Logger    *zap.Logger
}

// noticeError carries the text shown to the operator alongside the cause.
type noticeError struct {
	notice string
	err    error
}

func (e *noticeError) Error() string { return e.err.Error() }
func (e *noticeError) Unwrap() error { return e.err }

func withNotice(notice string, err error) error {
	return &noticeError{notice: notice, err: err}
}

// InboundPipeline relays master messages to slave channels on a single
// worker, so messages of one master chat keep their order.
type InboundPipeline struct {
	deps        PipelineDeps
	prompter    RecipientPrompter
	suggestions *SuggestionStore
	timeout     time.Duration
	now         func() time.Time
	logger      *zap.Logger

	events chan *InboundEvent
	mu     sync.RWMutex
	closed bool
	alive  atomic.Bool
	done   chan struct{}
}

// NewInboundPipeline 创建主 → 从中继管线
func NewInboundPipeline(deps PipelineDeps, suggestions *SuggestionStore, queueSize int) *InboundPipeline {
	if queueSize <= 0 {
		queueSize = 256
	}
	if suggestions == nil {
		suggestions = NewSuggestionStore(0, 0)
	}
	return &InboundPipeline{
		deps:        deps,
		suggestions: suggestions,
		timeout:     60 * time.Second,
		now:         time.Now,
		logger:      deps.Logger.With(zap.String("component", "inbound")),
		events:      make(chan *InboundEvent, queueSize),
		done:        make(chan struct{}),
	}
}

// SetPrompter 注入消息选择提示器 (主平台适配器创建后设置)
func (p *InboundPipeline) SetPrompter(prompter RecipientPrompter) {
	p.prompter = prompter
}

// Start 启动工作协程
func (p *InboundPipeline) Start() {
	if !p.alive.CompareAndSwap(false, true) {
		return
	}
	safego.Go(p.logger, "inbound-worker", p.run)
	p.logger.Info("Inbound pipeline started", zap.Int("queue_size", cap(p.events)))
}

// Alive reports whether the worker is consuming events.
func (p *InboundPipeline) Alive() bool {
	return p.alive.Load()
}

// Pending 队列中等待处理的事件数
func (p *InboundPipeline) Pending() int {
	return len(p.events)
}

// Enqueue hands an event to the worker. When the worker is not running the
// operator is told right away and ErrWorkerUnavailable is returned.
func (p *InboundPipeline) Enqueue(ctx context.Context, ev *InboundEvent) error {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = p.now()
	}

	p.mu.RLock()
	if p.closed || !p.alive.Load() {
		p.mu.RUnlock()
		p.logger.Error("Inbound worker unavailable, message dropped",
			zap.String("master_msg_id", string(ev.UID())),
		)
		p.notify(ctx, ev.MasterChat, ev.MessageID, noticeWorkerUnavailable)
		return entity.ErrWorkerUnavailable
	}
	defer p.mu.RUnlock()

	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting events and waits for the queued ones to be processed.
func (p *InboundPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	started := p.alive.Load()
	p.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-p.done:
		p.logger.Info("Inbound pipeline stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("inbound pipeline stop: %w", ctx.Err())
	}
}

// Choose answers a disambiguation prompt. index < 0 cancels it.
// The chosen event is queued again with the picked recipient.
func (p *InboundPipeline) Choose(ctx context.Context, suggestionID string, index int) (*Suggestion, error) {
	sug, ok := p.suggestions.Take(suggestionID)
	if !ok {
		return nil, fmt.Errorf("%w: prompt %s expired", entity.ErrUnknownCorrelation, suggestionID)
	}
	if index < 0 {
		return sug, nil
	}
	if index >= len(sug.Candidates) {
		return nil, fmt.Errorf("prompt %s has no choice %d", suggestionID, index)
	}

	ev := *sug.Event
	ev.Forced = sug.Candidates[index].UID
	return sug, p.Enqueue(ctx, &ev)
}

func (p *InboundPipeline) run() {
	defer close(p.done)
	defer p.alive.Store(false)

	for ev := range p.events {
		p.handle(ev)
	}
}

func (p *InboundPipeline) handle(ev *InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	// 编辑, 删除和回复都依赖之前消息的关联记录
	flushLog(ctx, p.deps.LogWriter, p.logger)

	sm := service.NewStateMachine(ev.UID(), p.logger)
	err := safego.Call(p.logger, "inbound-relay", func() error {
		switch ev.Kind {
		case EventRemove:
			return p.remove(ctx, ev, sm)
		case EventReact:
			return p.react(ctx, ev, sm)
		}
		return p.relay(ctx, ev, sm)
	})
	if err == nil {
		return
	}

	sm.Reject(err)
	if p.deps.Hook != nil {
		p.deps.Hook.OnRelayFailed(entity.DirectionToSlave, err)
	}
	p.report(ctx, ev, err)
}

// relay resolves, delivers and logs one master message.
func (p *InboundPipeline) relay(ctx context.Context, ev *InboundEvent, sm *service.StateMachine) error {
	if ev.Message == nil {
		return fmt.Errorf("event %s carries no message", ev.UID())
	}

	flags := p.deps.Flags.Relay()
	if ev.Edit && flags.DeleteFlag != "" && strings.HasPrefix(ev.Message.Text, flags.DeleteFlag) {
		return p.removeEdited(ctx, ev, sm)
	}

	res, err := p.deps.Resolver.ResolveInbound(ctx, service.InboundRequest{
		MasterChat: ev.MasterChat,
		MessageUID: ev.UID(),
		IsEdit:     ev.Edit,
		ReplyTo:    ev.ReplyUID(),
		Forced:     ev.Forced,
	})
	if err != nil {
		if errors.Is(err, entity.ErrUnknownCorrelation) {
			return withNotice(noticeEditNotFound, err)
		}
		return err
	}
	if err := sm.Resolve(res.Destination); err != nil {
		return err
	}

	ch, err := p.deps.Slaves.ForChat(res.Destination)
	if err != nil {
		return withNotice(fmt.Sprintf(noticeSlaveNotFound, res.Destination.ChannelID()), err)
	}

	msg := p.buildMessage(ctx, ev, res, ch)
	if !ch.SupportsKind(msg.Kind()) {
		typeName := string(msg.Kind())
		if b, ok := msg.Content().(entity.UnsupportedBody); ok && b.TypeName != "" {
			typeName = b.TypeName
		}
		return &entity.UnsupportedTypeError{TypeName: typeName, Channel: ch.ChannelName()}
	}
	if err := sm.Transition(service.StateTyped); err != nil {
		return err
	}

	slaveID, sendErr := ch.SendMessage(ctx, msg)
	if sendErr != nil {
		if !ev.Edit {
			p.deps.LogWriter.PutAsync(p.record(ev, msg, res.Destination, entity.NewPendingID(p.now())), false)
		}
		return &entity.DeliveryError{Channel: ch.ChannelID(), Err: sendErr}
	}
	if err := sm.Transition(service.StateRendered); err != nil {
		return err
	}

	if slaveID == "" && res.Edited != nil {
		slaveID = res.Edited.SlaveMessageID
	}
	msg.UID = slaveID
	p.deps.LogWriter.PutAsync(p.record(ev, msg, res.Destination, slaveID), ev.Edit)
	if err := sm.Transition(service.StateLogged); err != nil {
		return err
	}

	if p.deps.Hook != nil {
		p.deps.Hook.OnRelayed(entity.DirectionToSlave, msg.Kind(), p.now().Sub(ev.ReceivedAt))
	}
	if res.Warn {
		p.notify(ctx, ev.MasterChat, ev.MessageID, fmt.Sprintf(noticeQuickReply, p.label(ctx, res.Destination)))
	}
	return nil
}

// buildMessage addresses a copy of the master message to its slave chat.
func (p *InboundPipeline) buildMessage(ctx context.Context, ev *InboundEvent, res *service.InboundResolution, ch SlaveChannel) *entity.Message {
	msg := *ev.Message
	msg.Chat = p.slaveChat(ctx, res.Destination, ch)
	msg.Author.IsSelf = true
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = ev.ReceivedAt
	}

	if res.Edited != nil {
		msg.Edit = true
		msg.UID = res.Edited.SlaveMessageID
		if att := msg.Attachment(); att != nil && fileKey(att) != res.Edited.FileID {
			msg.EditMedia = true
		}
	}

	if res.Quote != nil {
		msg.Target = quotedMessage(res.Quote, msg.Chat)
	}
	return &msg
}

func (p *InboundPipeline) slaveChat(ctx context.Context, uid entity.SlaveChatUID, ch SlaveChannel) entity.Chat {
	chat := entity.Chat{
		ChannelID:    ch.ChannelID(),
		ChannelName:  ch.ChannelName(),
		ChannelEmoji: ch.ChannelEmoji(),
		UID:          uid.ChatID(),
		Type:         entity.ChatTypeUnknown,
	}
	info, err := p.deps.ChatInfos.Get(ctx, chat.ChannelID, chat.UID)
	if err != nil {
		p.logger.Warn("Chat info lookup failed", zap.String("slave_chat", string(uid)), zap.Error(err))
		return chat
	}
	return info.Apply(chat)
}

// quotedMessage rebuilds the quoted slave message from its record.
func quotedMessage(record *entity.MessageRecord, chat entity.Chat) *entity.Message {
	if target, err := entity.DecodeSnapshot(record.Snapshot); err == nil {
		return target.Shallow()
	}
	return &entity.Message{
		UID:  record.SlaveMessageID,
		Chat: chat,
		Text: record.Text,
		Author: entity.Author{
			UID:  record.SlaveMemberUID,
			Name: record.SlaveMemberDisplayName,
		},
	}
}

func (p *InboundPipeline) record(ev *InboundEvent, msg *entity.Message, dest entity.SlaveChatUID, slaveID string) *entity.MessageRecord {
	rec := &entity.MessageRecord{
		MasterMsgID:            ev.UID(),
		SlaveMessageID:         slaveID,
		SlaveOriginUID:         dest,
		SlaveOriginDisplayName: msg.Chat.DisplayName(),
		SlaveMemberUID:         msg.Author.UID,
		SlaveMemberDisplayName: msg.Author.DisplayName(),
		MessageType:            msg.Kind(),
		Direction:              entity.DirectionToSlave,
		Text:                   msg.LogText(),
		CreatedAt:              p.now(),
	}
	fillMedia(rec, msg)

	snapshot, err := entity.EncodeSnapshot(msg)
	if err != nil {
		p.logger.Warn("Snapshot encode failed", zap.String("master_msg_id", string(rec.MasterMsgID)), zap.Error(err))
	} else {
		rec.Snapshot = snapshot
	}
	return rec
}

// remove handles /rm: the replied message is withdrawn from its slave chat.
func (p *InboundPipeline) remove(ctx context.Context, ev *InboundEvent, sm *service.StateMachine) error {
	if ev.ReplyTo == "" {
		return withNotice(noticeRemoveNeedsReply, errors.New("remove command without reply"))
	}
	record, err := p.deps.Log.GetByMaster(ctx, ev.ReplyUID())
	if err != nil {
		return err
	}
	if record == nil || record.IsPending() || record.IsChatHead() {
		return withNotice(noticeRemoveNotFound, fmt.Errorf("%w: %s", entity.ErrUnknownCorrelation, ev.ReplyUID()))
	}
	return p.removeRecord(ctx, sm, record, ev.MasterChat, ev.ReplyTo)
}

// removeEdited handles a master edit that starts with the delete flag.
func (p *InboundPipeline) removeEdited(ctx context.Context, ev *InboundEvent, sm *service.StateMachine) error {
	record, err := p.deps.Log.GetByMaster(ctx, ev.UID())
	if err != nil {
		return err
	}
	if record == nil || record.IsPending() {
		return withNotice(noticeEditNotFound, fmt.Errorf("%w: %s", entity.ErrUnknownCorrelation, ev.UID()))
	}
	return p.removeRecord(ctx, sm, record, ev.MasterChat, ev.MessageID)
}

func (p *InboundPipeline) removeRecord(ctx context.Context, sm *service.StateMachine, record *entity.MessageRecord, chat entity.MasterChatUID, masterMessageID string) error {
	if err := sm.Resolve(record.SlaveOriginUID); err != nil {
		return err
	}
	ch, err := p.deps.Slaves.ForChat(record.SlaveOriginUID)
	if err != nil {
		return withNotice(fmt.Sprintf(noticeSlaveNotFound, record.SlaveOriginUID.ChannelID()), err)
	}

	msg, err := entity.DecodeSnapshot(record.Snapshot)
	if err != nil {
		p.logger.Debug("Snapshot unusable, removing by id",
			zap.String("master_msg_id", string(record.MasterMsgID)),
			zap.Error(err),
		)
		msg = &entity.Message{Chat: p.slaveChat(ctx, record.SlaveOriginUID, ch)}
	}
	msg.UID = record.SlaveMessageID
	if err := sm.Transition(service.StateTyped); err != nil {
		return err
	}

	if err := ch.SendStatus(ctx, entity.MessageRemoval{Message: msg}); err != nil {
		derr := &entity.DeliveryError{Channel: ch.ChannelID(), Err: err}
		return withNotice(fmt.Sprintf(noticeRemoveFailed, err), derr)
	}
	if err := sm.Transition(service.StateRendered); err != nil {
		return err
	}

	if p.deps.Flags.Relay().PreventMessageRemoval {
		p.notify(ctx, chat, masterMessageID, noticeRemovedRemote)
	} else if err := p.deps.Notifier.DeleteMessage(ctx, chat, masterMessageID); err != nil {
		p.logger.Debug("Master message delete failed", zap.String("master_msg_id", masterMessageID), zap.Error(err))
		p.notify(ctx, chat, masterMessageID, noticeRemovedRemote)
	}

	p.deps.LogWriter.DeleteByMasterAsync(record.MasterMsgID)
	return sm.Transition(service.StateLogged)
}

// react handles /react on a replied message. Without an emoji the current
// reactions are listed.
func (p *InboundPipeline) react(ctx context.Context, ev *InboundEvent, sm *service.StateMachine) error {
	if ev.ReplyTo == "" {
		return withNotice(noticeReactNeedsReply, errors.New("react command without reply"))
	}
	record, err := p.deps.Log.GetByMaster(ctx, ev.ReplyUID())
	if err != nil {
		return err
	}
	if record == nil || record.IsPending() || record.IsChatHead() {
		return withNotice(noticeReactNotFound, fmt.Errorf("%w: %s", entity.ErrUnknownCorrelation, ev.ReplyUID()))
	}

	if ev.Reaction == "" {
		var reactions entity.Reactions
		if msg, err := entity.DecodeSnapshot(record.Snapshot); err == nil {
			reactions = msg.Reactions
		}
		p.notify(ctx, ev.MasterChat, ev.ReplyTo, describeReactions(reactions))
		return nil
	}

	if err := sm.Resolve(record.SlaveOriginUID); err != nil {
		return err
	}
	ch, err := p.deps.Slaves.ForChat(record.SlaveOriginUID)
	if err != nil {
		return withNotice(fmt.Sprintf(noticeSlaveNotFound, record.SlaveOriginUID.ChannelID()), err)
	}
	if err := sm.Transition(service.StateTyped); err != nil {
		return err
	}

	reaction := ev.Reaction
	if reaction == ReactionWithdraw {
		reaction = ""
	}
	status := entity.ReactToMessage{
		Chat:      p.slaveChat(ctx, record.SlaveOriginUID, ch),
		MessageID: record.SlaveMessageID,
		Reaction:  reaction,
	}
	if err := ch.SendStatus(ctx, status); err != nil {
		derr := &entity.DeliveryError{Channel: ch.ChannelID(), Err: err}
		return withNotice(fmt.Sprintf(noticeReactFailed, err), derr)
	}
	if err := sm.Transition(service.StateRendered); err != nil {
		return err
	}
	p.logger.Debug("Reaction sent",
		zap.String("master_msg_id", string(record.MasterMsgID)),
		zap.String("reaction", reaction),
	)
	// 回应结果由从通道的 reactions 状态带回
	return sm.Transition(service.StateLogged)
}

// describeReactions 列出每种表情及其用户
func describeReactions(reactions entity.Reactions) string {
	var sb strings.Builder
	for _, r := range reactions {
		if len(r.Users) == 0 {
			continue
		}
		names := make([]string, len(r.Users))
		for i, u := range r.Users {
			names[i] = u.DisplayName()
		}
		if sb.Len() == 0 {
			sb.WriteString("Reactions:")
		}
		sb.WriteString("\n" + r.Emoji + ": " + strings.Join(names, ", "))
	}
	if sb.Len() == 0 {
		return noticeNoReactions
	}
	return sb.String()
}

// report tells the operator why a message was not relayed.
func (p *InboundPipeline) report(ctx context.Context, ev *InboundEvent, err error) {
	var amb *entity.AmbiguousDestinationError
	if errors.As(err, &amb) {
		if len(amb.Candidates) > 0 && p.prompter != nil && p.prompt(ctx, ev, amb.Candidates) {
			return
		}
		p.notify(ctx, ev.MasterChat, ev.MessageID, noticeNoRecipient)
		return
	}

	var ne *noticeError
	var ute *entity.UnsupportedTypeError
	var de *entity.DeliveryError
	switch {
	case errors.As(err, &ne):
		p.notify(ctx, ev.MasterChat, ev.MessageID, ne.notice)
	case errors.As(err, &ute):
		p.notify(ctx, ev.MasterChat, ev.MessageID, ute.Error())
	case errors.As(err, &de):
		p.logger.Warn("Delivery to slave failed", zap.String("channel", de.Channel), zap.Error(de.Err))
		p.notify(ctx, ev.MasterChat, ev.MessageID, fmt.Sprintf(noticeSendFailed, de.Err))
	default:
		p.logger.Error("Inbound relay failed", zap.String("master_msg_id", string(ev.UID())), zap.Error(err))
		p.notify(ctx, ev.MasterChat, ev.MessageID, fmt.Sprintf(noticeProcessFailed, err))
	}
}

func (p *InboundPipeline) prompt(ctx context.Context, ev *InboundEvent, uids []entity.SlaveChatUID) bool {
	candidates := make([]Candidate, len(uids))
	for i, uid := range uids {
		candidates[i] = Candidate{UID: uid, Label: p.label(ctx, uid)}
	}

	sug := p.suggestions.Put(ev, candidates)
	promptID, err := p.prompter.PromptRecipient(ctx, sug)
	if err != nil {
		p.logger.Warn("Recipient prompt failed", zap.String("master_msg_id", string(ev.UID())), zap.Error(err))
		p.suggestions.Take(sug.ID)
		return false
	}
	p.suggestions.SetPromptMessage(sug.ID, promptID)
	return true
}

// label renders a slave chat for prompts and notices.
func (p *InboundPipeline) label(ctx context.Context, uid entity.SlaveChatUID) string {
	return describeSlaveChat(ctx, p.deps.Slaves, p.deps.ChatInfos, uid)
}

func (p *InboundPipeline) notify(ctx context.Context, chat entity.MasterChatUID, replyTo, text string) {
	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.Notify(ctx, chat, replyTo, text); err != nil {
		p.logger.Warn("Notice delivery failed", zap.String("master_chat", string(chat)), zap.Error(err))
	}
}

// chatLabel 形如 "🐧 👥 Family (channel)"
// describeSlaveChat renders a slave chat for humans from the registry and the chat cache.
func describeSlaveChat(ctx context.Context, slaves *SlaveRegistry, infos repository.ChatInfoRepository, uid entity.SlaveChatUID) string {
	channelID, chatID, err := uid.Split()
	if err != nil {
		return string(uid)
	}
	chat := entity.Chat{ChannelID: channelID, UID: chatID, Type: entity.ChatTypeUnknown}
	if ch, err := slaves.Get(channelID); err == nil {
		chat.ChannelName = ch.ChannelName()
		chat.ChannelEmoji = ch.ChannelEmoji()
	}
	if info, err := infos.Get(ctx, channelID, chatID); err == nil && info != nil {
		chat = info.Apply(chat)
	}
	return chatLabel(chat)
}

func chatLabel(chat entity.Chat) string {
	label := chat.Type.Emoji() + " " + chat.LongName()
	if chat.ChannelEmoji != "" {
		label = chat.ChannelEmoji + " " + label
	}
	if chat.ChannelName != "" {
		label += " (" + chat.ChannelName + ")"
	}
	return label
}

// fileKey is the identity used to detect replaced media on edits.
func fileKey(att *entity.Attachment) string {
	if att.UniqueID != "" {
		return att.UniqueID
	}
	return att.FileID
}

func fillMedia(rec *entity.MessageRecord, msg *entity.Message) {
	att := msg.Attachment()
	if att == nil {
		return
	}
	rec.MediaType = string(msg.Kind())
	rec.MIME = att.MIME
	rec.FileID = fileKey(att)
}
