package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"go.uber.org/zap"
)

const noticeRemovedBySlave = "Message removed in remote chat."

// OutboundPipeline renders slave messages and statuses into master chats.
// It is safe for concurrent use by several slave channels.
type OutboundPipeline struct {
	deps     PipelineDeps
	renderer entity.Renderer
	now      func() time.Time
	logger   *zap.Logger
}

// NewOutboundPipeline 创建从 → 主中继管线
func NewOutboundPipeline(deps PipelineDeps, renderer entity.Renderer) *OutboundPipeline {
	return &OutboundPipeline{
		deps:     deps,
		renderer: renderer,
		now:      time.Now,
		logger:   deps.Logger.With(zap.String("component", "outbound")),
	}
}

// SetRenderer 注入主平台渲染器
func (p *OutboundPipeline) SetRenderer(renderer entity.Renderer) {
	p.renderer = renderer
}

// OnSlaveMessage relays one message (or edit) from a slave chat.
func (p *OutboundPipeline) OnSlaveMessage(ctx context.Context, msg *entity.Message) error {
	if msg == nil || msg.Chat.ChannelID == "" || msg.Chat.UID == "" {
		return apperrors.NewInvalidInputError("slave message without chat")
	}
	if p.renderer == nil {
		return apperrors.NewServiceUnavailableError("master renderer not ready", nil)
	}
	ch, err := p.deps.Slaves.Get(msg.Chat.ChannelID)
	if err != nil {
		return err
	}

	start := p.now()
	origin := msg.Chat.SlaveUID()
	res, err := p.deps.Resolver.ResolveOutbound(ctx, origin)
	if err != nil {
		return err
	}
	if res.Muted {
		p.logger.Debug("Slave chat muted, message dropped", zap.String("slave_chat", string(origin)))
		return nil
	}

	msg.Chat = p.completeChat(ctx, msg.Chat, ch)

	flags := p.deps.Flags.Relay()
	policy := config.PolicyNormal
	switch {
	case msg.Author.IsSelf:
		policy = flags.YourMessageOnSlave
	case msg.Chat.Notification == entity.NotifyNone,
		msg.Chat.Notification == entity.NotifyMentions && !msg.Mentioned:
		policy = flags.MessageMutedOnSlave
	}
	if policy == config.PolicyMute {
		p.logger.Debug("Message muted by policy",
			zap.String("slave_chat", string(origin)),
			zap.String("slave_msg_id", msg.UID),
		)
		return nil
	}

	// 其它会话的消息使快捷回复目标失效
	cache := p.deps.Resolver.Cache()
	if cached, ok := cache.Get(res.Destination); ok && cached != origin {
		cache.Remove(res.Destination)
	}

	req := &entity.RenderRequest{
		Destination: res.Destination,
		Text:        msg.Text,
		Format:      msg.Format,
		Footer:      msg.Reactions.Footer(),
		Silent:      policy == config.PolicySilent,
	}
	header := service.BuildHeader(msg, res.Singly())

	if msg.Edit || msg.Target != nil {
		flushLog(ctx, p.deps.LogWriter, p.logger)
	}

	var edited *entity.MessageRecord
	if msg.Edit {
		record, handle, err := p.deps.Resolver.ResolveEditTarget(ctx, msg.UID, origin)
		if err != nil {
			return err
		}
		if handle != nil && handle.Chat == res.Destination {
			edited = record
			req.EditTarget = handle
			if att := msg.Attachment(); att != nil {
				req.EditMedia = msg.EditMedia || fileKey(att) != record.FileID
			}
		} else {
			header = service.WithEditedMarker(header)
		}
	}
	req.Header = header

	if msg.Target != nil && req.EditTarget == nil {
		replyTo, err := p.deps.Resolver.ResolveQuote(ctx, msg.Target, origin, res.Destination)
		if err != nil && !errors.Is(err, entity.ErrCrossChannelQuote) {
			p.logger.Warn("Quote lookup failed", zap.String("slave_chat", string(origin)), zap.Error(err))
		}
		req.ReplyTo = replyTo
	}

	handle, renderErr := msg.Content().Render(ctx, p.renderer, req)

	record := p.record(msg, origin)
	switch {
	case renderErr != nil:
		record.MasterMsgID = entity.NewMasterMessageUID(res.Destination, entity.NewPendingID(p.now()))
		p.deps.LogWriter.PutAsync(record, false)
		if p.deps.Hook != nil {
			p.deps.Hook.OnRelayFailed(entity.DirectionToMaster, renderErr)
		}
		return fmt.Errorf("render %s into %s: %w", origin, res.Destination, renderErr)
	case edited != nil:
		record.MasterMsgID = edited.MasterMsgID
		if handle != nil && handle.UID() != edited.EditTarget() {
			record.MasterMsgIDAlt = handle.UID()
		}
		p.deps.LogWriter.PutAsync(record, true)
	case handle != nil:
		record.MasterMsgID = handle.UID()
		p.deps.LogWriter.PutAsync(record, false)
	default:
		p.logger.Warn("Renderer returned no handle, message not logged", zap.String("slave_chat", string(origin)))
	}

	if p.deps.Hook != nil {
		p.deps.Hook.OnRelayed(entity.DirectionToMaster, msg.Kind(), p.now().Sub(start))
	}
	return nil
}

// OnSlaveStatus applies a status pushed by a slave channel.
func (p *OutboundPipeline) OnSlaveStatus(ctx context.Context, status entity.Status) error {
	switch s := status.(type) {
	case entity.ChatListUpdate:
		return p.applyChatList(ctx, s)
	case entity.MemberListUpdate:
		p.logger.Info("Member list updated",
			zap.String("channel", s.ChannelID),
			zap.String("chat", s.ChatUID),
			zap.Int("added", len(s.Added)),
			zap.Int("modified", len(s.Modified)),
			zap.Int("removed", len(s.Removed)),
		)
		return nil
	case entity.MessageRemoval:
		return p.applyRemoval(ctx, s)
	case entity.MessageReactionsUpdate:
		return p.applyReactions(ctx, s)
	default:
		p.logger.Error("Unsupported status", zap.String("type", status.StatusType()))
		return apperrors.NewInvalidInputError("unsupported status " + status.StatusType())
	}
}

func (p *OutboundPipeline) applyChatList(ctx context.Context, s entity.ChatListUpdate) error {
	var errs []error
	now := p.now()
	for _, chat := range append(append([]entity.Chat(nil), s.Added...), s.Modified...) {
		if chat.ChannelID == "" {
			chat.ChannelID = s.ChannelID
		}
		info := entity.ChatInfoFromChat(chat)
		info.UpdatedAt = now
		if err := p.deps.ChatInfos.Upsert(ctx, info); err != nil {
			errs = append(errs, err)
		}
	}
	for _, uid := range s.Removed {
		if err := p.deps.ChatInfos.Delete(ctx, s.ChannelID, uid); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Debug("Chat list updated",
		zap.String("channel", s.ChannelID),
		zap.Int("added", len(s.Added)),
		zap.Int("modified", len(s.Modified)),
		zap.Int("removed", len(s.Removed)),
	)
	return errors.Join(errs...)
}

// applyRemoval mirrors a message deleted on the slave side.
func (p *OutboundPipeline) applyRemoval(ctx context.Context, s entity.MessageRemoval) error {
	if s.Message == nil || s.Message.UID == "" {
		return apperrors.NewInvalidInputError("removal without message id")
	}
	origin := s.Message.Chat.SlaveUID()

	masters, err := p.deps.Resolver.ResolveOutbound(ctx, origin)
	if err == nil && masters.Muted {
		return nil
	}

	flushLog(ctx, p.deps.LogWriter, p.logger)
	record, err := p.deps.Log.GetBySlave(ctx, s.Message.UID, origin)
	if err != nil {
		return err
	}
	if record == nil || record.MasterMsgID.IsPending() {
		p.logger.Info("Removed message not found in log",
			zap.String("slave_chat", string(origin)),
			zap.String("slave_msg_id", s.Message.UID),
		)
		return nil
	}
	handle, err := entity.HandleFromUID(record.EditTarget())
	if err != nil {
		return err
	}
	if handle.Chat == entity.MutedMasterChat {
		return nil
	}

	removed := false
	if !p.deps.Flags.Relay().PreventMessageRemoval {
		if err := p.deps.Notifier.DeleteMessage(ctx, handle.Chat, handle.MessageID); err != nil {
			p.logger.Debug("Master message delete failed", zap.String("master_msg_id", string(handle.UID())), zap.Error(err))
		} else {
			removed = true
		}
	}
	if !removed {
		if err := p.deps.Notifier.Notify(ctx, handle.Chat, handle.MessageID, noticeRemovedBySlave); err != nil {
			return err
		}
	}

	p.deps.LogWriter.DeleteBySlaveAsync(s.Message.UID, origin)
	return nil
}

// applyReactions re-renders the logged message with the new reaction footer.
func (p *OutboundPipeline) applyReactions(ctx context.Context, s entity.MessageReactionsUpdate) error {
	origin := s.Chat.SlaveUID()
	flushLog(ctx, p.deps.LogWriter, p.logger)
	record, err := p.deps.Log.GetBySlave(ctx, s.MessageID, origin)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: reactions for %s in %s", entity.ErrUnknownCorrelation, s.MessageID, origin)
	}

	msg, err := entity.DecodeSnapshot(record.Snapshot)
	if err != nil {
		p.logger.Warn("Reactions dropped, snapshot unusable",
			zap.String("slave_chat", string(origin)),
			zap.String("slave_msg_id", s.MessageID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", entity.ErrUnknownCorrelation, err)
	}

	msg.UID = s.MessageID
	msg.Chat.ChannelID, msg.Chat.UID = s.Chat.ChannelID, s.Chat.UID
	msg.Reactions = s.Reactions
	msg.Edit = true
	msg.EditMedia = false
	return p.OnSlaveMessage(ctx, msg)
}

// completeChat fills the chat fields the slave left empty from the cache.
func (p *OutboundPipeline) completeChat(ctx context.Context, chat entity.Chat, ch SlaveChannel) entity.Chat {
	if chat.ChannelName == "" {
		chat.ChannelName = ch.ChannelName()
	}
	if chat.ChannelEmoji == "" {
		chat.ChannelEmoji = ch.ChannelEmoji()
	}
	if chat.Name != "" && chat.Type != "" && chat.Type != entity.ChatTypeUnknown {
		return chat
	}

	info, err := p.deps.ChatInfos.Get(ctx, chat.ChannelID, chat.UID)
	if err != nil || info == nil {
		if chat.Type == "" {
			chat.Type = entity.ChatTypeUnknown
		}
		return chat
	}
	if chat.Name == "" {
		chat.Name = info.Name
	}
	if chat.Alias == "" {
		chat.Alias = info.Alias
	}
	if chat.Type == "" || chat.Type == entity.ChatTypeUnknown {
		chat.Type = info.Type
	}
	return chat
}

func (p *OutboundPipeline) record(msg *entity.Message, origin entity.SlaveChatUID) *entity.MessageRecord {
	rec := &entity.MessageRecord{
		SlaveMessageID:         msg.UID,
		SlaveOriginUID:         origin,
		SlaveOriginDisplayName: msg.Chat.DisplayName(),
		SlaveMemberUID:         msg.Author.UID,
		SlaveMemberDisplayName: msg.Author.DisplayName(),
		MessageType:            msg.Kind(),
		Direction:              entity.DirectionToMaster,
		Text:                   msg.LogText(),
		CreatedAt:              p.now(),
	}
	fillMedia(rec, msg)

	snapshot, err := entity.EncodeSnapshot(msg)
	if err != nil {
		p.logger.Warn("Snapshot encode failed", zap.String("slave_msg_id", msg.UID), zap.Error(err))
	} else {
		rec.Snapshot = snapshot
	}
	return rec
}
