package service

import (
	"context"
	"fmt"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"go.uber.org/zap"
)

// CandidateLimit 消歧义候选数量上限
const CandidateLimit = 5

// ResolutionPath records which rule produced an inbound destination.
type ResolutionPath string

const (
	PathEdit       ResolutionPath = "edit"
	PathForced     ResolutionPath = "forced"
	PathSingleLink ResolutionPath = "single_link"
	PathReply      ResolutionPath = "reply"
	PathCache      ResolutionPath = "cache"
)

// InboundRequest 主平台消息的路由输入
type InboundRequest struct {
	MasterChat entity.MasterChatUID
	MessageUID entity.MasterMessageUID
	IsEdit     bool
	// ReplyTo is the master message the user replied to, if any.
	ReplyTo entity.MasterMessageUID
	// Forced is set when the user picked a recipient from a disambiguation prompt.
	Forced entity.SlaveChatUID
}

// InboundResolution 主 → 从路由结果
type InboundResolution struct {
	Destination entity.SlaveChatUID
	// Quote is the replied record in a singly-linked or user-picked chat.
	Quote *entity.MessageRecord
	// Edited is the record being edited (PathEdit only).
	Edited *entity.MessageRecord
	// Warn is set the first time a cached destination is used in warn mode.
	Warn bool
	Via  ResolutionPath
}

// OutboundResolution 从 → 主路由结果
type OutboundResolution struct {
	Destination entity.MasterChatUID
	Linked      bool
	Muted       bool
	MultiSlaves bool
}

// Singly reports whether the destination is linked to exactly this origin.
func (o *OutboundResolution) Singly() bool {
	return o.Linked && !o.MultiSlaves
}

// Resolver decides where a relayed message goes in both directions.
type Resolver struct {
	links    repository.ChatLinkRepository
	log      repository.MessageLogRepository
	cache    *DestinationCache
	fallback func() entity.MasterChatUID
	logger   *zap.Logger
}

// NewResolver 创建路由器
// fallback returns the dead-letter master chat for unlinked slave chats.
func NewResolver(
	links repository.ChatLinkRepository,
	log repository.MessageLogRepository,
	cache *DestinationCache,
	fallback func() entity.MasterChatUID,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		links:    links,
		log:      log,
		cache:    cache,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "resolver")),
	}
}

// Cache 返回最近目标缓存
func (r *Resolver) Cache() *DestinationCache {
	return r.cache
}

// ResolveInbound picks the slave chat a master message is relayed to.
//
// Rules, first match wins: edits follow their correlation record, a
// singly-linked chat uses its link, a recipient picked by the user is used as
// is, a reply to a known message follows that message, then the
// recent-destination cache.
// Otherwise an *entity.AmbiguousDestinationError lists the candidates.
func (r *Resolver) ResolveInbound(ctx context.Context, req InboundRequest) (*InboundResolution, error) {
	if req.IsEdit {
		record, err := r.log.GetByMaster(ctx, req.MessageUID)
		if err != nil {
			return nil, err
		}
		if record == nil || record.IsPending() || record.IsChatHead() || record.SlaveOriginUID == "" {
			return nil, fmt.Errorf("%w: %s was never delivered", entity.ErrUnknownCorrelation, req.MessageUID)
		}
		return &InboundResolution{Destination: record.SlaveOriginUID, Edited: record, Via: PathEdit}, nil
	}

	links, err := r.links.LinksFromMaster(ctx, req.MasterChat)
	if err != nil {
		return nil, err
	}

	if len(links) == 1 {
		quote, err := r.quoteFor(ctx, req.ReplyTo, links[0])
		if err != nil {
			return nil, err
		}
		return &InboundResolution{Destination: links[0], Quote: quote, Via: PathSingleLink}, nil
	}

	if req.Forced != "" {
		r.cache.Set(req.MasterChat, req.Forced)
		quote, err := r.quoteFor(ctx, req.ReplyTo, req.Forced)
		if err != nil {
			return nil, err
		}
		return &InboundResolution{Destination: req.Forced, Quote: quote, Via: PathForced}, nil
	}

	if req.ReplyTo != "" {
		record, err := r.log.GetByMaster(ctx, req.ReplyTo)
		if err != nil {
			return nil, err
		}
		if record != nil && record.SlaveOriginUID != "" {
			r.cache.Set(req.MasterChat, record.SlaveOriginUID)
			// 非单绑定会话中, 回复只用于选择目标, 不作为引用
			return &InboundResolution{Destination: record.SlaveOriginUID, Via: PathReply}, nil
		}
		r.logger.Debug("Reply target unknown, trying cache",
			zap.String("master_chat", string(req.MasterChat)),
			zap.String("master_msg_id", string(req.ReplyTo)),
		)
	}

	if dest, ok := r.cache.Get(req.MasterChat); ok {
		res := &InboundResolution{Destination: dest, Via: PathCache}
		if r.cache.Mode() == CacheModeWarn && !r.cache.IsWarned(req.MasterChat) {
			res.Warn = true
			r.cache.SetWarned(req.MasterChat)
		}
		return res, nil
	}

	candidates, err := r.candidates(ctx, req.MasterChat, links)
	if err != nil {
		return nil, err
	}
	return nil, &entity.AmbiguousDestinationError{Candidates: candidates}
}

// candidates: recent log activity first, then the link table.
func (r *Resolver) candidates(ctx context.Context, master entity.MasterChatUID, links []entity.SlaveChatUID) ([]entity.SlaveChatUID, error) {
	recent, err := r.log.RecentSlaveChats(ctx, master, CandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		return recent, nil
	}
	if len(links) > CandidateLimit {
		links = links[:CandidateLimit]
	}
	return append([]entity.SlaveChatUID(nil), links...), nil
}

// quoteFor returns the replied record only when it belongs to dest.
func (r *Resolver) quoteFor(ctx context.Context, replyTo entity.MasterMessageUID, dest entity.SlaveChatUID) (*entity.MessageRecord, error) {
	if replyTo == "" {
		return nil, nil
	}
	record, err := r.log.GetByMaster(ctx, replyTo)
	if err != nil || record == nil {
		return nil, err
	}
	if record.SlaveOriginUID != dest || record.IsPending() || record.IsChatHead() {
		return nil, nil
	}
	return record, nil
}

// ResolveOutbound picks the master chat a slave message is rendered into.
func (r *Resolver) ResolveOutbound(ctx context.Context, origin entity.SlaveChatUID) (*OutboundResolution, error) {
	masters, err := r.links.LinksFromSlave(ctx, origin)
	if err != nil {
		return nil, err
	}

	if len(masters) == 0 {
		dest := entity.MasterChatUID("")
		if r.fallback != nil {
			dest = r.fallback()
		}
		if dest == "" {
			return nil, fmt.Errorf("no link for %s and no fallback chat configured", origin)
		}
		return &OutboundResolution{Destination: dest}, nil
	}

	if len(masters) > 1 {
		r.logger.Warn("Slave chat linked to several master chats, using the first",
			zap.String("slave_chat", string(origin)),
			zap.Int("links", len(masters)),
		)
	}

	dest := masters[0]
	if dest == entity.MutedMasterChat {
		return &OutboundResolution{Destination: dest, Linked: true, Muted: true}, nil
	}

	slaves, err := r.links.LinksFromMaster(ctx, dest)
	if err != nil {
		return nil, err
	}
	return &OutboundResolution{
		Destination: dest,
		Linked:      true,
		MultiSlaves: len(slaves) > 1,
	}, nil
}

// ResolveEditTarget finds the master message an edited slave message maps to.
// Returns (nil, nil, nil) when the message is unknown or was never rendered.
func (r *Resolver) ResolveEditTarget(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) (*entity.MessageRecord, *entity.MasterHandle, error) {
	if slaveMessageID == "" {
		return nil, nil, nil
	}
	record, err := r.log.GetBySlave(ctx, slaveMessageID, origin)
	if err != nil || record == nil {
		return nil, nil, err
	}
	if record.MasterMsgID.IsPending() {
		return nil, nil, nil
	}
	handle, err := entity.HandleFromUID(record.EditTarget())
	if err != nil {
		return nil, nil, nil
	}
	return record, handle, nil
}

// ResolveQuote maps a slave reply target to the master message id to reply to.
// The target must live in dest and come from the same slave channel as origin;
// otherwise entity.ErrCrossChannelQuote is returned and the quote must be dropped.
func (r *Resolver) ResolveQuote(ctx context.Context, target *entity.Message, origin entity.SlaveChatUID, dest entity.MasterChatUID) (string, error) {
	if target == nil || target.UID == "" {
		return "", nil
	}
	targetChat := target.Chat.SlaveUID()
	if target.Chat.ChannelID == "" {
		targetChat = origin
	}

	record, err := r.log.GetBySlave(ctx, target.UID, targetChat)
	if err != nil || record == nil {
		return "", err
	}
	if record.MasterMsgID.IsPending() {
		return "", nil
	}

	if record.MasterChat() != dest || record.SlaveOriginUID.ChannelID() != origin.ChannelID() {
		r.logger.Debug("Dropping cross-channel quote",
			zap.String("slave_chat", string(origin)),
			zap.String("master_chat", string(dest)),
			zap.String("master_msg_id", string(record.MasterMsgID)),
		)
		return "", entity.ErrCrossChannelQuote
	}
	return record.EditTarget().MessageID(), nil
}
