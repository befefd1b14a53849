package usecase

import (
	"context"
	"fmt"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"go.uber.org/zap"
)

// LinkView 绑定展示信息
type LinkView struct {
	Master entity.MasterChatUID `json:"master"`
	Slave  entity.SlaveChatUID  `json:"slave"`
	Label  string               `json:"label"`
}

// LinkManager edits master/slave links for the bot commands and the admin API.
type LinkManager struct {
	links  repository.ChatLinkRepository
	infos  repository.ChatInfoRepository
	slaves *SlaveRegistry
	cache  *service.DestinationCache
	flags  config.RelaySource
	logger *zap.Logger
}

// NewLinkManager 创建绑定管理器
func NewLinkManager(
	links repository.ChatLinkRepository,
	infos repository.ChatInfoRepository,
	slaves *SlaveRegistry,
	cache *service.DestinationCache,
	flags config.RelaySource,
	logger *zap.Logger,
) *LinkManager {
	return &LinkManager{
		links:  links,
		infos:  infos,
		slaves: slaves,
		cache:  cache,
		flags:  flags,
		logger: logger.With(zap.String("component", "link-manager")),
	}
}

// Link binds slave to master. Unless multiple slave chats are enabled the
// master loses its previous links.
func (m *LinkManager) Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (*LinkView, error) {
	if master == "" {
		return nil, apperrors.NewInvalidInputError("master chat is required")
	}
	channelID, _, err := slave.Split()
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if _, err := m.slaves.Get(channelID); err != nil {
		return nil, err
	}

	if err := m.links.Link(ctx, master, slave, m.flags.Relay().MultipleSlaveChats); err != nil {
		return nil, apperrors.NewInternalErrorWithCause("link chats", err)
	}
	// 旧的快捷回复目标可能已失效
	m.cache.Remove(master)

	m.logger.Info("Chats linked",
		zap.String("master_chat", string(master)),
		zap.String("slave_chat", string(slave)),
	)
	return &LinkView{Master: master, Slave: slave, Label: m.Label(ctx, slave)}, nil
}

// Unlink removes the links of master, or only the link to slave when given.
func (m *LinkManager) Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error) {
	if master == "" {
		return 0, apperrors.NewInvalidInputError("master chat is required")
	}

	var n int64
	if slave == "" {
		removed, err := m.links.Unlink(ctx, master, "")
		if err != nil {
			return 0, apperrors.NewInternalErrorWithCause("unlink chats", err)
		}
		n = removed
	} else {
		linked, err := m.links.LinksFromMaster(ctx, master)
		if err != nil {
			return 0, apperrors.NewInternalErrorWithCause("load links", err)
		}
		if !containsSlave(linked, slave) {
			return 0, apperrors.NewNotFoundError(fmt.Sprintf("%s is not linked to %s", slave, master))
		}
		// 一个从会话只会绑定到一个主会话
		removed, err := m.links.Unlink(ctx, "", slave)
		if err != nil {
			return 0, apperrors.NewInternalErrorWithCause("unlink chats", err)
		}
		n = removed
	}
	m.cache.Remove(master)

	m.logger.Info("Chats unlinked",
		zap.String("master_chat", string(master)),
		zap.String("slave_chat", string(slave)),
		zap.Int64("removed", n),
	)
	return n, nil
}

// Links 列出主会话的绑定
func (m *LinkManager) Links(ctx context.Context, master entity.MasterChatUID) ([]LinkView, error) {
	slaves, err := m.links.LinksFromMaster(ctx, master)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("load links", err)
	}
	views := make([]LinkView, 0, len(slaves))
	for _, s := range slaves {
		views = append(views, LinkView{Master: master, Slave: s, Label: m.Label(ctx, s)})
	}
	return views, nil
}

// All 列出全部绑定
func (m *LinkManager) All(ctx context.Context) ([]LinkView, error) {
	links, err := m.links.All(ctx)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("load links", err)
	}
	views := make([]LinkView, 0, len(links))
	for _, l := range links {
		views = append(views, LinkView{Master: l.Master, Slave: l.Slave, Label: m.Label(ctx, l.Slave)})
	}
	return views, nil
}

// Chats lists the cached chats of one slave channel.
func (m *LinkManager) Chats(ctx context.Context, channelID string) ([]*entity.ChatInfo, error) {
	if _, err := m.slaves.Get(channelID); err != nil {
		return nil, err
	}
	infos, err := m.infos.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("load chats", err)
	}
	return infos, nil
}

// Label renders a slave chat for humans, falling back to its id.
func (m *LinkManager) Label(ctx context.Context, uid entity.SlaveChatUID) string {
	return describeSlaveChat(ctx, m.slaves, m.infos, uid)
}

func containsSlave(list []entity.SlaveChatUID, uid entity.SlaveChatUID) bool {
	for _, s := range list {
		if s == uid {
			return true
		}
	}
	return false
}
