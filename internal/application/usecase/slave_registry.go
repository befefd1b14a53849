package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

// SlaveChannel is one bridged backend (in-process or remote over websocket).
type SlaveChannel interface {
	ChannelID() string
	ChannelName() string
	ChannelEmoji() string
	// SupportsKind reports whether the channel can deliver messages of kind.
	SupportsKind(kind entity.MessageKind) bool
	// SendMessage delivers (or edits, when msg.Edit) a message and returns its slave id.
	SendMessage(ctx context.Context, msg *entity.Message) (string, error)
	// SendStatus delivers a status such as entity.MessageRemoval.
	SendStatus(ctx context.Context, status entity.Status) error
}

// SlaveInfo 从通道摘要 (管理接口使用)
type SlaveInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// SlaveRegistry 从通道注册表
type SlaveRegistry struct {
	mu       sync.RWMutex
	channels map[string]SlaveChannel
	logger   *zap.Logger
}

// NewSlaveRegistry 创建从通道注册表
func NewSlaveRegistry(logger *zap.Logger) *SlaveRegistry {
	return &SlaveRegistry{
		channels: make(map[string]SlaveChannel),
		logger:   logger.With(zap.String("component", "slave-registry")),
	}
}

// Register adds a channel. Channel ids must be non-empty, unique and dot-free.
func (r *SlaveRegistry) Register(ch SlaveChannel) error {
	id := ch.ChannelID()
	if id == "" || strings.Contains(id, ".") {
		return fmt.Errorf("%w: %q", entity.ErrInvalidChannelID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[id]; exists {
		return fmt.Errorf("%w: %q already registered", entity.ErrInvalidChannelID, id)
	}
	r.channels[id] = ch

	r.logger.Info("Slave channel registered",
		zap.String("channel", id),
		zap.String("name", ch.ChannelName()),
	)
	return nil
}

// Unregister 移除从通道
func (r *SlaveRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[id]; exists {
		delete(r.channels, id)
		r.logger.Info("Slave channel unregistered", zap.String("channel", id))
	}
}

// Get 根据通道 ID 查找
func (r *SlaveRegistry) Get(id string) (SlaveChannel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrSlaveNotFound, id)
	}
	return ch, nil
}

// ForChat returns the channel owning a slave chat.
func (r *SlaveRegistry) ForChat(uid entity.SlaveChatUID) (SlaveChannel, error) {
	channelID, _, err := uid.Split()
	if err != nil {
		return nil, err
	}
	return r.Get(channelID)
}

// List returns the registered channels ordered by id.
func (r *SlaveRegistry) List() []SlaveInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]SlaveInfo, 0, len(r.channels))
	for _, ch := range r.channels {
		result = append(result, SlaveInfo{
			ID:    ch.ChannelID(),
			Name:  ch.ChannelName(),
			Emoji: ch.ChannelEmoji(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
