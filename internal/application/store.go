package application

import (
	"context"
	"fmt"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/persistence"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"gorm.io/gorm"
)

// Store is the offline view of the bridge database used by bridgectl.
// No slave channel is connected, so links are validated by shape only.
type Store struct {
	db    *gorm.DB
	Links repository.ChatLinkRepository
	Chats repository.ChatInfoRepository
	Log   repository.MessageLogRepository
}

// OpenStore opens the configured database with silent SQL logging.
func OpenStore(cfg *config.Config) (*Store, error) {
	db, err := persistence.NewDBConnectionSilent(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		Links: persistence.NewGormChatLinkRepository(db),
		Chats: persistence.NewGormChatInfoRepository(db),
		Log:   persistence.NewGormMessageLogRepository(db),
	}
}

// Link 离线绑定, multiple 对应 relay.multiple_slave_chats
func (s *Store) Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID, multiple bool) error {
	if master == "" {
		return apperrors.NewInvalidInputError("master chat is required")
	}
	if _, _, err := slave.Split(); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return s.Links.Link(ctx, master, slave, multiple)
}

// Unlink removes every link of master, or only the one to slave.
func (s *Store) Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error) {
	if master == "" {
		return 0, apperrors.NewInvalidInputError("master chat is required")
	}
	if slave == "" {
		return s.Links.Unlink(ctx, master, "")
	}

	masters, err := s.Links.LinksFromSlave(ctx, slave)
	if err != nil {
		return 0, err
	}
	for _, m := range masters {
		if m == master {
			return s.Links.Unlink(ctx, "", slave)
		}
	}
	return 0, apperrors.NewNotFoundError(fmt.Sprintf("%s is not linked to %s", slave, master))
}

// Close 关闭数据库
func (s *Store) Close() error {
	return persistence.CloseDB(s.db)
}
