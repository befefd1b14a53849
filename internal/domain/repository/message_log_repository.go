package repository

import (
	"context"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// DefaultRecentChatsLimit is the candidate count used by disambiguation.
const DefaultRecentChatsLimit = 5

// MessageLogRepository is the correlation log. Lookups return (nil, nil) on a
// missing row; only malformed arguments are errors.
type MessageLogRepository interface {
	// Put inserts the record, or merges its non-empty fields into the stored
	// row when update is true. A non-edit insert without a slave message id is
	// suppressed and reports stored=false.
	Put(ctx context.Context, record *entity.MessageRecord, update bool) (stored bool, err error)

	GetByMaster(ctx context.Context, id entity.MasterMessageUID) (*entity.MessageRecord, error)

	// GetBySlave returns the newest record for the pair.
	GetBySlave(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) (*entity.MessageRecord, error)

	DeleteByMaster(ctx context.Context, id entity.MasterMessageUID) error
	DeleteBySlave(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) error

	// RecentSlaveChats lists distinct slave origins of a master chat, most recent first.
	RecentSlaveChats(ctx context.Context, master entity.MasterChatUID, limit int) ([]entity.SlaveChatUID, error)
}
