package usecase

import (
	"context"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

// MasterNotifier posts bridge notices into master chats.
type MasterNotifier interface {
	// Notify sends a plain notice, replying to replyTo when it is not empty.
	Notify(ctx context.Context, chat entity.MasterChatUID, replyTo string, text string) error
	// DeleteMessage removes a message from a master chat.
	DeleteMessage(ctx context.Context, chat entity.MasterChatUID, messageID string) error
}

// RecipientPrompter shows a disambiguation prompt for an unroutable message
// and returns the id of the master message holding the prompt.
type RecipientPrompter interface {
	PromptRecipient(ctx context.Context, sug *Suggestion) (string, error)
}

// MessageLogWriter is the write side of the correlation log used by the pipelines.
// Writes may be applied later; Flush waits until every write submitted before
// it is visible to readers of the log.
type MessageLogWriter interface {
	PutAsync(record *entity.MessageRecord, update bool)
	DeleteByMasterAsync(id entity.MasterMessageUID)
	DeleteBySlaveAsync(slaveMessageID string, origin entity.SlaveChatUID)
	Flush(ctx context.Context) error
}

// flushLog makes earlier relays readable before a correlation lookup.
// A failed flush is logged; the lookup then sees whatever is already stored.
func flushLog(ctx context.Context, w MessageLogWriter, logger *zap.Logger) {
	if w == nil {
		return
	}
	if err := w.Flush(ctx); err != nil {
		logger.Warn("Correlation log flush failed", zap.Error(err))
	}
}

// Candidate 消歧义候选会话
type Candidate struct {
	UID   entity.SlaveChatUID
	Label string
}
