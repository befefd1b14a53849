package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

// maxPickerChoices keeps picker keyboards within Telegram's button limit.
const maxPickerChoices = 50

// ErrNoChats is returned when a picker would have nothing to offer.
var ErrNoChats = errors.New("no remote chat to choose from")

// LinkedChatError answers /chat in a master chat linked to exactly one slave
// chat: every message there already goes to that chat.
type LinkedChatError struct {
	Slave entity.SlaveChatUID
	Label string
}

func (e *LinkedChatError) Error() string {
	return fmt.Sprintf("chat is linked to %s", e.Slave)
}

// ChatPicker backs the /link and /chat pickers.
type ChatPicker struct {
	links  *LinkManager
	slaves *SlaveRegistry
	store  *SuggestionStore
	writer MessageLogWriter
	now    func() time.Time
	logger *zap.Logger
}

// NewChatPicker 创建会话选择器
func NewChatPicker(links *LinkManager, slaves *SlaveRegistry, store *SuggestionStore, writer MessageLogWriter, logger *zap.Logger) *ChatPicker {
	if store == nil {
		store = NewSuggestionStore(0, 0)
	}
	return &ChatPicker{
		links:  links,
		slaves: slaves,
		store:  store,
		writer: writer,
		now:    time.Now,
		logger: logger.With(zap.String("component", "chat-picker")),
	}
}

// Open builds a picker for master. filter narrows the choices by a case
// insensitive match on the chat label or id.
//
// PickLink offers every cached slave chat. PickChatHead offers the linked
// chats, or every cached chat when master has no link.
func (p *ChatPicker) Open(ctx context.Context, master entity.MasterChatUID, purpose PickPurpose, filter string) (*Suggestion, error) {
	linked, err := p.links.Links(ctx, master)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	switch purpose {
	case PickChatHead:
		if len(linked) == 1 && filter == "" {
			return nil, &LinkedChatError{Slave: linked[0].Slave, Label: linked[0].Label}
		}
		for _, v := range linked {
			candidates = append(candidates, Candidate{UID: v.Slave, Label: v.Label})
		}
		if len(candidates) == 0 {
			if candidates, err = p.allChats(ctx, nil); err != nil {
				return nil, err
			}
		}
	case PickLink:
		if candidates, err = p.allChats(ctx, linked); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported picker %q", purpose)
	}

	candidates = filterCandidates(candidates, filter)
	if len(candidates) == 0 {
		return nil, ErrNoChats
	}
	if len(candidates) > maxPickerChoices {
		p.logger.Debug("Picker truncated",
			zap.String("master_chat", string(master)),
			zap.Int("choices", len(candidates)),
		)
		candidates = candidates[:maxPickerChoices]
	}
	return p.store.Open(purpose, master, candidates), nil
}

// SetPromptMessage 记录选择器所在的主会话消息
func (p *ChatPicker) SetPromptMessage(id, messageID string) {
	p.store.SetPromptMessage(id, messageID)
}

// Pick applies a choice. index < 0 cancels the picker.
func (p *ChatPicker) Pick(ctx context.Context, id string, index int) (*Suggestion, error) {
	sug, ok := p.store.Take(id)
	if !ok {
		return nil, fmt.Errorf("%w: picker %s expired", entity.ErrUnknownCorrelation, id)
	}
	if index < 0 {
		return sug, nil
	}
	if index >= len(sug.Candidates) {
		return nil, fmt.Errorf("picker %s has no choice %d", id, index)
	}

	choice := sug.Candidates[index]
	switch sug.Purpose {
	case PickLink:
		if _, err := p.links.Link(ctx, sug.Master, choice.UID); err != nil {
			return nil, err
		}
	case PickChatHead:
		if err := p.chatHead(sug, choice); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported picker %q", sug.Purpose)
	}
	return sug, nil
}

// chatHead logs the prompt message so that replies to it reach choice.
func (p *ChatPicker) chatHead(sug *Suggestion, choice Candidate) error {
	if sug.PromptMessageID == "" {
		return fmt.Errorf("picker %s has no prompt message", sug.ID)
	}
	p.writer.PutAsync(&entity.MessageRecord{
		MasterMsgID:            entity.NewMasterMessageUID(sug.Master, sug.PromptMessageID),
		SlaveMessageID:         entity.ChatHeadID,
		SlaveOriginUID:         choice.UID,
		SlaveOriginDisplayName: choice.Label,
		MessageType:            entity.KindText,
		Direction:              entity.DirectionToSlave,
		Text:                   ChatHeadText(choice.Label),
		CreatedAt:              p.now(),
	}, false)

	p.logger.Info("Chat head created",
		zap.String("master_chat", string(sug.Master)),
		zap.String("slave_chat", string(choice.UID)),
	)
	return nil
}

// ChatHeadText is the text a chat head prompt is replaced with.
func ChatHeadText(label string) string {
	return "Reply to this message to chat with " + label + "."
}

// allChats lists the cached chats of every slave channel. Chats in linked
// are marked.
func (p *ChatPicker) allChats(ctx context.Context, linked []LinkView) ([]Candidate, error) {
	marked := make(map[entity.SlaveChatUID]bool, len(linked))
	for _, v := range linked {
		marked[v.Slave] = true
	}

	var candidates []Candidate
	for _, ch := range p.slaves.List() {
		infos, err := p.links.Chats(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			uid := info.SlaveUID()
			label := p.links.Label(ctx, uid)
			if marked[uid] {
				label = "🔗 " + label
			}
			candidates = append(candidates, Candidate{UID: uid, Label: label})
		}
	}
	return candidates, nil
}

func filterCandidates(candidates []Candidate, filter string) []Candidate {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return candidates
	}
	kept := candidates[:0:0]
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Label), filter) || strings.Contains(strings.ToLower(string(c.UID)), filter) {
			kept = append(kept, c)
		}
	}
	return kept
}
