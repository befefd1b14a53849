package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
)

// PickPurpose 选择提示的用途
type PickPurpose string

const (
	// PickRecipient re-queues Event with the chosen recipient.
	PickRecipient PickPurpose = "recipient"
	PickLink      PickPurpose = "link"
	// PickChatHead turns the prompt into a chat head for the chosen chat.
	PickChatHead PickPurpose = "chat"
)

// Suggestion is a pending prompt offering a list of slave chats.
type Suggestion struct {
	ID      string
	Purpose PickPurpose
	Master  entity.MasterChatUID
	// Event is the unroutable message, PickRecipient only.
	Event      *InboundEvent
	Candidates []Candidate
	// PromptMessageID is the master message holding the prompt, set by the adapter.
	PromptMessageID string
	CreatedAt       time.Time
}

// SuggestionStore keeps pending prompts until they are answered or expire.
type SuggestionStore struct {
	mu      sync.Mutex
	items   map[string]*Suggestion
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewSuggestionStore 创建消歧义提示存储
func NewSuggestionStore(ttl time.Duration, maxSize int) *SuggestionStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	return &SuggestionStore{
		items:   make(map[string]*Suggestion),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Put stores a recipient prompt for an unroutable event.
func (s *SuggestionStore) Put(ev *InboundEvent, candidates []Candidate) *Suggestion {
	return s.put(&Suggestion{Purpose: PickRecipient, Master: ev.MasterChat, Event: ev, Candidates: candidates})
}

// Open stores a chat picker that is not tied to a message.
func (s *SuggestionStore) Open(purpose PickPurpose, master entity.MasterChatUID, candidates []Candidate) *Suggestion {
	return s.put(&Suggestion{Purpose: purpose, Master: master, Candidates: candidates})
}

func (s *SuggestionStore) put(sug *Suggestion) *Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	if len(s.items) >= s.maxSize {
		var oldest *Suggestion
		for _, item := range s.items {
			if oldest == nil || item.CreatedAt.Before(oldest.CreatedAt) {
				oldest = item
			}
		}
		delete(s.items, oldest.ID)
	}

	sug.ID = uuid.NewString()
	sug.CreatedAt = s.now()
	s.items[sug.ID] = sug
	return sug
}

// SetPromptMessage 记录提示消息 ID
func (s *SuggestionStore) SetPromptMessage(id, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sug, ok := s.items[id]; ok {
		sug.PromptMessageID = messageID
	}
}

// Take removes and returns a live prompt. Expired prompts are not returned.
func (s *SuggestionStore) Take(id string) (*Suggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sug, ok := s.items[id]
	if !ok {
		return nil, false
	}
	delete(s.items, id)
	if s.now().Sub(sug.CreatedAt) > s.ttl {
		return nil, false
	}
	return sug, true
}

// Len 当前挂起的提示数
func (s *SuggestionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *SuggestionStore) purgeLocked() {
	now := s.now()
	for id, sug := range s.items {
		if now.Sub(sug.CreatedAt) > s.ttl {
			delete(s.items, id)
		}
	}
}
