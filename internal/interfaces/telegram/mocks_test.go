package telegram

import (
	"context"
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeBot records every call; sent messages get ids 101, 102, ...
type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	// sendErr 返回非 nil 时本次发送失败
	sendErr    func(c tgbotapi.Chattable) error
	requestErr func(c tgbotapi.Chattable) error
	updates    chan tgbotapi.Update
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 16)}
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		if err := b.sendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	b.sent = append(b.sent, c)
	b.nextID++
	return tgbotapi.Message{MessageID: 100 + b.nextID}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.requestErr != nil {
		if err := b.requestErr(c); err != nil {
			return nil, err
		}
	}
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (b *fakeBot) Sent() []tgbotapi.Chattable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), b.sent...)
}

func (b *fakeBot) Requests() []tgbotapi.Chattable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), b.requests...)
}

var errParse = errors.New("Bad Request: can't parse entities: unsupported start tag")

// MockSink 记录入站事件
type MockSink struct {
	mu        sync.Mutex
	events    []*usecase.InboundEvent
	choices   []int
	sug       *usecase.Suggestion
	chooseErr error
}

func (m *MockSink) Enqueue(ctx context.Context, ev *usecase.InboundEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MockSink) Choose(ctx context.Context, suggestionID string, index int) (*usecase.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.choices = append(m.choices, index)
	if m.chooseErr != nil {
		return nil, m.chooseErr
	}
	return m.sug, nil
}

func (m *MockSink) Events() []*usecase.InboundEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*usecase.InboundEvent(nil), m.events...)
}

// MockLinks 模拟绑定管理
type MockLinks struct {
	linked   map[entity.MasterChatUID][]entity.SlaveChatUID
	linkErr  error
	unlinked []entity.SlaveChatUID
}

func (m *MockLinks) Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (*usecase.LinkView, error) {
	if m.linkErr != nil {
		return nil, m.linkErr
	}
	if m.linked == nil {
		m.linked = make(map[entity.MasterChatUID][]entity.SlaveChatUID)
	}
	m.linked[master] = append(m.linked[master], slave)
	return &usecase.LinkView{Master: master, Slave: slave, Label: "🟢 " + string(slave)}, nil
}

func (m *MockLinks) Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error) {
	n := int64(len(m.linked[master]))
	if slave != "" {
		n = 1
	}
	m.unlinked = append(m.unlinked, slave)
	delete(m.linked, master)
	return n, nil
}

func (m *MockLinks) Links(ctx context.Context, master entity.MasterChatUID) ([]usecase.LinkView, error) {
	var views []usecase.LinkView
	for _, s := range m.linked[master] {
		views = append(views, usecase.LinkView{Master: master, Slave: s, Label: "🟢 " + string(s)})
	}
	return views, nil
}

// MockPicker 模拟会话选择器
type MockPicker struct {
	mu      sync.Mutex
	opened  []usecase.PickPurpose
	filters []string
	prompts map[string]string
	picks   []int
	openSug *usecase.Suggestion
	openErr error
	pickSug *usecase.Suggestion
	pickErr error
}

func (m *MockPicker) Open(ctx context.Context, master entity.MasterChatUID, purpose usecase.PickPurpose, filter string) (*usecase.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, purpose)
	m.filters = append(m.filters, filter)
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.openSug, nil
}

func (m *MockPicker) SetPromptMessage(id, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prompts == nil {
		m.prompts = make(map[string]string)
	}
	m.prompts[id] = messageID
}

func (m *MockPicker) Pick(ctx context.Context, id string, index int) (*usecase.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.picks = append(m.picks, index)
	if m.pickErr != nil {
		return nil, m.pickErr
	}
	return m.pickSug, nil
}
