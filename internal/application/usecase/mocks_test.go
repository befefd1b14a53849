package usecase_test

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// MockSlave 模拟从通道
type MockSlave struct {
	mu       sync.Mutex
	id       string
	kinds    map[entity.MessageKind]bool
	sent     []*entity.Message
	statuses []entity.Status
	sendErr  error
	nextID   int
}

func NewMockSlave(id string) *MockSlave {
	return &MockSlave{id: id}
}

func (m *MockSlave) ChannelID() string    { return m.id }
func (m *MockSlave) ChannelName() string  { return "WhatsApp" }
func (m *MockSlave) ChannelEmoji() string { return "🟢" }

func (m *MockSlave) SupportsKind(kind entity.MessageKind) bool {
	return m.kinds == nil || m.kinds[kind]
}

func (m *MockSlave) SendMessage(ctx context.Context, msg *entity.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, msg)
	if msg.Edit {
		return msg.UID, nil
	}
	m.nextID++
	return "s" + strconv.Itoa(m.nextID), nil
}

func (m *MockSlave) SendStatus(ctx context.Context, status entity.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *MockSlave) Sent() []*entity.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.Message(nil), m.sent...)
}

func (m *MockSlave) Statuses() []entity.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Status(nil), m.statuses...)
}

type notice struct {
	chat    entity.MasterChatUID
	replyTo string
	text    string
}

// MockNotifier 记录发往主会话的提示
type MockNotifier struct {
	mu        sync.Mutex
	notices   []notice
	deleted   []string
	deleteErr error
}

func (m *MockNotifier) Notify(ctx context.Context, chat entity.MasterChatUID, replyTo string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, notice{chat: chat, replyTo: replyTo, text: text})
	return nil
}

func (m *MockNotifier) DeleteMessage(ctx context.Context, chat entity.MasterChatUID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, string(chat)+"."+messageID)
	return nil
}

func (m *MockNotifier) Notices() []notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notice(nil), m.notices...)
}

func (m *MockNotifier) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// hasNotice reports whether any notice contains substr.
func (m *MockNotifier) hasNotice(substr string) bool {
	for _, n := range m.Notices() {
		if strings.Contains(n.text, substr) {
			return true
		}
	}
	return false
}

// MockPrompter 记录消歧义提示
type MockPrompter struct {
	mu          sync.Mutex
	suggestions []*usecase.Suggestion
}

func (m *MockPrompter) PromptRecipient(ctx context.Context, sug *usecase.Suggestion) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestions = append(m.suggestions, sug)
	return "prompt-" + strconv.Itoa(len(m.suggestions)), nil
}

func (m *MockPrompter) Suggestions() []*usecase.Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*usecase.Suggestion(nil), m.suggestions...)
}

// MockRenderer 模拟主平台渲染
type MockRenderer struct {
	mu      sync.Mutex
	reqs    []entity.RenderRequest
	kinds   []entity.MessageKind
	handles []entity.MasterHandle
	nextID  int
	err     error
}

func (m *MockRenderer) render(kind entity.MessageKind, req *entity.RenderRequest) (*entity.MasterHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.reqs = append(m.reqs, *req)
	m.kinds = append(m.kinds, kind)
	var h entity.MasterHandle
	if req.EditTarget != nil {
		h = *req.EditTarget
	} else {
		m.nextID++
		h = entity.MasterHandle{Chat: req.Destination, MessageID: strconv.Itoa(m.nextID)}
	}
	m.handles = append(m.handles, h)
	return &h, nil
}

func (m *MockRenderer) RenderText(ctx context.Context, req *entity.RenderRequest) (*entity.MasterHandle, error) {
	return m.render(entity.KindText, req)
}

func (m *MockRenderer) RenderImage(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	return m.render(entity.KindImage, req)
}

func (m *MockRenderer) RenderFile(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	return m.render(entity.KindFile, req)
}

func (m *MockRenderer) RenderAudio(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	return m.render(entity.KindAudio, req)
}

func (m *MockRenderer) RenderVideo(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	return m.render(entity.KindVideo, req)
}

func (m *MockRenderer) RenderSticker(ctx context.Context, req *entity.RenderRequest, media *entity.Attachment) (*entity.MasterHandle, error) {
	return m.render(entity.KindSticker, req)
}

func (m *MockRenderer) RenderLocation(ctx context.Context, req *entity.RenderRequest, loc *entity.LocationBody) (*entity.MasterHandle, error) {
	return m.render(entity.KindLocation, req)
}

func (m *MockRenderer) RenderLink(ctx context.Context, req *entity.RenderRequest, link *entity.LinkBody) (*entity.MasterHandle, error) {
	return m.render(entity.KindLink, req)
}

func (m *MockRenderer) RenderUnsupported(ctx context.Context, req *entity.RenderRequest) (*entity.MasterHandle, error) {
	return m.render(entity.KindUnsupported, req)
}

func (m *MockRenderer) Requests() []entity.RenderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.RenderRequest(nil), m.reqs...)
}

// Handles 每次渲染返回的主平台消息
func (m *MockRenderer) Handles() []entity.MasterHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.MasterHandle(nil), m.handles...)
}

// countingHook 统计转发结果
type countingHook struct {
	mu      sync.Mutex
	relayed map[entity.Direction]int
	failed  map[entity.Direction]int
}

func newCountingHook() *countingHook {
	return &countingHook{relayed: map[entity.Direction]int{}, failed: map[entity.Direction]int{}}
}

func (h *countingHook) OnRelayed(direction entity.Direction, kind entity.MessageKind, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relayed[direction]++
}

func (h *countingHook) OnRelayFailed(direction entity.Direction, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed[direction]++
}

func (h *countingHook) Counts(direction entity.Direction) (relayed, failed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.relayed[direction], h.failed[direction]
}

// syncLogWriter applies log writes immediately so tests can read them back.
type syncLogWriter struct {
	repo repository.MessageLogRepository
}

func (w syncLogWriter) PutAsync(record *entity.MessageRecord, update bool) {
	_, _ = w.repo.Put(context.Background(), record, update)
}

func (w syncLogWriter) DeleteByMasterAsync(id entity.MasterMessageUID) {
	_ = w.repo.DeleteByMaster(context.Background(), id)
}

func (w syncLogWriter) DeleteBySlaveAsync(slaveMessageID string, origin entity.SlaveChatUID) {
	_ = w.repo.DeleteBySlave(context.Background(), slaveMessageID, origin)
}

func (w syncLogWriter) Flush(ctx context.Context) error { return nil }

// slowMessageLog delays every write, like a busy sqlite file.
type slowMessageLog struct {
	repository.MessageLogRepository
	delay time.Duration
}

func (l slowMessageLog) Put(ctx context.Context, record *entity.MessageRecord, update bool) (bool, error) {
	time.Sleep(l.delay)
	return l.MessageLogRepository.Put(ctx, record, update)
}

func (l slowMessageLog) DeleteByMaster(ctx context.Context, id entity.MasterMessageUID) error {
	time.Sleep(l.delay)
	return l.MessageLogRepository.DeleteByMaster(ctx, id)
}

func (l slowMessageLog) DeleteBySlave(ctx context.Context, slaveMessageID string, origin entity.SlaveChatUID) error {
	time.Sleep(l.delay)
	return l.MessageLogRepository.DeleteBySlave(ctx, slaveMessageID, origin)
}

type fixture struct {
	links    repository.ChatLinkRepository
	log      repository.MessageLogRepository
	writer   usecase.MessageLogWriter
	infos    repository.ChatInfoRepository
	cache    *service.DestinationCache
	slaves   *usecase.SlaveRegistry
	slave    *MockSlave
	notifier *MockNotifier
	prompter *MockPrompter
	renderer *MockRenderer
	hook     *countingHook
	audit    *countingHook
	flags    config.RelayConfig
	inbound  *usecase.InboundPipeline
	outbound *usecase.OutboundPipeline
}

func newFixture(t *testing.T, mode service.CacheMode, configure func(*config.RelayConfig)) *fixture {
	t.Helper()
	return buildFixture(t, mode, configure, func(repo repository.MessageLogRepository) usecase.MessageLogWriter {
		return syncLogWriter{repo: repo}
	})
}

// newDeferredFixture writes the log through a WriteQueue over a slow store,
// the way the daemon is wired.
func newDeferredFixture(t *testing.T, mode service.CacheMode, configure func(*config.RelayConfig)) *fixture {
	t.Helper()
	logger := testLogger()
	return buildFixture(t, mode, configure, func(repo repository.MessageLogRepository) usecase.MessageLogWriter {
		queue := persistence.NewWriteQueue(logger, 64)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = queue.Close(ctx)
		})
		return persistence.NewDeferredMessageLog(slowMessageLog{MessageLogRepository: repo, delay: 50 * time.Millisecond}, queue, logger)
	})
}

func buildFixture(t *testing.T, mode service.CacheMode, configure func(*config.RelayConfig), writer func(repository.MessageLogRepository) usecase.MessageLogWriter) *fixture {
	t.Helper()
	logger := testLogger()

	f := &fixture{
		links:    persistence.NewMemoryChatLinkRepository(),
		log:      persistence.NewMemoryMessageLogRepository(),
		infos:    persistence.NewMemoryChatInfoRepository(),
		cache:    service.NewDestinationCache(mode, 20, time.Hour),
		slaves:   usecase.NewSlaveRegistry(logger),
		slave:    NewMockSlave("wa"),
		notifier: &MockNotifier{},
		prompter: &MockPrompter{},
		renderer: &MockRenderer{},
		hook:     newCountingHook(),
		audit:    newCountingHook(),
		flags:    config.DefaultRelayConfig(),
	}
	f.flags.PreventMessageRemoval = false
	f.flags.YourMessageOnSlave = config.PolicyNormal
	if configure != nil {
		configure(&f.flags)
	}
	if err := f.slaves.Register(f.slave); err != nil {
		t.Fatal(err)
	}

	f.writer = writer(f.log)
	resolver := service.NewResolver(f.links, f.log, f.cache, func() entity.MasterChatUID { return "999" }, logger)
	deps := usecase.PipelineDeps{
		Resolver:  resolver,
		Slaves:    f.slaves,
		Log:       f.log,
		LogWriter: f.writer,
		ChatInfos: f.infos,
		Flags:     config.StaticRelay(f.flags),
		Notifier:  f.notifier,
		Hook:      usecase.RelayHooks{f.hook, f.audit},
		Logger:    logger,
	}
	f.inbound = usecase.NewInboundPipeline(deps, usecase.NewSuggestionStore(time.Minute, 10), 16)
	f.inbound.SetPrompter(f.prompter)
	f.outbound = usecase.NewOutboundPipeline(deps, f.renderer)
	return f
}

func (f *fixture) link(t *testing.T, master entity.MasterChatUID, slaves ...entity.SlaveChatUID) {
	t.Helper()
	for _, s := range slaves {
		if err := f.links.Link(context.Background(), master, s, true); err != nil {
			t.Fatal(err)
		}
	}
}

// flush waits for deferred log writes so the test can read them back.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.writer.Flush(ctx); err != nil {
		t.Fatal(err)
	}
}

// drain stops the inbound worker after every queued event is processed.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.inbound.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func textEvent(chat entity.MasterChatUID, id, text string) *usecase.InboundEvent {
	return &usecase.InboundEvent{
		Kind:       usecase.EventMessage,
		MasterChat: chat,
		MessageID:  id,
		Message: &entity.Message{
			Author: entity.Author{UID: "42", Name: "Operator"},
			Text:   text,
		},
	}
}
