package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// MockRelay 记录远端推送
type MockRelay struct {
	mu       sync.Mutex
	messages []*entity.Message
	statuses []entity.Status
	err      error
}

func (m *MockRelay) OnSlaveMessage(ctx context.Context, msg *entity.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockRelay) OnSlaveStatus(ctx context.Context, status entity.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *MockRelay) Messages() []*entity.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.Message(nil), m.messages...)
}

func (m *MockRelay) Statuses() []entity.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Status(nil), m.statuses...)
}

type testEnv struct {
	hub      *Hub
	registry *usecase.SlaveRegistry
	relay    *MockRelay
	server   *httptest.Server
}

func newTestEnv(t *testing.T, timeout time.Duration) *testEnv {
	t.Helper()
	logger := testLogger()
	env := &testEnv{
		registry: usecase.NewSlaveRegistry(logger),
		relay:    &MockRelay{},
	}
	env.hub = NewHub(env.registry, env.relay, map[string]string{"wa": "secret"}, timeout, logger)
	env.server = httptest.NewServer(env.hub)
	t.Cleanup(func() {
		env.hub.Close()
		env.server.Close()
	})
	return env
}

func (e *testEnv) dial(channel, token string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/?channel=" + channel + "&token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

// connect 完成 hello 握手
func (e *testEnv) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := e.dial("wa", "secret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := Frame{Type: FrameHello, Channel: "wa", Name: "WhatsApp", Emoji: "🟢", Kinds: []entity.MessageKind{entity.KindText}}
	if err := conn.WriteJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != FrameWelcome {
		t.Fatalf("expected welcome, got %q (%s)", f.Type, f.Error)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return &f
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

type sendResult struct {
	id  string
	err error
}

func sendAsync(ch usecase.SlaveChannel, text string) <-chan sendResult {
	out := make(chan sendResult, 1)
	go func() {
		id, err := ch.SendMessage(context.Background(), &entity.Message{
			Chat: entity.Chat{ChannelID: "wa", UID: "alice"},
			Text: text,
		})
		out <- sendResult{id: id, err: err}
	}()
	return out
}

func awaitSend(t *testing.T, results <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("SendMessage did not return")
		return sendResult{}
	}
}

func TestHub_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t, time.Second)

	for _, c := range []struct{ channel, token string }{
		{"wa", "wrong"},
		{"wa", ""},
		{"tg", "secret"},
	} {
		_, resp, err := env.dial(c.channel, c.token)
		if err == nil {
			t.Fatalf("dial %s/%s should fail", c.channel, c.token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("dial %s/%s: expected 401, got %v", c.channel, c.token, resp)
		}
	}
}

func TestHub_HelloRegistersSlave(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.connect(t)

	ch, err := env.registry.Get("wa")
	if err != nil {
		t.Fatalf("slave not registered: %v", err)
	}
	if ch.ChannelName() != "WhatsApp" || ch.ChannelEmoji() != "🟢" {
		t.Errorf("unexpected channel info %q %q", ch.ChannelName(), ch.ChannelEmoji())
	}
	if !ch.SupportsKind(entity.KindText) {
		t.Error("text should be supported")
	}
	if ch.SupportsKind(entity.KindImage) {
		t.Error("image was not declared in hello")
	}
	if got := env.hub.Channels(); len(got) != 1 || got[0] != "wa" {
		t.Errorf("expected [wa], got %v", got)
	}
}

func TestHub_DuplicateChannelRejected(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.connect(t)

	conn, _, err := env.dial("wa", "secret")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(&Frame{Type: FrameHello}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != FrameError {
		t.Errorf("expected error frame, got %q", f.Type)
	}
	if env.hub.Count() != 1 {
		t.Errorf("first session should stay, got %d", env.hub.Count())
	}
}

func TestHub_HelloChannelMismatch(t *testing.T) {
	env := newTestEnv(t, time.Second)

	conn, _, err := env.dial("wa", "secret")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(&Frame{Type: FrameHello, Channel: "tg"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != FrameError {
		t.Errorf("expected error frame, got %q", f.Type)
	}
	if _, err := env.registry.Get("wa"); err == nil {
		t.Error("mismatched hello must not register")
	}
}

func TestHub_SendMessageRoundTrip(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	conn := env.connect(t)
	ch, _ := env.registry.Get("wa")

	results := sendAsync(ch, "hi")

	req := readFrame(t, conn)
	if req.Type != FrameSendMessage || req.ID == "" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Message == nil || req.Message.Text != "hi" || req.Message.Chat.UID != "alice" {
		t.Fatalf("unexpected message %+v", req.Message)
	}
	if err := conn.WriteJSON(&Frame{Type: FrameResult, ID: req.ID, SlaveID: "m1"}); err != nil {
		t.Fatal(err)
	}

	r := awaitSend(t, results)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.id != "m1" {
		t.Errorf("expected m1, got %q", r.id)
	}
}

func TestHub_SendMessageRemoteError(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	conn := env.connect(t)
	ch, _ := env.registry.Get("wa")

	results := sendAsync(ch, "hi")
	req := readFrame(t, conn)
	if err := conn.WriteJSON(&Frame{Type: FrameResult, ID: req.ID, Error: "chat gone"}); err != nil {
		t.Fatal(err)
	}

	r := awaitSend(t, results)
	if !errors.Is(r.err, entity.ErrDeliveryFailure) {
		t.Errorf("expected delivery failure, got %v", r.err)
	}
}

func TestHub_SendMessageTimeout(t *testing.T) {
	env := newTestEnv(t, 100*time.Millisecond)
	conn := env.connect(t)
	ch, _ := env.registry.Get("wa")

	results := sendAsync(ch, "hi")
	readFrame(t, conn)

	r := awaitSend(t, results)
	if !errors.Is(r.err, entity.ErrDeliveryFailure) {
		t.Errorf("expected delivery failure, got %v", r.err)
	}
}

func TestHub_SendStatus(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	conn := env.connect(t)
	ch, _ := env.registry.Get("wa")

	done := make(chan error, 1)
	go func() {
		done <- ch.SendStatus(context.Background(), entity.MessageRemoval{
			Message: &entity.Message{UID: "m1", Chat: entity.Chat{ChannelID: "wa", UID: "alice"}},
		})
	}()

	req := readFrame(t, conn)
	if req.Type != FrameSendStatus || req.Status == nil || req.Status.Type != "message_removal" {
		t.Fatalf("unexpected request %+v", req)
	}
	if err := conn.WriteJSON(&Frame{Type: FrameResult, ID: req.ID}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendStatus did not return")
	}
}

func TestHub_MessageFrameRelayed(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	conn := env.connect(t)

	frame := &Frame{
		Type: FrameMessage,
		ID:   "f1",
		Message: &entity.WireMessage{
			UID:    "m9",
			Chat:   entity.Chat{UID: "alice", Name: "Alice"},
			Author: entity.Author{UID: "alice", Name: "Alice"},
			Kind:   entity.KindText,
			Text:   "hello",
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatal(err)
	}

	ack := readFrame(t, conn)
	if ack.Type != FrameAck || ack.ID != "f1" || ack.Error != "" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	msgs := env.relay.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 relayed message, got %d", len(msgs))
	}
	if msgs[0].Chat.ChannelID != "wa" || msgs[0].Text != "hello" || msgs[0].UID != "m9" {
		t.Errorf("unexpected message %+v", msgs[0])
	}
}

func TestHub_MessageFrameWrongChannel(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	conn := env.connect(t)

	frame := &Frame{
		Type: FrameMessage,
		ID:   "f2",
		Message: &entity.WireMessage{
			UID:  "m1",
			Chat: entity.Chat{ChannelID: "tg", UID: "alice"},
			Kind: entity.KindText,
			Text: "hello",
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatal(err)
	}

	ack := readFrame(t, conn)
	if ack.ID != "f2" || ack.Error == "" {
		t.Errorf("expected error ack, got %+v", ack)
	}
	if len(env.relay.Messages()) != 0 {
		t.Error("message for another channel must not be relayed")
	}
}

func TestHub_RelayErrorAcked(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	env.relay.err = apperrors.NewNotFoundError("no such chat")
	conn := env.connect(t)

	frame := &Frame{Type: FrameMessage, ID: "f3", Message: &entity.WireMessage{UID: "m1", Chat: entity.Chat{UID: "alice"}, Text: "x"}}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatal(err)
	}
	ack := readFrame(t, conn)
	if !strings.Contains(ack.Error, "no such chat") {
		t.Errorf("expected relay error in ack, got %+v", ack)
	}
}

func TestHub_StatusFrameRelayed(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	conn := env.connect(t)

	sf, err := EncodeStatus(entity.ChatListUpdate{
		Added:   []entity.Chat{{UID: "g1", Name: "Group", Type: entity.ChatTypeGroup}},
		Removed: []string{"old"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(&Frame{Type: FrameStatus, ID: "s1", Status: sf}); err != nil {
		t.Fatal(err)
	}
	if ack := readFrame(t, conn); ack.ID != "s1" || ack.Error != "" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	statuses := env.relay.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	update, ok := statuses[0].(entity.ChatListUpdate)
	if !ok {
		t.Fatalf("expected ChatListUpdate, got %T", statuses[0])
	}
	if update.ChannelID != "wa" || len(update.Added) != 1 || update.Removed[0] != "old" {
		t.Errorf("unexpected update %+v", update)
	}
}

func TestHub_PingPong(t *testing.T) {
	env := newTestEnv(t, time.Second)
	conn := env.connect(t)

	if err := conn.WriteJSON(&Frame{Type: FramePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != FramePong || f.ID != "p1" {
		t.Errorf("expected pong, got %+v", f)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)
	conn := env.connect(t)
	ch, _ := env.registry.Get("wa")

	results := sendAsync(ch, "pending")
	readFrame(t, conn)
	conn.Close()

	r := awaitSend(t, results)
	if !apperrors.IsServiceUnavailable(r.err) {
		t.Errorf("expected service unavailable, got %v", r.err)
	}
	waitFor(t, "unregister", func() bool {
		_, err := env.registry.Get("wa")
		return errors.Is(err, entity.ErrSlaveNotFound)
	})
	if env.hub.Count() != 0 {
		t.Errorf("expected no sessions, got %d", env.hub.Count())
	}
}

func TestStatusCodec(t *testing.T) {
	sf, err := EncodeStatus(entity.MessageReactionsUpdate{
		Chat:      entity.Chat{ChannelID: "other", UID: "alice"},
		MessageID: "m1",
		Reactions: entity.Reactions{{Emoji: "👍", Users: []entity.Author{{UID: "bob"}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	status, err := DecodeStatus(sf, "wa")
	if err != nil {
		t.Fatal(err)
	}
	r, ok := status.(entity.MessageReactionsUpdate)
	if !ok {
		t.Fatalf("expected reactions update, got %T", status)
	}
	if r.Chat.ChannelID != "wa" || r.MessageID != "m1" || len(r.Reactions) != 1 {
		t.Errorf("unexpected decode %+v", r)
	}

	sf, err = EncodeStatus(entity.MessageRemoval{Message: &entity.Message{UID: "m2", Chat: entity.Chat{UID: "alice"}}})
	if err != nil {
		t.Fatal(err)
	}
	status, err = DecodeStatus(sf, "wa")
	if err != nil {
		t.Fatal(err)
	}
	removal := status.(entity.MessageRemoval)
	if removal.Message.UID != "m2" || removal.Message.Chat.SlaveUID() != "wa.alice" {
		t.Errorf("unexpected removal %+v", removal.Message)
	}

	sf, err = EncodeStatus(entity.ReactToMessage{Chat: entity.Chat{UID: "alice"}, MessageID: "m3", Reaction: "❤️"})
	if err != nil {
		t.Fatal(err)
	}
	if sf.Type != "react" {
		t.Errorf("frame type = %q, want react", sf.Type)
	}
	status, err = DecodeStatus(sf, "wa")
	if err != nil {
		t.Fatal(err)
	}
	react, ok := status.(entity.ReactToMessage)
	if !ok || react.Chat.SlaveUID() != "wa.alice" || react.MessageID != "m3" || react.Reaction != "❤️" {
		t.Errorf("unexpected react %#v", status)
	}

	if _, err := DecodeStatus(&StatusFrame{Type: "bogus"}, "wa"); err == nil {
		t.Error("unknown status type should fail")
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) SlaveConnected(channel, name, remote string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "up:"+channel+":"+name)
}

func (o *recordingObserver) SlaveDisconnected(channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "down:"+channel)
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func TestHub_ObserverNotified(t *testing.T) {
	env := newTestEnv(t, time.Second)
	obs := &recordingObserver{}
	env.hub.SetObserver(obs)

	conn := env.connect(t)
	conn.Close()

	waitFor(t, "disconnect event", func() bool { return len(obs.Events()) == 2 })
	got := obs.Events()
	if got[0] != "up:wa:WhatsApp" || got[1] != "down:wa" {
		t.Errorf("unexpected observer events %v", got)
	}
}
