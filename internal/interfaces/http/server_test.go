package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/eventbus"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/monitoring"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/persistence"
	"github.com/ngoclaw/ngoclaw/bridge/internal/interfaces/http/handlers"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// stubSlave 最小从通道
type stubSlave struct{}

func (stubSlave) ChannelID() string    { return "wa" }
func (stubSlave) ChannelName() string  { return "WhatsApp" }
func (stubSlave) ChannelEmoji() string { return "🟢" }

func (stubSlave) SupportsKind(entity.MessageKind) bool { return true }

func (stubSlave) SendMessage(context.Context, *entity.Message) (string, error) {
	return "s1", nil
}

func (stubSlave) SendStatus(context.Context, entity.Status) error {
	return nil
}

type stubWorker struct{ alive bool }

func (w stubWorker) Alive() bool  { return w.alive }
func (w stubWorker) Pending() int { return 2 }

type stubEvents []eventbus.Record

func (e stubEvents) Recent(limit int) []eventbus.Record {
	if limit < len(e) {
		return e[:limit]
	}
	return e
}

type testServer struct {
	handler http.Handler
	log     repository.MessageLogRepository
	token   string
}

func newTestServer(t *testing.T, token string, worker handlers.WorkerStatus) *testServer {
	t.Helper()
	logger := testLogger()

	slaves := usecase.NewSlaveRegistry(logger)
	if err := slaves.Register(stubSlave{}); err != nil {
		t.Fatal(err)
	}
	log := persistence.NewMemoryMessageLogRepository()
	links := usecase.NewLinkManager(
		persistence.NewMemoryChatLinkRepository(),
		persistence.NewMemoryChatInfoRepository(),
		slaves,
		service.NewDestinationCache(service.CacheModeWarn, 20, time.Hour),
		config.StaticRelay(config.DefaultRelayConfig()),
		logger,
	)

	srv := NewServer(Config{Mode: "release", Token: token}, Deps{
		Links:   links,
		Log:     log,
		Slaves:  slaves,
		Worker:  worker,
		Monitor: monitoring.NewMonitor(logger),
		Events: stubEvents{
			{Type: eventbus.EventSlaveConnected, Timestamp: time.Now()},
			{Type: eventbus.EventRelayed, Timestamp: time.Now()},
		},
	}, logger)
	return &testServer{handler: srv.Handler(), log: log, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "", stubWorker{alive: true})
	if rec := s.do(t, "GET", "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}

	s = newTestServer(t, "", stubWorker{alive: false})
	rec := s.do(t, "GET", "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("dead worker should report 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"inbound_pending":2`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestLinksLifecycle(t *testing.T) {
	s := newTestServer(t, "", nil)

	rec := s.do(t, "POST", "/api/v1/links", map[string]string{"master": "100", "slave": "wa.alice"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, "GET", "/api/v1/links?master=100", nil)
	var list struct {
		Links []usecase.LinkView `json:"links"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Links[0].Slave != "wa.alice" {
		t.Errorf("unexpected links %+v", list)
	}

	rec = s.do(t, "DELETE", "/api/v1/links?master=100&slave=wa.alice", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":1`) {
		t.Errorf("delete = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLinksErrors(t *testing.T) {
	s := newTestServer(t, "", nil)
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing field", map[string]string{"master": "100"}, http.StatusBadRequest},
		{"bad slave id", map[string]string{"master": "100", "slave": "nodot"}, http.StatusBadRequest},
		{"unknown channel", map[string]string{"master": "100", "slave": "tg.bob"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, "POST", "/api/v1/links", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if rec := s.do(t, "DELETE", "/api/v1/links?master=100&slave=wa.alice", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unlinking a missing link = %d", rec.Code)
	}
}

func TestMessageLookup(t *testing.T) {
	s := newTestServer(t, "", nil)
	_, err := s.log.Put(context.Background(), &entity.MessageRecord{
		MasterMsgID:    "100.5",
		SlaveMessageID: "s1",
		SlaveOriginUID: "wa.alice",
		MessageType:    entity.KindText,
		Direction:      entity.DirectionToSlave,
		Text:           "hi",
		CreatedAt:      time.Now(),
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	rec := s.do(t, "GET", "/api/v1/messages/100.5", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"slave_message_id":"s1"`) {
		t.Errorf("lookup = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, "GET", "/api/v1/messages/100.6", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing message = %d", rec.Code)
	}
	if rec := s.do(t, "GET", "/api/v1/messages/nodot", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id = %d", rec.Code)
	}

	rec = s.do(t, "GET", "/api/v1/recent/100", nil)
	if !strings.Contains(rec.Body.String(), "wa.alice") {
		t.Errorf("recent chats = %s", rec.Body.String())
	}
}

func TestBearerAuth(t *testing.T) {
	s := newTestServer(t, "secret", nil)
	if rec := s.do(t, "GET", "/api/v1/slaves", nil); rec.Code != http.StatusOK {
		t.Errorf("authorized request = %d", rec.Code)
	}

	s.token = "wrong"
	if rec := s.do(t, "GET", "/api/v1/slaves", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", rec.Code)
	}
	if rec := s.do(t, "GET", "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health must stay public, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "", nil)
	rec := s.do(t, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bridge_goroutines") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestDebugEvents(t *testing.T) {
	s := newTestServer(t, "", nil)

	rec := s.do(t, "GET", "/api/v1/debug/events?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events = %d", rec.Code)
	}
	var body struct {
		Events []eventbus.Record `json:"events"`
		Count  int               `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Events[0].Type != eventbus.EventSlaveConnected {
		t.Errorf("unexpected events %+v", body)
	}

	if rec := s.do(t, "GET", "/api/v1/debug/events?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit should be 400, got %d", rec.Code)
	}
}
