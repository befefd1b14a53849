package websocket

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 远端从通道不是浏览器, 以令牌鉴权
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Registry 从通道注册表
type Registry interface {
	Register(ch usecase.SlaveChannel) error
	Unregister(id string)
}

// Relay receives what remote slaves push towards the master side.
type Relay interface {
	OnSlaveMessage(ctx context.Context, msg *entity.Message) error
	OnSlaveStatus(ctx context.Context, status entity.Status) error
}

// Observer is told when remote slaves come and go.
type Observer interface {
	SlaveConnected(channel, name, remote string)
	SlaveDisconnected(channel string)
}

// Hub accepts websocket connections from remote slave channels and keeps
// one Session per channel id.
type Hub struct {
	registry Registry
	relay    Relay
	tokens   map[string]string
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub 创建远程从通道接入中心
func NewHub(registry Registry, relay Relay, tokens map[string]string, timeout time.Duration, logger *zap.Logger) *Hub {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Hub{
		registry: registry,
		relay:    relay,
		tokens:   tokens,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "slave-ws")),
		sessions: make(map[string]*Session),
	}
}

// SetObserver 设置上下线通知
func (h *Hub) SetObserver(o Observer) {
	h.observer = o
}

// ServeHTTP authenticates, upgrades and runs one slave connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel")
	if !h.authorized(channelID, requestToken(r)) {
		h.logger.Warn("Slave connection rejected",
			zap.String("channel", channelID),
			zap.String("remote", r.RemoteAddr),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	s := newSession(h, conn, channelID)
	if err := s.handshake(); err != nil {
		h.reject(conn, channelID, err)
		return
	}
	if err := h.registry.Register(s); err != nil {
		h.reject(conn, channelID, err)
		return
	}

	h.mu.Lock()
	h.sessions[channelID] = s
	h.mu.Unlock()

	h.logger.Info("Slave connected",
		zap.String("channel", channelID),
		zap.String("name", s.name),
		zap.String("remote", r.RemoteAddr),
	)

	if h.observer != nil {
		h.observer.SlaveConnected(channelID, s.name, r.RemoteAddr)
	}

	_ = s.write(&Frame{Type: FrameWelcome, Channel: channelID})
	safego.Go(h.logger, "slave-ws-write-"+channelID, s.writePump)
	safego.Go(h.logger, "slave-ws-read-"+channelID, s.readPump)
}

func (h *Hub) reject(conn *websocket.Conn, channelID string, err error) {
	h.logger.Warn("Slave handshake failed", zap.String("channel", channelID), zap.Error(err))
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(&Frame{Type: FrameError, Error: err.Error(), Timestamp: time.Now().Unix()})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
	_ = conn.Close()
}

// remove 断开时注销, 仅当 s 仍是该通道的当前会话
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	current, ok := h.sessions[s.channelID]
	if ok && current == s {
		delete(h.sessions, s.channelID)
	}
	h.mu.Unlock()

	if ok && current == s {
		h.registry.Unregister(s.channelID)
		h.logger.Info("Slave disconnected", zap.String("channel", s.channelID))
		if h.observer != nil {
			h.observer.SlaveDisconnected(s.channelID)
		}
	}
}

func (h *Hub) authorized(channelID, token string) bool {
	if channelID == "" || token == "" {
		return false
	}
	want, ok := h.tokens[channelID]
	if !ok || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Channels 当前在线的远程通道
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count 在线连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session. Their read pumps unregister them.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.close()
	}
}
