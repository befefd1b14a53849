package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
	"github.com/ngoclaw/ngoclaw/bridge/pkg/safego"
	"go.uber.org/zap"
)

const (
	readLimit    = 8 << 20
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	helloWait    = 10 * time.Second
	sendBuffer   = 256
)

// Session is one connected remote slave channel. After the hello handshake
// it is registered as a usecase.SlaveChannel.
type Session struct {
	channelID string
	name      string
	emoji     string
	kinds     map[entity.MessageKind]bool

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	closeMu sync.Once

	pendingMu sync.Mutex
	pending   map[string]chan *Frame
	timeout   time.Duration

	hub    *Hub
	logger *zap.Logger
}

func newSession(hub *Hub, conn *websocket.Conn, channelID string) *Session {
	return &Session{
		channelID: channelID,
		name:      channelID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		pending:   make(map[string]chan *Frame),
		timeout:   hub.timeout,
		hub:       hub,
		logger:    hub.logger.With(zap.String("channel", channelID)),
	}
}

func (s *Session) ChannelID() string    { return s.channelID }
func (s *Session) ChannelName() string  { return s.name }
func (s *Session) ChannelEmoji() string { return s.emoji }

// SupportsKind 未声明 kinds 时视为全部支持
func (s *Session) SupportsKind(kind entity.MessageKind) bool {
	return len(s.kinds) == 0 || s.kinds[kind]
}

// SendMessage forwards msg to the remote side and waits for its result frame.
func (s *Session) SendMessage(ctx context.Context, msg *entity.Message) (string, error) {
	wire, err := entity.ToWire(msg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", entity.ErrDeliveryFailure, err)
	}
	res, err := s.request(ctx, &Frame{Type: FrameSendMessage, Message: wire})
	if err != nil {
		return "", err
	}
	return res.SlaveID, nil
}

// SendStatus 发送状态 (如消息撤回)
func (s *Session) SendStatus(ctx context.Context, status entity.Status) error {
	sf, err := EncodeStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrDeliveryFailure, err)
	}
	_, err = s.request(ctx, &Frame{Type: FrameSendStatus, Status: sf})
	return err
}

func (s *Session) request(ctx context.Context, f *Frame) (*Frame, error) {
	f.ID = uuid.NewString()
	wait := make(chan *Frame, 1)

	s.pendingMu.Lock()
	s.pending[f.ID] = wait
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, f.ID)
		s.pendingMu.Unlock()
	}()

	if err := s.write(f); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-wait:
		if res.Error != "" {
			return nil, fmt.Errorf("%w: %s", entity.ErrDeliveryFailure, res.Error)
		}
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s did not answer %s within %s", entity.ErrDeliveryFailure, s.channelID, f.Type, s.timeout)
	case <-s.done:
		return nil, apperrors.NewServiceUnavailableError("slave channel "+s.channelID+" disconnected", nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// write 入队一帧, 由 writePump 发出
func (s *Session) write(f *Frame) error {
	f.Timestamp = time.Now().Unix()
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return apperrors.NewServiceUnavailableError("slave channel "+s.channelID+" disconnected", nil)
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return apperrors.NewServiceUnavailableError("slave channel "+s.channelID+" disconnected", nil)
	default:
		return apperrors.NewServiceUnavailableError("send buffer of "+s.channelID+" is full", nil)
	}
}

func (s *Session) close() {
	s.closeMu.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// handshake waits for the hello frame and applies it.
func (s *Session) handshake() error {
	_ = s.conn.SetReadDeadline(time.Now().Add(helloWait))
	var hello Frame
	if err := s.conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != FrameHello {
		return fmt.Errorf("expected hello, got %q", hello.Type)
	}
	if hello.Channel != "" && hello.Channel != s.channelID {
		return fmt.Errorf("hello for channel %q on a %q connection", hello.Channel, s.channelID)
	}
	if hello.Name != "" {
		s.name = hello.Name
	}
	s.emoji = hello.Emoji
	if len(hello.Kinds) > 0 {
		s.kinds = make(map[entity.MessageKind]bool, len(hello.Kinds))
		for _, k := range hello.Kinds {
			s.kinds[k] = true
		}
	}
	return nil
}

// readPump 读取远端帧, 按到达顺序处理
func (s *Session) readPump() {
	defer func() {
		s.hub.remove(s)
		s.close()
	}()

	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("Failed to parse frame", zap.Error(err))
			_ = s.write(&Frame{Type: FrameError, Error: "malformed frame"})
			continue
		}
		s.dispatch(&f)
	}
}

func (s *Session) dispatch(f *Frame) {
	switch f.Type {
	case FramePing:
		_ = s.write(&Frame{Type: FramePong, ID: f.ID})
	case FrameResult:
		s.pendingMu.Lock()
		wait, ok := s.pending[f.ID]
		s.pendingMu.Unlock()
		if !ok {
			s.logger.Debug("Result for unknown request", zap.String("request_id", f.ID))
			return
		}
		select {
		case wait <- f:
		default:
		}
	case FrameMessage, FrameStatus:
		err := safego.Call(s.logger, "slave-frame", func() error {
			return s.relay(f)
		})
		if err != nil {
			s.logger.Warn("Slave frame not relayed",
				zap.String("type", string(f.Type)),
				zap.String("frame_id", f.ID),
				zap.Error(err),
			)
		}
		if f.ID != "" {
			ack := &Frame{Type: FrameAck, ID: f.ID}
			if err != nil {
				ack.Error = err.Error()
			}
			_ = s.write(ack)
		}
	default:
		_ = s.write(&Frame{Type: FrameError, ID: f.ID, Error: "unexpected frame " + string(f.Type)})
	}
}

func (s *Session) relay(f *Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if f.Type == FrameStatus {
		status, err := DecodeStatus(f.Status, s.channelID)
		if err != nil {
			return apperrors.NewInvalidInputError(err.Error())
		}
		return s.hub.relay.OnSlaveStatus(ctx, status)
	}

	if f.Message == nil {
		return apperrors.NewInvalidInputError("message frame without message")
	}
	msg, err := f.Message.ToMessage()
	if err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	if msg.Chat.ChannelID != "" && msg.Chat.ChannelID != s.channelID {
		return apperrors.NewInvalidInputError("message for channel " + msg.Chat.ChannelID + " on a " + s.channelID + " connection")
	}
	msg.Chat.ChannelID = s.channelID
	if msg.Target != nil {
		msg.Target.Chat.ChannelID = s.channelID
	}
	return s.hub.relay.OnSlaveMessage(ctx, msg)
}

// writePump 发送队列中的帧并定时 ping
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
