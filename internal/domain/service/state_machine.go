package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

// RelayState is the lifecycle state of one inbound message.
type RelayState string

const (
	StateReceived RelayState = "received" // 已入队
	StateResolved RelayState = "resolved" // 目标已确定
	StateTyped    RelayState = "typed"    // 已转换为内部消息
	StateRendered RelayState = "rendered" // 从通道已接收
	StateLogged   RelayState = "logged"   // 关联记录已写入
	StateRejected RelayState = "rejected" // 任一步骤失败
)

// validTransitions defines the allowed state transitions.
// Key = from state, Value = set of allowed target states.
var validTransitions = map[RelayState]map[RelayState]bool{
	StateReceived: {
		StateResolved: true,
		StateRejected: true,
	},
	StateResolved: {
		StateTyped:    true,
		StateRejected: true,
	},
	StateTyped: {
		StateRendered: true,
		StateRejected: true,
	},
	StateRendered: {
		StateLogged:   true,
		StateRejected: true,
	},
	// Terminal states, no transitions out
	StateLogged:   {},
	StateRejected: {},
}

// StateSnapshot captures one message's relay progress.
type StateSnapshot struct {
	State       RelayState              `json:"state"`
	MessageUID  entity.MasterMessageUID `json:"master_msg_id"`
	Destination entity.SlaveChatUID     `json:"destination,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	Elapsed     time.Duration           `json:"elapsed"`
}

// StateMachine tracks the relay of a single inbound message.
// Every transition is logged with the message id so one message can be
// followed through the worker's log.
type StateMachine struct {
	mu          sync.RWMutex
	state       RelayState
	messageUID  entity.MasterMessageUID
	destination entity.SlaveChatUID
	reason      string
	startTime   time.Time
	logger      *zap.Logger

	// Listeners notified on each state transition
	listeners []func(from, to RelayState, snap StateSnapshot)
}

// NewStateMachine creates a state machine starting in Received.
func NewStateMachine(messageUID entity.MasterMessageUID, logger *zap.Logger) *StateMachine {
	return &StateMachine{
		state:      StateReceived,
		messageUID: messageUID,
		startTime:  time.Now(),
		logger:     logger,
	}
}

// State returns the current state (thread-safe).
func (sm *StateMachine) State() RelayState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Snapshot returns a full copy of the current state.
func (sm *StateMachine) Snapshot() StateSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:       sm.state,
		MessageUID:  sm.messageUID,
		Destination: sm.destination,
		Reason:      sm.reason,
		Elapsed:     time.Since(sm.startTime),
	}
}

// Transition attempts to move to a new state.
// Returns error if the transition is not allowed.
func (sm *StateMachine) Transition(to RelayState) error {
	sm.mu.Lock()
	from := sm.state

	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		err := fmt.Errorf("invalid state transition: %s → %s", from, to)
		sm.logger.Error("State machine violation",
			zap.String("master_msg_id", string(sm.messageUID)),
			zap.Error(err),
		)
		return err
	}

	sm.state = to
	snap := sm.snapshotLocked()
	listeners := make([]func(from, to RelayState, snap StateSnapshot), len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	fields := []zap.Field{
		zap.String("master_msg_id", string(snap.MessageUID)),
		zap.String("from", string(from)),
		zap.String("state", string(to)),
	}
	if snap.Destination != "" {
		fields = append(fields, zap.String("slave_chat", string(snap.Destination)))
	}
	if to == StateRejected {
		fields = append(fields, zap.String("reason", snap.Reason))
		sm.logger.Info("Relay rejected", fields...)
	} else {
		sm.logger.Debug("Relay state", fields...)
	}

	// Notify listeners outside lock
	for _, fn := range listeners {
		fn(from, to, snap)
	}

	return nil
}

// Resolve records the destination and moves to Resolved.
func (sm *StateMachine) Resolve(dest entity.SlaveChatUID) error {
	sm.mu.Lock()
	sm.destination = dest
	sm.mu.Unlock()
	return sm.Transition(StateResolved)
}

// Reject records the failure reason and moves to Rejected.
// Rejecting a message that is already terminal is a no-op.
func (sm *StateMachine) Reject(err error) {
	if sm.IsTerminal() {
		return
	}
	sm.mu.Lock()
	if err != nil {
		sm.reason = err.Error()
	}
	sm.mu.Unlock()
	_ = sm.Transition(StateRejected)
}

// OnTransition registers a listener called on every state change.
func (sm *StateMachine) OnTransition(fn func(from, to RelayState, snap StateSnapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// IsTerminal returns true if the message reached Logged or Rejected.
func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	switch sm.state {
	case StateLogged, StateRejected:
		return true
	}
	return false
}
