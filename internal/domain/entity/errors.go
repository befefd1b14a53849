package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Identifier errors
	ErrInvalidSlaveChatUID     = errors.New("invalid slave chat uid")
	ErrInvalidMasterMessageUID = errors.New("invalid master message uid")
	ErrInvalidChannelID        = errors.New("invalid channel id")

	// Routing errors
	ErrAmbiguousDestination   = errors.New("ambiguous destination")
	ErrUnknownCorrelation     = errors.New("unknown correlation")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrCrossChannelQuote      = errors.New("cross-channel quote")
	ErrDeliveryFailure        = errors.New("delivery failure")
	ErrWorkerUnavailable      = errors.New("inbound worker unavailable")
	ErrSlaveNotFound          = errors.New("slave channel not found")

	// Snapshot errors
	ErrSnapshotVersion = errors.New("snapshot version mismatch")
	ErrSnapshotEmpty   = errors.New("snapshot missing")
)

// AmbiguousDestinationError carries the disambiguation candidates.
type AmbiguousDestinationError struct {
	Candidates []SlaveChatUID
}

func (e *AmbiguousDestinationError) Error() string {
	if len(e.Candidates) == 0 {
		return "no recipient specified"
	}
	parts := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		parts[i] = string(c)
	}
	return "no recipient specified, candidates: " + strings.Join(parts, ", ")
}

func (e *AmbiguousDestinationError) Unwrap() error { return ErrAmbiguousDestination }

// UnsupportedTypeError 不支持的消息类型
type UnsupportedTypeError struct {
	TypeName string
	Channel  string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s messages are not supported by %s", e.TypeName, e.Channel)
	}
	return fmt.Sprintf("%s messages are not supported", e.TypeName)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedMessageType }

// DeliveryError wraps a slave adapter failure.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrDeliveryFailure, e.Err} }
