package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is bumped whenever WireMessage changes incompatibly.
const SnapshotVersion = 1

// WireMessage is the tagged JSON form of Message, shared by snapshots and the
// websocket slave protocol.
type WireMessage struct {
	UID       string          `json:"uid"`
	Chat      Chat            `json:"chat"`
	Author    Author          `json:"author"`
	Text      string          `json:"text,omitempty"`
	Format    TextFormat      `json:"format,omitempty"`
	Kind      MessageKind     `json:"kind"`
	Body      json.RawMessage `json:"body,omitempty"`
	Target    *WireMessage    `json:"target,omitempty"`
	Edit      bool            `json:"edit,omitempty"`
	EditMedia bool            `json:"edit_media,omitempty"`
	Reactions Reactions       `json:"reactions,omitempty"`
	Mentioned bool            `json:"mentioned,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ToWire converts m; quoted targets are kept one level deep.
func ToWire(m *Message) (*WireMessage, error) {
	return toWire(m, 1)
}

func toWire(m *Message, depth int) (*WireMessage, error) {
	body := m.Content()
	w := &WireMessage{
		UID:       m.UID,
		Chat:      m.Chat,
		Author:    m.Author,
		Text:      m.Text,
		Format:    m.Format,
		Kind:      body.Kind(),
		Edit:      m.Edit,
		EditMedia: m.EditMedia,
		Reactions: m.Reactions,
		Mentioned: m.Mentioned,
		CreatedAt: m.CreatedAt,
	}
	if body.Kind() != KindText {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", body.Kind(), err)
		}
		w.Body = raw
	}
	if m.Target != nil && depth > 0 {
		target, err := toWire(m.Target, depth-1)
		if err != nil {
			return nil, err
		}
		w.Target = target
	}
	return w, nil
}

// ToMessage converts the wire form back into a Message.
func (w *WireMessage) ToMessage() (*Message, error) {
	body, err := decodeBody(w.Kind, w.Body)
	if err != nil {
		return nil, err
	}
	m := &Message{
		UID:       w.UID,
		Chat:      w.Chat,
		Author:    w.Author,
		Text:      w.Text,
		Format:    w.Format,
		Body:      body,
		Edit:      w.Edit,
		EditMedia: w.EditMedia,
		Reactions: w.Reactions,
		Mentioned: w.Mentioned,
		CreatedAt: w.CreatedAt,
	}
	if w.Target != nil {
		target, err := w.Target.ToMessage()
		if err != nil {
			return nil, err
		}
		m.Target = target
	}
	return m, nil
}

func decodeBody(kind MessageKind, raw json.RawMessage) (Body, error) {
	switch kind {
	case KindText, "":
		return TextBody{}, nil
	case KindImage:
		var b ImageBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	case KindFile:
		var b FileBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	case KindAudio:
		var b AudioBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	case KindVideo:
		var b VideoBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	case KindSticker:
		var b StickerBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	case KindLocation:
		var b LocationBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	case KindLink:
		var b LinkBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	case KindUnsupported:
		var b UnsupportedBody
		err := unmarshalBody(kind, raw, &b)
		return b, err
	}
	return nil, &UnsupportedTypeError{TypeName: string(kind)}
}

func unmarshalBody(kind MessageKind, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s body: %w", kind, err)
	}
	return nil
}

type snapshotEnvelope struct {
	Version int             `json:"version"`
	Message json.RawMessage `json:"message"`
}

// EncodeSnapshot serializes m with the current schema version.
func EncodeSnapshot(m *Message) ([]byte, error) {
	w, err := ToWire(m)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return json.Marshal(snapshotEnvelope{Version: SnapshotVersion, Message: raw})
}

// DecodeSnapshot fails closed: any other schema version yields ErrSnapshotVersion.
func DecodeSnapshot(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrSnapshotEmpty
	}
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, env.Version, SnapshotVersion)
	}
	var w WireMessage
	if err := json.Unmarshal(env.Message, &w); err != nil {
		return nil, fmt.Errorf("decode snapshot message: %w", err)
	}
	return w.ToMessage()
}
