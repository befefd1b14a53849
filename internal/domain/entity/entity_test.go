package entity

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSlaveChatUID_Split(t *testing.T) {
	tests := []struct {
		uid     SlaveChatUID
		channel string
		chat    string
		wantErr bool
	}{
		{"wa.200", "wa", "200", false},
		{"tg.-100.5", "tg", "-100.5", false},
		{"nodot", "", "", true},
		{".200", "", "", true},
		{"wa.", "", "", true},
	}
	for _, tt := range tests {
		channel, chat, err := tt.uid.Split()
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.uid, err, tt.wantErr)
			continue
		}
		if channel != tt.channel || chat != tt.chat {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.uid, channel, chat, tt.channel, tt.chat)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidSlaveChatUID) {
			t.Errorf("%q: error should wrap ErrInvalidSlaveChatUID", tt.uid)
		}
	}
}

func TestMasterMessageUID(t *testing.T) {
	uid := NewMasterMessageUID("-100123", "42")
	if uid != "-100123.42" {
		t.Fatalf("got %q", uid)
	}
	if uid.Chat() != "-100123" || uid.MessageID() != "42" {
		t.Errorf("split: chat=%q msg=%q", uid.Chat(), uid.MessageID())
	}
	if uid.IsPending() {
		t.Error("real id reported as pending")
	}

	pending := NewMasterMessageUID("100", NewPendingID(time.Unix(10, 0)))
	if !pending.IsPending() {
		t.Errorf("%q should be pending", pending)
	}
}

func TestPendingID(t *testing.T) {
	id := NewPendingID(time.Unix(0, 1234))
	if id != "__fail__.1234" {
		t.Errorf("got %q", id)
	}
	if !IsPendingID(id) {
		t.Error("IsPendingID should be true")
	}
	if IsPendingID("wa.555") {
		t.Error("IsPendingID should be false for a real id")
	}
}

func TestReactions_Footer(t *testing.T) {
	user := Author{UID: "u1", Name: "user1"}
	tests := []struct {
		name string
		in   Reactions
		want string
	}{
		{"empty", nil, ""},
		{"single", Reactions{{Emoji: "👍", Users: []Author{user}}}, "[👍×1]"},
		{"skips empty groups", Reactions{{Emoji: "😂"}, {Emoji: "❤️", Users: []Author{user, user}}}, "[❤️×2]"},
		{"keeps order", Reactions{{Emoji: "b", Users: []Author{user}}, {Emoji: "a", Users: []Author{user}}}, "[b×1, a×1]"},
		{"all empty", Reactions{{Emoji: "👍"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Footer(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageRecord_ApplyIsIdempotent(t *testing.T) {
	stored := &MessageRecord{
		MasterMsgID:    "100.1",
		SlaveMessageID: "wa.555",
		SlaveOriginUID: "wa.200",
		Text:           "hi",
		MessageType:    KindText,
	}
	update := &MessageRecord{
		MasterMsgID:    "100.1",
		MasterMsgIDAlt: "100.2",
		Text:           "hi (edited)",
	}

	if !stored.Apply(PatchFrom(update)) {
		t.Fatal("first apply should change the record")
	}
	after := *stored
	if stored.Apply(PatchFrom(update)) {
		t.Error("second apply should be a no-op")
	}
	if stored.MasterMsgIDAlt != after.MasterMsgIDAlt || stored.Text != after.Text {
		t.Errorf("record drifted: %+v vs %+v", stored, after)
	}
	if stored.SlaveMessageID != "wa.555" || stored.SlaveOriginUID != "wa.200" {
		t.Errorf("empty fields must not overwrite: %+v", stored)
	}
	if stored.EditTarget() != "100.2" {
		t.Errorf("EditTarget = %q, want alt id", stored.EditTarget())
	}
}

func TestRecordPatch_ExplicitEmptyValue(t *testing.T) {
	r := &MessageRecord{MasterMsgID: "1.1", Text: "old"}
	empty := ""
	r.Apply(RecordPatch{Text: &empty})
	if r.Text != "" {
		t.Errorf("explicit empty patch should clear the text, got %q", r.Text)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{
		UID:    "wa.555",
		Chat:   Chat{ChannelID: "wa", UID: "200", Name: "Alice", Type: ChatTypeUser},
		Author: Author{UID: "alice", Name: "Alice"},
		Text:   "look",
		Body:   ImageBody{Attachment{FileID: "f1", MIME: "image/png", Data: []byte("raw")}},
		Target: &Message{
			UID:    "wa.554",
			Text:   "earlier",
			Target: &Message{UID: "wa.1"},
		},
		Reactions: Reactions{{Emoji: "👍", Users: []Author{{UID: "u1"}}}},
		CreatedAt: created,
	}

	data, err := EncodeSnapshot(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	img, ok := got.Body.(ImageBody)
	if !ok {
		t.Fatalf("body type = %T, want ImageBody", got.Body)
	}
	if img.FileID != "f1" || img.MIME != "image/png" {
		t.Errorf("attachment = %+v", img.Attachment)
	}
	if img.Data != nil {
		t.Error("attachment data must not be persisted")
	}
	if got.Target == nil || got.Target.UID != "wa.554" {
		t.Fatalf("target = %+v", got.Target)
	}
	if got.Target.Target != nil {
		t.Error("nested target should be dropped")
	}
	if got.Reactions.Footer() != "[👍×1]" {
		t.Errorf("reactions = %+v", got.Reactions)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v", got.CreatedAt)
	}
}

func TestSnapshot_VersionMismatchFailsClosed(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"version": SnapshotVersion + 1,
		"message": map[string]any{"uid": "x", "kind": "text"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeSnapshot(data); !errors.Is(err, ErrSnapshotVersion) {
		t.Errorf("err = %v, want ErrSnapshotVersion", err)
	}
	if _, err := DecodeSnapshot(nil); !errors.Is(err, ErrSnapshotEmpty) {
		t.Errorf("err = %v, want ErrSnapshotEmpty", err)
	}
}

func TestSnapshot_UnknownKind(t *testing.T) {
	w := &WireMessage{UID: "x", Kind: "hologram"}
	_, err := w.ToMessage()
	if !errors.Is(err, ErrUnsupportedMessageType) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "hologram") {
		t.Errorf("error should name the type: %v", err)
	}
}

func TestMessage_LogText(t *testing.T) {
	m := &Message{Body: StickerBody{}}
	if got := m.LogText(); got != "Sent a sticker." {
		t.Errorf("got %q", got)
	}
	m.Text = "caption"
	if got := m.LogText(); got != "caption" {
		t.Errorf("got %q", got)
	}
}

func TestAmbiguousDestinationError(t *testing.T) {
	err := error(&AmbiguousDestinationError{Candidates: []SlaveChatUID{"b.2", "a.1"}})
	if !errors.Is(err, ErrAmbiguousDestination) {
		t.Error("should match ErrAmbiguousDestination")
	}
	var amb *AmbiguousDestinationError
	if !errors.As(err, &amb) || len(amb.Candidates) != 2 {
		t.Errorf("errors.As failed: %v", err)
	}
}

func TestDeliveryError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := error(&DeliveryError{Channel: "wa", Err: cause})
	if !errors.Is(err, ErrDeliveryFailure) || !errors.Is(err, cause) {
		t.Errorf("unwrap chain broken: %v", err)
	}
}
