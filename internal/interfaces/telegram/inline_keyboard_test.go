package telegram

import (
	"testing"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
)

func TestParseSuggestionCallback(t *testing.T) {
	tests := []struct {
		data  string
		id    string
		index int
		ok    bool
	}{
		{"sug:abc:0", "abc", 0, true},
		{"sug:7f1c-2b:12", "7f1c-2b", 12, true},
		{"sug:abc:x", "abc", -1, true},
		{"sug:abc:-1", "", 0, false},
		{"sug::1", "", 0, false},
		{"sug:abc", "", 0, false},
		{"void", "", 0, false},
	}
	for _, tt := range tests {
		id, index, ok := parseSuggestionCallback(tt.data)
		if id != tt.id || index != tt.index || ok != tt.ok {
			t.Errorf("parseSuggestionCallback(%q) = %q, %d, %v", tt.data, id, index, ok)
		}
	}
}

func TestPickerKeyboard(t *testing.T) {
	sug := &usecase.Suggestion{
		ID:         "7f1c",
		Candidates: []usecase.Candidate{{UID: "wa.alice", Label: "Alice"}, {UID: "wa.bob", Label: "Bob"}},
	}
	markup := BuildPickerKeyboard(sug)
	if len(markup.InlineKeyboard) != 3 {
		t.Fatalf("expected 2 choices and cancel, got %d rows", len(markup.InlineKeyboard))
	}
	data := *markup.InlineKeyboard[1][0].CallbackData
	id, index, ok := parsePickerCallback(data)
	if !ok || id != "7f1c" || index != 1 {
		t.Errorf("parsePickerCallback(%q) = %q, %d, %v", data, id, index, ok)
	}
	if _, _, ok := parseSuggestionCallback(data); ok {
		t.Error("picker buttons must not parse as recipient choices")
	}
	cancel := *markup.InlineKeyboard[2][0].CallbackData
	if _, index, ok := parsePickerCallback(cancel); !ok || index != -1 {
		t.Errorf("cancel button %q parsed as %d, %v", cancel, index, ok)
	}
}

func TestBuildInlineKeyboard_TruncatesData(t *testing.T) {
	long := make([]byte, 80)
	for i := range long {
		long[i] = 'a'
	}
	markup := BuildInlineKeyboard([][]InlineButton{{{Text: "x", CallbackData: string(long)}}})
	if got := len(*markup.InlineKeyboard[0][0].CallbackData); got != 64 {
		t.Errorf("callback data length = %d", got)
	}
}
