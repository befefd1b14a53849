package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		name string
		args []string
	}{
		{"/rm", "rm", nil},
		{"/link@bridge_bot wa.alice", "link", []string{"wa.alice"}},
		{"/unlink  wa.alice  ", "unlink", []string{"wa.alice"}},
	}
	for _, tt := range tests {
		cmd := ParseCommand(tt.in)
		if cmd == nil {
			t.Fatalf("ParseCommand(%q) = nil", tt.in)
		}
		if cmd.Name != tt.name || len(cmd.Args) != len(tt.args) {
			t.Errorf("ParseCommand(%q) = %+v", tt.in, cmd)
		}
	}
	for _, in := range []string{"hello", "/", ""} {
		if ParseCommand(in) != nil {
			t.Errorf("ParseCommand(%q) should be nil", in)
		}
	}
}

func TestBridgeCommands(t *testing.T) {
	registry := NewCommandRegistry()
	links := &MockLinks{}
	RegisterBridgeCommands(registry, links)
	ctx := context.Background()

	run := func(text string) (string, error) {
		t.Helper()
		cmd := ParseCommand(text)
		cmd.ChatID = 100
		reply, handled, err := registry.Handle(ctx, cmd)
		if !handled {
			t.Fatalf("%s not handled", text)
		}
		return reply, err
	}

	if reply, _ := run("/link"); !strings.HasPrefix(reply, "Usage") {
		t.Errorf("missing usage: %q", reply)
	}
	if _, err := run("/link wa.alice"); err != nil {
		t.Fatal(err)
	}
	if reply, _ := run("/links"); !strings.Contains(reply, "1. 🟢 wa.alice [wa.alice]") {
		t.Errorf("unexpected list: %q", reply)
	}
	if reply, _ := run("/unlink"); reply != "Unlinked 1 remote chat(s)." {
		t.Errorf("unexpected unlink reply: %q", reply)
	}
	if reply, _ := run("/links"); !strings.Contains(reply, "not linked") {
		t.Errorf("unexpected list: %q", reply)
	}
	if reply, _ := run("/start"); !strings.Contains(reply, "/rm") || !strings.Contains(reply, "/react") {
		t.Errorf("help should mention /rm and /react: %q", reply)
	}

	if reply, _ := run("/unlink_all"); reply != "No remote chat is linked to this chat." {
		t.Errorf("unexpected unlink_all reply: %q", reply)
	}
	_, _ = run("/link wa.alice")
	_, _ = run("/link wa.bob")
	if reply, _ := run("/info"); !strings.Contains(reply, "Chat ID: 100") || !strings.Contains(reply, "Linked to 2 remote chat(s):\n- 🟢 wa.alice [wa.alice]") {
		t.Errorf("unexpected info: %q", reply)
	}
	if reply, _ := run("/unlink_all"); reply != "All 2 remote chat(s) have been unlinked from this chat." {
		t.Errorf("unexpected unlink_all reply: %q", reply)
	}
	if got := links.unlinked[len(links.unlinked)-1]; got != "" {
		t.Errorf("unlink_all must unlink every chat, got %q", got)
	}
	if reply, _ := run("/info"); !strings.Contains(reply, "not linked") {
		t.Errorf("unexpected info: %q", reply)
	}

	links.linkErr = errors.New("boom")
	if _, err := run("/link wa.bob"); err == nil {
		t.Error("expected link error")
	}
}

func TestCommandRegistry_Menu(t *testing.T) {
	registry := NewCommandRegistry()
	RegisterBridgeCommands(registry, &MockLinks{})
	menu := registry.Menu()
	if len(menu) != 6 {
		t.Fatalf("expected 6 menu entries, got %d", len(menu))
	}
	if menu[0].Command != "help" || menu[5].Command != "unlink_all" {
		t.Errorf("menu not sorted: %+v", menu)
	}
	if _, handled, _ := registry.Handle(context.Background(), &Command{Name: "nope"}); handled {
		t.Error("unknown command must not be handled")
	}
}
