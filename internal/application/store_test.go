package application

import (
	"context"
	"testing"

	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(&config.Config{Database: config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"}})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_LinkValidates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Link(ctx, "", "wa.1", false); !apperrors.IsInvalidInput(err) {
		t.Errorf("empty master should be invalid input, got %v", err)
	}
	if err := store.Link(ctx, "100", "nodot", false); !apperrors.IsInvalidInput(err) {
		t.Errorf("malformed slave uid should be invalid input, got %v", err)
	}
	if err := store.Link(ctx, "100", "wa.1", false); err != nil {
		t.Fatalf("link: %v", err)
	}

	all, err := store.Links.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Master != "100" || all[0].Slave != "wa.1" {
		t.Errorf("unexpected links %+v", all)
	}
}

func TestStore_LinkSingleReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Link(ctx, "100", "wa.1", false)
	_ = store.Link(ctx, "100", "wa.2", false)
	got, _ := store.Links.LinksFromMaster(ctx, "100")
	if len(got) != 1 || got[0] != "wa.2" {
		t.Errorf("single link mode should keep only the newest, got %v", got)
	}

	_ = store.Link(ctx, "100", "wa.3", true)
	got, _ = store.Links.LinksFromMaster(ctx, "100")
	if len(got) != 2 {
		t.Errorf("multiple mode should add a link, got %v", got)
	}
}

func TestStore_Unlink(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Link(ctx, "100", "wa.1", true)
	_ = store.Link(ctx, "100", "wa.2", true)
	_ = store.Link(ctx, "200", "wa.3", true)

	if _, err := store.Unlink(ctx, "200", "wa.1"); !apperrors.IsNotFound(err) {
		t.Errorf("unlinking a foreign slave should be not found, got %v", err)
	}

	n, err := store.Unlink(ctx, "100", "wa.1")
	if err != nil || n != 1 {
		t.Fatalf("unlink one: n=%d err=%v", n, err)
	}
	n, err = store.Unlink(ctx, "100", "")
	if err != nil || n != 1 {
		t.Fatalf("unlink all: n=%d err=%v", n, err)
	}

	all, _ := store.Links.All(ctx)
	if len(all) != 1 || all[0].Master != "200" {
		t.Errorf("only the other master should keep its link, got %+v", all)
	}
}

func TestDetachedMaster(t *testing.T) {
	var m detachedMaster
	if err := m.Notify(context.Background(), "100", "", "hi"); !apperrors.IsServiceUnavailable(err) {
		t.Errorf("expected service unavailable, got %v", err)
	}
	if err := m.DeleteMessage(context.Background(), "100", "1"); !apperrors.IsServiceUnavailable(err) {
		t.Errorf("expected service unavailable, got %v", err)
	}
}
