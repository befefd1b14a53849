package usecase_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
)

func TestInbound_SingleLinkRelaysAndLogs(t *testing.T) {
	f := newFixture(t, service.CacheModeWarn, nil)
	f.link(t, "100", "wa.200")
	f.inbound.Start()

	if err := f.inbound.Enqueue(context.Background(), textEvent("100", "1", "hello")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	f.drain(t)

	sent := f.slave.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(sent))
	}
	if sent[0].Chat.UID != "200" || sent[0].Chat.ChannelID != "wa" {
		t.Errorf("Delivered to %s, want wa.200", sent[0].Chat.SlaveUID())
	}
	if !sent[0].Author.IsSelf {
		t.Error("Operator messages must be marked as self")
	}

	rec, err := f.log.GetByMaster(context.Background(), "100.1")
	if err != nil || rec == nil {
		t.Fatalf("GetByMaster() = %v, %v", rec, err)
	}
	if rec.SlaveMessageID != "s1" || rec.SlaveOriginUID != "wa.200" || rec.Direction != entity.DirectionToSlave {
		t.Errorf("Unexpected record %+v", rec)
	}
	if len(f.notifier.Notices()) != 0 {
		t.Errorf("Expected no notices, got %+v", f.notifier.Notices())
	}
	for _, h := range []*countingHook{f.hook, f.audit} {
		if relayed, failed := h.Counts(entity.DirectionToSlave); relayed != 1 || failed != 0 {
			t.Errorf("Expected 1 relayed / 0 failed, got %d / %d", relayed, failed)
		}
	}
}

func TestInbound_ReplyThenQuickReply(t *testing.T) {
	f := newFixture(t, service.CacheModeWarn, nil)
	f.link(t, "100", "wa.200", "wa.300")
	if _, err := f.log.Put(context.Background(), &entity.MessageRecord{
		MasterMsgID:    "100.5",
		SlaveMessageID: "m5",
		SlaveOriginUID: "wa.300",
		Direction:      entity.DirectionToMaster,
	}, false); err != nil {
		t.Fatal(err)
	}
	f.inbound.Start()

	reply := textEvent("100", "6", "answer")
	reply.ReplyTo = "5"
	_ = f.inbound.Enqueue(context.Background(), reply)
	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "7", "follow-up"))
	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "8", "again"))
	f.drain(t)

	sent := f.slave.Sent()
	if len(sent) != 3 {
		t.Fatalf("Expected 3 deliveries, got %d", len(sent))
	}
	for i, msg := range sent {
		if msg.Chat.SlaveUID() != "wa.300" {
			t.Errorf("Delivery %d went to %s, want wa.300", i, msg.Chat.SlaveUID())
		}
	}
	if sent[0].Target != nil {
		t.Error("A reply in a multi-linked chat selects the recipient without quoting")
	}

	warnings := 0
	for _, n := range f.notifier.Notices() {
		if n.replyTo == "7" {
			warnings++
		}
		if n.replyTo == "8" {
			t.Errorf("Quick reply warning must be shown once, got %q for message 8", n.text)
		}
	}
	if warnings != 1 || !f.notifier.hasNotice("quick reply") {
		t.Errorf("Expected one quick reply warning, got %+v", f.notifier.Notices())
	}
}

func TestInbound_SingleLinkQuotesReply(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, nil)
	f.link(t, "100", "wa.200")
	f.inbound.Start()

	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "1", "first"))
	reply := textEvent("100", "2", "second")
	reply.ReplyTo = "1"
	_ = f.inbound.Enqueue(context.Background(), reply)
	f.drain(t)

	sent := f.slave.Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(sent))
	}
	if sent[1].Target == nil || sent[1].Target.UID != "s1" {
		t.Fatalf("Expected quote of s1, got %+v", sent[1].Target)
	}
}

func TestInbound_AmbiguousPromptsAndChoose(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, nil)
	f.link(t, "100", "wa.200", "wa.300")
	f.inbound.Start()

	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "1", "who gets this"))
	waitFor(t, "recipient prompt", func() bool { return len(f.prompter.Suggestions()) == 1 })

	sug := f.prompter.Suggestions()[0]
	got := []entity.SlaveChatUID{sug.Candidates[0].UID, sug.Candidates[1].UID}
	if !reflect.DeepEqual(got, []entity.SlaveChatUID{"wa.200", "wa.300"}) {
		t.Errorf("Candidates = %v", got)
	}
	if sug.Candidates[0].Label == "" {
		t.Error("Candidates should carry a label")
	}

	if _, err := f.inbound.Choose(context.Background(), sug.ID, 1); err != nil {
		t.Fatalf("Choose() error = %v", err)
	}
	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "2", "no reply, cached"))
	f.drain(t)

	sent := f.slave.Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(sent))
	}
	for _, msg := range sent {
		if msg.Chat.SlaveUID() != "wa.300" {
			t.Errorf("Delivered to %s, want wa.300", msg.Chat.SlaveUID())
		}
	}

	if _, err := f.inbound.Choose(context.Background(), sug.ID, 0); !errors.Is(err, entity.ErrUnknownCorrelation) {
		t.Errorf("A prompt can only be answered once, got %v", err)
	}
}

func TestInbound_AmbiguousWithoutPrompter(t *testing.T) {
	f := newFixture(t, service.CacheModeDisabled, nil)
	f.inbound.SetPrompter(nil)
	f.link(t, "100", "wa.200", "wa.300")
	f.inbound.Start()

	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "1", "lost"))
	f.drain(t)

	if len(f.slave.Sent()) != 0 {
		t.Fatal("Ambiguous messages must not be delivered")
	}
	if !f.notifier.hasNotice("No recipient specified") {
		t.Errorf("Expected no-recipient notice, got %+v", f.notifier.Notices())
	}
}

func TestInbound_DeliveryFailureLogsPending(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, nil)
	f.link(t, "100", "wa.200")
	f.slave.sendErr = errors.New("socket closed")
	f.inbound.Start()

	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "1", "hello"))
	f.drain(t)

	if !f.notifier.hasNotice("Failed to send message to remote chat.") {
		t.Errorf("Expected delivery failure notice, got %+v", f.notifier.Notices())
	}
	rec, err := f.log.GetByMaster(context.Background(), "100.1")
	if err != nil || rec == nil {
		t.Fatalf("Failed deliveries should still be logged, got %v, %v", rec, err)
	}
	if !rec.IsPending() {
		t.Errorf("Expected pending slave id, got %q", rec.SlaveMessageID)
	}
	if _, failed := f.hook.Counts(entity.DirectionToSlave); failed != 1 {
		t.Errorf("Expected 1 failed relay, got %d", failed)
	}
}

func TestInbound_UnsupportedType(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, nil)
	f.link(t, "100", "wa.200")
	f.slave.kinds = map[entity.MessageKind]bool{entity.KindText: true}
	f.inbound.Start()

	ev := textEvent("100", "1", "")
	ev.Message.Body = entity.StickerBody{Attachment: entity.Attachment{FileID: "f1"}}
	_ = f.inbound.Enqueue(context.Background(), ev)
	f.drain(t)

	if len(f.slave.Sent()) != 0 {
		t.Fatal("Unsupported messages must not be delivered")
	}
	if !f.notifier.hasNotice("sticker messages are not supported by WhatsApp") {
		t.Errorf("Expected unsupported notice, got %+v", f.notifier.Notices())
	}
}

func TestInbound_WorkerUnavailable(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, nil)
	f.link(t, "100", "wa.200")

	err := f.inbound.Enqueue(context.Background(), textEvent("100", "1", "hello"))
	if !errors.Is(err, entity.ErrWorkerUnavailable) {
		t.Fatalf("Expected ErrWorkerUnavailable, got %v", err)
	}
	if len(f.notifier.Notices()) != 1 {
		t.Errorf("Operator should be told immediately, got %+v", f.notifier.Notices())
	}

	f.inbound.Start()
	f.drain(t)
	if err := f.inbound.Enqueue(context.Background(), textEvent("100", "2", "late")); !errors.Is(err, entity.ErrWorkerUnavailable) {
		t.Errorf("Expected ErrWorkerUnavailable after Stop, got %v", err)
	}
}

func TestInbound_EditFollowsRecord(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, nil)
	f.link(t, "100", "wa.200", "wa.300")
	f.cache.Set("100", "wa.300")
	f.inbound.Start()

	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "1", "typo"))
	edit := textEvent("100", "1", "fixed")
	edit.Edit = true
	_ = f.inbound.Enqueue(context.Background(), edit)
	unknown := textEvent("100", "9", "never sent")
	unknown.Edit = true
	_ = f.inbound.Enqueue(context.Background(), unknown)
	f.drain(t)

	sent := f.slave.Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(sent))
	}
	if !sent[1].Edit || sent[1].UID != "s1" || sent[1].Chat.SlaveUID() != "wa.300" {
		t.Errorf("Unexpected edit delivery %+v", sent[1])
	}
	rec, _ := f.log.GetByMaster(context.Background(), "100.1")
	if rec == nil || rec.Text != "fixed" || rec.SlaveMessageID != "s1" {
		t.Errorf("Edit should update the record, got %+v", rec)
	}
	if !f.notifier.hasNotice("not found in database") {
		t.Errorf("Expected notice for unknown edit, got %+v", f.notifier.Notices())
	}
}

func TestInbound_RemoveCommand(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, nil)
	f.link(t, "100", "wa.200")
	f.inbound.Start()

	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "1", "oops"))
	_ = f.inbound.Enqueue(context.Background(), &usecase.InboundEvent{
		Kind: usecase.EventRemove, MasterChat: "100", MessageID: "2", ReplyTo: "1",
	})
	_ = f.inbound.Enqueue(context.Background(), &usecase.InboundEvent{
		Kind: usecase.EventRemove, MasterChat: "100", MessageID: "3",
	})
	f.drain(t)

	statuses := f.slave.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("Expected 1 removal, got %d", len(statuses))
	}
	removal, ok := statuses[0].(entity.MessageRemoval)
	if !ok || removal.Message.UID != "s1" {
		t.Errorf("Unexpected status %#v", statuses[0])
	}
	if got := f.notifier.Deleted(); !reflect.DeepEqual(got, []string{"100.1"}) {
		t.Errorf("Deleted = %v, want [100.1]", got)
	}
	if rec, _ := f.log.GetByMaster(context.Background(), "100.1"); rec != nil {
		t.Error("Removed message should leave the log")
	}
	if !f.notifier.hasNotice("Reply /rm to a message") {
		t.Errorf("Expected usage notice, got %+v", f.notifier.Notices())
	}
}

func TestInbound_RemoveKeepsMasterCopy(t *testing.T) {
	f := newFixture(t, service.CacheModeEnabled, func(c *config.RelayConfig) {
		c.PreventMessageRemoval = true
	})
	f.link(t, "100", "wa.200")
	f.inbound.Start()

	_ = f.inbound.Enqueue(context.Background(), textEvent("100", "1", "oops"))
	edit := textEvent("100", "1", "rm` please")
	edit.Edit = true
	_ = f.inbound.Enqueue(context.Background(), edit)
	f.drain(t)

	if len(f.slave.Statuses()) != 1 {
		t.Fatalf("Delete-flag edit should remove the message, got %d statuses", len(f.slave.Statuses()))
	}
	if len(f.notifier.Deleted()) != 0 {
		t.Error("Master copy must be kept when removal is prevented")
	}
	if !f.notifier.hasNotice("Message is removed in remote chat.") {
		t.Errorf("Expected removal notice, got %+v", f.notifier.Notices())
	}
	if len(f.slave.Sent()) != 1 {
		t.Error("Delete-flag edit must not be relayed as an edit")
	}
}
