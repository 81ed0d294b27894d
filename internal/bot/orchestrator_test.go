package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"credibot/internal/llm"
	"credibot/internal/resolver"
	"credibot/internal/rules"
	"credibot/internal/session"
	"credibot/internal/storage"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	typing  []bool
	sendErr error
}

func (f *fakeSender) Send(ctx context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) SetTyping(ctx context.Context, userID string, typing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typing)
}

type fakeRecorder struct {
	events []storage.Event
}

func (f *fakeRecorder) AppendInteraction(ev storage.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRecorder) LoadInteractions() ([]storage.Event, error) { return f.events, nil }

type fakeArchiver struct {
	archived map[string][]session.Turn
}

func (f *fakeArchiver) Archive(ctx context.Context, userID string, history []session.Turn) error {
	if f.archived == nil {
		f.archived = make(map[string][]session.Turn)
	}
	f.archived[userID] = history
	return nil
}

func newTestOrchestrator(sender *fakeSender, rec storage.Recorder, arc Archiver) (*Orchestrator, *session.Store) {
	store := session.NewStore(time.Minute, time.Second, 12, nil)
	res := resolver.New(nil, rules.NewEngine(), "", time.Second)
	return New(store, res, sender, rec, arc, nil), store
}

func TestFreshSessionGetsMainMenu(t *testing.T) {
	sender := &fakeSender{}
	o, store := newTestOrchestrator(sender, nil, nil)

	err := o.HandleMessage(context.Background(), Inbound{UserID: "58412000001", Text: "1", Kind: KindText})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0] != rules.MainMenu {
		t.Fatalf("expected main menu as first reply, got %v", sender.sent)
	}
	if len(sender.typing) != 2 || !sender.typing[0] || sender.typing[1] {
		t.Fatalf("expected typing on then off, got %v", sender.typing)
	}

	msgs := store.Messages("58412000001")
	if len(msgs) != 2 {
		t.Fatalf("expected user+assistant turns in session, got %d", len(msgs))
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != rules.MainMenu {
		t.Fatalf("assistant turn not recorded: %+v", msgs[1])
	}
}

func TestClosingPhraseTerminatesSession(t *testing.T) {
	sender := &fakeSender{}
	arc := &fakeArchiver{}
	o, store := newTestOrchestrator(sender, nil, arc)

	ctx := context.Background()
	if err := o.HandleMessage(ctx, Inbound{UserID: "u1", Text: "hola", Kind: KindText}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("session must exist mid-conversation")
	}

	if err := o.HandleMessage(ctx, Inbound{UserID: "u1", Text: "gracias", Kind: KindText}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("closing phrase must terminate the session immediately")
	}

	// The farewell still got a reply before the session ended.
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(sender.sent))
	}

	// Transcript archived with both exchanges.
	turns := arc.archived["u1"]
	if len(turns) != 4 {
		t.Fatalf("expected 4 archived turns, got %d", len(turns))
	}
}

func TestSendFailurePreservesSession(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("network down")}
	o, store := newTestOrchestrator(sender, nil, nil)

	err := o.HandleMessage(context.Background(), Inbound{UserID: "u1", Text: "hola", Kind: KindText})
	if err == nil {
		t.Fatalf("expected send failure to surface")
	}
	if store.Len() != 1 {
		t.Fatalf("session must survive a transport failure")
	}
}

type panickyResponder struct{}

func (panickyResponder) Resolve(ctx context.Context, history []llm.Message, userID string) (string, string) {
	panic("provider state corrupted")
}

func TestPanicAnswersApologyAndPreservesSession(t *testing.T) {
	sender := &fakeSender{}
	store := session.NewStore(time.Minute, time.Second, 12, nil)
	o := New(store, panickyResponder{}, sender, nil, nil, nil)

	err := o.HandleMessage(context.Background(), Inbound{UserID: "u1", Text: "hola", Kind: KindText})
	if err == nil {
		t.Fatalf("expected orchestration failure to surface")
	}
	if len(sender.sent) != 1 || sender.sent[0] != apology {
		t.Fatalf("expected apology reply, got %v", sender.sent)
	}
	if store.Len() != 1 {
		t.Fatalf("session must survive an orchestration failure")
	}
	// The user turn stays; no assistant turn was produced.
	msgs := store.Messages("u1")
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("unexpected session contents after failure: %+v", msgs)
	}
}

func TestInteractionsAreRecorded(t *testing.T) {
	sender := &fakeSender{}
	rec := &fakeRecorder{}
	o, _ := newTestOrchestrator(sender, rec, nil)

	if err := o.HandleMessage(context.Background(), Inbound{UserID: "u1", Text: "hola", Kind: KindText}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.UserID != "u1" || ev.UserMessage != "hola" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Source != resolver.SourceRules || !ev.Fallback {
		t.Fatalf("rule-engine reply must be marked as fallback source: %+v", ev)
	}
}

func TestWarnInactiveSendsNotice(t *testing.T) {
	sender := &fakeSender{}
	o, _ := newTestOrchestrator(sender, nil, nil)

	o.WarnInactive("u1")
	if len(sender.sent) != 1 {
		t.Fatalf("expected inactivity notice, got %v", sender.sent)
	}
}

func TestOldTurnClosingPhraseDoesNotTerminate(t *testing.T) {
	sender := &fakeSender{}
	o, store := newTestOrchestrator(sender, nil, nil)

	ctx := context.Background()
	// "gracias" would close, but it is followed by a newer user turn.
	store.AppendTurn("u1", "user", "gracias")
	store.AppendTurn("u1", "assistant", "con gusto")
	if err := o.HandleMessage(ctx, Inbound{UserID: "u1", Text: "una pregunta más", Kind: KindText}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("only the latest user turn decides termination")
	}
}
