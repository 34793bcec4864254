package hub

import (
	"sync"
	"testing"

	"chathub/pkg/models"
	"chathub/pkg/store"
)

// fakeSender records every event it is handed. accept=false simulates a
// connection whose buffer is full.
type fakeSender struct {
	mu     sync.Mutex
	events []Event
	accept bool
	closed bool
}

func newFakeSender() *fakeSender { return &fakeSender{accept: true} }

func (f *fakeSender) Send(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accept {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSender) take() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, NewRegistry(), opts)
}

func attach(h *Hub, connID, identity string) *fakeSender {
	s := newFakeSender()
	h.Attach(connID, identity, s)
	return s
}

func TestSendReachesBothParticipants(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")
	bob := attach(h, "c-bob", "bob")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "hi"})

	for name, s := range map[string]*fakeSender{"alice": alice, "bob": bob} {
		evs := s.take()
		if len(evs) != 1 || evs[0].Type != EvReceivePrivateMessage {
			t.Fatalf("%s events = %+v", name, evs)
		}
		m := evs[0].Message
		if m == nil || m.Text != "hi" || m.From != "alice" || m.To != "bob" || m.Status != models.StatusSent {
			t.Fatalf("%s got message %+v", name, m)
		}
		if m.ID == 0 {
			t.Fatalf("message delivered without an id")
		}
	}
}

func TestSendToOfflineRecipientStillPersists(t *testing.T) {
	h := newTestHub(t, Options{})
	attach(h, "c-alice", "alice")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "you there?"})

	msgs := h.DialogMessages("c-alice", "bob")
	if len(msgs) != 1 {
		t.Fatalf("history len = %d, want 1", len(msgs))
	}
	if msgs[0].Text != "you there?" || msgs[0].Status != models.StatusSent {
		t.Fatalf("stored message = %+v", msgs[0])
	}
}

func TestSendFromUnboundConnectionIsNoOp(t *testing.T) {
	h := newTestHub(t, Options{})
	unbound := attach(h, "c-anon", "")
	bob := attach(h, "c-bob", "bob")

	h.Handle("c-anon", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "ghost"})

	if evs := bob.take(); len(evs) != 0 {
		t.Fatalf("unbound send reached bob: %+v", evs)
	}
	if evs := unbound.take(); len(evs) != 0 {
		t.Fatalf("unbound sender got an echo: %+v", evs)
	}
	if len(h.DialogMessages("c-bob", "")) != 0 {
		t.Fatalf("unbound send was persisted")
	}
}

func TestMultiDeviceEcho(t *testing.T) {
	h := newTestHub(t, Options{})
	phone := attach(h, "c-phone", "alice")
	laptop := attach(h, "c-laptop", "alice")
	bob := attach(h, "c-bob", "bob")

	h.Handle("c-phone", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "from phone"})

	for name, s := range map[string]*fakeSender{"phone": phone, "laptop": laptop, "bob": bob} {
		if evs := s.take(); len(evs) != 1 {
			t.Fatalf("%s got %d events, want 1", name, len(evs))
		}
	}
}

func TestStatusChangeNotifiesParticipantsOnly(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")
	bob := attach(h, "c-bob", "bob")
	carol := attach(h, "c-carol", "carol")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "hi"})
	sent := alice.take()[0].Message
	bob.take()
	carol.take()

	h.Handle("c-bob", Frame{Type: OpMarkRead, ID: sent.ID})

	for name, s := range map[string]*fakeSender{"alice": alice, "bob": bob} {
		evs := s.take()
		if len(evs) != 1 || evs[0].Type != EvMessageStatusChanged || evs[0].Status != models.StatusRead {
			t.Fatalf("%s events = %+v", name, evs)
		}
	}
	if evs := carol.take(); len(evs) != 0 {
		t.Fatalf("third party saw a lifecycle event: %+v", evs)
	}
}

func TestLifecycleBroadcastAllOption(t *testing.T) {
	h := newTestHub(t, Options{LifecycleBroadcastAll: true})
	alice := attach(h, "c-alice", "alice")
	carol := attach(h, "c-carol", "carol")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "hi"})
	sent := alice.take()[0].Message
	carol.take()

	h.Handle("c-carol", Frame{Type: OpMarkDelivered, ID: sent.ID})

	evs := carol.take()
	if len(evs) != 1 || evs[0].Type != EvMessageStatusChanged {
		t.Fatalf("broadcast-all did not reach non-participant: %+v", evs)
	}
}

func TestStatusRegressionStaysSilent(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "hi"})
	sent := alice.take()[0].Message

	h.Handle("c-alice", Frame{Type: OpMarkRead, ID: sent.ID})
	alice.take()

	h.Handle("c-alice", Frame{Type: OpMarkDelivered, ID: sent.ID})
	if evs := alice.take(); len(evs) != 0 {
		t.Fatalf("regressing status produced a notification: %+v", evs)
	}
}

func TestEditNotifiesWithNewTextAndTimestamp(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")
	bob := attach(h, "c-bob", "bob")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "draft"})
	sent := alice.take()[0].Message
	bob.take()

	h.Handle("c-alice", Frame{Type: OpEditMessage, ID: sent.ID, Text: "final"})

	evs := bob.take()
	if len(evs) != 1 || evs[0].Type != EvMessageEdited {
		t.Fatalf("bob events = %+v", evs)
	}
	if evs[0].Text != "final" || evs[0].TS < sent.TS {
		t.Fatalf("edit event = %+v", evs[0])
	}
}

func TestEditUnknownIDStaysSilent(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")

	h.Handle("c-alice", Frame{Type: OpEditMessage, ID: 12345, Text: "nope"})
	if evs := alice.take(); len(evs) != 0 {
		t.Fatalf("unknown id produced a notification: %+v", evs)
	}
}

func TestDeleteNotifiesOnceAndHidesFromHistory(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")
	bob := attach(h, "c-bob", "bob")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "oops"})
	sent := alice.take()[0].Message
	bob.take()

	h.Handle("c-alice", Frame{Type: OpDeleteMessage, ID: sent.ID})
	evs := bob.take()
	if len(evs) != 1 || evs[0].Type != EvMessageDeleted || evs[0].ID != sent.ID {
		t.Fatalf("delete event = %+v", evs)
	}

	// second delete of the same id stays silent
	h.Handle("c-alice", Frame{Type: OpDeleteMessage, ID: sent.ID})
	if evs := bob.take(); len(evs) != 0 {
		t.Fatalf("repeat delete produced a notification: %+v", evs)
	}

	if len(h.DialogMessages("c-alice", "bob")) != 0 {
		t.Fatalf("deleted message still in history")
	}
}

func TestGetDialogMessagesRepliesToRequesterOnly(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")
	bob := attach(h, "c-bob", "bob")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "one"})
	h.Handle("c-bob", Frame{Type: OpSendPrivateMessage, To: "alice", Text: "two"})
	alice.take()
	bob.take()

	h.Handle("c-alice", Frame{Type: OpGetDialogMessages, With: "Bob"})

	evs := alice.take()
	if len(evs) != 1 || evs[0].Type != EvDialogMessages {
		t.Fatalf("alice events = %+v", evs)
	}
	if evs[0].With != "bob" || len(evs[0].Messages) != 2 {
		t.Fatalf("dialog event = %+v", evs[0])
	}
	if evs[0].Messages[0].Text != "one" || evs[0].Messages[1].Text != "two" {
		t.Fatalf("history out of order: %+v", evs[0].Messages)
	}
	if evs := bob.take(); len(evs) != 0 {
		t.Fatalf("history request leaked to bob: %+v", evs)
	}
}

func TestBroadcastReachesEveryoneIncludingUnbound(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")
	anon := attach(h, "c-anon", "")

	h.Handle("c-alice", Frame{Type: OpSendMessage, User: "spoofed", Text: "hello room"})

	for name, s := range map[string]*fakeSender{"alice": alice, "anon": anon} {
		evs := s.take()
		if len(evs) != 1 || evs[0].Type != EvReceiveMessage {
			t.Fatalf("%s events = %+v", name, evs)
		}
		// bound identity wins over the client-supplied label
		if evs[0].User != "alice" || evs[0].Text != "hello room" {
			t.Fatalf("%s broadcast = %+v", name, evs[0])
		}
	}
}

func TestUnknownFrameTypeDropped(t *testing.T) {
	h := newTestHub(t, Options{})
	alice := attach(h, "c-alice", "alice")
	h.Handle("c-alice", Frame{Type: "make_coffee"})
	if evs := alice.take(); len(evs) != 0 {
		t.Fatalf("unknown frame produced events: %+v", evs)
	}
}

func TestFailedSendDetachesConnection(t *testing.T) {
	h := newTestHub(t, Options{})
	attach(h, "c-alice", "alice")
	stuck := attach(h, "c-bob", "bob")
	stuck.accept = false

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "hi"})

	stuck.mu.Lock()
	closed := stuck.closed
	stuck.mu.Unlock()
	if !closed {
		t.Fatalf("stuck connection not closed")
	}
	if len(h.Registry().ConnectionsFor("bob")) != 0 {
		t.Fatalf("stuck connection still registered")
	}
}

// relayRecorder captures published envelopes.
type relayRecorder struct {
	mu   sync.Mutex
	envs []RemoteEnvelope
}

func (r *relayRecorder) Publish(env RemoteEnvelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

func TestRelayPublishAndRemoteDelivery(t *testing.T) {
	h := newTestHub(t, Options{})
	rec := &relayRecorder{}
	h.SetRelay(rec, "hub-a")
	alice := attach(h, "c-alice", "alice")

	h.Handle("c-alice", Frame{Type: OpSendPrivateMessage, To: "bob", Text: "hi"})
	alice.take()

	rec.mu.Lock()
	if len(rec.envs) != 1 || rec.envs[0].Origin != "hub-a" {
		rec.mu.Unlock()
		t.Fatalf("published envelopes = %+v", rec.envs)
	}
	env := rec.envs[0]
	rec.mu.Unlock()

	// own envelope coming back is ignored
	h.DeliverRemote(env)
	if evs := alice.take(); len(evs) != 0 {
		t.Fatalf("own envelope redelivered: %+v", evs)
	}

	// a sibling's envelope lands on the local participant
	env.Origin = "hub-b"
	h.DeliverRemote(env)
	evs := alice.take()
	if len(evs) != 1 || evs[0].Type != EvReceivePrivateMessage {
		t.Fatalf("remote envelope not delivered: %+v", evs)
	}
}
