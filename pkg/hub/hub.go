package hub

import (
	"sync"

	"go.uber.org/zap"

	"chathub/pkg/logger"
	"chathub/pkg/models"
	"chathub/pkg/store"
	"chathub/pkg/validation"
)

// Sender is one attached connection as the hub sees it. Send returns
// false when the connection cannot take the event (buffer full, closing);
// the hub then detaches and closes it.
type Sender interface {
	Send(Event) bool
	Close()
}

// Options tune hub behavior from config.
type Options struct {
	// LifecycleBroadcastAll sends status/edit/delete events to every
	// connection instead of just the dialog participants. Kept as a
	// compatibility switch for clients that relied on the old behavior.
	LifecycleBroadcastAll bool
}

// Hub is the orchestrating component: it owns the set of live
// connections, resolves delivery targets through the Registry, applies
// operations to the Store and fans notifications out. Every exported
// operation is safe to call from any number of connections at once.
//
// Side effects always run in the same order: store mutation, durable
// write (inside the store call), then fan-out. A client that observes a
// notification will therefore also observe the change in a history
// fetch.
type Hub struct {
	store *store.Store
	reg   *Registry
	opts  Options

	mu    sync.RWMutex
	conns map[string]Sender

	relay    Relay
	instance string
}

func New(st *store.Store, reg *Registry, opts Options) *Hub {
	return &Hub{
		store: st,
		reg:   reg,
		opts:  opts,
		conns: make(map[string]Sender),
	}
}

// Registry exposes the connection registry (REST handlers report on it).
func (h *Hub) Registry() *Registry { return h.reg }

// SetRelay wires the optional cross-instance relay. instanceID lets the
// hub ignore its own published envelopes.
func (h *Hub) SetRelay(r Relay, instanceID string) {
	h.relay = r
	h.instance = instanceID
}

// Attach registers a connection and, when identity is non-empty, binds
// it. An empty identity attaches unbound: it receives broadcast traffic
// but never private traffic.
func (h *Hub) Attach(connID, identity string, s Sender) {
	h.mu.Lock()
	h.conns[connID] = s
	h.mu.Unlock()
	liveConnections.Inc()
	h.reg.Bind(connID, identity)
	logger.Log.Info("connection_attached",
		zap.String("conn", connID),
		zap.String("identity", models.CanonIdentity(identity)))
}

// Detach removes a connection and its binding. Idempotent.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	_, ok := h.conns[connID]
	delete(h.conns, connID)
	h.mu.Unlock()
	h.reg.Unbind(connID)
	if ok {
		liveConnections.Dec()
		logger.Log.Info("connection_detached", zap.String("conn", connID))
	}
}

// Handle dispatches one client frame. Unknown types are counted and
// dropped.
func (h *Hub) Handle(connID string, f Frame) {
	framesTotal.WithLabelValues(f.Type).Inc()
	switch f.Type {
	case OpSendPrivateMessage:
		h.SendPrivateMessage(connID, f)
	case OpMarkDelivered:
		h.MarkDelivered(f.ID)
	case OpMarkRead:
		h.MarkRead(f.ID)
	case OpEditMessage:
		h.EditMessage(f.ID, f.Text)
	case OpDeleteMessage:
		h.DeleteMessage(f.ID)
	case OpGetDialogMessages:
		h.sendDialogMessages(connID, f.With)
	case OpSendMessage:
		h.Broadcast(connID, f.User, f.Text)
	default:
		droppedFrames.Inc()
		logger.Log.Debug("unknown_frame_type", zap.String("type", f.Type), zap.String("conn", connID))
	}
}

// SendPrivateMessage appends a new Sent message from the connection's
// bound identity and echoes it to every connection of both participants,
// so the sender's other devices see it too. Unbound callers are a silent
// no-op; the message still lands durably when the recipient is offline.
func (h *Hub) SendPrivateMessage(connID string, f Frame) {
	from, bound := h.reg.IdentityOf(connID)
	if !bound {
		droppedFrames.Inc()
		logger.Log.Debug("send_from_unbound_connection", zap.String("conn", connID))
		return
	}
	m := models.Message{
		From:        from,
		To:          f.To,
		Text:        f.Text,
		IsFile:      f.IsFile,
		FileName:    f.FileName,
		FileContent: f.FileContent,
		Status:      models.StatusSent,
	}
	if err := validation.CheckMessage(m); err != nil {
		droppedFrames.Inc()
		logger.Log.Warn("message_rejected", zap.String("from", from), zap.Error(err))
		return
	}
	stored, err := h.store.Append(m)
	if err != nil {
		logger.Log.Error("append_failed", zap.String("from", from), zap.Error(err))
		return
	}
	ev := Event{Type: EvReceivePrivateMessage, Message: &stored}
	h.deliver(ev, h.participantConns(stored))
	h.publish(RemoteEnvelope{Event: ev, From: stored.From, To: stored.To})
}

// MarkDelivered advances a message to delivered and notifies.
func (h *Hub) MarkDelivered(id uint64) {
	h.markStatus(id, models.StatusDelivered)
}

// MarkRead advances a message to read and notifies.
func (h *Hub) MarkRead(id uint64) {
	h.markStatus(id, models.StatusRead)
}

func (h *Hub) markStatus(id uint64, st models.Status) {
	m, changed := h.store.UpdateStatus(id, st)
	if !changed {
		return
	}
	ev := Event{Type: EvMessageStatusChanged, ID: m.ID, Status: m.Status}
	h.deliver(ev, h.lifecycleTargets(m))
	h.publish(RemoteEnvelope{Event: ev, From: m.From, To: m.To, Broadcast: h.opts.LifecycleBroadcastAll})
}

// EditMessage replaces a message's text, refreshes its timestamp and
// notifies. Unknown ids change nothing and notify nobody.
func (h *Hub) EditMessage(id uint64, text string) {
	m, changed := h.store.UpdateText(id, text)
	if !changed {
		return
	}
	ev := Event{Type: EvMessageEdited, ID: m.ID, Text: m.Text, TS: m.TS}
	h.deliver(ev, h.lifecycleTargets(m))
	h.publish(RemoteEnvelope{Event: ev, From: m.From, To: m.To, Broadcast: h.opts.LifecycleBroadcastAll})
}

// DeleteMessage removes a message; only an actual removal is notified, a
// second delete of the same id stays silent.
func (h *Hub) DeleteMessage(id uint64) {
	m, removed := h.store.Remove(id)
	if !removed {
		return
	}
	ev := Event{Type: EvMessageDeleted, ID: m.ID}
	h.deliver(ev, h.lifecycleTargets(m))
	h.publish(RemoteEnvelope{Event: ev, From: m.From, To: m.To, Broadcast: h.opts.LifecycleBroadcastAll})
}

// DialogMessages returns the ordered history between the connection's
// identity and the counterpart. Unbound connections get an empty list.
func (h *Hub) DialogMessages(connID, with string) []models.Message {
	me, bound := h.reg.IdentityOf(connID)
	if !bound {
		return []models.Message{}
	}
	msgs, err := h.store.History(me, with)
	if err != nil {
		logger.Log.Error("history_failed", zap.String("identity", me), zap.Error(err))
		return []models.Message{}
	}
	return msgs
}

func (h *Hub) sendDialogMessages(connID, with string) {
	msgs := h.DialogMessages(connID, with)
	h.deliver(Event{
		Type:     EvDialogMessages,
		With:     models.CanonIdentity(with),
		Messages: msgs,
	}, []string{connID})
}

// Broadcast pushes a legacy non-private message to every attached
// connection, unbound ones included. The bound identity wins over the
// client-supplied user label when present.
func (h *Hub) Broadcast(connID, user, text string) {
	if identity, bound := h.reg.IdentityOf(connID); bound {
		user = identity
	}
	ev := Event{Type: EvReceiveMessage, User: user, Text: text}
	h.deliver(ev, h.allConns())
	h.publish(RemoteEnvelope{Event: ev, Broadcast: true})
}

// DeliverRemote applies an envelope received from a sibling instance,
// delivering to local connections only. Own envelopes are ignored.
func (h *Hub) DeliverRemote(env RemoteEnvelope) {
	if env.Origin == h.instance {
		return
	}
	if env.Broadcast {
		h.deliver(env.Event, h.allConns())
		return
	}
	targets := append(h.reg.ConnectionsFor(env.From), h.reg.ConnectionsFor(env.To)...)
	h.deliver(env.Event, targets)
}

// participantConns is the union of both participants' live connections.
func (h *Hub) participantConns(m models.Message) []string {
	targets := h.reg.ConnectionsFor(m.From)
	if m.To != m.From {
		targets = append(targets, h.reg.ConnectionsFor(m.To)...)
	}
	return targets
}

func (h *Hub) lifecycleTargets(m models.Message) []string {
	if h.opts.LifecycleBroadcastAll {
		return h.allConns()
	}
	return h.participantConns(m)
}

func (h *Hub) allConns() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	return out
}

// deliver sends ev to each target connection. The sender map is
// snapshotted under the read lock; sends happen outside any lock.
// Connections that cannot take the event are detached and closed, a send
// to an already-gone connection is a no-op.
func (h *Hub) deliver(ev Event, targets []string) {
	if len(targets) == 0 {
		return
	}
	h.mu.RLock()
	senders := make(map[string]Sender, len(targets))
	for _, id := range targets {
		if s, ok := h.conns[id]; ok {
			senders[id] = s
		}
	}
	h.mu.RUnlock()

	for id, s := range senders {
		if s.Send(ev) {
			fanoutTotal.WithLabelValues(ev.Type).Inc()
			continue
		}
		fanoutDropped.Inc()
		logger.Log.Warn("fanout_dropped_connection", zap.String("conn", id), zap.String("event", ev.Type))
		h.Detach(id)
		s.Close()
	}
}

func (h *Hub) publish(env RemoteEnvelope) {
	if h.relay == nil {
		return
	}
	env.Origin = h.instance
	h.relay.Publish(env)
}
