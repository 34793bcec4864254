package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chathub/pkg/api"
	"chathub/pkg/config"
	"chathub/pkg/hub"
	"chathub/pkg/models"
	"chathub/pkg/store"
)

type env struct {
	srv *httptest.Server
	st  *store.Store
	hub *hub.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	h := hub.New(st, hub.NewRegistry(), hub.Options{})
	srv := httptest.NewServer(api.New(api.Deps{
		Hub:   h,
		Store: st,
		Cfg:   &config.Config{},
		RunRetention: func() (int, error) {
			return st.Purge(time.Now().Add(time.Hour))
		},
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return &env{srv: srv, st: st, hub: h}
}

func (e *env) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) hub.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev hub.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWebsocketPrivateMessageRoundTrip(t *testing.T) {
	e := newEnv(t)
	alice := e.dial(t, "alice")
	bob := e.dial(t, "bob")

	// registry binding is part of the upgrade; wait for it
	waitFor(t, func() bool { return e.hub.Registry().Bound() == 2 })

	if err := alice.WriteJSON(hub.Frame{Type: hub.OpSendPrivateMessage, To: "bob", Text: "hi"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		ev := readEvent(t, conn)
		if ev.Type != hub.EvReceivePrivateMessage || ev.Message == nil || ev.Message.Text != "hi" {
			t.Fatalf("%s got %+v", name, ev)
		}
	}
}

func TestWebsocketMalformedFrameKeepsConnection(t *testing.T) {
	e := newEnv(t)
	alice := e.dial(t, "alice")
	waitFor(t, func() bool { return e.hub.Registry().Bound() == 1 })

	if err := alice.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// connection survives and still works
	if err := alice.WriteJSON(hub.Frame{Type: hub.OpGetDialogMessages, With: "bob"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	ev := readEvent(t, alice)
	if ev.Type != hub.EvDialogMessages {
		t.Fatalf("got %+v", ev)
	}
}

func TestWebsocketInvalidIdentityAttachesUnbound(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "bad%7Cpipe") // "bad|pipe" url-encoded

	if err := conn.WriteJSON(hub.Frame{Type: hub.OpSendPrivateMessage, To: "bob", Text: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// give the server a moment, then confirm nothing was persisted
	time.Sleep(100 * time.Millisecond)
	if e.st.LastID() != 0 {
		t.Fatalf("unbound send was persisted")
	}
	if e.hub.Registry().Bound() != 0 {
		t.Fatalf("invalid identity was bound")
	}
}

func TestRESTDialogHistory(t *testing.T) {
	e := newEnv(t)
	seedDialog(t, e.st)

	res, err := http.Get(e.srv.URL + "/v1/dialogs/Alice/bob/messages")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(out.Messages))
	}

	// limit returns the newest slice
	res2, err := http.Get(e.srv.URL + "/v1/dialogs/alice/bob/messages?limit=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res2.Body.Close()
	if err := json.NewDecoder(res2.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Text != "three" {
		t.Fatalf("limited messages = %+v", out.Messages)
	}
}

func TestRESTDialogAndIdentityListings(t *testing.T) {
	e := newEnv(t)
	seedDialog(t, e.st)

	res, err := http.Get(e.srv.URL + "/v1/dialogs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	var dl struct {
		Dialogs []models.DialogSummary `json:"dialogs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&dl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dl.Dialogs) != 1 || dl.Dialogs[0].Key != "alice|bob" {
		t.Fatalf("dialogs = %+v", dl.Dialogs)
	}

	res2, err := http.Get(e.srv.URL + "/v1/identities")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res2.Body.Close()
	var il struct {
		Identities []string `json:"identities"`
	}
	if err := json.NewDecoder(res2.Body).Decode(&il); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(il.Identities) != 2 {
		t.Fatalf("identities = %v", il.Identities)
	}
}

func TestRESTMessageByID(t *testing.T) {
	e := newEnv(t)
	m, err := e.st.Append(models.Message{From: "alice", To: "bob", Text: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	res, err := http.Get(e.srv.URL + "/v1/messages/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	var got models.Message
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != m.ID || got.Text != "hi" {
		t.Fatalf("got %+v", got)
	}

	res404, err := http.Get(e.srv.URL + "/v1/messages/999")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res404.Body.Close()
	if res404.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id status = %d", res404.StatusCode)
	}

	resBad, err := http.Get(e.srv.URL + "/v1/messages/abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resBad.Body.Close()
	if resBad.StatusCode != http.StatusBadRequest && resBad.StatusCode != http.StatusNotFound {
		t.Fatalf("bad id status = %d", resBad.StatusCode)
	}
}

func TestAdminExportImport(t *testing.T) {
	e := newEnv(t)
	seedDialog(t, e.st)

	res, err := http.Post(e.srv.URL+"/v1/admin/export", "application/json", nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer res.Body.Close()
	var snapshot bytes.Buffer
	if _, err := snapshot.ReadFrom(res.Body); err != nil {
		t.Fatalf("read export: %v", err)
	}

	restore := newEnv(t)
	res2, err := http.Post(restore.srv.URL+"/v1/admin/import", "application/json", &snapshot)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer res2.Body.Close()
	var out struct {
		Imported int `json:"imported"`
	}
	if err := json.NewDecoder(res2.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Imported != 3 {
		t.Fatalf("imported = %d, want 3", out.Imported)
	}
	msgs, err := restore.st.History("alice", "bob")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("restored history = %d, want 3", len(msgs))
	}
}

func TestAdminRetentionRun(t *testing.T) {
	e := newEnv(t)
	m, _ := e.st.Append(models.Message{From: "alice", To: "bob", Text: "bye"})
	e.st.Remove(m.ID)

	res, err := http.Post(e.srv.URL+"/v1/admin/retention/run", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var out struct {
		Purged int `json:"purged"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Purged != 1 {
		t.Fatalf("purged = %d, want 1", out.Purged)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(e.srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, res.StatusCode)
		}
	}
}

func seedDialog(t *testing.T, st *store.Store) {
	t.Helper()
	for _, text := range []string{"one", "two", "three"} {
		if _, err := st.Append(models.Message{From: "alice", To: "bob", Text: text}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}
