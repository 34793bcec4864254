package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"chathub/pkg/api/handlers"
	"chathub/pkg/config"
	"chathub/pkg/hub"
	"chathub/pkg/store"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Hub   *hub.Hub
	Store *store.Store
	Cfg   *config.Config
	// RunRetention triggers an immediate tombstone purge (admin API).
	RunRetention func() (int, error)
}

// New builds the router: health probes, the websocket endpoint and the
// versioned REST surface. Auth, CORS and rate limiting wrap the whole
// router one level up.
func New(d Deps) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !d.Store.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"store not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", handlers.ServeWS(d.Hub, d.Cfg)).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterDialogs(v1, d.Store)
	handlers.RegisterAdmin(v1, d.Store, d.RunRetention)

	return r
}
