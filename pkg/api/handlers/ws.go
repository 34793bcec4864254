package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chathub/pkg/config"
	"chathub/pkg/hub"
	"chathub/pkg/logger"
	"chathub/pkg/validation"
)

// readLimitSlack covers the JSON envelope and base64 expansion headroom
// on top of the configured attachment cap.
const readLimitSlack = 64 * 1024

// ServeWS upgrades the request and hands the connection to the hub. The
// user query parameter binds the connection to an identity; an absent or
// invalid value leaves the connection attached but unbound.
func ServeWS(h *hub.Hub, cfg *config.Config) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg),
	}
	maxFile, err := cfg.MaxFileBytes()
	if err != nil {
		logger.Warn("max_file_size_invalid", "value", cfg.Limits.MaxFileSize, "error", err.Error())
		maxFile = 0
	}
	if maxFile == 0 {
		maxFile = validation.DefaultLimits().MaxFileBytes
	}
	readLimit := 2*int64(maxFile) + readLimitSlack

	return func(w http.ResponseWriter, r *http.Request) {
		identity := r.URL.Query().Get("user")
		if err := validation.CheckIdentity(identity); err != nil {
			logger.Warn("ws_identity_rejected", "identity", identity, "error", err.Error())
			identity = ""
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err.Error())
			return
		}
		client := hub.NewClient(h, conn, identity, readLimit)
		logger.Info("ws_connected", "conn", client.ID(), "identity", identity, "remote", r.RemoteAddr)
		client.Start()
	}
}

// originChecker allows any origin when no CORS origins are configured,
// otherwise only the configured set (or "*").
func originChecker(cfg *config.Config) func(*http.Request) bool {
	allowed := cfg.Security.CORS.AllowedOrigins
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := map[string]struct{}{}
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if wildcard {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
