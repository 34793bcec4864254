package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chathub/pkg/logger"
	"chathub/pkg/models"
	"chathub/pkg/store"
	"chathub/pkg/utils"
)

// RegisterDialogs registers the read-only REST surface over the dialog
// store. These endpoints let backends and clients fetch history without
// holding a websocket.
func RegisterDialogs(r *mux.Router, st *store.Store) {
	h := &dialogHandlers{st: st}
	r.HandleFunc("/dialogs", h.listDialogs).Methods(http.MethodGet)
	r.HandleFunc("/dialogs/{a}/{b}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", h.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/identities", h.listIdentities).Methods(http.MethodGet)
}

type dialogHandlers struct {
	st *store.Store
}

func (h *dialogHandlers) listDialogs(w http.ResponseWriter, r *http.Request) {
	sums, err := h.st.Dialogs()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Dialogs []models.DialogSummary `json:"dialogs"`
	}{Dialogs: sums})
}

func (h *dialogHandlers) listMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	msgs, err := h.st.History(vars["a"], vars["b"])
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim >= 0 && lim < len(msgs) {
			msgs = msgs[len(msgs)-lim:]
		}
	}
	logger.Info("dialog_messages_list", "a", vars["a"], "b", vars["b"], "count", len(msgs))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Messages []models.Message `json:"messages"`
	}{Messages: msgs})
}

func (h *dialogHandlers) getMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	m, ok := h.st.Get(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func (h *dialogHandlers) listIdentities(w http.ResponseWriter, r *http.Request) {
	ids, err := h.st.Identities()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Identities []string `json:"identities"`
	}{Identities: ids})
}
