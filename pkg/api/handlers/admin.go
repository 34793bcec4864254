package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chathub/pkg/logger"
	"chathub/pkg/store"
	"chathub/pkg/utils"
)

// RegisterAdmin registers admin-only operational endpoints. The auth
// gateway restricts everything under /admin to admin keys.
func RegisterAdmin(r *mux.Router, st *store.Store, runRetention func() (int, error)) {
	h := &adminHandlers{st: st, runRetention: runRetention}
	r.HandleFunc("/admin/export", h.export).Methods(http.MethodPost)
	r.HandleFunc("/admin/import", h.importSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/admin/retention/run", h.retentionRun).Methods(http.MethodPost)
}

type adminHandlers struct {
	st           *store.Store
	runRetention func() (int, error)
}

func (h *adminHandlers) export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\"chathub-export.json\"")
	if err := h.st.Export(w); err != nil {
		logger.Error("export_failed", "error", err.Error())
	}
}

func (h *adminHandlers) importSnapshot(w http.ResponseWriter, r *http.Request) {
	n, err := h.st.Import(r.Body)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Info("import_complete", "messages", n)
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Imported int `json:"imported"`
	}{Imported: n})
}

func (h *adminHandlers) retentionRun(w http.ResponseWriter, r *http.Request) {
	if h.runRetention == nil {
		utils.JSONError(w, http.StatusConflict, "retention disabled")
		return
	}
	n, err := h.runRetention()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Purged int `json:"purged"`
	}{Purged: n})
}
