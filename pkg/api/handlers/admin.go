package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"socialstore/pkg/logger"
	"socialstore/pkg/prefs"
	"socialstore/pkg/store"
	"socialstore/pkg/utils"
)

// AdminDeps carries the runtime collaborators the admin surface needs.
// A nil Backup disables the immediate-snapshot endpoint.
type AdminDeps struct {
	Backup  func(context.Context) (string, error)
	Prefs   *prefs.Store
	Version string
}

// RegisterAdmin wires the operational endpoints.
func RegisterAdmin(r *mux.Router, d AdminDeps) {
	r.HandleFunc("/health", d.health).Methods(http.MethodGet)
	r.HandleFunc("/stats", d.stats).Methods(http.MethodGet)
	r.HandleFunc("/logs", d.logs).Methods(http.MethodGet)
	r.HandleFunc("/reset", d.reset).Methods(http.MethodPost)
	r.HandleFunc("/backup", d.backup).Methods(http.MethodPost)
	r.HandleFunc("/prefs", d.listPrefs).Methods(http.MethodGet)
	r.HandleFunc("/prefs/{key}", d.setPref).Methods(http.MethodPut)
}

func (d AdminDeps) health(w http.ResponseWriter, r *http.Request) {
	if !store.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": d.Version})
}

func (d AdminDeps) stats(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{}
	for _, name := range store.Collections() {
		n, err := store.Count(r.Context(), name)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		counts[name] = n
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Path        string         `json:"path"`
		Collections map[string]int `json:"collections"`
		DiskBytes   uint64         `json:"diskBytes"`
	}{Path: store.Path(), Collections: counts, DiskBytes: store.DiskUsageBytes()})
}

func (d AdminDeps) logs(w http.ResponseWriter, r *http.Request) {
	recs, err := store.GetAll(r.Context(), store.LogsCollection)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	recs = tail(recs, r.URL.Query().Get("limit"))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Count int            `json:"count"`
		Logs  []store.Record `json:"logs"`
	}{Count: len(recs), Logs: recs})
}

func (d AdminDeps) reset(w http.ResponseWriter, r *http.Request) {
	if err := store.ClearAll(r.Context()); err != nil {
		writeStoreErr(w, err)
		return
	}
	logger.Info("admin_reset")
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (d AdminDeps) backup(w http.ResponseWriter, r *http.Request) {
	if d.Backup == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "backups not configured")
		return
	}
	path, err := d.Backup(r.Context())
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("admin_backup", "path", path)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"path": path})
}

func (d AdminDeps) listPrefs(w http.ResponseWriter, r *http.Request) {
	if d.Prefs == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "preferences not configured")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, d.Prefs.All())
}

func (d AdminDeps) setPref(w http.ResponseWriter, r *http.Request) {
	if d.Prefs == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "preferences not configured")
		return
	}
	key := mux.Vars(r)["key"]
	var payload struct {
		Value interface{} `json:"value"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := d.Prefs.Set(key, payload.Value); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{key: payload.Value})
}
