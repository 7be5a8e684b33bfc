package handlers

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"socialstore/pkg/logger"
	"socialstore/pkg/store"
	"socialstore/pkg/utils"
)

// RegisterCollections wires the generic CRUD surface for every declared
// collection. Keys are path segments; secondary index lookups use
// ?index=<name>&value=<v>.
func RegisterCollections(r *mux.Router) {
	r.HandleFunc("/{collection}", listCollection).Methods(http.MethodGet)
	r.HandleFunc("/{collection}/bulk", bulkPutCollection).Methods(http.MethodPost)
	r.HandleFunc("/{collection}/{key}", getRecord).Methods(http.MethodGet)
	r.HandleFunc("/{collection}/{key}", putRecord).Methods(http.MethodPut)
	r.HandleFunc("/{collection}/{key}", deleteRecord).Methods(http.MethodDelete)
}

func listCollection(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	q := r.URL.Query()

	var recs []store.Record
	var err error
	if index := q.Get("index"); index != "" {
		value, perr := indexQueryValue(collection, index, q.Get("value"))
		if perr != nil {
			utils.JSONError(w, http.StatusBadRequest, perr.Error())
			return
		}
		recs, err = store.GetAllBy(r.Context(), collection, index, value)
	} else {
		recs, err = store.GetAll(r.Context(), collection)
	}
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if q.Get("sort") == "time" {
		sort.SliceStable(recs, func(i, j int) bool {
			ti, _ := recs[i]["time"].(float64)
			tj, _ := recs[j]["time"].(float64)
			return ti < tj
		})
	}
	recs = tail(recs, q.Get("limit"))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Collection string         `json:"collection"`
		Count      int            `json:"count"`
		Records    []store.Record `json:"records"`
	}{Collection: collection, Count: len(recs), Records: recs})
}

func getRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, found, err := store.Get(r.Context(), vars["collection"], vars["key"])
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if !found {
		utils.JSONError(w, http.StatusNotFound, "record not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, rec)
}

func putRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection, key := vars["collection"], vars["key"]
	def, ok := store.Definition(collection)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown collection")
		return
	}
	var rec store.Record
	if err := utils.DecodeJSON(r, &rec); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	// the path segment is authoritative for the record key
	rec[def.KeyField] = key
	stored, err := store.Put(r.Context(), collection, rec)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	logger.Info("record_stored", "collection", collection, "key", key)
	_ = utils.JSONWrite(w, http.StatusOK, stored)
}

func deleteRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := store.Delete(r.Context(), vars["collection"], vars["key"]); err != nil {
		writeStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bulkPutCollection(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	var payload struct {
		Records []store.Record `json:"records"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.Records) == 0 {
		utils.JSONError(w, http.StatusBadRequest, "records must be a non-empty array")
		return
	}
	if err := store.BulkPut(r.Context(), collection, payload.Records); err != nil {
		writeStoreErr(w, err)
		return
	}
	logger.Info("records_bulk_stored", "collection", collection, "count", len(payload.Records))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Collection string `json:"collection"`
		Count      int    `json:"count"`
	}{Collection: collection, Count: len(payload.Records)})
}
