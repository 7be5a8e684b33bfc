package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"socialstore/pkg/store"
	"socialstore/pkg/utils"
)

// writeStoreErr maps engine sentinel errors onto HTTP statuses.
func writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownCollection), errors.Is(err, store.ErrUnknownIndex):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidRecord):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrReadOnlyCollection):
		utils.JSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotOpen), errors.Is(err, store.ErrStaleVersion):
		utils.JSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// indexQueryValue coerces the raw ?value= string to the type the index
// encodes. Numeric index entries are stored zero-padded, so their query
// values must parse as integers; other values pass through as strings.
func indexQueryValue(collection, index, raw string) (interface{}, error) {
	def, ok := store.Definition(collection)
	if !ok {
		return raw, nil // GetAllBy reports the unknown collection
	}
	for _, ix := range def.Indexes {
		if ix.Name != index || !ix.Numeric {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index %s takes an integer value, got %q", index, raw)
		}
		return n, nil
	}
	return raw, nil
}

// tail applies an optional ?limit= to a record slice, keeping the last
// n entries the way chat and log views consume them.
func tail(recs []store.Record, limStr string) []store.Record {
	if limStr == "" {
		return recs
	}
	if lim, err := strconv.Atoi(limStr); err == nil && lim >= 0 && lim < len(recs) {
		return recs[len(recs)-lim:]
	}
	return recs
}
