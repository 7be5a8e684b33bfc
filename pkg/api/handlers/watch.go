package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"socialstore/pkg/logger"
	"socialstore/pkg/store"
	"socialstore/pkg/utils"
)

// RegisterWatch wires the SSE change feed. Register it before the
// generic collection routes so /watch is not treated as a collection.
func RegisterWatch(r *mux.Router) {
	r.HandleFunc("/watch", watch).Methods(http.MethodGet)
}

// watch streams committed mutations as server-sent events. ?events= is a
// comma list of event names; the default covers every collection's
// change event plus db:reset.
func watch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var names []string
	if raw := r.URL.Query().Get("events"); raw != "" {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	} else {
		for _, c := range store.Collections() {
			names = append(names, store.ChangeEvent(c))
		}
		names = append(names, store.ResetEvent)
	}

	// buffered so slow consumers drop events instead of blocking commits
	ch := make(chan store.Event, 64)
	var disposers []func()
	for _, name := range names {
		disposers = append(disposers, store.Subscribe(name, func(ev store.Event) {
			select {
			case ch <- ev:
			default:
			}
		}))
	}
	defer func() {
		for _, off := range disposers {
			off()
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", strings.Join(names, ","))
	flusher.Flush()
	logger.Debug("watch_subscribed", "events", len(names), "remote", r.RemoteAddr)

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}
