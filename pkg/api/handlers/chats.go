package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"socialstore/pkg/logger"
	"socialstore/pkg/models"
	"socialstore/pkg/store"
	"socialstore/pkg/utils"
)

// RegisterChats wires the chat-scoped message conveniences on top of the
// generic collection CRUD.
func RegisterChats(r *mux.Router) {
	r.HandleFunc("/chats/{id}/messages", createChatMessage).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/messages", listChatMessages).Methods(http.MethodGet)
}

// createChatMessage stores a message in the chat, assigning id and time
// when absent, and advances the chat's lastMessageId pointer.
func createChatMessage(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	ctx := r.Context()

	chat, found, err := store.Get(ctx, "chats", chatID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if !found {
		utils.JSONError(w, http.StatusNotFound, "chat not found")
		return
	}

	var m models.Message
	if err := utils.DecodeJSON(r, &m); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	m.ChatID = chatID
	if m.ID == "" {
		m.ID = utils.GenID("m")
	}
	if m.Time == 0 {
		m.Time = time.Now().UTC().UnixMilli()
	}

	rec, err := store.From(m)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := store.Put(ctx, "messages", rec); err != nil {
		writeStoreErr(w, err)
		return
	}

	chat["lastMessageId"] = m.ID
	if _, err := store.Put(ctx, "chats", chat); err != nil {
		// the message is committed; report the pointer failure
		writeStoreErr(w, err)
		return
	}
	logger.Info("chat_message_created", "chat", chatID, "id", m.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

// listChatMessages returns the chat's messages in chronological order,
// optionally tailed by ?limit=.
func listChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	recs, err := store.GetAllBy(r.Context(), "messages", "by_chat", chatID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		ti, _ := recs[i]["time"].(float64)
		tj, _ := recs[j]["time"].(float64)
		return ti < tj
	})
	recs = tail(recs, r.URL.Query().Get("limit"))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		ChatID   string         `json:"chatId"`
		Count    int            `json:"count"`
		Messages []store.Record `json:"messages"`
	}{ChatID: chatID, Count: len(recs), Messages: recs})
}
