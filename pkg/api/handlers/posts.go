package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"socialstore/pkg/logger"
	"socialstore/pkg/models"
	"socialstore/pkg/store"
	"socialstore/pkg/utils"
)

// RegisterPosts wires the like and comment conveniences for posts.
func RegisterPosts(r *mux.Router) {
	r.HandleFunc("/posts/{id}/likes", addLike).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id}/likes", listLikes).Methods(http.MethodGet)
	r.HandleFunc("/posts/{id}/comments", addComment).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id}/comments", listComments).Methods(http.MethodGet)
}

// addLike records a like once per (post, profile) pair. Uniqueness is a
// read-before-write check; a repeated like returns the existing record.
func addLike(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	ctx := r.Context()

	if _, found, err := store.Get(ctx, "posts", postID); err != nil {
		writeStoreErr(w, err)
		return
	} else if !found {
		utils.JSONError(w, http.StatusNotFound, "post not found")
		return
	}

	var payload struct {
		ProfileID string `json:"profileId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.ProfileID == "" {
		utils.JSONError(w, http.StatusBadRequest, "profileId is required")
		return
	}

	existing, err := store.GetAllBy(ctx, "likes", "by_post", postID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	for _, rec := range existing {
		if rec["profileId"] == payload.ProfileID {
			_ = utils.JSONWrite(w, http.StatusOK, rec)
			return
		}
	}

	like := models.Like{
		ID:        utils.GenID("l"),
		PostID:    postID,
		ProfileID: payload.ProfileID,
		Time:      time.Now().UTC().UnixMilli(),
	}
	rec, err := store.From(like)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := store.Put(ctx, "likes", rec); err != nil {
		writeStoreErr(w, err)
		return
	}
	logger.Info("like_created", "post", postID, "profile", payload.ProfileID)
	_ = utils.JSONWrite(w, http.StatusCreated, like)
}

func listLikes(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	recs, err := store.GetAllBy(r.Context(), "likes", "by_post", postID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		PostID string         `json:"postId"`
		Count  int            `json:"count"`
		Likes  []store.Record `json:"likes"`
	}{PostID: postID, Count: len(recs), Likes: recs})
}

func addComment(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	ctx := r.Context()

	if _, found, err := store.Get(ctx, "posts", postID); err != nil {
		writeStoreErr(w, err)
		return
	} else if !found {
		utils.JSONError(w, http.StatusNotFound, "post not found")
		return
	}

	var c models.Comment
	if err := utils.DecodeJSON(r, &c); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.Text == "" {
		utils.JSONError(w, http.StatusBadRequest, "text is required")
		return
	}
	c.PostID = postID
	if c.ID == "" {
		c.ID = utils.GenID("cm")
	}
	if c.Time == 0 {
		c.Time = time.Now().UTC().UnixMilli()
	}

	rec, err := store.From(c)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := store.Put(ctx, "comments", rec); err != nil {
		writeStoreErr(w, err)
		return
	}
	logger.Info("comment_created", "post", postID, "id", c.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

func listComments(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	recs, err := store.GetAllBy(r.Context(), "comments", "by_post", postID)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		PostID   string         `json:"postId"`
		Count    int            `json:"count"`
		Comments []store.Record `json:"comments"`
	}{PostID: postID, Count: len(recs), Comments: recs})
}
