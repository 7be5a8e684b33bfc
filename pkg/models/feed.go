package models

// Post types as stored in the posts by_type index.
const (
	PostTypeText  = "text"
	PostTypePhoto = "photo"
	PostTypeVideo = "video"
)

type Post struct {
	ID              string `json:"id"`
	AuthorProfileID string `json:"authorProfileId"`
	Type            string `json:"type"`
	Content         string `json:"content,omitempty"`
	// Media is an opaque reference to a bundled asset; optional.
	Media string `json:"media,omitempty"`
	Time  int64  `json:"time"`
}

type Comment struct {
	ID              string `json:"id"`
	PostID          string `json:"postId"`
	AuthorProfileID string `json:"authorProfileId,omitempty"`
	Text            string `json:"text,omitempty"`
	Time            int64  `json:"time,omitempty"`
}

// Like is a join record between a Post and a Profile. Uniqueness of
// (postId, profileId) is enforced by lookup-before-insert in the
// handlers, not by the store.
type Like struct {
	ID        string `json:"id"`
	PostID    string `json:"postId"`
	ProfileID string `json:"profileId"`
	Time      int64  `json:"time,omitempty"`
}

// LogEntry is one append-only audit record. Keys are assigned by the
// engine and are monotonic within a store.
type LogEntry struct {
	ID      string      `json:"id"`
	Action  string      `json:"action"`
	Payload interface{} `json:"payload,omitempty"`
	Time    int64       `json:"time"`
}
