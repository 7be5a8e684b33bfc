package models

// MetaEntry is a store-level bookkeeping record (e.g. the seed marker).
type MetaEntry struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value,omitempty"`
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
	// Created timestamp (ms)
	CreatedTS int64 `json:"createdTs,omitempty"`
}

// Profile is the acting identity inside the app. A Profile references a
// User; at most one Profile is active at a time (application-enforced).
type Profile struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Bio    string `json:"bio,omitempty"`
	Active bool   `json:"active,omitempty"`
}
