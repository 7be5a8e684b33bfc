package store

import (
	"context"
	"testing"

	"socialstore/pkg/models"
)

// Typed models flow through the engine as plain records via From/As.
func TestTypedRecordsRoundTrip(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()

	u := models.User{ID: "u-1", Name: "Grace", Handle: "grace", CreatedTS: 1735696800000}
	rec, err := From(u)
	if err != nil {
		t.Fatalf("From(user): %v", err)
	}
	if _, err := Put(ctx, "users", rec); err != nil {
		t.Fatalf("Put(users): %v", err)
	}

	p := models.Profile{ID: "p-1", UserID: "u-1", Name: "Grace H", Active: true}
	rec, err = From(p)
	if err != nil {
		t.Fatalf("From(profile): %v", err)
	}
	if _, err := Put(ctx, "profiles", rec); err != nil {
		t.Fatalf("Put(profiles): %v", err)
	}

	c := models.Chat{ID: "c-1", Title: "ops", Participants: []string{"p-1"}, CreatedTS: 1735696800000}
	rec, err = From(c)
	if err != nil {
		t.Fatalf("From(chat): %v", err)
	}
	if _, err := Put(ctx, "chats", rec); err != nil {
		t.Fatalf("Put(chats): %v", err)
	}

	post := models.Post{ID: "po-1", AuthorProfileID: "p-1", Type: models.PostTypeText, Content: "hi", Time: 1735696800001}
	rec, err = From(post)
	if err != nil {
		t.Fatalf("From(post): %v", err)
	}
	if _, err := Put(ctx, "posts", rec); err != nil {
		t.Fatalf("Put(posts): %v", err)
	}

	got, found, err := Get(ctx, "profiles", "p-1")
	if err != nil || !found {
		t.Fatalf("Get(profiles): found=%v err=%v", found, err)
	}
	var back models.Profile
	if err := As(got, &back); err != nil {
		t.Fatalf("As(profile): %v", err)
	}
	if back.UserID != "u-1" || !back.Active {
		t.Fatalf("profile round-trip mismatch: %+v", back)
	}

	recs, err := GetAllBy(ctx, "chats", "by_participant", "p-1")
	if err != nil {
		t.Fatalf("GetAllBy(chats): %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 chat for p-1, got %d", len(recs))
	}
	var chat models.Chat
	if err := As(recs[0], &chat); err != nil {
		t.Fatalf("As(chat): %v", err)
	}
	if chat.ID != "c-1" || len(chat.Participants) != 1 {
		t.Fatalf("chat round-trip mismatch: %+v", chat)
	}
}

func TestAuditRowsDecodeAsLogEntries(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()

	if _, err := Put(ctx, "users", Record{"id": "u-9"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	logs, err := GetAll(ctx, LogsCollection)
	if err != nil {
		t.Fatalf("GetAll(logs): %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected at least one audit row")
	}
	var entry models.LogEntry
	if err := As(logs[len(logs)-1], &entry); err != nil {
		t.Fatalf("As(log entry): %v", err)
	}
	if entry.Action != "put" || entry.ID == "" || entry.Time == 0 {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestSeedMarkerDecodesAsMetaEntry(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()

	if err := Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	rec, found, err := Get(ctx, "meta", "seeded")
	if err != nil || !found {
		t.Fatalf("Get(meta/seeded): found=%v err=%v", found, err)
	}
	var meta models.MetaEntry
	if err := As(rec, &meta); err != nil {
		t.Fatalf("As(meta): %v", err)
	}
	if meta.Key != "seeded" {
		t.Fatalf("unexpected meta entry: %+v", meta)
	}
}
