package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/cockroachdb/pebble"

	"socialstore/pkg/logger"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.Init()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func mustCount(t *testing.T, collection string) int {
	t.Helper()
	n, err := Count(context.Background(), collection)
	if err != nil {
		t.Fatalf("Count(%s): %v", collection, err)
	}
	return n
}

func TestOpenIsIdempotent(t *testing.T) {
	openTestStore(t)
	// second Open on a live handle is a no-op
	if err := Open("/nonexistent/ignored"); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if !Ready() {
		t.Fatalf("expected store ready")
	}
}

func TestGetMissingIsNotAnError(t *testing.T) {
	openTestStore(t)
	rec, found, err := Get(context.Background(), "users", "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found || rec != nil {
		t.Fatalf("expected absent result, got %v", rec)
	}
}

func TestPutOverwriteIsIdempotent(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	if _, err := Put(ctx, "messages", Record{"id": "m1", "chatId": "c1", "time": float64(100), "text": "first"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := Put(ctx, "messages", Record{"id": "m1", "chatId": "c1", "time": float64(100), "text": "second"}); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if n := mustCount(t, "messages"); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}
	rec, found, err := Get(ctx, "messages", "m1")
	if err != nil || !found {
		t.Fatalf("Get after overwrite: found=%v err=%v", found, err)
	}
	if rec["text"] != "second" {
		t.Fatalf("expected second payload, got %v", rec["text"])
	}
}

func TestIndexLookupIsExact(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	puts := []Record{
		{"id": "m1", "chatId": "c1", "time": float64(100), "text": "hi"},
		{"id": "m2", "chatId": "c1", "time": float64(200), "text": "again"},
		{"id": "m3", "chatId": "c2", "time": float64(300), "text": "elsewhere"},
	}
	for _, rec := range puts {
		if _, err := Put(ctx, "messages", rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	got, err := GetAllBy(ctx, "messages", "by_chat", "c1")
	if err != nil {
		t.Fatalf("GetAllBy: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records for c1, got %d", len(got))
	}
	ids := map[string]bool{}
	for _, r := range got {
		ids[r["id"].(string)] = true
	}
	if !ids["m1"] || !ids["m2"] || ids["m3"] {
		t.Fatalf("unexpected id set: %v", ids)
	}
}

func TestMultiValuedIndexMembership(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	chat := Record{"id": "c1", "participants": []interface{}{"p1", "p2"}}
	if _, err := Put(ctx, "chats", chat); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for _, p := range []string{"p1", "p2"} {
		got, err := GetAllBy(ctx, "chats", "by_participant", p)
		if err != nil {
			t.Fatalf("GetAllBy(%s): %v", p, err)
		}
		if len(got) != 1 || got[0]["id"] != "c1" {
			t.Fatalf("participant %s: expected chat c1, got %v", p, got)
		}
	}
	got, err := GetAllBy(ctx, "chats", "by_participant", "p3")
	if err != nil {
		t.Fatalf("GetAllBy(p3): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no chats for p3, got %d", len(got))
	}
}

func TestOverwriteMovesIndexEntries(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	if _, err := Put(ctx, "messages", Record{"id": "m1", "chatId": "c1", "time": float64(1)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := Put(ctx, "messages", Record{"id": "m1", "chatId": "c2", "time": float64(2)}); err != nil {
		t.Fatalf("Put move: %v", err)
	}
	inC1, err := GetAllBy(ctx, "messages", "by_chat", "c1")
	if err != nil {
		t.Fatalf("GetAllBy(c1): %v", err)
	}
	if len(inC1) != 0 {
		t.Fatalf("stale index entry for c1: %v", inC1)
	}
	inC2, err := GetAllBy(ctx, "messages", "by_chat", "c2")
	if err != nil {
		t.Fatalf("GetAllBy(c2): %v", err)
	}
	if len(inC2) != 1 {
		t.Fatalf("expected m1 under c2, got %v", inC2)
	}
}

func TestByTimeIndexOrdersChronologically(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	// same indexed value scans back together; padded encoding keeps the
	// namespace ordered so a full logs-by-time walk is chronological
	for i, ts := range []float64{300, 100, 200} {
		rec := Record{"id": string(rune('a' + i)), "chatId": "c1", "time": ts}
		if _, err := Put(ctx, "messages", rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	got, err := GetAllBy(ctx, "messages", "by_time", float64(200))
	if err != nil {
		t.Fatalf("GetAllBy(by_time): %v", err)
	}
	if len(got) != 1 || got[0]["id"] != "c" {
		t.Fatalf("expected record c at t=200, got %v", got)
	}
}

func TestDeleteMissingResolvesAndLogs(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	before := mustCount(t, "logs")
	if err := Delete(ctx, "likes", "no-such-like"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	after := mustCount(t, "logs")
	if after != before+1 {
		t.Fatalf("expected one new delete log entry, got %d -> %d", before, after)
	}
	logs, err := GetAll(ctx, "logs")
	if err != nil {
		t.Fatalf("GetAll(logs): %v", err)
	}
	last := logs[len(logs)-1]
	if last["action"] != "delete" {
		t.Fatalf("expected delete action, got %v", last["action"])
	}
}

func TestAuditCompleteness(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	n := mustCount(t, "logs")
	if _, err := Put(ctx, "users", Record{"id": "u1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	n++
	if got := mustCount(t, "logs"); got != n {
		t.Fatalf("put: expected %d log entries, got %d", n, got)
	}
	if err := BulkPut(ctx, "users", []Record{{"id": "u2"}, {"id": "u3"}}); err != nil {
		t.Fatalf("BulkPut: %v", err)
	}
	n++
	if got := mustCount(t, "logs"); got != n {
		t.Fatalf("bulkPut: expected %d log entries, got %d", n, got)
	}
	if err := Delete(ctx, "users", "u2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n++
	if got := mustCount(t, "logs"); got != n {
		t.Fatalf("delete: expected %d log entries, got %d", n, got)
	}
}

func TestBulkPutIsAllOrNothing(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	logsBefore := mustCount(t, "logs")
	recs := []Record{
		{"id": "m1", "chatId": "c1", "time": float64(1)},
		{"id": "m2", "chatId": "c1", "time": float64(2)},
		{"id": "m3", "chatId": "c1"}, // missing time
	}
	err := BulkPut(ctx, "messages", recs)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if n := mustCount(t, "messages"); n != 0 {
		t.Fatalf("aborted bulkPut leaked %d records", n)
	}
	if n := mustCount(t, "logs"); n != logsBefore {
		t.Fatalf("aborted bulkPut leaked a log entry")
	}
}

func TestNotificationFiresOnceAfterCommit(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	var calls int
	var visible bool
	off := Subscribe(ChangeEvent("chats"), func(ev Event) {
		calls++
		// the write must be durably visible to a fresh read by now
		_, found, err := Get(ctx, "chats", "c1")
		visible = found && err == nil
	})
	defer off()
	if _, err := Put(ctx, "chats", Record{"id": "c1", "participants": []interface{}{"p1"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", calls)
	}
	if !visible {
		t.Fatalf("notification fired before the write was visible")
	}
}

func TestEveryMutationAlsoNotifiesLogs(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	var logCalls int
	off := Subscribe(ChangeEvent(LogsCollection), func(Event) { logCalls++ })
	defer off()
	if _, err := Put(ctx, "users", Record{"id": "u1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := Delete(ctx, "users", "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if logCalls != 2 {
		t.Fatalf("expected 2 logs:change events, got %d", logCalls)
	}
}

func TestClearAllResetsEverything(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	if _, err := Put(ctx, "users", Record{"id": "u1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := Put(ctx, "posts", Record{"id": "p1", "authorProfileId": "pr1", "type": "text", "time": float64(1)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var resets int
	off := Subscribe(ResetEvent, func(Event) { resets++ })
	defer off()
	if err := ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	for _, name := range Collections() {
		if name == LogsCollection {
			continue
		}
		if n := mustCount(t, name); n != 0 {
			t.Fatalf("collection %s not empty after reset: %d", name, n)
		}
	}
	// the reset itself is the only audit entry left
	logs, err := GetAll(ctx, "logs")
	if err != nil {
		t.Fatalf("GetAll(logs): %v", err)
	}
	if len(logs) != 1 || logs[0]["action"] != "reset" {
		t.Fatalf("expected exactly the reset entry, got %v", logs)
	}
	if resets != 1 {
		t.Fatalf("expected one db:reset event, got %d", resets)
	}
	// index namespace is gone too
	if got, err := GetAllBy(ctx, "posts", "by_type", "text"); err != nil || len(got) != 0 {
		t.Fatalf("index survived reset: %v %v", got, err)
	}
}

func TestAuditKeysMonotonicAcrossReopen(t *testing.T) {
	logger.Init()
	dir := t.TempDir()
	if err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if _, err := Put(ctx, "users", Record{"id": "u1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := Open(dir); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer Close()
	if _, err := Put(ctx, "users", Record{"id": "u2"}); err != nil {
		t.Fatalf("Put after reopen: %v", err)
	}
	logs, err := GetAll(ctx, "logs")
	if err != nil {
		t.Fatalf("GetAll(logs): %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(logs))
	}
	if logs[0]["id"].(string) >= logs[1]["id"].(string) {
		t.Fatalf("log keys not monotonic: %v then %v", logs[0]["id"], logs[1]["id"])
	}
}

func TestLogsCollectionIsEngineOwned(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	if _, err := Put(ctx, "logs", Record{"id": "x", "time": float64(1), "action": "fake"}); !errors.Is(err, ErrReadOnlyCollection) {
		t.Fatalf("expected ErrReadOnlyCollection, got %v", err)
	}
	if err := Delete(ctx, "logs", "x"); !errors.Is(err, ErrReadOnlyCollection) {
		t.Fatalf("expected ErrReadOnlyCollection on delete, got %v", err)
	}
}

func TestUnknownCollectionAndIndex(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	if _, _, err := Get(ctx, "bogus", "k"); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
	if _, err := GetAllBy(ctx, "messages", "by_bogus", "v"); !errors.Is(err, ErrUnknownIndex) {
		t.Fatalf("expected ErrUnknownIndex, got %v", err)
	}
}

func TestOperationsFailWhenClosed(t *testing.T) {
	if _, err := Put(context.Background(), "users", Record{"id": "u"}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	logger.Init()
	dir := t.TempDir()
	d, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		t.Fatalf("pebble.Open: %v", err)
	}
	if err := d.Set([]byte(versionKey), []byte("99"), pebble.Sync); err != nil {
		t.Fatalf("Set version stamp: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := Open(dir); !errors.Is(err, ErrStaleVersion) {
		_ = Close()
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
	if Ready() {
		t.Fatalf("store must stay closed after a stale open")
	}
}

func TestOverwriteCleansUpLegacyRecordWithoutIndexFields(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()

	// a record written before the time index existed: stored raw,
	// bypassing validation, with no index entries
	legacy, err := json.Marshal(Record{"id": "m-legacy", "chatId": "c-old"})
	if err != nil {
		t.Fatalf("marshal legacy record: %v", err)
	}
	if err := db.Set(recordKey("messages", "m-legacy"), legacy, pebble.Sync); err != nil {
		t.Fatalf("raw set: %v", err)
	}

	if _, err := Put(ctx, "messages", Record{"id": "m-legacy", "chatId": "c-new", "time": float64(5)}); err != nil {
		t.Fatalf("Put over legacy record: %v", err)
	}

	recs, err := GetAllBy(ctx, "messages", "by_chat", "c-new")
	if err != nil || len(recs) != 1 {
		t.Fatalf("by_chat c-new: err=%v len=%d", err, len(recs))
	}
	recs, err = GetAllBy(ctx, "messages", "by_time", int64(5))
	if err != nil || len(recs) != 1 {
		t.Fatalf("by_time 5: err=%v len=%d", err, len(recs))
	}
}

func TestNonIntegralIndexedValueRejected(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()

	for _, v := range []float64{100.9, math.NaN(), math.Inf(1)} {
		if _, err := Put(ctx, "messages", Record{"id": "m-frac", "chatId": "c1", "time": v}); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("time=%v: expected ErrInvalidRecord, got %v", v, err)
		}
	}
	if n := mustCount(t, "messages"); n != 0 {
		t.Fatalf("rejected puts must store nothing, got %d records", n)
	}
}
