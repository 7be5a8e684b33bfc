package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"socialstore/pkg/config"
	"socialstore/pkg/logger"
	"socialstore/pkg/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	srv := httptest.NewServer(Handler(Deps{Cfg: &config.Config{}, Version: "test"}))
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestRecordLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/v1/users/u1", map[string]interface{}{"name": "Ada"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put: status %d", resp.StatusCode)
	}
	if body["id"] != "u1" {
		t.Fatalf("path key not enforced: %v", body["id"])
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/users/u1", nil)
	if resp.StatusCode != http.StatusOK || body["name"] != "Ada" {
		t.Fatalf("get: status %d body %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/users/u1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/users/u1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", resp.StatusCode)
	}
}

func TestUnknownCollectionIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/widgets", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestIndexQueryOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	records := []map[string]interface{}{
		{"id": "m1", "chatId": "c1", "time": 100},
		{"id": "m2", "chatId": "c1", "time": 200},
		{"id": "m3", "chatId": "c2", "time": 300},
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/messages/bulk", map[string]interface{}{"records": records})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk: status %d", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/messages?index=by_chat&value=c1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index query: status %d", resp.StatusCode)
	}
	if body["count"].(float64) != 2 {
		t.Fatalf("expected 2 records, got %v", body["count"])
	}
}

func TestBulkRejectsInvalidAtomically(t *testing.T) {
	srv := newTestServer(t)
	records := []map[string]interface{}{
		{"id": "m1", "chatId": "c1", "time": 100},
		{"id": "m2"}, // missing chatId and time
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/messages/bulk", map[string]interface{}{"records": records})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/messages", nil)
	if resp.StatusCode != http.StatusOK || body["count"].(float64) != 0 {
		t.Fatalf("aborted bulk leaked records: %v", body["count"])
	}
}

func TestChatMessageFlow(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/v1/chats/c1", map[string]interface{}{"participants": []string{"p1", "p2"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create chat: status %d", resp.StatusCode)
	}

	resp, msg := doJSON(t, http.MethodPost, srv.URL+"/v1/chats/c1/messages", map[string]interface{}{"sender": "p1", "text": "hello"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create message: status %d", resp.StatusCode)
	}
	msgID, _ := msg["id"].(string)
	if msgID == "" {
		t.Fatalf("no id assigned: %v", msg)
	}

	resp, chat := doJSON(t, http.MethodGet, srv.URL+"/v1/chats/c1", nil)
	if resp.StatusCode != http.StatusOK || chat["lastMessageId"] != msgID {
		t.Fatalf("lastMessageId not advanced: %v", chat["lastMessageId"])
	}

	resp, list := doJSON(t, http.MethodGet, srv.URL+"/v1/chats/c1/messages", nil)
	if resp.StatusCode != http.StatusOK || list["count"].(float64) != 1 {
		t.Fatalf("list messages: %v", list)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/chats/nope/messages", map[string]interface{}{"text": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing chat: status %d", resp.StatusCode)
	}
}

func TestLikeIsIdempotentPerProfile(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/v1/posts/post-1", map[string]interface{}{"authorProfileId": "p1", "type": "text", "time": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create post: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/posts/post-1/likes", map[string]interface{}{"profileId": "p2"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first like: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/posts/post-1/likes", map[string]interface{}{"profileId": "p2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat like: status %d", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/posts/post-1/likes", nil)
	if resp.StatusCode != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("expected 1 like, got %v", body["count"])
	}
}

func TestCommentRequiresText(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/v1/posts/post-1", map[string]interface{}{"authorProfileId": "p1", "type": "text", "time": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create post: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/posts/post-1/comments", map[string]interface{}{"authorProfileId": "p2"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty comment: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/posts/post-1/comments", map[string]interface{}{"authorProfileId": "p2", "text": "nice"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("comment: status %d", resp.StatusCode)
	}
}

func TestLogsCollectionRejectsWrites(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/v1/logs/x", map[string]interface{}{"action": "fake", "time": 1})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAdminSurface(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/admin/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/v1/users/u1", map[string]interface{}{"name": "Ada"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put: status %d", resp.StatusCode)
	}

	resp, stats := doJSON(t, http.MethodGet, srv.URL+"/admin/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d", resp.StatusCode)
	}
	counts := stats["collections"].(map[string]interface{})
	if counts["users"].(float64) != 1 {
		t.Fatalf("stats users: %v", counts["users"])
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/admin/reset", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: status %d", resp.StatusCode)
	}

	resp, logs := doJSON(t, http.MethodGet, srv.URL+"/admin/logs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logs: status %d", resp.StatusCode)
	}
	if logs["count"].(float64) != 1 {
		t.Fatalf("expected only the reset log entry, got %v", logs["count"])
	}

	// backup endpoint without a configured runner
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/admin/backup", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("backup without runner: status %d", resp.StatusCode)
	}
}

func TestWatchStreamsCommittedChanges(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/watch?events=users:change", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	// first frame is the subscription comment
	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), ": subscribed") {
		t.Fatalf("missing subscription frame: %q", scanner.Text())
	}

	if _, err := store.Put(context.Background(), "users", store.Record{"id": "u1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var eventLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
			break
		}
	}
	if eventLine != "event: users:change" {
		t.Fatalf("unexpected event line: %q", eventLine)
	}
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	var ev store.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if ev.Collection != "users" || ev.Key != "u1" || ev.Action != "put" {
		t.Fatalf("event fields: %+v", ev)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	srv := newTestServer(t)
	if _, err := store.Put(context.Background(), "users", store.Record{"id": "u1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status %d", resp.StatusCode)
	}
	var found bool
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.Contains(sc.Text(), "socialstore_store_ops_total") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("ops counter missing from %s", fmt.Sprintf("%s/metrics", srv.URL))
	}
}

func TestNumericIndexQueryOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	records := []map[string]interface{}{
		{"id": "m1", "chatId": "c1", "time": 100},
		{"id": "m2", "chatId": "c1", "time": 200},
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/messages/bulk", map[string]interface{}{"records": records})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk: status %d", resp.StatusCode)
	}

	// time values are stored zero-padded; the query string must still match
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/messages?index=by_time&value=100", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("by_time query: status %d", resp.StatusCode)
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("expected 1 record at t=100, got %v", body["count"])
	}
	recs := body["records"].([]interface{})
	if recs[0].(map[string]interface{})["id"] != "m1" {
		t.Fatalf("wrong record: %v", recs[0])
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/messages?index=by_time&value=later", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-integer value: status %d", resp.StatusCode)
	}

	// string indexes still take the raw value
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/messages?index=by_chat&value=c1", nil)
	if resp.StatusCode != http.StatusOK || body["count"].(float64) != 2 {
		t.Fatalf("by_chat query: status %d count %v", resp.StatusCode, body["count"])
	}
}
