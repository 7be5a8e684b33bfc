package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"socialstore/pkg/config"
	"socialstore/pkg/logger"
	"socialstore/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestRunOnceWritesParsableSnapshot(t *testing.T) {
	openStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "users", store.Record{"id": "u1", "name": "Ada"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	dir := t.TempDir()
	r := New(config.BackupConfig{}, dir)
	path, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var payload map[string][]store.Record
	if err := json.Unmarshal(b, &payload); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if len(payload["users"]) != 1 {
		t.Fatalf("expected 1 user in snapshot, got %d", len(payload["users"]))
	}
	// the put above also produced an audit row
	if len(payload["logs"]) != 1 {
		t.Fatalf("expected 1 log entry in snapshot, got %d", len(payload["logs"]))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	openStore(t)
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("snapshot-2026010%dT000000Z.json", i+1)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600); err != nil {
			t.Fatalf("seed snapshot: %v", err)
		}
	}
	r := New(config.BackupConfig{Keep: 2}, dir)
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 snapshots after prune, got %v", names)
	}
	// the newest seeded snapshot survives alongside the fresh one
	if !names["snapshot-20260105T000000Z.json"] {
		t.Fatalf("newest seeded snapshot pruned: %v", names)
	}
}

func TestRunRejectsBadCron(t *testing.T) {
	r := New(config.BackupConfig{Cron: "not a cron"}, t.TempDir())
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}
