package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"socialstore/pkg/config"
	"socialstore/pkg/logger"
	"socialstore/pkg/store"
)

// Runner exports periodic JSON snapshots of every collection and prunes
// old ones by count and total size.
type Runner struct {
	cfg config.BackupConfig
	dir string
}

// New builds a runner writing snapshots into dir. An empty cfg.Dir falls
// back to dir.
func New(cfg config.BackupConfig, dir string) *Runner {
	if strings.TrimSpace(cfg.Dir) != "" {
		dir = cfg.Dir
	}
	return &Runner{cfg: cfg, dir: dir}
}

// Run blocks, firing RunOnce on the configured cron schedule until ctx is
// cancelled. Invalid cron expressions fail fast.
func (r *Runner) Run(ctx context.Context) error {
	expr := strings.TrimSpace(r.cfg.Cron)
	if expr == "" {
		expr = "0 3 * * *"
	}
	g := gronx.New()
	if !g.IsValid(expr) {
		return fmt.Errorf("invalid backup cron expression: %q", expr)
	}
	logger.Info("backup_scheduler_started", "cron", expr, "dir", r.dir)
	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			return fmt.Errorf("failed to compute next backup tick: %w", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("backup_scheduler_stopped")
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
		if _, err := r.RunOnce(ctx); err != nil {
			logger.Error("backup_run_failed", "error", err)
		}
	}
}

// RunOnce exports one snapshot and prunes. Returns the snapshot path.
func (r *Runner) RunOnce(ctx context.Context) (string, error) {
	start := time.Now()
	payload := map[string][]store.Record{}
	for _, name := range store.Collections() {
		recs, err := store.GetAll(ctx, name)
		if err != nil {
			return "", fmt.Errorf("failed to export %s: %w", name, err)
		}
		payload[name] = recs
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}
	name := fmt.Sprintf("snapshot-%s.json", start.UTC().Format("20060102T150405Z"))
	path := filepath.Join(r.dir, name)
	tmp, err := os.CreateTemp(r.dir, ".snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	tmp.Sync()
	tmp.Close()
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	logger.Info("backup_snapshot_written", "path", path, "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())

	if err := r.prune(); err != nil {
		logger.Warn("backup_prune_failed", "error", err)
	}
	return path, nil
}

// prune removes the oldest snapshots beyond Keep, then keeps trimming
// while the total size exceeds MaxBytes. Zero values disable each limit.
func (r *Runner) prune() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	type snap struct {
		name string
		size int64
	}
	var snaps []snap
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "snapshot-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, snap{name: e.Name(), size: info.Size()})
		total += info.Size()
	}
	// timestamped names sort chronologically
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].name < snaps[j].name })

	drop := 0
	if r.cfg.Keep > 0 && len(snaps) > r.cfg.Keep {
		drop = len(snaps) - r.cfg.Keep
	}
	if max := r.cfg.MaxBytes.Int64(); max > 0 {
		for drop < len(snaps)-1 && total > max {
			total -= snaps[drop].size
			drop++
		}
	}
	for i := 0; i < drop; i++ {
		p := filepath.Join(r.dir, snaps[i].name)
		if err := os.Remove(p); err != nil {
			return err
		}
		logger.Info("backup_snapshot_pruned", "path", p)
	}
	return nil
}
