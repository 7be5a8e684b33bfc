package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"socialstore/internal/backup"
	"socialstore/pkg/config"
	"socialstore/pkg/logger"
	"socialstore/pkg/prefs"
	"socialstore/pkg/state"
	"socialstore/pkg/store"
	"socialstore/pkg/telemetry"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	prefs  *prefs.Store
	backup *backup.Runner

	srv *http.Server
}

// New prepares everything that does not need a running context: the state
// directory layout, the store (opened, upgraded and seeded), the audit
// file sink, telemetry spooling and operator preferences. It does not
// start the scheduler or the HTTP server; call Run to start those and
// block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	base := eff.DBPath
	if err := state.EnsureStateDirs(base); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs under %s: %w", base, err)
	}

	if err := store.Open(state.StorePath(base)); err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", state.StorePath(base), err)
	}
	if p := eff.Config.Storage.SeedPath; p != "" {
		store.SetSeedSource(p)
	}
	seeded, err := store.SeedIfNeeded(context.Background())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}
	if seeded {
		logger.Info("store_seeded", "path", state.StorePath(base))
	}

	// the audit sink mirrors the logs collection to a file; losing it is
	// not fatal, the store copy remains authoritative
	if err := logger.AttachAuditFileSink(filepath.Join(base, "state", "audit")); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}
	telemetry.SetSpoolDir(state.TelemetryPath(base))

	pstore, err := prefs.Open(filepath.Join(base, "state", "prefs.json"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, prefs: pstore}
	if eff.Config.Backup.Enabled {
		a.backup = backup.New(eff.Config.Backup, state.BackupsPath(base))
	}
	return a, nil
}

// Run starts the backup scheduler (if enabled) and the HTTP server, and
// blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if a.backup != nil {
		go func() {
			if err := a.backup.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("backup_scheduler_exited", "error", err)
			}
		}()
	}

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// shutdown drains in-flight requests, then closes the store so the last
// committed batch is durable before the process exits.
func (a *App) shutdown() error {
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.srv != nil {
		if err := a.srv.Shutdown(shCtx); err != nil {
			logger.Warn("http_shutdown_incomplete", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	logger.Info("server_stopped")
	return nil
}
