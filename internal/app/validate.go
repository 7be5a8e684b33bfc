package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/adhocore/gronx"

	"socialstore/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("effective config is nil")
	}

	if eff.DBPath == "" {
		return fmt.Errorf("store path is empty: set --db flag, SOCIALSTORE_DB_PATH env, or storage.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "") != (key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if sp := eff.Config.Storage.SeedPath; sp != "" {
		if _, err := os.Stat(sp); err != nil {
			return fmt.Errorf("seed file not accessible: %w", err)
		}
	}

	if eff.Config.Backup.Enabled {
		if expr := strings.TrimSpace(eff.Config.Backup.Cron); expr != "" {
			if !gronx.New().IsValid(expr) {
				return fmt.Errorf("invalid backup cron expression: %q", expr)
			}
		}
	}

	return nil
}
