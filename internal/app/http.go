package app

import (
	"context"
	"net/http"
	"time"

	"socialstore/pkg/api"
	"socialstore/pkg/banner"
	"socialstore/pkg/logger"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// startHTTP builds the handler, starts the HTTP server in a goroutine and
// returns a channel that will contain any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	deps := api.Deps{
		Cfg:     a.eff.Config,
		Prefs:   a.prefs,
		Version: a.version,
	}
	if a.backup != nil {
		deps.Backup = a.backup.RunOnce
	}

	a.srv = &http.Server{
		Addr:              a.eff.Addr,
		Handler:           api.Handler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			logger.Info("http_listening", "addr", a.eff.Addr, "tls", true)
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			logger.Info("http_listening", "addr", a.eff.Addr, "tls", false)
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
