package banner

import (
	"fmt"

	"socialstore/pkg/config"
)

const banner = `
███████╗ ██████╗  ██████╗██╗ █████╗ ██╗         ███████╗████████╗ ██████╗ ██████╗ ███████╗
██╔════╝██╔═══██╗██╔════╝██║██╔══██╗██║         ██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗██╔════╝
███████╗██║   ██║██║     ██║███████║██║         ███████╗   ██║   ██║   ██║██████╔╝█████╗
╚════██║██║   ██║██║     ██║██╔══██║██║         ╚════██║   ██║   ██║   ██║██╔══██╗██╔══╝
███████║╚██████╔╝╚██████╗██║██║  ██║███████╗    ███████║   ██║   ╚██████╔╝██║  ██║███████╗
╚══════╝ ╚═════╝  ╚═════╝╚═╝╚═╝  ╚═╝╚══════╝    ╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚══════╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides the resolved addr, store path and config source.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Storage.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("Store:    %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET/PUT/DELETE /v1/{collection}[/{key}]  - collection CRUD")
	fmt.Println("POST /v1/{collection}/bulk               - atomic bulk write")
	fmt.Println("GET  /v1/{collection}?index=..&value=..  - secondary index query")
	fmt.Println("GET  /v1/watch                           - change events (SSE)")
	fmt.Println("GET  /admin/stats | /admin/logs          - introspection")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X PUT 'http://localhost%s/v1/posts/post-1' -d '{\"id\":\"post-1\",\"authorProfileId\":\"p-ada\",\"type\":\"text\",\"time\":1735696800000}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/messages?index=by_chat&value=c-general'\n", addr)

	fmt.Println("\n== Production? =================================================")
	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if eff.DBPath != "" {
		fmt.Printf("- Store path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- Store path: not set (use --db or SOCIALSTORE_DB_PATH)")
	}
	if eff.Config != nil && len(eff.Config.HTTP.CORS.AllowedOrigins) > 0 {
		fmt.Printf("- CORS: %d allowed origin(s)\n", len(eff.Config.HTTP.CORS.AllowedOrigins))
	} else {
		fmt.Println("- CORS: closed (no allowed origins)")
	}
	if eff.Config != nil && eff.Config.HTTP.RateLimit.RPS > 0 {
		fmt.Printf("- Rate limit: %.1f rps burst=%d\n", eff.Config.HTTP.RateLimit.RPS, eff.Config.HTTP.RateLimit.Burst)
	} else {
		fmt.Println("- Rate limit: disabled")
	}
	if eff.Config != nil && eff.Config.Backup.Enabled {
		fmt.Printf("- Backups: enabled (cron=%s keep=%d)\n", eff.Config.Backup.Cron, eff.Config.Backup.Keep)
	} else {
		fmt.Println("- Backups: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
