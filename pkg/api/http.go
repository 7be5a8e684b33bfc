package api

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"socialstore/pkg/api/handlers"
	"socialstore/pkg/config"
	"socialstore/pkg/httpmw"
	"socialstore/pkg/prefs"
	"socialstore/pkg/store"
	"socialstore/pkg/telemetry"
	"socialstore/pkg/utils"
)

//go:embed docs/openapi.yaml
var openapiSpec []byte

// Deps carries the runtime collaborators the HTTP surface needs.
type Deps struct {
	Cfg     *config.Config
	Prefs   *prefs.Store
	Backup  func(context.Context) (string, error)
	Version string
}

// Handler builds the full router: middleware, the /v1 collection API,
// the /admin surface, metrics and docs.
func Handler(d Deps) http.Handler {
	root := mux.NewRouter()
	root.Use(httpmw.RequestLog)
	root.Use(telemetry.Middleware)
	if d.Cfg != nil {
		root.Use(httpmw.CORS(d.Cfg.HTTP.CORS.AllowedOrigins))
		root.Use(httpmw.RateLimit(d.Cfg.HTTP.RateLimit.RPS, d.Cfg.HTTP.RateLimit.Burst))
	}

	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !store.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	root.HandleFunc("/docs/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapiSpec)
	}).Methods(http.MethodGet)
	root.PathPrefix("/docs/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/docs/openapi.yaml"),
	))

	v1 := root.PathPrefix("/v1").Subrouter()
	// watch and the scoped conveniences register before the generic
	// collection routes so their fixed segments win
	handlers.RegisterWatch(v1)
	handlers.RegisterChats(v1)
	handlers.RegisterPosts(v1)
	handlers.RegisterCollections(v1)

	admin := root.PathPrefix("/admin").Subrouter()
	handlers.RegisterAdmin(admin, handlers.AdminDeps{
		Backup:  d.Backup,
		Prefs:   d.Prefs,
		Version: d.Version,
	})

	return root
}
