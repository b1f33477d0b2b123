package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/gamewallet/internal/api/apierr"
	"github.com/mcoot/gamewallet/internal/api/handler"
	apimiddleware "github.com/mcoot/gamewallet/internal/api/middleware"
	"github.com/mcoot/gamewallet/internal/api/sse"
	"github.com/mcoot/gamewallet/internal/dependencies/clock"
	"github.com/mcoot/gamewallet/internal/metrics"
	"github.com/mcoot/gamewallet/internal/middleware"
	"github.com/mcoot/gamewallet/internal/services/auth"
	"github.com/mcoot/gamewallet/internal/services/ledger"
	"github.com/mcoot/gamewallet/internal/storage"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger        *slog.Logger
	AuthService   *auth.Service
	LedgerService *ledger.Service
	Storage       storage.Storage
	Clock         clock.Clock
	HubManager    *sse.HubManager
	Metrics       *metrics.Metrics // optional
	CORS          middleware.CORSConfig
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	accountHandler := handler.NewAccountHandler(cfg.AuthService, cfg.Logger)
	walletHandler := handler.NewWalletHandler(cfg.LedgerService, cfg.Logger)
	eventsHandler := handler.NewEventsHandler(cfg.HubManager)
	healthHandler := handler.NewHealthHandler(cfg.Storage, cfg.Clock, cfg.Logger)

	// Metrics need the matched route, so they run inside the router
	r.Use(cfg.Metrics.Middleware)

	// Public routes
	r.HandleFunc("/signup", accountHandler.Signup).Methods(http.MethodPost)
	r.HandleFunc("/login", accountHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	// Wallet routes (all require auth). These share the root path space with
	// the public routes, so auth wraps each handler rather than a subrouter.
	requireAuth := apimiddleware.Auth(cfg.AuthService)
	r.Handle("/balance", requireAuth(http.HandlerFunc(walletHandler.Balance))).Methods(http.MethodGet)
	r.Handle("/purchase", requireAuth(http.HandlerFunc(walletHandler.Purchase))).Methods(http.MethodPost)
	r.Handle("/top-up", requireAuth(http.HandlerFunc(walletHandler.TopUp))).Methods(http.MethodPost)
	r.Handle("/history", requireAuth(http.HandlerFunc(walletHandler.History))).Methods(http.MethodGet)
	r.Handle("/events", requireAuth(http.HandlerFunc(eventsHandler.Stream))).Methods(http.MethodGet)

	r.NotFoundHandler = cfg.Metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewNotFoundError())
	}))
	r.MethodNotAllowedHandler = cfg.Metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewMethodNotAllowedError())
	}))

	// Outermost first: recover, log, then answer CORS preflights before routing
	var h http.Handler = r
	h = middleware.CORS(cfg.CORS)(h)
	h = middleware.Logging(cfg.Logger)(h)
	h = apimiddleware.Recovery(cfg.Logger)(h)
	return h
}
