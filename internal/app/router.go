package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/eod"
	"github.com/mmbank/moneymarket/internal/fx"
	"github.com/mmbank/moneymarket/internal/interest"
	"github.com/mmbank/moneymarket/internal/ledger"
	"github.com/mmbank/moneymarket/internal/paramstore"
	"github.com/mmbank/moneymarket/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AccountsHandler *accounts.Handler
	LedgerHandler   *ledger.Handler
	FxHandler       *fx.Handler
	InterestHandler *interest.Handler
	EODHandler      *eod.Handler
	ParamsHandler   *paramstore.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.LedgerHandler != nil {
			r.Route("/transactions", params.LedgerHandler.MountRoutes)
		}
		if params.FxHandler != nil {
			r.Route("/fx", params.FxHandler.MountRoutes)
		}
		if params.InterestHandler != nil {
			r.Route("/interest", params.InterestHandler.MountRoutes)
		}
		if params.EODHandler != nil {
			r.Route("/eod", params.EODHandler.MountRoutes)
		}
		if params.ParamsHandler != nil {
			r.Route("/params", params.ParamsHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
