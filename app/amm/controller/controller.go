package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/canopy-network/liquidityx/app/amm/types"
	"github.com/canopy-network/liquidityx/pkg/metrics"
	"github.com/canopy-network/liquidityx/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Controller struct {
	App        *types.App
	AdminToken string
	JWTSecret  []byte
	validate   *validator.Validate
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App:        app,
		AdminToken: utils.Env("ADMIN_TOKEN", ""),
		JWTSecret:  []byte(utils.Env("ADMIN_JWT_SECRET", "")),
		validate:   validator.New(),
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(c.withMetrics)

	r.HandleFunc("/health", c.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Depositor API
	r.HandleFunc("/account", c.HandleAccount).Methods(http.MethodPost)
	r.HandleFunc("/deposit", c.HandleDeposit).Methods(http.MethodPost)
	r.HandleFunc("/withdraw", c.HandleWithdraw).Methods(http.MethodPost)
	r.HandleFunc("/stats", c.HandleStats).Methods(http.MethodGet)

	// Operator API
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(c.RequireAdmin)
	admin.HandleFunc("/charges/pending", c.HandlePendingCharges).Methods(http.MethodGet)
	admin.HandleFunc("/charges/{id:[0-9]+}/resubmit", c.HandleResubmit).Methods(http.MethodPost)
	admin.HandleFunc("/markets/{id:.+}/plan", c.HandlePlan).Methods(http.MethodGet)
	admin.HandleFunc("/markets/{id:.+}/rebalance", c.HandleRebalance).Methods(http.MethodPost)
	admin.HandleFunc("/events", c.HandleEvents).Methods(http.MethodGet)

	return r, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withMetrics observes request latency by route template and status.
func (c *Controller) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.ObserveSince(metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)), start)
	})
}
