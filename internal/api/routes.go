package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api/handlers"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api/responses"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/observability/metrics"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
)

// Router wires the handlers to their routes.
type Router struct {
	auditHandler  *handlers.AuditHandler
	budgetHandler *handlers.BudgetHandler
	healthHandler *handlers.HealthHandler

	middleware *MiddlewareConfig
	metrics    *metrics.PrometheusMetrics
	logger     *logrus.Logger
}

// NewRouter creates a router. m may be nil, in which case /metrics is not
// served and requests are not measured.
func NewRouter(audit *handlers.AuditHandler, budget *handlers.BudgetHandler, health *handlers.HealthHandler,
	m *metrics.PrometheusMetrics, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		auditHandler:  audit,
		budgetHandler: budget,
		healthHandler: health,
		middleware:    DefaultMiddlewareConfig(),
		metrics:       m,
		logger:        logger,
	}
}

func (router *Router) SetupRoutes() *mux.Router {
	r := mux.NewRouter()
	r = ApplyMiddleware(r, router.middleware, router.logger, router.metrics)

	if router.metrics != nil {
		r.Handle("/metrics", router.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix(constants.APIPrefix).Subrouter()

	health := api.PathPrefix("/health").Subrouter()
	health.HandleFunc("", router.healthHandler.GetHealth).Methods(http.MethodGet)
	health.HandleFunc("/live", router.healthHandler.GetLiveness).Methods(http.MethodGet)
	health.HandleFunc("/version", router.healthHandler.GetVersion).Methods(http.MethodGet)

	api.HandleFunc("/audit", router.auditHandler.Audit).Methods(http.MethodPost)
	api.HandleFunc("/enforce", router.auditHandler.Enforce).Methods(http.MethodPost)

	budget := api.PathPrefix("/budget").Subrouter()
	budget.HandleFunc("", router.budgetHandler.GetBudget).Methods(http.MethodGet)
	budget.HandleFunc("/queries", router.budgetHandler.RecordQuery).Methods(http.MethodPost)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		responses.JSON(w, http.StatusOK, map[string]interface{}{
			"service": constants.AppName,
			"version": constants.AppVersion,
			"status":  "running",
			"endpoints": map[string]string{
				"health":  constants.APIPrefix + "/health",
				"audit":   constants.APIPrefix + "/audit",
				"enforce": constants.APIPrefix + "/enforce",
				"budget":  constants.APIPrefix + "/budget",
			},
		})
	}).Methods(http.MethodGet)

	// mux answers preflight requests with 405; CORSMiddleware turns those into 200
	r.MethodNotAllowedHandler = CORSMiddleware(router.middleware.AllowedOrigins)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}))

	return r
}
