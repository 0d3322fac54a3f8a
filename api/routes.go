package api

import (
	"github.com/gorilla/mux"

	"github.com/garnizeh/bidflow/internal/config"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, db Pinger, svc Services) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(TimeoutMiddleware(cfg.APITimeout))

	// Create handlers
	systemHandler := &SystemHandler{DB: db}
	negotiationsHandler := NewNegotiationsHandler(svc.Negotiations)
	paymentsHandler := NewPaymentsHandler(svc.Payments)
	contractsHandler := NewContractsHandler(svc.Ledger)
	bookingsHandler := NewBookingsHandler(svc.Scheduling)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")

	// Notifications authenticate by signature
	r.HandleFunc("/webhooks/payments", paymentsHandler.Webhook).Methods("POST")
	r.HandleFunc("/webhooks/scheduling", bookingsHandler.Webhook).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	apiV1.HandleFunc("/negotiations/{id}", negotiationsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/negotiations/{id}/interest", negotiationsHandler.Interest).Methods("POST")
	apiV1.HandleFunc("/negotiations/{id}/intent", negotiationsHandler.Intent).Methods("POST")

	apiV1.HandleFunc("/checkout", paymentsHandler.Checkout).Methods("POST")
	apiV1.HandleFunc("/payments/{sessionId}", paymentsHandler.Status).Methods("GET")

	apiV1.HandleFunc("/contracts/{contractId}", contractsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/contracts/{contractId}/milestones/{milestoneId}/{action:submit|approve|pay}", contractsHandler.Milestone).Methods("POST")
	apiV1.HandleFunc("/milestones/{action:submit|approve|pay}", contractsHandler.Milestone).Methods("POST")

	apiV1.HandleFunc("/bookings", bookingsHandler.Create).Methods("POST")

	return r
}
