package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/api/recovery"
)

// NewRouter wires the SQL, job-lookup, and health endpoints behind the
// shared panic-recovery middleware.
func NewRouter(sqlHandler *SQLHandler, jobsHandler *JobsHandler, healthHandler *HealthHandler, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware(log))

	router.HandleFunc("/sql", sqlHandler.Query).Methods("POST")
	router.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods("GET")
	router.HandleFunc("/health", healthHandler.CheckHealth).Methods("GET")

	return router
}
