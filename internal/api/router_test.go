package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/rvbbit/rvbbit/internal/health"
)

func TestRouter_RoutesToExpectedHandlers(t *testing.T) {
	engine := newFakeEngine()
	engine.execRows = []map[string]interface{}{{"x": 1.0}}
	sqlHandler, sched := newTestHandler(t, engine, &fakeMapRunner{})
	jobsHandler := NewJobsHandler(sched)
	healthChecker := health.NewServiceHealthChecker(zerolog.Nop())
	healthHandler := NewHealthHandler(healthChecker)

	router := NewRouter(sqlHandler, jobsHandler, healthHandler, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/sql", bytes.NewReader([]byte(`{"sql":"SELECT 1"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusNotFound, rec2.Code)

	req3 := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, req3)
	assert.Equal(t, http.StatusInternalServerError, rec3.Code)
}

func TestRouter_RecoversFromHandlerPanic(t *testing.T) {
	engine := newFakeEngine()
	engine.panicOnExec = true
	sqlHandler, sched := newTestHandler(t, engine, &fakeMapRunner{})
	jobsHandler := NewJobsHandler(sched)
	healthHandler := NewHealthHandler(health.NewServiceHealthChecker(zerolog.Nop()))
	router := NewRouter(sqlHandler, jobsHandler, healthHandler, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/sql", bytes.NewReader([]byte(`{"sql":"SELECT 1"}`)))
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		router.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
