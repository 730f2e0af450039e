package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/rvbbit/rvbbit/internal/health"
)

type fixedChecker struct{ healthy bool }

func (f fixedChecker) Name() string    { return "fixed" }
func (f fixedChecker) IsHealthy() bool { return f.healthy }
func (f fixedChecker) Start(ctx context.Context, interval time.Duration) {}

func TestHealthHandler_ReportsUpWhenAllDepsHealthy(t *testing.T) {
	svc := health.NewServiceHealthChecker(zerolog.Nop(), fixedChecker{healthy: true})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go svc.Start(ctx, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	h := NewHealthHandler(svc)
	rec := httptest.NewRecorder()
	h.CheckHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "UP")
}

func TestHealthHandler_ReportsDownWhenDepUnhealthy(t *testing.T) {
	svc := health.NewServiceHealthChecker(zerolog.Nop(), fixedChecker{healthy: false})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go svc.Start(ctx, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	h := NewHealthHandler(svc)
	rec := httptest.NewRecorder()
	h.CheckHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "DOWN")
}
