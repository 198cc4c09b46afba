package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/inventory-service/jsoncodec"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth_NoCheckers(t *testing.T) {
	h := New()
	assert.Equal(t, StatusUp, h.Liveness(context.Background()).Status)
	assert.Equal(t, StatusUp, h.Readiness(context.Background()).Status)
}

func TestHealth_Readiness(t *testing.T) {
	h := New(WithReadinessChecker(
		NewPingChecker("database", pingerFunc(func(context.Context) error { return nil })),
		NewFuncChecker("broker", func(context.Context) error { return nil }),
	))

	resp := h.Readiness(context.Background())
	assert.Equal(t, StatusUp, resp.Status)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusUp, resp.Checks["database"].Status)
	assert.NotEmpty(t, resp.Checks["broker"].Latency)
}

func TestHealth_ReadinessDown(t *testing.T) {
	h := New(WithReadinessChecker(
		NewPingChecker("database", pingerFunc(func(context.Context) error { return nil })),
	))
	h.AddReadinessChecker(NewFuncChecker("broker", func(context.Context) error {
		return errors.New("broker: 未连接")
	}))

	resp := h.Readiness(context.Background())
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, "broker: 未连接", resp.Checks["broker"].Message)
	assert.Equal(t, StatusUp, resp.Checks["database"].Status)

	assert.Equal(t, StatusUp, h.Liveness(context.Background()).Status)
}

func TestHealth_Timeout(t *testing.T) {
	h := New(
		WithTimeout(20*time.Millisecond),
		WithLivenessChecker(NewPingChecker("slow", pingerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))),
	)

	resp := h.Liveness(context.Background())
	assert.Equal(t, StatusDown, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Message, "deadline exceeded")
}

func TestHTTPHandlers(t *testing.T) {
	ready := true
	h := New(WithReadinessChecker(NewFuncChecker("broker", func(context.Context) error {
		if ready {
			return nil
		}
		return errors.New("down")
	})))

	rec := httptest.NewRecorder()
	LivenessHandler(h)(rec, httptest.NewRequest(http.MethodGet, DefaultLivenessPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ReadinessHandler(h)(rec, httptest.NewRequest(http.MethodGet, DefaultReadinessPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

	ready = false
	rec = httptest.NewRecorder()
	ReadinessHandler(h)(rec, httptest.NewRequest(http.MethodGet, DefaultReadinessPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body Response
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusDown, body.Status)
	assert.Equal(t, "down", body.Checks["broker"].Message)
}
