package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
	"github.com/taoyao-code/edlink/internal/health"
	appmetrics "github.com/taoyao-code/edlink/internal/metrics"
	"github.com/taoyao-code/edlink/internal/registers"
)

func serve(srv *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	appmetrics.NewAppMetrics(reg)
	srv := New(cfg, Options{MetricsHandler: appmetrics.Handler(reg), Ready: func() bool { return true }})

	if rr := serve(srv, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("/healthz code=%d", rr.Code)
	}
	if rr := serve(srv, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("/readyz code=%d", rr.Code)
	}
	rr := serve(srv, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics code=%d", rr.Code)
	}
	assert.Contains(t, rr.Body.String(), "edlink_frames_total")
}

func TestReadyzNotReady(t *testing.T) {
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	srv := New(cfg, Options{Ready: func() bool { return false }})

	if rr := serve(srv, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz not-ready code=%d", rr.Code)
	}
	// 未配置的路由不注册
	assert.Equal(t, http.StatusNotFound, serve(srv, "/stats").Code)
}

func TestStats(t *testing.T) {
	srv := New(cfgpkg.HTTPConfig{}, Options{Stats: func() any {
		return map[string]int{"active_connections": 2}
	}})

	rr := serve(srv, "/stats")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body["active_connections"])
}

func TestRegisters(t *testing.T) {
	store := registers.NewMemoryStore(32)
	_, err := store.WriteRegister(context.Background(), 0x10, 0, []byte{0xde, 0xad})
	require.NoError(t, err)
	srv := New(cfgpkg.HTTPConfig{}, Options{Registers: store})

	t.Run("读取区间", func(t *testing.T) {
		rr := serve(srv, "/registers/0x10/2")
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			Offset uint32 `json:"offset"`
			Len    int    `json:"len"`
			Data   string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, uint32(16), body.Offset)
		assert.Equal(t, "dead", body.Data)
	})

	t.Run("参数错误", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, serve(srv, "/registers/x/2").Code)
		assert.Equal(t, http.StatusBadRequest, serve(srv, "/registers/0/0").Code)
		assert.Equal(t, http.StatusBadRequest, serve(srv, "/registers/0/4096").Code)
	})

	t.Run("越界", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, serve(srv, "/registers/30/4").Code)
	})
}

func TestHealthAggregator(t *testing.T) {
	cb := registers.NewCircuitBreaker(1, time.Minute)
	agg := health.NewAggregator(health.NewBreakerChecker(cb))
	srv := New(cfgpkg.HTTPConfig{}, Options{Health: agg})

	if rr := serve(srv, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("/readyz code=%d", rr.Code)
	}

	// 熔断打开只算降级，仍然就绪
	_ = cb.Call(func() error { return errors.New("down") })
	rr := serve(srv, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var report health.HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, health.StatusDegraded, report.Status)
	assert.Equal(t, http.StatusOK, serve(srv, "/readyz").Code)
}
