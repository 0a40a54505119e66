package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.httpServer.Handler.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestNewServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := NewServer(":0", reg)

	require.NotNil(t, server)
	require.NotNil(t, server.httpServer)
	require.Equal(t, ":0", server.httpServer.Addr)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncClamped("USDC")
	m.RecordBatch(BatchCommitted, 0.5)
	m.ObserveAdmission("wealth_gain", "1h0m0s", 42, 0.0001)

	code, body := serve(t, NewServer(":0", reg), "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "wealthgain_clamped_amounts_total")
	require.Contains(t, body, "wealthgain_batches_total")
	require.Contains(t, body, "wealthgain_window_aggregate")
}

func TestServer_HealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		checks   []HealthCheck
		wantCode int
		wantBody string
	}{
		{
			name:     "no checks",
			wantCode: http.StatusOK,
			wantBody: "ok",
		},
		{
			name:     "passing check",
			checks:   []HealthCheck{func(context.Context) error { return nil }},
			wantCode: http.StatusOK,
			wantBody: "ok",
		},
		{
			name: "failing check",
			checks: []HealthCheck{
				func(context.Context) error { return nil },
				func(context.Context) error { return errors.New("ledger closed") },
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: "unhealthy: ledger closed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := make([]ServerOption, 0, len(tt.checks))
			for _, c := range tt.checks {
				opts = append(opts, WithHealthCheck(c))
			}
			code, body := serve(t, NewServer(":0", prometheus.NewRegistry(), opts...), "/health")
			require.Equal(t, tt.wantCode, code)
			require.Equal(t, tt.wantBody, body)
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", prometheus.NewRegistry())
	errCh := server.Start()

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	err, ok := <-errCh
	if ok {
		require.NoError(t, err)
	}
}
