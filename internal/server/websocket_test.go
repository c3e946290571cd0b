package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eb "frta-simulation/internal/eventBus"
	"frta-simulation/internal/mesh"
	"frta-simulation/internal/metrics"
)

func newTestServer() (*Server, *[]string) {
	var calls []string
	s := New(eb.NewBus(), metrics.NewCollector(), func(from, dest mesh.Addr, payload string) {
		calls = append(calls, from.String()+"->"+dest.String()+":"+payload)
	})
	return s, &calls
}

func TestInjectHandler(t *testing.T) {
	s, calls := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/inject",
		strings.NewReader(`{"from":"10.1.1.1","dest":"10.1.1.2","payload":"hi"}`))
	rec := httptest.NewRecorder()
	s.injectHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, *calls, 1)
	assert.Equal(t, "10.1.1.1->10.1.1.2:hi", (*calls)[0])
}

func TestInjectHandlerRejectsBadAddresses(t *testing.T) {
	s, calls := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/inject",
		strings.NewReader(`{"from":"not-an-address","dest":"10.1.1.2"}`))
	rec := httptest.NewRecorder()
	s.injectHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, *calls)
}

func TestInjectHandlerRejectsBadJSON(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/inject", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.injectHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsHandler(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.metricsHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "requests_sent")
}
