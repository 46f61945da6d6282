package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_DomainCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IdentifiersIssued("serial", 50)
	m.IdentifiersIssued("serial", 2)
	m.ScopeExhausted("BATCH")
	m.IntegrityFailure("serial")
	m.MovementsAppended("SALE", 3)
	m.StatusTransition("CREATED", "ASSIGNED")

	assert.Equal(t, 52.0, testutil.ToFloat64(m.identifiersIssued.WithLabelValues("serial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scopeExhausted.WithLabelValues("BATCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.integrityFailures.WithLabelValues("serial")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.movements.WithLabelValues("SALE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("CREATED", "ASSIGNED")))
}

func TestPrometheus_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/42", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/ping/:id", "204")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "traceledger_http_requests_total"))
}
