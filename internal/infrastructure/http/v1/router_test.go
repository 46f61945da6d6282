package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceledger/internal/app"
	"traceledger/internal/domain/auth"
	"traceledger/internal/domain/numbering"
	v1 "traceledger/internal/infrastructure/http/v1"
	"traceledger/internal/infrastructure/http/v1/dto"
	"traceledger/internal/infrastructure/metrics"
	"traceledger/pkg/logger"
)

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	jwt    *auth.JWTService
	token  string
}

func newTestAPI(t *testing.T, limits numbering.Limits) *testAPI {
	t.Helper()
	backend := app.NewMemoryBackend()
	m := metrics.New(nil)
	svc := app.NewServices(backend, app.Options{Limits: limits, Metrics: m})
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))

	router := v1.NewRouter(v1.RouterConfig{
		Services:     svc,
		Storage:      backend,
		Backend:      backend.Name,
		Version:      "test",
		Logger:       logger.Default(),
		JWTValidator: jwtSvc,
		Metrics:      m,
	})

	api := &testAPI{t: t, router: router, jwt: jwtSvc}
	api.token = api.tokenFor("operator-7", "*")
	return api
}

func (a *testAPI) tokenFor(subject string, perms ...string) string {
	token, _, err := a.jwt.GenerateAccessToken(subject, nil, perms)
	require.NoError(a.t, err)
	return token
}

func (a *testAPI) doAs(token, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	return a.doAs(a.token, method, path, body)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func batchBody(site int) map[string]any {
	return map[string]any{"siteId": site, "batchType": "PRODUCTION", "date": "2025-12-06"}
}

func TestRouter_Health(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())

	assert.Equal(t, http.StatusOK, api.doAs("", http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, api.doAs("", http.MethodGet, "/health/ready", nil).Code)

	w := api.doAs("", http.MethodGet, "/health/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "memory", decode[map[string]any](t, w)["storage"])
}

func TestRouter_AuthAndPermissions(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())

	w := api.doAs("", http.MethodPost, "/api/v1/identifiers/batches", batchBody(1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[dto.ErrorResponse](t, w).Code)

	w = api.doAs("not-a-jwt", http.MethodPost, "/api/v1/identifiers/batches", batchBody(1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	reader := api.tokenFor("auditor", "stock:read")
	w = api.doAs(reader, http.MethodPost, "/api/v1/identifiers/batches", batchBody(1))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode[dto.ErrorResponse](t, w).Code)
}

func TestRouter_AllocateBatches(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())

	w := api.do(http.MethodPost, "/api/v1/identifiers/batches", batchBody(1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[dto.BatchNumberResponse](t, w)
	assert.Equal(t, "00110202512060001", first.BatchNumber)
	assert.Equal(t, 1, first.Sequence)

	w = api.do(http.MethodPost, "/api/v1/identifiers/batches", batchBody(1))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "00110202512060002", decode[dto.BatchNumberResponse](t, w).BatchNumber)

	w = api.do(http.MethodPost, "/api/v1/identifiers/batches",
		map[string]any{"siteId": 1, "batchType": "PRODUCTION", "date": "06/12/2025"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/v1/identifiers/batches",
		map[string]any{"siteId": 1000, "batchType": "PRODUCTION", "date": "2025-12-06"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ScopeExhausted(t *testing.T) {
	limits := numbering.DefaultLimits()
	limits.MaxBatchSequence = 1
	api := newTestAPI(t, limits)

	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/identifiers/batches", batchBody(1)).Code)

	w := api.do(http.MethodPost, "/api/v1/identifiers/batches", batchBody(1))
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[dto.ErrorResponse](t, w)
	assert.Equal(t, "SCOPE_EXHAUSTED", body.Code)
	assert.EqualValues(t, 1, body.Details["current"])
	assert.EqualValues(t, 1, body.Details["max"])
}

func TestRouter_AdvanceCounter(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())

	w := api.do(http.MethodPut, "/api/v1/admin/counters", map[string]any{
		"purpose": "BATCH", "siteId": 2, "batchType": "PRODUCTION", "date": "2025-12-06", "value": 41,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 41, decode[map[string]any](t, w)["currentValue"])

	w = api.do(http.MethodPost, "/api/v1/identifiers/batches", batchBody(2))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "00210202512060042", decode[dto.BatchNumberResponse](t, w).BatchNumber)

	w = api.do(http.MethodGet, "/api/v1/admin/counters?purpose=BATCH&siteId=2&batchType=PRODUCTION&date=2025-12-06", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 42, decode[map[string]any](t, w)["currentValue"])
}

func TestRouter_SerialLifecycle(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())

	w := api.do(http.MethodPost, "/api/v1/identifiers/serials", map[string]any{
		"siteId": 1, "productionDate": "2025-12-06", "batchType": "PRODUCTION",
		"batchSequence": 1, "count": 3, "packQty": 1, "weight": "3.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode[dto.SerialsResponse](t, w)
	require.Equal(t, 3, issued.Count)
	assert.Equal(t, "00110202512060001", issued.BatchNumber)
	for i, s := range issued.Serials {
		assert.Equal(t, i+1, s.UnitSequence)
		assert.Equal(t, "CREATED", string(s.Status))
	}

	short := issued.Serials[0].ShortCode
	w = api.do(http.MethodGet, "/api/v1/serials/"+short, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, issued.Serials[0].FullCode, decode[map[string]any](t, w)["fullCode"])

	w = api.do(http.MethodPost, "/api/v1/serials/"+short+"/transitions", map[string]any{"status": "ASSIGNED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ASSIGNED", decode[map[string]any](t, w)["status"])

	w = api.do(http.MethodPost, "/api/v1/serials/"+short+"/transitions", map[string]any{"status": "SOLD"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[dto.ErrorResponse](t, w).Code)

	w = api.do(http.MethodGet, "/api/v1/serials/"+short+"/transitions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = api.do(http.MethodGet, "/api/v1/trace/serials/"+issued.Serials[0].FullCode, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(http.MethodGet, "/api/v1/serials/NOTASERIAL", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func movement(direction, txType, header string, qty int) map[string]any {
	return map[string]any{
		"productId":       "P-1",
		"direction":       direction,
		"quantity":        qty,
		"batchNumber":     "00110202512060001",
		"transactionType": txType,
		"headerId":        header,
		"detailId":        header + "-1",
		"occurredAt":      "2025-12-06T09:00:00Z",
	}
}

func TestRouter_LedgerAndStock(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())

	body := map[string]any{
		"idempotencyKey": "receipt-1",
		"movements": []any{
			movement("IN", "GOODS_RECEIPT", "H-1", 100),
			movement("OUT", "SALE", "H-2", 30),
		},
	}
	w := api.do(http.MethodPost, "/api/v1/ledger/movements", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	appended := decode[dto.AppendMovementsResponse](t, w)
	require.Len(t, appended.Movements, 2)
	assert.False(t, appended.Replayed)

	w = api.do(http.MethodPost, "/api/v1/ledger/movements", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replayed := decode[dto.AppendMovementsResponse](t, w)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, appended.Movements[0].LineID, replayed.Movements[0].LineID)

	soh := func() float64 {
		w := api.do(http.MethodGet, "/api/v1/stock/P-1/soh", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[map[string]any](t, w)["quantity"].(float64)
	}
	assert.Equal(t, 70.0, soh())

	w = api.do(http.MethodGet, "/api/v1/stock/P-1/soh?asOf=2025-12-06T08:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode[map[string]any](t, w)["quantity"])

	out := appended.Movements[1].LineID.String()
	path := "/api/v1/ledger/movements/" + out + "/compensations"
	w = api.do(http.MethodPost, path, map[string]any{"reason": "sale voided"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 100.0, soh())

	w = api.do(http.MethodPost, path, map[string]any{"reason": "again"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = api.do(http.MethodPost, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/stock/P-1/replay?from=2025-12-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replay := decode[map[string]any](t, w)
	assert.Equal(t, 100.0, replay["closingBalance"])
	assert.Len(t, replay["timeline"], 3)

	w = api.do(http.MethodGet, "/api/v1/stock/P-1/turnover?from=2025-12-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 100.0, decode[map[string]any](t, w)["closingBalance"])

	w = api.do(http.MethodGet, "/api/v1/trace/batches/00110202512060001", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode[map[string]any](t, w)["count"])

	w = api.do(http.MethodGet, "/api/v1/trace/batches/00110202512060001/report", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRouter_InvalidMovementRejectsBatch(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())

	bad := movement("OUT", "SALE", "H-2", 0)
	w := api.do(http.MethodPost, "/api/v1/ledger/movements", map[string]any{
		"movements": []any{movement("IN", "GOODS_RECEIPT", "H-1", 100), bad},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, w).Code)

	w = api.do(http.MethodGet, "/api/v1/stock/P-1/soh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode[map[string]any](t, w)["quantity"])
}

func TestRouter_Metrics(t *testing.T) {
	api := newTestAPI(t, numbering.DefaultLimits())
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/v1/identifiers/batches", batchBody(1)).Code)

	w := api.doAs("", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "identifiers_issued_total")
}
