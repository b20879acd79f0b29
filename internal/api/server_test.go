package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fee-cli/internal/compliance"
	"github.com/sells-group/fee-cli/internal/dataset"
	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/letter"
	"github.com/sells-group/fee-cli/internal/metrics"
	"github.com/sells-group/fee-cli/internal/model"
	"github.com/sells-group/fee-cli/internal/resolve"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func testDataset() *model.Dataset {
	return &model.Dataset{
		Source:   "ref.xlsx",
		LoadedAt: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
		Investors: []model.Investor{
			{ClientRef: "CC1001", FirstName: "Jane", LastName: "Smith", Email: "jane@example.com",
				Classification: "Professional", KYCStatus: "Complete", AMLStatus: "Clear"},
			{ClientRef: "CC1003", FirstName: "Sam", LastName: "Hickford", Email: "sam@example.com"},
			{ClientRef: "CC1004", FirstName: "Sara", LastName: "Hickford", Email: "sara@example.com"},
		},
		Companies: []model.Company{
			{Name: "Acme Robotics Ltd", Number: "09876543", SharePrice: price("1.25"), FundType: "EIS"},
		},
		FeeRows: []model.FeeRow{
			{ClientRef: "CC1001", InvestorName: "Jane Smith", SubscriptionCode: "SmithJ-EIS-1", Fund: "Professional",
				GrossNet: "Gross", UpfrontPct: price("0.015"), AMCPct: price("0.02"), CarryPct: price("0.2")},
		},
	}
}

type testServer struct {
	handler http.Handler
	reg     *prometheus.Registry
	m       *metrics.Metrics
	loads   *atomic.Int64
	fail    *atomic.Bool
}

func newTestServer(t *testing.T, cfg Config) testServer {
	t.Helper()
	r, err := resolve.New(resolve.DefaultConfig())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := letter.NewService(r, fee.NewCalculator(fee.DefaultOptions()), compliance.NewGate(compliance.DefaultRules()), fee.DefaultRates(),
		letter.WithMetrics(m),
	)

	loads := &atomic.Int64{}
	fail := &atomic.Bool{}
	cache := dataset.NewCache(dataset.LoaderFunc(func(_ context.Context, path string) (*model.Dataset, error) {
		loads.Add(1)
		if fail.Load() {
			return nil, errors.New("workbook locked")
		}
		ds := testDataset()
		ds.Source = path
		return ds, nil
	}))

	if cfg.WorkbookPath == "" {
		cfg.WorkbookPath = "/data/ref.xlsx"
	}
	srv := NewServer(cfg, svc, cache, WithMetrics(m, reg))
	return testServer{handler: srv.Router(), reg: reg, m: m, loads: loads, fail: fail}
}

func (ts testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
}

func TestResolve(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	tests := []struct {
		name   string
		path   string
		body   ResolveRequest
		status int
		kind   string
		tier   string
	}{
		{"investor by email", "/v1/resolve/investor", ResolveRequest{Query: "JANE@example.com"}, http.StatusOK, "unique", "exact_key"},
		{"investor ambiguous surname", "/v1/resolve/investor", ResolveRequest{Query: "Hickford"}, http.StatusOK, "ambiguous", "containment"},
		{"company by number", "/v1/resolve/company", ResolveRequest{Query: "09876543"}, http.StatusOK, "unique", "exact_key"},
		{"company missing", "/v1/resolve/company", ResolveRequest{Query: "Zenith Aerospace"}, http.StatusOK, "not_found", "similarity"},
		{"fee row by ref", "/v1/resolve/fee-row", ResolveRequest{ClientRef: "CC1001"}, http.StatusOK, "unique", "exact_key"},
		{"fee row by name", "/v1/resolve/fee-row", ResolveRequest{Query: "Smith Jane"}, http.StatusOK, "unique", "compressed_exact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			body := decodeBody(t, rr)
			assert.Equal(t, tt.kind, body["kind"])
			assert.Equal(t, tt.tier, body["tier"])
		})
	}

	assert.InDelta(t, 1, testutil.ToFloat64(ts.m.Resolutions.WithLabelValues("investor", "ambiguous", "containment")), 0)
	// one load serves every request
	assert.Equal(t, int64(1), ts.loads.Load())
}

func TestResolve_UnknownEntity(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/v1/resolve/fund", ResolveRequest{Query: "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestResolve_BadBody(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/v1/resolve/investor", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodPost, "/v1/resolve/investor", `{"name":"Jane"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCalculate(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/v1/calculate", `{"amount":"54435.20"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var q letter.Quote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	assert.True(t, decimal.NewFromInt(50000).Equal(q.Calculation.GrossInvestment))
	assert.True(t, q.Source.UsingDefaultRates)
	assert.Equal(t, "£54,435.20", q.Summary.Transfer)
	assert.Len(t, q.Calculation.Hash, 16)
}

func TestCalculate_CalculationError(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/v1/calculate", `{"amount":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "amount", body["field"])

	rr = ts.do(t, http.MethodPost, "/v1/calculate", `{"amount":100,"overrides":{"rounding":"sideways"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "rounding", decodeBody(t, rr)["field"])
}

func TestPrepare(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/v1/prepare", map[string]any{
		"investor": "Jane Smith",
		"company":  "Acme Robotics",
		"amount":   "50000",
		"dry_run":  true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, false, body["using_default_rates"])

	rr = ts.do(t, http.MethodPost, "/v1/prepare", map[string]any{
		"investor": "Hickford",
		"company":  "Acme Robotics",
		"amount":   "50000",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody(t, rr)
	assert.Equal(t, "needs_clarification", body["status"])
	assert.NotEmpty(t, body["clarifications"])
}

func TestPrepare_MissingFields(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	rr := ts.do(t, http.MethodPost, "/v1/prepare", `{"investor":"Jane Smith","amount":"100"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDatasetUnavailable(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})
	ts.fail.Store(true)

	rr := ts.do(t, http.MethodPost, "/v1/resolve/investor", ResolveRequest{Query: "Jane"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "workbook locked")
}

func TestDatasetRefresh(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{WorkbookPath: "/data/Investors.xlsx"})

	rr := ts.do(t, http.MethodPost, "/v1/dataset/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var info DatasetInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, "/data/Investors.xlsx", info.Source)
	assert.Equal(t, 3, info.Investors)
	assert.Equal(t, 1, info.Companies)
	assert.Equal(t, 1, info.FeeRows)

	ts.fail.Store(true)
	rr = ts.do(t, http.MethodPost, "/v1/dataset/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	// the previous snapshot still serves
	rr = ts.do(t, http.MethodPost, "/v1/resolve/investor", ResolveRequest{Query: "CC1001"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{})

	ts.do(t, http.MethodPost, "/v1/calculate", `{"amount":"1000"}`)
	rr := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "feecli_calculations_total")
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{CORSOrigins: []string{"https://ops.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/calculate", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://ops.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	rr := ts.do(t, http.MethodPost, "/v1/calculate", `{"amount":"1000"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPost, "/v1/calculate", `{"amount":"1000"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1000", rr.Header().Get("Retry-After"))

	// health is outside the limited group
	rr = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(visitorTTL + time.Second)
	rl.Allow("c")
	rl.mu.Lock()
	_, stale := rl.visitors["a"]
	rl.mu.Unlock()
	assert.False(t, stale)
}

func TestClientKey(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientKey(req))

	req.RemoteAddr = "192.0.2.8"
	assert.Equal(t, "192.0.2.8", clientKey(req))
	assert.False(t, strings.Contains(clientKey(req), ":"))
}
