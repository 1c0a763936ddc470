package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strategyvault/internal/auth"
	"strategyvault/internal/events"
	"strategyvault/internal/health"
	"strategyvault/internal/storage/sqlite"
	"strategyvault/internal/strategies"
	"strategyvault/internal/treasury"
)

const internalToken = "internal-test-token"

func newTestServer(t *testing.T) (*httptest.Server, *auth.Service) {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	dir := strategies.NewStaticDirectory()
	dir.Add("strat-1", "owner-1")
	bus := events.NewBus()
	svc := treasury.NewService(store, dir, bus, decimal.Zero, 5*time.Second)
	authSvc := auth.NewService("strategyvault", []byte("test-secret"))

	router := NewRouter(Deps{
		Auth:          authSvc,
		Treasury:      treasury.NewHandler(svc),
		Health:        health.NewHandler(func(ctx context.Context) error { return store.Ping(ctx) }),
		Events:        NewEventStream(bus, "*"),
		InternalToken: internalToken,
		RatePerSecond: 1000,
		RateBurst:     1000,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, authSvc
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRequestsWithoutTokenRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/treasury", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDepositAndReadBack(t *testing.T) {
	srv, authSvc := newTestServer(t)
	token, err := authSvc.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/treasury/strat-1/deposit", token,
		map[string]string{"amount": "150.25", "correlation_ref": "dep-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Balance struct {
			Available string `json:"available_balance"`
		} `json:"balance"`
		Transaction struct {
			Kind   string `json:"kind"`
			Status string `json:"status"`
		} `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "150.25", out.Balance.Available)
	assert.Equal(t, "DEPOSIT", out.Transaction.Kind)
	assert.Equal(t, "COMPLETED", out.Transaction.Status)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/treasury/strat-1", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorTaxonomyStatusCodes(t *testing.T) {
	srv, authSvc := newTestServer(t)
	token, err := authSvc.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)
	otherToken, err := authSvc.IssueToken("owner-2", time.Hour)
	require.NoError(t, err)

	// Unknown treasury.
	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/treasury/strat-1", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Strategy owned by someone else.
	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/treasury/strat-1/initialize", otherToken,
		map[string]string{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/treasury/strat-1/deposit", token,
		map[string]string{"amount": "100"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Negative amount.
	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/treasury/strat-1/deposit", token,
		map[string]string{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Overdraw.
	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/treasury/strat-1/withdraw", token,
		map[string]string{"amount": "500"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInternalAdjustRequiresToken(t *testing.T) {
	srv, authSvc := newTestServer(t)
	token, err := authSvc.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/treasury/strat-1/deposit", token,
		map[string]string{"amount": "100"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := map[string]any{
		"strategy_id": "strat-1",
		"owner_id":    "owner-1",
		"amount":      "25",
		"kind":        "TRADE_OPEN",
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/internal/treasury/adjust", &buf)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err = http.NewRequest(http.MethodPost, srv.URL+"/v1/internal/treasury/adjust", &buf)
	require.NoError(t, err)
	req.Header.Set("X-Internal-Token", internalToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Balance struct {
			Available string `json:"available_balance"`
			Locked    string `json:"locked_balance"`
		} `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "75", out.Balance.Available)
	assert.Equal(t, "25", out.Balance.Locked)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
