package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/chains/bitcoin"
	"github.com/chinmay1088/odyssey-core/chains/ethereum"
	"github.com/chinmay1088/odyssey-core/chains/solana"
	"github.com/chinmay1088/odyssey-core/crypto"
	"github.com/chinmay1088/odyssey-core/dispatch"
	"github.com/chinmay1088/odyssey-core/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBackend struct {
	balance decimal.Decimal
	result  *chains.Result
	err     error
	health  map[string]dispatch.ChainHealth

	sent dispatch.SendRequest
}

func (b *fakeBackend) GetBalance(_ context.Context, _, _ string) (decimal.Decimal, error) {
	return b.balance, b.err
}

func (b *fakeBackend) Send(_ context.Context, req dispatch.SendRequest) (*chains.Result, error) {
	b.sent = req
	return b.result, b.err
}

func (b *fakeBackend) GetStatus(_ context.Context, _, ref string) (*chains.Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	return chains.Pending(ref), nil
}

func (b *fakeBackend) GetHealth() map[string]dispatch.ChainHealth {
	return b.health
}

func serve(t *testing.T, b *fakeBackend, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	s := New(b, metrics.New(), Options{})
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetBalance(t *testing.T) {
	b := &fakeBackend{balance: decimal.RequireFromString("1.23456789")}
	rec := serve(t, b, http.MethodGet, "/v1/chains/bitcoin/balance/bc1qaddr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "1.23456789", body["balance"])
	assert.Equal(t, "bitcoin", body["chain"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDPassThrough(t *testing.T) {
	s := New(&fakeBackend{}, nil, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "6f1c1a2e-2f0b-4c55-9d55-0d8d3b1f4a10")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "6f1c1a2e-2f0b-4c55-9d55-0d8d3b1f4a10", rec.Header().Get(RequestIDHeader))
}

func TestPostTransfer(t *testing.T) {
	b := &fakeBackend{result: chains.Confirmed("0xabc", 1234, 1)}
	rec := serve(t, b, http.MethodPost, "/v1/chains/eth/transfers", `{
		"from": "0x01", "to": "0x02", "amount": "0.5", "key": "sealed:key:material",
		"keyMode": "encrypted",
		"options": {"maxFeePerGas": "30000000000", "maxPriorityFeePerGas": "2000000000", "gasLimit": 21000}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "0xabc", body["txReference"])
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, float64(1234), body["blockHeightOrSlot"])

	assert.Equal(t, "eth", b.sent.Chain)
	assert.Equal(t, crypto.KeyModeEncrypted, b.sent.KeyMode)
	assert.Equal(t, "30000000000", b.sent.Options.MaxFeePerGas.String())
	assert.Equal(t, uint64(21000), *b.sent.Options.GasLimit)
	assert.Nil(t, b.sent.Options.GasPrice)
	assert.NotContains(t, rec.Body.String(), "sealed:key:material")
}

func TestPostTransfer_Pending(t *testing.T) {
	b := &fakeBackend{result: chains.Pending("sig")}
	rec := serve(t, b, http.MethodPost, "/v1/chains/solana/transfers", `{"from":"a","to":"b","amount":"1","key":"k"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	b = &fakeBackend{result: chains.Pending("0xabc"), err: chains.Wrap(chains.ErrTimeout, context.DeadlineExceeded)}
	rec = serve(t, b, http.MethodPost, "/v1/chains/eth/transfers", `{"from":"a","to":"b","amount":"1","key":"k"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "0xabc", body["txReference"])
	assert.Contains(t, body["warning"], "timeout")
}

func TestPostTransfer_BadRequests(t *testing.T) {
	b := &fakeBackend{}
	cases := map[string]string{
		"not json":      `{`,
		"missing key":   `{"from":"a","to":"b","amount":"1"}`,
		"bad key mode":  `{"from":"a","to":"b","amount":"1","key":"k","keyMode":"hsm"}`,
		"bad gas price": `{"from":"a","to":"b","amount":"1","key":"k","options":{"gasPrice":"1.5"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, b, http.MethodPost, "/v1/chains/eth/transfers", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errors.Wrap(chains.ErrUnsupportedChain, "dogecoin"), http.StatusBadRequest},
		{errors.Wrap(chains.ErrInvalidAddress, "x"), http.StatusBadRequest},
		{errors.Wrap(chains.ErrKeyDecryptionFailed, "x"), http.StatusUnauthorized},
		{errors.Wrap(chains.ErrInsufficientFunds, "x"), http.StatusUnprocessableEntity},
		{chains.ErrNoFundsAvailable, http.StatusUnprocessableEntity},
		{chains.Wrap(chains.ErrAllEndpointsUnhealthy, errors.New("x")), http.StatusServiceUnavailable},
		{chains.Wrap(chains.ErrTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{chains.Rejected("nonce too low"), http.StatusBadGateway},
		{errors.New("untyped"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := serve(t, &fakeBackend{err: tc.err}, http.MethodGet, "/v1/chains/x/transactions/ref", "")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}

	rec := serve(t, &fakeBackend{err: chains.Rejected("nonce too low")}, http.MethodGet, "/v1/chains/x/balance/a", "")
	assert.Equal(t, "broadcast rejected", decode(t, rec)["kind"])
}

func TestPostTransfer_UnparseableKeyIsUnauthorized(t *testing.T) {
	for _, parse := range []func([]byte) error{
		func(k []byte) error { _, err := ethereum.ParsePrivateKey(k); return err },
		func(k []byte) error { _, err := bitcoin.ParsePrivateKey(k); return err },
		func(k []byte) error { _, err := solana.ParsePrivateKey(k); return err },
	} {
		err := parse([]byte("not-a-key"))
		require.Error(t, err)

		b := &fakeBackend{err: chains.Classify(err)}
		rec := serve(t, b, http.MethodPost, "/v1/chains/eth/transfers",
			`{"from":"0xa","to":"0xb","amount":"1","key":"not-a-key","keyMode":"plaintext"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, err.Error())
		assert.Equal(t, "key decryption failed", decode(t, rec)["kind"])
		assert.NotContains(t, rec.Body.String(), "not-a-key")
	}
}

func TestGetTransaction_UnknownIsPending(t *testing.T) {
	rec := serve(t, &fakeBackend{}, http.MethodGet, "/v1/chains/bitcoin/transactions/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.NotContains(t, body, "blockHeightOrSlot")
}

func TestHealthEndpoints(t *testing.T) {
	b := &fakeBackend{health: map[string]dispatch.ChainHealth{
		"bitcoin":  {Healthy: true, CurrentEndpoint: "https://node"},
		"ethereum": {Healthy: false},
	}}
	rec := serve(t, b, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["bitcoin"].(map[string]interface{})["healthy"])
	assert.Equal(t, "https://node", body["bitcoin"].(map[string]interface{})["currentEndpoint"])

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, b, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, serve(t, b, http.MethodGet, "/healthz", "").Code)

	b.health["ethereum"] = dispatch.ChainHealth{Healthy: true}
	assert.Equal(t, http.StatusOK, serve(t, b, http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncTransfer("bitcoin", "confirmed")
	s := New(&fakeBackend{}, m, Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `odyssey_transfers_total{chain="bitcoin",outcome="confirmed"} 1`)

	local := New(&fakeBackend{}, m, Options{LocalMetrics: true})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rec = httptest.NewRecorder()
	local.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
