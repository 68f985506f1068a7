package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-audit/blockchain/ledger"
	"voting-audit/models"
	"voting-audit/registry"
	"voting-audit/service"
	"voting-audit/storage"
)

const (
	testAadhar = "1234 5678 9012"
	testPhone  = "9876543210"
)

type captureSender struct {
	mu  sync.Mutex
	otp string
}

func (c *captureSender) SendOTP(_ context.Context, _, _, otp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.otp = otp
	return nil
}

type brokenLedger struct{ *ledger.Ledger }

func (brokenLedger) IsValid() bool { return false }

type testServer struct {
	handler http.Handler
	ledger  *ledger.Ledger
	sender  *captureSender
}

func newTestServer(t *testing.T, broken bool) *testServer {
	t.Helper()
	reg := registry.NewMockVoterRegistry(registry.RegistryConfig{})
	require.NoError(t, reg.AddVoter(&models.Voter{ID: 1, Name: "Asha", Aadhar: testAadhar, PhoneNo: testPhone}))

	l := ledger.New()
	var audit service.AuditLedger = l
	if broken {
		audit = brokenLedger{l}
	}

	exporter, err := storage.NewChainExporter(t.TempDir(), 0, nil)
	require.NoError(t, err)

	sender := &captureSender{}
	metrics := service.NewMetricsCollector()
	srv := NewServer(Deps{
		Auth:     service.NewAuthService(reg, audit, sender, metrics, service.AuthConfig{}, nil),
		Ledger:   l,
		Exporter: exporter,
		Metrics:  metrics,
	})
	return &testServer{handler: srv.Handler(), ledger: l, sender: sender}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestLoginAndVerifyFlow(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/login_voter", LoginRequest{Aadhar: testAadhar, PhoneNo: testPhone})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[LoginResponse](t, rec)
	assert.True(t, login.VerificationRequired)

	rec = ts.do(t, http.MethodPost, "/api/v1/verify_otp", VerifyOTPRequest{PhoneNo: testPhone, OTP: ts.sender.otp})
	require.Equal(t, http.StatusOK, rec.Code)
	verify := decode[VerifyOTPResponse](t, rec)
	assert.Equal(t, "VERIFIED", verify.BlockchainInfo.VerificationStatus)
	assert.Equal(t, ts.ledger.Latest().Hash, verify.BlockchainInfo.BlockHash)
	assert.Equal(t, "XXXX XXXX 9012", verify.Voter.Aadhar)

	rec = ts.do(t, http.MethodGet, "/api/v1/audit/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chain := decode[ChainResponse](t, rec)
	assert.Equal(t, 3, chain.Length)
	assert.True(t, chain.IsValid)
	assert.Equal(t, "sha256", chain.Digest)
	assert.Equal(t, verify.BlockchainInfo.BlockHash, chain.LastHash)
}

func TestLoginErrors(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/login_voter", LoginRequest{Aadhar: testAadhar})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/login_voter", LoginRequest{Aadhar: "0000", PhoneNo: testPhone})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/verify_otp", VerifyOTPRequest{PhoneNo: testPhone, OTP: "000000"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OTP", decode[MessageResponse](t, rec).Message)

	rec = ts.do(t, http.MethodGet, "/api/v1/login_voter", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLoginRejectedOnIntegrityViolation(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/login_voter", LoginRequest{Aadhar: testAadhar, PhoneNo: testPhone})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[MessageResponse](t, rec)
	assert.Equal(t, "Blockchain integrity compromised", resp.Message)
	assert.Equal(t, "Security violation detected", resp.Error)
}

func TestAuditReadEndpoints(t *testing.T) {
	ts := newTestServer(t, false)
	ts.do(t, http.MethodPost, "/api/v1/login_voter", LoginRequest{Aadhar: testAadhar, PhoneNo: testPhone})
	latest := ts.ledger.Latest()

	rec := ts.do(t, http.MethodGet, "/api/v1/audit/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, latest, decode[models.Block](t, rec))

	rec = ts.do(t, http.MethodGet, "/api/v1/audit/blocks/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, latest.Hash, decode[models.Block](t, rec).Hash)

	rec = ts.do(t, http.MethodGet, "/api/v1/audit/blocks/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/audit/block?hash="+latest.Hash.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), decode[models.Block](t, rec).Index)

	rec = ts.do(t, http.MethodGet, "/api/v1/audit/block?hash=nothex", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/audit/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[ValidationResponse](t, rec)
	assert.True(t, v.IsValid)
	assert.Empty(t, v.Errors)

	rec = ts.do(t, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[service.MetricsResponse](t, rec)
	assert.Equal(t, 2, m.ChainLength)
	assert.Equal(t, 1, m.Appends.Count)
	assert.Equal(t, 2, m.Validations.Count)
}

func TestExportEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	ts.do(t, http.MethodPost, "/api/v1/login_voter", LoginRequest{Aadhar: testAadhar, PhoneNo: testPhone})

	rec := ts.do(t, http.MethodPost, "/api/v1/audit/export", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[ExportResponse](t, rec)
	assert.Equal(t, 2, resp.Length)

	dump, err := storage.LoadDump(resp.Path)
	require.NoError(t, err)
	assert.Equal(t, ts.ledger.Latest().Hash, dump.LastHash)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
