package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-ethauth"
	"github.com/goliatone/go-ethauth/config"
)

type outbox struct {
	mu   sync.Mutex
	sent []ethauth.EmailMessage
}

func (o *outbox) Send(_ context.Context, msg ethauth.EmailMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func newTestService(t *testing.T, mutate func(cfg *config.Config)) (*service, *outbox) {
	t.Helper()

	cfg := config.Default()
	cfg.JWT.SigningKey = "0123456789abcdef0123456789abcdef"
	cfg.Database.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	cfg.BcryptCost = 4
	if mutate != nil {
		mutate(cfg)
	}

	mails := &outbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := newService(context.Background(), cfg, logger, deps{
		emails:   mails,
		registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return svc, mails
}

func call(t *testing.T, svc *service, method, target string, body any, header ...string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}

	resp, err := svc.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func sign(t *testing.T, key *ecdsa.PrivateKey, nonce int64) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(ethauth.ChallengeMessage(nonce))), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func currentNonce(t *testing.T, svc *service, address string) int64 {
	t.Helper()
	status, body := call(t, svc, http.MethodGet, "/auth/nonce/"+address, nil)
	require.Equal(t, http.StatusOK, status, body)
	return int64(body["nonce"].(float64))
}

func TestService_RegisterLoginAndReplay(t *testing.T) {
	svc, _ := newTestService(t, nil)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	status, body := call(t, svc, http.MethodPost, "/auth/local/register", map[string]string{
		"ethereumAddress": address,
		"username":        "alice",
		"email":           "Alice@Example.com",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["jwt"])

	nonce := currentNonce(t, svc, strings.ToLower(address))
	signature := sign(t, key, nonce)

	status, body = call(t, svc, http.MethodPost, "/auth/local", map[string]string{
		"identifier": "alice@example.com",
		"password":   signature,
	})
	require.Equal(t, http.StatusOK, status, body)
	token, _ := body["jwt"].(string)
	require.NotEmpty(t, token)

	assert.NotEqual(t, nonce, currentNonce(t, svc, address))

	status, body = call(t, svc, http.MethodPost, "/auth/local", map[string]string{
		"identifier": address,
		"password":   signature,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ethauth.IDSignatureMismatch, body["errorId"])

	status, body = call(t, svc, http.MethodGet, "/users/me", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@example.com", body["email"])
}

func TestService_DuplicateAddressAnyCase(t *testing.T) {
	svc, _ := newTestService(t, nil)

	status, _ := call(t, svc, http.MethodPost, "/auth/local/register", map[string]string{
		"ethereumAddress": "0xABCDEF0000000000000000000000000000000001",
		"username":        "first",
	})
	require.Equal(t, http.StatusOK, status)

	status, body := call(t, svc, http.MethodPost, "/auth/local/register", map[string]string{
		"ethereumAddress": "0xabcdef0000000000000000000000000000000001",
		"username":        "second",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ethauth.IDAddressTaken, body["errorId"])
}

func TestService_ForgotPasswordUnknownEmail(t *testing.T) {
	svc, mails := newTestService(t, nil)

	status, body := call(t, svc, http.MethodPost, "/auth/forgot-password", map[string]string{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ethauth.IDUserNotExist, body["errorId"])
	assert.Empty(t, mails.sent)
}

func TestService_ProtectedRouteRejectsMissingToken(t *testing.T) {
	svc, _ := newTestService(t, nil)

	status, body := call(t, svc, http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, ethauth.IDTokenInvalid, body["errorId"])
}

func TestService_MetricsExposed(t *testing.T) {
	svc, _ := newTestService(t, nil)

	call(t, svc, http.MethodPost, "/auth/local", map[string]string{"identifier": "0x01", "password": "0x02"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := svc.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "ethauth_login_attempts_total")
}

func TestService_UnknownRoute(t *testing.T) {
	svc, _ := newTestService(t, nil)

	status, body := call(t, svc, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.EqualValues(t, http.StatusNotFound, body["statusCode"])
}

func TestService_LocalProviderDisabled(t *testing.T) {
	svc, _ := newTestService(t, func(cfg *config.Config) {
		cfg.Auth.Grant = map[string]ethauth.ProviderSettings{}
	})

	status, body := call(t, svc, http.MethodPost, "/auth/local", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ethauth.IDProviderDisabled, body["errorId"])
}
