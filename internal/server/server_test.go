package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xssnick/tonutils-go/address"

	"github.com/tonbeats/tonbeats/internal/auth"
	"github.com/tonbeats/tonbeats/internal/handler"
	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/service"
	"github.com/tonbeats/tonbeats/internal/storage"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

const testDomain = "tonbeats.io"

// testWallet is a synthetic wallet with a deterministic key pair.
type testWallet struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	addr *address.Address
}

func newTestWallet(seed string) *testWallet {
	seedBytes := sha256.Sum256([]byte(seed))
	priv := ed25519.NewKeyFromSeed(seedBytes[:])
	pub := priv.Public().(ed25519.PublicKey)
	hash := sha256.Sum256(pub)
	return &testWallet{pub: pub, priv: priv, addr: address.NewAddress(0, 0, hash[:])}
}

func (w *testWallet) signProof(payload string, timestamp int64) *model.TonProof {
	d := model.ProofDomain{LengthBytes: uint32(len(testDomain)), Value: testDomain}
	digest := auth.ProofDigest(w.addr, d, timestamp, payload)
	sig := ed25519.Sign(w.priv, digest)
	return &model.TonProof{
		Address: tonx.Canonical(w.addr),
		Proof: model.ProofDetails{
			Timestamp: timestamp,
			Domain:    d,
			Signature: base64.StdEncoding.EncodeToString(sig),
			Payload:   payload,
		},
	}
}

// newTestServer wires a full server over an in-memory store with the wallet's
// key served by a stub resolver.
func newTestServer(t *testing.T, w *testWallet) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.Open("sqlite", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	resolver := tonx.ResolverFunc(func(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error) {
		return w.pub, nil
	})

	challenges := auth.NewChallengeStore(time.Minute)
	proofVerifier := auth.NewProofVerifier(challenges, resolver, testDomain, 0, logger)
	signDataVerifier := auth.NewSignDataVerifier([]string{testDomain}, 0, logger)

	creds := service.NewCredentialIssuer(store, "test-secret")
	sessions := service.NewSessionStore(time.Hour, time.Hour, store, logger)
	detector := service.NewDetector(store, service.DefaultDetectorRules(), logger)
	ledger := service.NewLedger(store)

	authHandler := handler.NewAuthHandler(proofVerifier, signDataVerifier, creds, sessions, resolver, testDomain, logger)
	listenHandler := handler.NewListenHandler(detector, ledger, logger)

	return New(DefaultConfig(), Deps{
		Store:    store,
		Sessions: sessions,
		Creds:    creds,
		Auth:     authHandler,
		Listen:   listenHandler,
	}, logger)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

// login runs the full challenge/proof exchange and returns a session token.
func login(t *testing.T, srv *Server, w *testWallet) string {
	t.Helper()

	rec := doJSON(t, srv, "POST", "/api/v1/auth/challenge", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge: got status %d: %s", rec.Code, rec.Body.String())
	}
	challenge := decode[model.ChallengeResponse](t, rec)

	proof := w.signProof(challenge.Payload, time.Now().Unix())
	rec = doJSON(t, srv, "POST", "/api/v1/auth/login", proof, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got status %d: %s", rec.Code, rec.Body.String())
	}
	token := decode[model.TokenResponse](t, rec)
	if token.Token == "" {
		t.Fatal("empty session token")
	}
	return token.Token
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, newTestWallet("health"))

	rec := doJSON(t, srv, "GET", "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d, want 200", rec.Code)
	}

	rec = doJSON(t, srv, "GET", "/readyz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: got %d, want 200", rec.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	w := newTestWallet("login-flow")
	srv := newTestServer(t, w)

	token := login(t, srv, w)

	rec := doJSON(t, srv, "GET", "/api/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("me: got status %d: %s", rec.Code, rec.Body.String())
	}
	me := decode[map[string]interface{}](t, rec)
	if me["address"] != tonx.Canonical(w.addr) {
		t.Errorf("got address %v, want %s", me["address"], tonx.Canonical(w.addr))
	}
	if me["auth_type"] != "session" {
		t.Errorf("got auth_type %v, want session", me["auth_type"])
	}
}

func TestLoginRejectsForgedProof(t *testing.T) {
	w := newTestWallet("honest")
	srv := newTestServer(t, w)

	rec := doJSON(t, srv, "POST", "/api/v1/auth/challenge", nil, nil)
	challenge := decode[model.ChallengeResponse](t, rec)

	forger := newTestWallet("forger")
	proof := forger.signProof(challenge.Payload, time.Now().Unix())
	proof.Address = tonx.Canonical(w.addr) // claims the honest wallet

	rec = doJSON(t, srv, "POST", "/api/v1/auth/login", proof, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("forged proof: got status %d, want 401", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t, newTestWallet("anon"))

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/me"},
		{"POST", "/api/v1/listen"},
		{"POST", "/api/v1/auth/logout"},
	}
	for _, p := range paths {
		rec := doJSON(t, srv, p.method, p.path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got status %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestListenRecordFlow(t *testing.T) {
	w := newTestWallet("listener")
	srv := newTestServer(t, w)
	token := login(t, srv, w)
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	nft := newTestWallet("track-1").addr
	body := map[string]interface{}{
		"nft_address": tonx.Canonical(nft),
		"timestamp":   time.Now().Unix(),
	}

	rec := doJSON(t, srv, "POST", "/api/v1/listen", body, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("listen: got status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[model.ListenResponse](t, rec)
	if resp.ListenCount != 1 {
		t.Errorf("got count %d, want 1", resp.ListenCount)
	}

	// Immediate replay hits the 30-second floor.
	rec = doJSON(t, srv, "POST", "/api/v1/listen", body, authHeader)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("replay: got status %d, want 429", rec.Code)
	}

	// The public counter reflects the single accepted listen.
	rec = doJSON(t, srv, "GET", "/api/v1/nft/"+tonx.Canonical(nft)+"/listens", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("nft stats: got status %d: %s", rec.Code, rec.Body.String())
	}
	stats := decode[model.NFTListens](t, rec)
	if stats.ListenCount != 1 {
		t.Errorf("got aggregate %d, want 1", stats.ListenCount)
	}
}

func TestListenRejectsBadAddress(t *testing.T) {
	w := newTestWallet("bad-addr")
	srv := newTestServer(t, w)
	token := login(t, srv, w)

	rec := doJSON(t, srv, "POST", "/api/v1/listen", map[string]interface{}{
		"nft_address": "not-an-address",
	}, map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	w := newTestWallet("logout")
	srv := newTestServer(t, w)
	token := login(t, srv, w)
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	rec := doJSON(t, srv, "POST", "/api/v1/auth/logout", nil, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: got status %d: %s", rec.Code, rec.Body.String())
	}

	// The token is still cryptographically valid, but the session is gone.
	rec = doJSON(t, srv, "GET", "/api/v1/me", nil, authHeader)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout: got status %d, want 401", rec.Code)
	}
}

func TestAPIKeyFlow(t *testing.T) {
	w := newTestWallet("keyholder")
	srv := newTestServer(t, w)

	rec := doJSON(t, srv, "POST", "/api/v1/auth/challenge", nil, nil)
	challenge := decode[model.ChallengeResponse](t, rec)

	proof := w.signProof(challenge.Payload, time.Now().Unix())
	rec = doJSON(t, srv, "POST", "/api/v1/auth/apikey", proof, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("apikey: got status %d: %s", rec.Code, rec.Body.String())
	}
	key := decode[model.APIKeyResponse](t, rec)
	if key.Key == "" {
		t.Fatal("empty api key")
	}

	rec = doJSON(t, srv, "GET", "/api/v1/me", nil, map[string]string{"X-API-Key": key.Key})
	if rec.Code != http.StatusOK {
		t.Fatalf("me via api key: got status %d: %s", rec.Code, rec.Body.String())
	}
	me := decode[map[string]interface{}](t, rec)
	if me["auth_type"] != "api_key" {
		t.Errorf("got auth_type %v, want api_key", me["auth_type"])
	}

	rec = doJSON(t, srv, "GET", "/api/v1/me", nil, map[string]string{"X-API-Key": "bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus key: got status %d, want 401", rec.Code)
	}
}

func TestSignDataEndpoint(t *testing.T) {
	w := newTestWallet("signer")
	srv := newTestServer(t, w)

	payload := model.SignDataPayload{Type: model.SignDataTypeText, Text: "I like this track"}
	ts := time.Now().Unix()
	digest, err := auth.SignDataDigest(w.addr, testDomain, ts, &payload)
	if err != nil {
		t.Fatalf("SignDataDigest: %v", err)
	}
	env := &model.SignDataEnvelope{
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(w.priv, digest)),
		Address:   tonx.Canonical(w.addr),
		Timestamp: ts,
		Domain:    testDomain,
		Payload:   payload,
	}

	rec := doJSON(t, srv, "POST", "/api/v1/auth/signdata", env, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signdata: got status %d: %s", rec.Code, rec.Body.String())
	}

	env.Payload.Text = "tampered"
	rec = doJSON(t, srv, "POST", "/api/v1/auth/signdata", env, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("tampered signdata: got status %d, want 401", rec.Code)
	}
}

func TestTopListens(t *testing.T) {
	w := newTestWallet("top")
	srv := newTestServer(t, w)
	token := login(t, srv, w)
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	for i := 0; i < 3; i++ {
		nft := newTestWallet(string(rune('a' + i))).addr
		rec := doJSON(t, srv, "POST", "/api/v1/listen", map[string]interface{}{
			"nft_address": tonx.Canonical(nft),
			"timestamp":   time.Now().Add(time.Duration(i) * time.Minute).Unix(),
		}, authHeader)
		if rec.Code != http.StatusOK {
			t.Fatalf("listen %d: got status %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, srv, "GET", "/api/v1/listens/top?limit=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("top: got status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string][]model.NFTListens](t, rec)
	if len(resp["resource"]) != 2 {
		t.Errorf("got %d rows, want 2", len(resp["resource"]))
	}
}
