// Package handler exposes the trust-establishment and listen-recording
// surface over HTTP. Handlers translate verifier and service results into
// status codes; all decisions are made below this layer.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/tonbeats/tonbeats/internal/auth"
	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/server/middleware"
	"github.com/tonbeats/tonbeats/internal/service"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

// AuthHandler serves the wallet-proof authentication endpoints.
type AuthHandler struct {
	proof    *auth.ProofVerifier
	signData *auth.SignDataVerifier
	creds    *service.CredentialIssuer
	sessions *service.SessionStore
	resolver tonx.KeyResolver
	domain   string
	logger   *slog.Logger
}

// NewAuthHandler wires the authentication endpoints.
func NewAuthHandler(proof *auth.ProofVerifier, signData *auth.SignDataVerifier, creds *service.CredentialIssuer, sessions *service.SessionStore, resolver tonx.KeyResolver, domain string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		proof:    proof,
		signData: signData,
		creds:    creds,
		sessions: sessions,
		resolver: resolver,
		domain:   domain,
		logger:   logger,
	}
}

// Challenge issues a fresh proof challenge.
// POST /api/v1/auth/challenge
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	payload, err := h.proof.IssueChallenge()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue challenge")
		return
	}
	writeJSON(w, http.StatusOK, model.ChallengeResponse{Payload: payload})
}

// Login verifies an ownership proof and opens a listening session. Session
// creation is idempotent per address, so replaying a valid proof returns the
// same session.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var proof model.TonProof
	if err := readJSON(r, &proof); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.proof.Verify(r.Context(), &proof) {
		writeError(w, http.StatusUnauthorized, "Proof verification failed")
		return
	}

	address, err := tonx.Normalize(proof.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}

	token, expiresAt, err := h.creds.IssueSessionToken(address, h.domain, proof.Proof.Timestamp)
	if err != nil {
		h.logger.Error("session token issue failed", "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	h.sessions.Create(r.Context(), address)

	writeJSON(w, http.StatusOK, model.TokenResponse{
		Token:     token,
		Address:   address,
		ExpiresAt: expiresAt.Unix(),
	})
}

// IssueAPIKey verifies an ownership proof and mints a long-lived API key,
// invalidating any prior key for the address.
// POST /api/v1/auth/apikey
func (h *AuthHandler) IssueAPIKey(w http.ResponseWriter, r *http.Request) {
	var proof model.TonProof
	if err := readJSON(r, &proof); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !h.proof.Verify(r.Context(), &proof) {
		writeError(w, http.StatusUnauthorized, "Proof verification failed")
		return
	}

	address, err := tonx.Normalize(proof.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}

	key, expiresAt, err := h.creds.IssueAPIKey(r.Context(), address)
	if err != nil {
		h.logger.Error("api key issue failed", "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue API key")
		return
	}

	writeJSON(w, http.StatusOK, model.APIKeyResponse{
		Key:       key,
		Address:   address,
		ExpiresAt: expiresAt.Unix(),
	})
}

// VerifySignData validates a detached sign-data envelope. The key resolver
// prefers a self-consistent state init over a chain read.
// POST /api/v1/auth/signdata
func (h *AuthHandler) VerifySignData(w http.ResponseWriter, r *http.Request) {
	var env model.SignDataEnvelope
	if err := readJSON(r, &env); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ok := h.signData.Verify(r.Context(), &env, auth.StateInitResolver(env.StateInit, h.resolver))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Signature verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// Logout destroys the caller's session record.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil || principal.SessionID == "" {
		writeError(w, http.StatusBadRequest, "No active session")
		return
	}
	h.sessions.Remove(principal.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the authenticated wallet identity and session expiry, if any.
// GET /api/v1/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	resp := map[string]interface{}{
		"address":   principal.Address,
		"auth_type": principal.Type,
	}
	if rec := h.sessions.Get(principal.SessionID); rec != nil {
		resp["session_expires_at"] = rec.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}
