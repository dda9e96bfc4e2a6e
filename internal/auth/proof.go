package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/xssnick/tonutils-go/address"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

const (
	tonProofPrefix   = "ton-proof-item-v2/"
	tonConnectPrefix = "ton-connect"

	// DefaultProofSkew bounds how far a proof timestamp may drift from the
	// server clock, in either direction.
	DefaultProofSkew = 15 * time.Minute
)

// ProofVerifier validates TON-Connect ownership proofs against the pending
// challenge set and the wallet's on-chain public key.
type ProofVerifier struct {
	challenges *ChallengeStore
	resolver   tonx.KeyResolver
	domain     string
	skew       time.Duration
	logger     *slog.Logger
}

// NewProofVerifier wires the verifier to its challenge set, the expected
// serving domain, and the chain key resolver used when a proof carries no
// usable state init.
func NewProofVerifier(challenges *ChallengeStore, resolver tonx.KeyResolver, domain string, skew time.Duration, logger *slog.Logger) *ProofVerifier {
	if skew <= 0 {
		skew = DefaultProofSkew
	}
	return &ProofVerifier{
		challenges: challenges,
		resolver:   resolver,
		domain:     domain,
		skew:       skew,
		logger:     logger,
	}
}

// IssueChallenge creates and registers a fresh one-time challenge.
func (v *ProofVerifier) IssueChallenge() (string, error) {
	return v.challenges.Issue()
}

// Verify checks an ownership proof. Every gate is hard: the first failure
// yields false, and no failure propagates to the caller. The call is
// read-only with respect to persisted state.
func (v *ProofVerifier) Verify(ctx context.Context, proof *model.TonProof) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("proof verification panic", "panic", r)
			ok = false
		}
	}()

	if !v.challenges.Has(proof.Proof.Payload) {
		v.logger.Debug("proof rejected: unknown or expired challenge")
		return false
	}

	ts := time.Unix(proof.Proof.Timestamp, 0)
	if d := time.Since(ts); d > v.skew || d < -v.skew {
		v.logger.Debug("proof rejected: timestamp outside window", "timestamp", proof.Proof.Timestamp)
		return false
	}

	if proof.Proof.Domain.Value != v.domain {
		v.logger.Debug("proof rejected: domain mismatch", "domain", proof.Proof.Domain.Value)
		return false
	}

	addr, err := tonx.Parse(proof.Address)
	if err != nil {
		v.logger.Debug("proof rejected: bad address", "error", err)
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(proof.Proof.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		v.logger.Debug("proof rejected: bad signature encoding")
		return false
	}

	digest := ProofDigest(addr, proof.Proof.Domain, proof.Proof.Timestamp, proof.Proof.Payload)

	if verifyStateInit(proof.Proof.StateInit, addr, digest, sig) {
		return true
	}

	key, err := v.resolver.PublicKey(ctx, addr)
	if err != nil {
		v.logger.Debug("proof rejected: key unresolvable", "address", tonx.Canonical(addr), "error", err)
		return false
	}

	if !ed25519.Verify(key, digest, sig) {
		v.logger.Debug("proof rejected: signature invalid", "address", tonx.Canonical(addr))
		return false
	}

	return true
}

// verifyStateInit tests the signature against every key candidate a
// self-consistent state init carries. Wallet data layouts overlap (a v5 data
// cell also parses at the v3/v4 offset, yielding a shifted key), so no single
// extracted key can be trusted without checking it against the signature.
func verifyStateInit(stateInit string, addr *address.Address, digest, sig []byte) bool {
	if stateInit == "" {
		return false
	}
	boc, err := base64.StdEncoding.DecodeString(stateInit)
	if err != nil {
		return false
	}
	keys, err := tonx.PublicKeyCandidatesFromStateInit(boc, addr)
	if err != nil {
		return false
	}
	for _, key := range keys {
		if ed25519.Verify(key, digest, sig) {
			return true
		}
	}
	return false
}

// ProofDigest reconstructs the exact bytes a wallet signs for
// ton-proof-item-v2 and returns the final SHA-256 digest:
//
//	sha256(0xffff ++ "ton-connect" ++ sha256(prefix ++ wc ++ hash ++ dlen ++ domain ++ ts ++ payload))
func ProofDigest(addr *address.Address, domain model.ProofDomain, timestamp int64, payload string) []byte {
	wc := make([]byte, 4)
	binary.BigEndian.PutUint32(wc, uint32(addr.Workchain()))

	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(timestamp))

	dl := make([]byte, 4)
	binary.LittleEndian.PutUint32(dl, domain.LengthBytes)

	msg := make([]byte, 0, len(tonProofPrefix)+4+32+4+len(domain.Value)+8+len(payload))
	msg = append(msg, tonProofPrefix...)
	msg = append(msg, wc...)
	msg = append(msg, addr.Data()...)
	msg = append(msg, dl...)
	msg = append(msg, domain.Value...)
	msg = append(msg, ts...)
	msg = append(msg, payload...)

	inner := sha256.Sum256(msg)

	full := make([]byte, 0, 2+len(tonConnectPrefix)+32)
	full = append(full, 0xff, 0xff)
	full = append(full, tonConnectPrefix...)
	full = append(full, inner[:]...)

	digest := sha256.Sum256(full)
	return digest[:]
}
