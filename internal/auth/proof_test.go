package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

const testDomain = "tonbeats.io"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testWallet is a synthetic wallet: an ed25519 key pair and an address
// derived from the public key.
type testWallet struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	addr *address.Address
}

func newTestWallet(t *testing.T, seed string) *testWallet {
	t.Helper()
	seedBytes := sha256.Sum256([]byte(seed))
	priv := ed25519.NewKeyFromSeed(seedBytes[:])
	pub := priv.Public().(ed25519.PublicKey)

	hash := sha256.Sum256(pub)
	return &testWallet{
		pub:  pub,
		priv: priv,
		addr: address.NewAddress(0, 0, hash[:]),
	}
}

func (w *testWallet) resolver() tonx.KeyResolver {
	return tonx.ResolverFunc(func(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error) {
		return w.pub, nil
	})
}

// signProof builds a fully valid proof envelope for the wallet.
func (w *testWallet) signProof(payload string, timestamp int64, domain string) *model.TonProof {
	d := model.ProofDomain{LengthBytes: uint32(len(domain)), Value: domain}
	digest := ProofDigest(w.addr, d, timestamp, payload)
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

func newTestVerifier(t *testing.T, w *testWallet, ttl time.Duration) *ProofVerifier {
	t.Helper()
	return NewProofVerifier(NewChallengeStore(ttl), w.resolver(), testDomain, 0, testLogger())
}

func TestProofVerifyAccepts(t *testing.T) {
	w := newTestWallet(t, "alice")
	v := newTestVerifier(t, w, time.Minute)

	payload, err := v.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	proof := w.signProof(payload, time.Now().Unix(), testDomain)
	if !v.Verify(context.Background(), proof) {
		t.Error("valid proof should verify")
	}
}

func TestProofVerifyRejects(t *testing.T) {
	w := newTestWallet(t, "bob")
	stranger := newTestWallet(t, "mallory")
	v := newTestVerifier(t, w, time.Minute)

	issue := func(t *testing.T) string {
		t.Helper()
		p, err := v.IssueChallenge()
		if err != nil {
			t.Fatalf("IssueChallenge: %v", err)
		}
		return p
	}

	cases := []struct {
		name  string
		proof func(t *testing.T) *model.TonProof
	}{
		{
			"unknown challenge",
			func(t *testing.T) *model.TonProof {
				return w.signProof("0000000000000000000000000000000000000000000000000000000000000000", time.Now().Unix(), testDomain)
			},
		},
		{
			"stale timestamp",
			func(t *testing.T) *model.TonProof {
				return w.signProof(issue(t), time.Now().Add(-time.Hour).Unix(), testDomain)
			},
		},
		{
			"future timestamp",
			func(t *testing.T) *model.TonProof {
				return w.signProof(issue(t), time.Now().Add(time.Hour).Unix(), testDomain)
			},
		},
		{
			"wrong domain",
			func(t *testing.T) *model.TonProof {
				return w.signProof(issue(t), time.Now().Unix(), "evil.example")
			},
		},
		{
			"malformed address",
			func(t *testing.T) *model.TonProof {
				p := w.signProof(issue(t), time.Now().Unix(), testDomain)
				p.Address = "garbage"
				return p
			},
		},
		{
			"truncated signature",
			func(t *testing.T) *model.TonProof {
				p := w.signProof(issue(t), time.Now().Unix(), testDomain)
				p.Proof.Signature = base64.StdEncoding.EncodeToString([]byte("short"))
				return p
			},
		},
		{
			"signature by another key",
			func(t *testing.T) *model.TonProof {
				payload := issue(t)
				forged := stranger.signProof(payload, time.Now().Unix(), testDomain)
				forged.Address = tonx.Canonical(w.addr) // claims bob's address
				return forged
			},
		},
		{
			"tampered payload",
			func(t *testing.T) *model.TonProof {
				payload := issue(t)
				p := w.signProof(payload, time.Now().Unix(), testDomain)
				other := issue(t)
				p.Proof.Payload = other // signed bytes no longer match
				return p
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v.Verify(context.Background(), tc.proof(t)) {
				t.Error("proof should be rejected")
			}
		})
	}
}

func TestProofVerifyExpiredChallenge(t *testing.T) {
	w := newTestWallet(t, "carol")
	v := newTestVerifier(t, w, 10*time.Millisecond)

	payload, err := v.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	proof := w.signProof(payload, time.Now().Unix(), testDomain)
	if v.Verify(context.Background(), proof) {
		t.Error("proof over an expired challenge should be rejected")
	}
}

// newV5Wallet builds a wallet whose address is the hash of a w5-layout state
// init, as an undeployed wallet would present it.
func newV5Wallet(t *testing.T, seed string) (*testWallet, string) {
	t.Helper()
	seedBytes := sha256.Sum256([]byte(seed))
	priv := ed25519.NewKeyFromSeed(seedBytes[:])
	pub := priv.Public().(ed25519.PublicKey)

	data := cell.BeginCell().
		MustStoreUInt(1, 1).          // signature auth allowed
		MustStoreUInt(0, 32).         // seqno
		MustStoreUInt(698983191, 32). // wallet id
		MustStoreSlice(pub, 256).
		MustStoreUInt(0, 1). // no extensions
		EndCell()
	code := cell.BeginCell().MustStoreUInt(0xbeef, 16).EndCell()

	root, err := tlb.ToCell(tlb.StateInit{Code: code, Data: data})
	if err != nil {
		t.Fatalf("build state init: %v", err)
	}

	w := &testWallet{
		pub:  pub,
		priv: priv,
		addr: address.NewAddress(0, 0, root.Hash()),
	}
	return w, base64.StdEncoding.EncodeToString(root.ToBOC())
}

func TestProofVerifyV5StateInit(t *testing.T) {
	// An undeployed w5 wallet can only prove ownership via its state init. Its
	// data cell also parses at the v3/v4 key offset, so the verifier must not
	// settle on the first extractable key.
	w, stateInit := newV5Wallet(t, "erin")
	failing := tonx.ResolverFunc(func(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error) {
		return nil, tonx.ErrKeyUnresolvable
	})
	v := NewProofVerifier(NewChallengeStore(time.Minute), failing, testDomain, 0, testLogger())

	payload, err := v.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	proof := w.signProof(payload, time.Now().Unix(), testDomain)
	proof.Proof.StateInit = stateInit
	if !v.Verify(context.Background(), proof) {
		t.Error("valid proof with w5 state init should verify without a chain read")
	}

	forger := newTestWallet(t, "erin-forger")
	forged := forger.signProof(payload, time.Now().Unix(), testDomain)
	forged.Address = tonx.Canonical(w.addr)
	forged.Proof.StateInit = stateInit
	if v.Verify(context.Background(), forged) {
		t.Error("signature by another key must not pass on state init alone")
	}
}

func TestProofVerifyKeyUnresolvable(t *testing.T) {
	w := newTestWallet(t, "dave")
	failing := tonx.ResolverFunc(func(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error) {
		return nil, tonx.ErrKeyUnresolvable
	})
	v := NewProofVerifier(NewChallengeStore(time.Minute), failing, testDomain, 0, testLogger())

	payload, err := v.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	proof := w.signProof(payload, time.Now().Unix(), testDomain)
	if v.Verify(context.Background(), proof) {
		t.Error("proof should be rejected when no key can be resolved")
	}
}
