package auth

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash/crc32"
	"log/slog"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

const (
	signDataPrefix     = "ton-connect/sign-data/"
	signDataCellPrefix = 0x75569022

	// DefaultSignDataMaxAge bounds how old a sign-data timestamp may be.
	// There is no forward-skew tolerance.
	DefaultSignDataMaxAge = 15 * time.Minute
)

// ErrUnknownPayloadType is returned for a payload whose type tag is none of
// text, binary or cell.
var ErrUnknownPayloadType = errors.New("unknown sign-data payload type")

// ResolvePublicKey resolves the candidate signer keys for a sign-data
// envelope. State-init extraction can yield more than one plausible key, so
// the verifier tests each candidate against the signature. An error or an
// empty slice means resolution failed and the envelope must be rejected.
type ResolvePublicKey func(ctx context.Context, addr *address.Address) ([]ed25519.PublicKey, error)

// SignDataVerifier validates detached signatures over typed application
// payloads (text, binary or cell) with domain allow-listing and
// time-bounding.
type SignDataVerifier struct {
	allowed map[string]struct{}
	maxAge  time.Duration
	logger  *slog.Logger
}

// NewSignDataVerifier builds a verifier for the given domain allow-list.
func NewSignDataVerifier(allowedDomains []string, maxAge time.Duration, logger *slog.Logger) *SignDataVerifier {
	if maxAge <= 0 {
		maxAge = DefaultSignDataMaxAge
	}
	allowed := make(map[string]struct{}, len(allowedDomains))
	for _, d := range allowedDomains {
		allowed[d] = struct{}{}
	}
	return &SignDataVerifier{allowed: allowed, maxAge: maxAge, logger: logger}
}

// Verify checks a sign-data envelope against the injected key resolver.
// Failure anywhere yields false; no failure propagates to the caller.
func (v *SignDataVerifier) Verify(ctx context.Context, env *model.SignDataEnvelope, resolve ResolvePublicKey) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("sign-data verification panic", "panic", r)
			ok = false
		}
	}()

	if _, found := v.allowed[env.Domain]; !found {
		v.logger.Debug("sign-data rejected: domain not allowed", "domain", env.Domain)
		return false
	}

	if time.Since(time.Unix(env.Timestamp, 0)) > v.maxAge {
		v.logger.Debug("sign-data rejected: stale timestamp", "timestamp", env.Timestamp)
		return false
	}

	addr, err := tonx.Parse(env.Address)
	if err != nil {
		v.logger.Debug("sign-data rejected: bad address", "error", err)
		return false
	}

	keys, err := resolve(ctx, addr)
	if err != nil || len(keys) == 0 {
		v.logger.Debug("sign-data rejected: key unresolvable", "address", tonx.Canonical(addr))
		return false
	}

	var declared []byte
	if env.PublicKey != "" {
		declared, err = hex.DecodeString(env.PublicKey)
		if err != nil || len(declared) != ed25519.PublicKeySize {
			v.logger.Debug("sign-data rejected: malformed declared key")
			return false
		}
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		v.logger.Debug("sign-data rejected: bad signature encoding")
		return false
	}

	digest, err := SignDataDigest(addr, env.Domain, env.Timestamp, &env.Payload)
	if err != nil {
		v.logger.Debug("sign-data rejected: cannot build message", "error", err)
		return false
	}

	for _, key := range keys {
		if len(key) != ed25519.PublicKeySize || !ed25519.Verify(key, digest, sig) {
			continue
		}
		// The wallet-declared key must agree with whichever resolved key
		// actually verifies the signature.
		if declared != nil && !bytes.Equal(declared, key) {
			v.logger.Debug("sign-data rejected: declared key mismatch", "address", tonx.Canonical(addr))
			return false
		}
		return true
	}

	v.logger.Debug("sign-data rejected: signature invalid", "address", tonx.Canonical(addr))
	return false
}

// SignDataDigest builds the byte digest a wallet signs for the given payload
// variant. Text and binary payloads use the flat binary layout; cell payloads
// use the canonical cell hash.
func SignDataDigest(addr *address.Address, domain string, timestamp int64, payload *model.SignDataPayload) ([]byte, error) {
	switch payload.Type {
	case model.SignDataTypeText:
		return flatSignDigest(addr, domain, timestamp, "txt", []byte(payload.Text)), nil

	case model.SignDataTypeBinary:
		content, err := base64.StdEncoding.DecodeString(payload.Bytes)
		if err != nil {
			return nil, err
		}
		return flatSignDigest(addr, domain, timestamp, "bin", content), nil

	case model.SignDataTypeCell:
		boc, err := base64.StdEncoding.DecodeString(payload.Cell)
		if err != nil {
			return nil, err
		}
		payloadCell, err := cell.FromBOC(boc)
		if err != nil {
			return nil, err
		}
		return cellSignDigest(addr, domain, timestamp, payload.Schema, payloadCell), nil

	default:
		return nil, ErrUnknownPayloadType
	}
}

// flatSignDigest lays out the text/binary signing message:
//
//	0xffff ++ "ton-connect/sign-data/" ++ wc(4 BE) ++ hash(32) ++
//	dlen(4 BE) ++ domain ++ ts(8 BE) ++ tag(3) ++ clen(4 BE) ++ content
//
// and returns its SHA-256.
func flatSignDigest(addr *address.Address, domain string, timestamp int64, tag string, content []byte) []byte {
	wc := make([]byte, 4)
	binary.BigEndian.PutUint32(wc, uint32(addr.Workchain()))

	dl := make([]byte, 4)
	binary.BigEndian.PutUint32(dl, uint32(len(domain)))

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(timestamp))

	cl := make([]byte, 4)
	binary.BigEndian.PutUint32(cl, uint32(len(content)))

	msg := make([]byte, 0, 2+len(signDataPrefix)+4+32+4+len(domain)+8+3+4+len(content))
	msg = append(msg, 0xff, 0xff)
	msg = append(msg, signDataPrefix...)
	msg = append(msg, wc...)
	msg = append(msg, addr.Data()...)
	msg = append(msg, dl...)
	msg = append(msg, domain...)
	msg = append(msg, ts...)
	msg = append(msg, tag...)
	msg = append(msg, cl...)
	msg = append(msg, content...)

	digest := sha256.Sum256(msg)
	return digest[:]
}

// cellSignDigest builds the cell-variant signing container and returns its
// canonical cell hash. The container binds the schema via crc32, the
// timestamp, the wallet address, the DNS-encoded domain and the payload cell.
func cellSignDigest(addr *address.Address, domain string, timestamp int64, schema string, payload *cell.Cell) []byte {
	msg := cell.BeginCell().
		MustStoreUInt(signDataCellPrefix, 32).
		MustStoreUInt(uint64(crc32.ChecksumIEEE([]byte(schema))), 32).
		MustStoreUInt(uint64(timestamp), 64).
		MustStoreAddr(addr).
		MustStoreRef(cell.BeginCell().MustStoreStringSnake(encodeDomain(domain)).EndCell()).
		MustStoreRef(payload).
		EndCell()

	return msg.Hash()
}

// encodeDomain converts "music.tonbeats.io" into the reversed-label
// null-terminated form "io\0tonbeats\0music\0" used by TON DNS.
func encodeDomain(domain string) string {
	labels := strings.Split(domain, ".")
	var b strings.Builder
	for i := len(labels) - 1; i >= 0; i-- {
		b.WriteString(labels[i])
		b.WriteByte(0)
	}
	return b.String()
}
