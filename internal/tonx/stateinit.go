package tonx

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

var (
	// ErrStateInitMismatch means the supplied state init does not hash to the
	// claimed account address, so nothing in it can be trusted.
	ErrStateInitMismatch = errors.New("state init does not match address")

	// ErrNoPublicKey means no Ed25519 key could be extracted from the wallet
	// data cell under any known wallet layout.
	ErrNoPublicKey = errors.New("no public key in state init")
)

// walletKeyOffsets are the bit offsets at which standard wallet contracts
// store the owner public key in their data cell: v3/v4 (seqno + subwallet id),
// v5 (auth flag + seqno + wallet id), v1/v2 (seqno only).
var walletKeyOffsets = []uint{64, 65, 32}

// PublicKeyCandidatesFromStateInit extracts every plausible Ed25519 key from
// a state-init BOC, but only when the state init is self-consistent: its cell
// hash must equal the account hash of addr.
//
// The layouts cannot be told apart structurally. A v5 data cell also parses
// under the v3/v4 offset and yields a one-bit-shifted key there, so picking
// the first parseable offset would silently return a wrong key. Every
// candidate is returned instead and the caller must test each against the
// signature it is verifying.
func PublicKeyCandidatesFromStateInit(stateInitBOC []byte, addr *address.Address) ([]ed25519.PublicKey, error) {
	root, err := cell.FromBOC(stateInitBOC)
	if err != nil {
		return nil, fmt.Errorf("parse state init boc: %w", err)
	}

	if !bytes.Equal(root.Hash(), addr.Data()) {
		return nil, ErrStateInitMismatch
	}

	var si tlb.StateInit
	if err := tlb.LoadFromCell(&si, root.BeginParse()); err != nil {
		return nil, fmt.Errorf("parse state init: %w", err)
	}
	if si.Data == nil {
		return nil, ErrNoPublicKey
	}

	var keys []ed25519.PublicKey
	for _, skip := range walletKeyOffsets {
		s := si.Data.BeginParse()
		if s.BitsLeft() < skip+256 {
			continue
		}
		if _, err := s.LoadUInt(skip); err != nil {
			continue
		}
		key, err := s.LoadSlice(256)
		if err != nil || len(key) != 32 {
			continue
		}
		keys = append(keys, ed25519.PublicKey(key))
	}

	if len(keys) == 0 {
		return nil, ErrNoPublicKey
	}
	return keys, nil
}
