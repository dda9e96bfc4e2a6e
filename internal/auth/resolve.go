package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"

	"github.com/xssnick/tonutils-go/address"

	"github.com/tonbeats/tonbeats/internal/tonx"
)

// StateInitResolver builds a ResolvePublicKey that prefers the key candidates
// embedded in a self-consistent state-init blob and falls back to the chain
// resolver. A state init that hashes to the address is authoritative: the
// owner key is one of its candidates, so no chain read is attempted then.
func StateInitResolver(stateInit string, fallback tonx.KeyResolver) ResolvePublicKey {
	return func(ctx context.Context, addr *address.Address) ([]ed25519.PublicKey, error) {
		if stateInit != "" {
			boc, err := base64.StdEncoding.DecodeString(stateInit)
			if err == nil {
				if keys, err := tonx.PublicKeyCandidatesFromStateInit(boc, addr); err == nil {
					return keys, nil
				}
			}
		}
		key, err := fallback.PublicKey(ctx, addr)
		if err != nil {
			return nil, err
		}
		return []ed25519.PublicKey{key}, nil
	}
}
