package tonx

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/ton"
)

// ErrKeyUnresolvable means the chain read failed or returned nothing that
// decodes to a 32-byte Ed25519 key.
var ErrKeyUnresolvable = errors.New("public key unresolvable")

// KeyResolver resolves a wallet's Ed25519 public key from chain state.
type KeyResolver interface {
	PublicKey(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error)
}

// ChainKeyResolver resolves wallet public keys by invoking the standard
// get_public_key get-method against the account via a liteserver.
type ChainKeyResolver struct {
	api ton.APIClientWrapped
}

// NewChainKeyResolver connects a liteclient pool from a network config URL
// (global mainnet or testnet config) and returns a resolver backed by it.
func NewChainKeyResolver(ctx context.Context, configURL string) (*ChainKeyResolver, error) {
	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
		return nil, fmt.Errorf("connect liteservers: %w", err)
	}
	return &ChainKeyResolver{api: ton.NewAPIClient(pool).WithRetry()}, nil
}

// PublicKey runs get_public_key against the address at the current
// masterchain block and decodes the returned stack value.
func (r *ChainKeyResolver) PublicKey(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error) {
	block, err := r.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: masterchain info: %s", ErrKeyUnresolvable, err)
	}

	res, err := r.api.RunGetMethod(ctx, block, addr, "get_public_key")
	if err != nil {
		return nil, fmt.Errorf("%w: get_public_key: %s", ErrKeyUnresolvable, err)
	}

	return keyFromStack(res)
}

// keyFromStack decodes the get_public_key result. Wallet contracts differ in
// how they push the key, so each known shape is tried in a fixed fallback
// order: 257-bit integer, then slice, then cell. Chain-API shape changes are
// localized here.
func keyFromStack(res *ton.ExecutionResult) (ed25519.PublicKey, error) {
	if n, err := res.Int(0); err == nil {
		return keyFromBytes(n.Bytes())
	}
	if s, err := res.Slice(0); err == nil {
		b, err := s.LoadSlice(256)
		if err == nil {
			return keyFromBytes(b)
		}
	}
	if c, err := res.Cell(0); err == nil {
		b, err := c.BeginParse().LoadSlice(256)
		if err == nil {
			return keyFromBytes(b)
		}
	}
	return nil, ErrKeyUnresolvable
}

// keyFromBytes left-pads big-integer key material back to the full 32 bytes.
func keyFromBytes(b []byte) (ed25519.PublicKey, error) {
	if len(b) > 32 || len(b) == 0 {
		return nil, ErrKeyUnresolvable
	}
	key := make([]byte, 32)
	copy(key[32-len(b):], b)
	return ed25519.PublicKey(key), nil
}

// resolverFunc adapts a plain function to the KeyResolver interface.
type resolverFunc func(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error)

func (f resolverFunc) PublicKey(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error) {
	return f(ctx, addr)
}

// ResolverFunc wraps fn as a KeyResolver.
func ResolverFunc(fn func(ctx context.Context, addr *address.Address) (ed25519.PublicKey, error)) KeyResolver {
	return resolverFunc(fn)
}

var _ KeyResolver = (*ChainKeyResolver)(nil)
