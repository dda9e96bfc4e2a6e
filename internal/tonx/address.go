// Package tonx wraps the TON primitives the platform depends on: address
// normalization, wallet public-key resolution, and state-init parsing.
package tonx

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// ErrInvalidAddress is returned for account identifiers that parse under
// neither the raw nor the user-friendly encoding.
var ErrInvalidAddress = errors.New("invalid ton address")

// Parse accepts a TON account address in either the raw ("0:abc...") or the
// user-friendly base64 form and returns the parsed address. Malformed input
// fails; it is never passed through.
func Parse(raw string) (*address.Address, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ErrInvalidAddress
	}

	var (
		addr *address.Address
		err  error
	)
	if strings.Contains(s, ":") {
		addr, err = address.ParseRawAddr(s)
	} else {
		addr, err = address.ParseAddr(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if len(addr.Data()) != 32 {
		return nil, ErrInvalidAddress
	}
	return addr, nil
}

// Normalize converts an address in any accepted textual form to the single
// canonical string used as a storage and lookup key. Both encodings of the
// same account normalize to an identical value.
func Normalize(raw string) (string, error) {
	addr, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return Canonical(addr), nil
}

// Canonical returns the canonical raw-form string for a parsed address.
func Canonical(addr *address.Address) string {
	return fmt.Sprintf("%d:%s", addr.Workchain(), hex.EncodeToString(addr.Data()))
}
