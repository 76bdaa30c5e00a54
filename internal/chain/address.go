// Package chain validates token addresses for the supported networks.
package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"callwatch/internal/domain"
)

// ErrInvalidAddress is returned when an address is malformed for its chain.
var ErrInvalidAddress = errors.New("invalid token address")

const (
	solanaPubkeyLen = 32
	evmAddressLen   = 20
)

// ValidateAddress checks that address is well formed for chain and returns it
// in canonical form: SOL addresses unchanged, BSC addresses lowercased.
func ValidateAddress(c domain.Chain, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	switch c {
	case domain.ChainSOL:
		decoded, err := base58.Decode(address)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if len(decoded) != solanaPubkeyLen {
			return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, solanaPubkeyLen, len(decoded))
		}
		return address, nil

	case domain.ChainBSC:
		if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
			return "", fmt.Errorf("%w: missing 0x prefix", ErrInvalidAddress)
		}
		raw := address[2:]
		if len(raw) != evmAddressLen*2 {
			return "", fmt.Errorf("%w: expected %d hex chars, got %d", ErrInvalidAddress, evmAddressLen*2, len(raw))
		}
		if _, err := hex.DecodeString(raw); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return "0x" + strings.ToLower(raw), nil

	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidChain, c)
	}
}

// Detect guesses the chain from the address shape. Returns false when the
// address matches neither network.
func Detect(address string) (domain.Chain, bool) {
	if _, err := ValidateAddress(domain.ChainBSC, address); err == nil {
		return domain.ChainBSC, true
	}
	if _, err := ValidateAddress(domain.ChainSOL, address); err == nil {
		return domain.ChainSOL, true
	}
	return "", false
}
