package SOLRPC

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const keypairLength = 64

var ErrInvalidKeypair = errors.New("invalid solana keypair")

// ParseKeypair accepts the 64 byte keypair as a JSON style byte list ("[1,2,...]" or "1,2,...")
// or as a base58 string.
func ParseKeypair(secret string) (solana.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKeypair)
	}

	var raw []byte
	if strings.Contains(secret, ",") {
		parts := strings.Split(strings.Trim(secret, "[]"), ",")
		raw = make([]byte, 0, len(parts))
		for _, p := range parts {
			b, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
			}
			raw = append(raw, byte(b))
		}
	} else {
		var err error
		if raw, err = base58.Decode(secret); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
	}

	if len(raw) != keypairLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, keypairLength, len(raw))
	}
	// second half is the public key of the seed in the first half
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: public key does not match secret", ErrInvalidKeypair)
	}

	return solana.PrivateKey(raw), nil
}
