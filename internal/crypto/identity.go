package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

const IdentitySize = 32

// Identity is an opaque account identity. Airlines, passengers, reporters
// and authorized callers are all addressed by Identity; the orchestrating
// layer decides how identities map to real credentials.
type Identity [IdentitySize]byte

// IdentityFromKey derives an Identity from an ed25519 public key.
func IdentityFromKey(key ed25519.PublicKey) Identity {
	return Identity(HashData(key))
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:8])
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	text := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(text, id[:])
	return text, nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != IdentitySize {
		return fmt.Errorf("invalid identity length %d", len(text))
	}
	_, err := hex.Decode(id[:], text)
	return err
}
