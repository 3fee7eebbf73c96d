package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avianet/skysurety/internal/crypto"
)

func RandomHash(t *testing.T) crypto.Hash {
	var hash crypto.Hash
	_, err := rand.Read(hash[:])
	require.NoError(t, err)
	return hash
}

func RandomIdentity(t *testing.T) crypto.Identity {
	var id crypto.Identity
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}
