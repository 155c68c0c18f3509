// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/auth"
)

func TestArgon2idHasher_HashAndVerify(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("round trip", func(t *testing.T) {
		hash, err := hasher.Hash("correct horse battery1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

		ok, err := hasher.Verify("correct horse battery1", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password does not match", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)

		ok, err := hasher.Verify("password124", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		h1, err := hasher.Hash("password123")
		require.NoError(t, err)
		h2, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})

	t.Run("empty password rejected", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.ErrorIs(t, err, auth.ErrEmptyPassword)
	})

	t.Run("malformed hash rejected", func(t *testing.T) {
		_, err := hasher.Verify("password123", "not-a-hash")
		require.Error(t, err)
	})

	t.Run("unsupported algorithm rejected", func(t *testing.T) {
		_, err := hasher.Verify("password123", "$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		require.Error(t, err)
	})
}
