package credential_test

import (
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/apperr"
	"github.com/kiranshivaraju/keyhub/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastCipher() *credential.Cipher {
	return credential.NewCipher(credential.Params{
		Time:       1,
		Memory:     1024,
		Threads:    1,
		BcryptCost: bcrypt.MinCost,
	})
}

// --- Passwords ---

func TestHashPassword_SameSaltIsDeterministic(t *testing.T) {
	c := fastCipher()

	h1, salt, err := c.HashPassword("Str0ng!Pass", "")
	require.NoError(t, err)
	require.NotEmpty(t, salt)

	h2, salt2, err := c.HashPassword("Str0ng!Pass", salt)
	require.NoError(t, err)
	assert.Equal(t, salt, salt2)
	assert.Equal(t, h1, h2)
}

func TestHashPassword_FreshSaltDiffers(t *testing.T) {
	c := fastCipher()

	h1, s1, err := c.HashPassword("Str0ng!Pass", "")
	require.NoError(t, err)
	h2, s2, err := c.HashPassword("Str0ng!Pass", "")
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyPassword(t *testing.T) {
	c := fastCipher()
	passwords := []string{"Str0ng!Pass", "a", "unicode-пароль-1", strings.Repeat("x", 200)}

	for _, p := range passwords {
		hash, salt, err := c.HashPassword(p, "")
		require.NoError(t, err)
		assert.True(t, c.VerifyPassword(p, hash, salt), p)
		assert.False(t, c.VerifyPassword(p+"!", hash, salt), p)
	}
}

func TestVerifyPassword_WrongSaltOrGarbage(t *testing.T) {
	c := fastCipher()
	hash, _, err := c.HashPassword("Str0ng!Pass", "")
	require.NoError(t, err)
	_, otherSalt, err := c.HashPassword("x", "")
	require.NoError(t, err)

	assert.False(t, c.VerifyPassword("Str0ng!Pass", hash, otherSalt))
	assert.False(t, c.VerifyPassword("Str0ng!Pass", "not-a-hash", otherSalt))
	assert.False(t, c.VerifyPassword("Str0ng!Pass", hash, "%%%"))
}

func TestVerifyPassword_UsesParamsFromHash(t *testing.T) {
	old := credential.NewCipher(credential.Params{Time: 1, Memory: 1024, Threads: 1})
	hash, salt, err := old.HashPassword("Str0ng!Pass", "")
	require.NoError(t, err)

	newer := credential.NewCipher(credential.Params{Time: 2, Memory: 2048, Threads: 2})
	assert.True(t, newer.VerifyPassword("Str0ng!Pass", hash, salt))
}

func TestHashPassword_InvalidSalt(t *testing.T) {
	_, _, err := fastCipher().HashPassword("pw", "c2hvcnQ") // 5 bytes
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

// --- Secrets ---

func TestHashSecret_SaltedInternally(t *testing.T) {
	c := fastCipher()

	h1, err := c.HashSecret("sk_abc")
	require.NoError(t, err)
	h2, err := c.HashSecret("sk_abc")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, c.VerifySecret("sk_abc", h1))
	assert.True(t, c.VerifySecret("sk_abc", h2))
	assert.False(t, c.VerifySecret("sk_abd", h1))
	assert.False(t, c.VerifySecret("sk_abc", "garbage"))
}

func TestHashSecret_TooLong(t *testing.T) {
	_, err := fastCipher().HashSecret(strings.Repeat("s", credential.MaxSecretBytes+1))
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

// --- Key material ---

func TestNewKeyID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		kid, err := credential.NewKeyID()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(kid, credential.KeyIDPrefix))
		require.Len(t, kid, len(credential.KeyIDPrefix)+16)
		require.False(t, seen[kid], "duplicate kid %s", kid)
		seen[kid] = true
	}
}

func TestNewSecret_URLSafe(t *testing.T) {
	s, err := credential.NewSecret()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, credential.SecretPrefix))
	assert.NotContains(t, s, "/")
	assert.NotContains(t, s, "+")
	assert.NotContains(t, s, "=")
	assert.LessOrEqual(t, len(s), credential.MaxSecretBytes)
}

func TestGenerateKey(t *testing.T) {
	c := fastCipher()
	k, err := c.GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, k.KID, k.Secret)
	assert.NotContains(t, k.Hash, k.Secret)
	assert.True(t, c.VerifySecret(k.Secret, k.Hash))
}

// --- Tokens ---

func TestNewSigner_MissingSecret(t *testing.T) {
	_, err := credential.NewSigner("", time.Hour, "keyhub")
	require.Error(t, err)
	assert.Equal(t, apperr.Configuration, apperr.KindOf(err))
}

func TestToken_RoundTrip(t *testing.T) {
	s, err := credential.NewSigner("test-secret", time.Hour, "keyhub")
	require.NoError(t, err)

	tok, err := s.Issue(42, "a@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	claims, err := s.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.SubjectID)
	assert.Equal(t, "a@acme.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
}

func TestToken_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	base, err := credential.NewSigner("test-secret", time.Minute, "keyhub")
	require.NoError(t, err)
	s := base.WithClock(clock)

	tok, err := s.Issue(7, "b@acme.com")
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = s.Verify(tok.AccessToken)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.Verify(tok.AccessToken)
	assert.ErrorIs(t, err, credential.ErrTokenExpired)
}

func TestToken_Malformed(t *testing.T) {
	s, err := credential.NewSigner("test-secret", time.Hour, "keyhub")
	require.NoError(t, err)
	other, err := credential.NewSigner("other-secret", time.Hour, "keyhub")
	require.NoError(t, err)
	foreign, err := credential.NewSigner("test-secret", time.Hour, "someone-else")
	require.NoError(t, err)

	fromOther, err := other.Issue(1, "x@y.z")
	require.NoError(t, err)
	fromForeign, err := foreign.Issue(1, "x@y.z")
	require.NoError(t, err)

	for _, raw := range []string{"", "abc.def.ghi", fromOther.AccessToken, fromForeign.AccessToken} {
		_, err := s.Verify(raw)
		assert.ErrorIs(t, err, credential.ErrTokenMalformed, raw)
		assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	}
}
