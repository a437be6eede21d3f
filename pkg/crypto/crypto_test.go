package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("hunter2", hash))
	assert.False(t, VerifyPassword("hunter3", hash))
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), string(r))
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(16)
	require.NoError(t, err)
	b, err := GenerateRandomString(16)
	require.NoError(t, err)

	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

func TestSealRoundTrip(t *testing.T) {
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := Encrypt(key, []byte(`{"ssid":"Home","password":"secret"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret")

	opened, err := Decrypt(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"ssid":"Home","password":"secret"}`, string(opened))

	other, _ := ParseKey(strings.Repeat("cd", 32))
	_, err = Decrypt(other, sealed)
	assert.Error(t, err)

	_, err = Decrypt(key, []byte("short"))
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("zz")
	assert.Error(t, err)
	_, err = ParseKey(strings.Repeat("ab", 10))
	assert.Error(t, err)
	key, err := ParseKey(strings.Repeat("01", 16))
	require.NoError(t, err)
	assert.Len(t, key, 16)
}
