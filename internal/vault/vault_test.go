package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-crm/internal/apperr"
)

func TestVault_RoundTrip(t *testing.T) {
	v, err := New("test-secret")
	require.NoError(t, err)

	blob, err := v.Encrypt("EAAG-token")
	require.NoError(t, err)
	assert.NotContains(t, blob, "EAAG-token")

	plain, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "EAAG-token", plain)
}

func TestVault_NonceIsFresh(t *testing.T) {
	v, err := New("test-secret")
	require.NoError(t, err)

	a, _ := v.Encrypt("same")
	b, _ := v.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestVault_WrongKeyFails(t *testing.T) {
	v1, _ := New("key-one")
	v2, _ := New("key-two")

	blob, err := v1.Encrypt("secret")
	require.NoError(t, err)

	_, err = v2.Decrypt(blob)
	assert.Error(t, err)
}

func TestVault_MalformedBlob(t *testing.T) {
	v, _ := New("k")

	_, err := v.Decrypt("not base64 !!")
	assert.ErrorIs(t, err, ErrMalformedBlob)

	_, err = v.Decrypt("YQ==")
	assert.ErrorIs(t, err, ErrMalformedBlob)
}

func TestVault_MissingSecret(t *testing.T) {
	_, err := New("")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}
