package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticCredentials_Reveal(t *testing.T) {
	creds := NewStaticCredentials("key-123456", "secret", "phrase")

	km, err := creds.Reveal()
	require.NoError(t, err)
	assert.Equal(t, []byte("key-123456"), km.APIKey)
	assert.Equal(t, []byte("secret"), km.Secret)
	assert.Equal(t, []byte("phrase"), km.Passphrase)

	km.Wipe()
	assert.Equal(t, make([]byte, 6), km.Secret)

	again, err := creds.Reveal()
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), again.Secret)
}

func TestStaticCredentials_Empty(t *testing.T) {
	_, err := NewStaticCredentials("", "", "").Reveal()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestCredentials_NeverPrintSecret(t *testing.T) {
	creds := NewStaticCredentials("key-123456", "very-secret", "")
	km, err := creds.Reveal()
	require.NoError(t, err)

	for _, s := range []string{
		fmt.Sprint(creds),
		fmt.Sprintf("%v", km),
		creds.KeyID(),
	} {
		assert.NotContains(t, s, "very-secret")
		assert.NotContains(t, s, "key-123456")
	}
	assert.Equal(t, "key-****", creds.KeyID())
}

func TestAPICredentials_Capability(t *testing.T) {
	c := &APICredentials{APIKey: "abcdef", SecretKey: "s", Passphrase: "p"}
	km, err := c.Capability().Reveal()
	require.NoError(t, err)
	assert.Equal(t, "p", string(km.Passphrase))
}
