package crypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("Failed to build cipher: %v", err)
	}
	assert.True(t, cipher.Enabled())

	sealed, err := cipher.Encrypt("hello world")
	assert.NoError(t, err)
	assert.NotEqual(t, "hello world", sealed)

	plaintext, err := cipher.Decrypt(sealed)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", plaintext)
}

func TestEncryptProducesFreshNonces(t *testing.T) {
	cipher, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("Failed to build cipher: %v", err)
	}

	a, _ := cipher.Encrypt("same input")
	b, _ := cipher.Encrypt("same input")
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	cipher, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("Failed to build cipher: %v", err)
	}

	_, err = cipher.Decrypt("bm90IHJlYWwgY2lwaGVydGV4dA==")
	assert.Error(t, err)

	_, err = cipher.Decrypt("!!! not base64 !!!")
	assert.Error(t, err)
}

func TestWrongKeyFailsToDecrypt(t *testing.T) {
	one, _ := NewCipher("key-one")
	two, _ := NewCipher("key-two")

	sealed, err := one.Encrypt("secret")
	assert.NoError(t, err)
	_, err = two.Decrypt(sealed)
	assert.Error(t, err)
}

func TestNilCipherIsPassthrough(t *testing.T) {
	cipher, err := NewCipher("")
	assert.NoError(t, err)
	assert.False(t, cipher.Enabled())

	sealed, err := cipher.Encrypt("plain")
	assert.NoError(t, err)
	assert.Equal(t, "plain", sealed)

	plaintext, err := cipher.Decrypt("plain")
	assert.NoError(t, err)
	assert.Equal(t, "plain", plaintext)
}
