package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := "4111111111111234;pin=1234"
	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_RejectsWrongKeySize(t *testing.T) {
	_, err := Encrypt("data", []byte("too-short"))
	require.Error(t, err)
}

func TestDecrypt_RejectsWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	ciphertext, err := Encrypt("secret", key1)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, key2)
	require.Error(t, err)
}

func TestDecrypt_RejectsCorruptedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	ciphertext, err := Encrypt("secret", key)
	require.NoError(t, err)

	corrupted := ciphertext[:len(ciphertext)-4] + "abcd"
	_, err = Decrypt(corrupted, key)
	require.Error(t, err)
}

func TestDecrypt_RejectsTooShortCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	_, err := Decrypt("c2hvcnQ=", key) // base64 for "short", well under NonceSize
	require.Error(t, err)
}

func TestEncryptDecryptWithPassword_RoundTrip(t *testing.T) {
	plaintext := "cryptogram-payload"
	password := "correct horse battery staple"

	ciphertext, err := EncryptWithPassword(plaintext, password)
	require.NoError(t, err)

	decrypted, err := DecryptWithPassword(ciphertext, password)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWithPassword_WrongPassword(t *testing.T) {
	ciphertext, err := EncryptWithPassword("secret", "password-a")
	require.NoError(t, err)

	_, err = DecryptWithPassword(ciphertext, "password-b")
	require.Error(t, err)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1 := DeriveKey("passphrase", salt)
	k2 := DeriveKey("passphrase", salt)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)
}
