package filecrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	plaintext := []byte("Id,Amount\n1,100\n")

	sealed, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := Decrypt(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)

	sealed, err := Encrypt(key, []byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = Decrypt(key, sealed)
	require.Error(t, err)
}

func TestDecryptRejectsShortPayload(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	_, err := Decrypt(key, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestKeyLengthEnforced(t *testing.T) {
	_, err := Encrypt([]byte("short"), []byte("payload"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}
