package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
)

func TestFieldAAD(t *testing.T) {
	assert.Equal(t, []byte("u1\x00name"), FieldAAD("u1", "name"))
	assert.NotEqual(t, FieldAAD("ab", "c"), FieldAAD("a", "bc"))
}

func TestFieldCipherService_RoundTrip(t *testing.T) {
	fieldCipher := NewFieldCipher(NewAEADManager())
	key := randomKey(t)
	aad := FieldAAD("u1", "name")

	values := map[string]cryptoDomain.FieldValue{
		"empty string": cryptoDomain.StringValue(""),
		"null":         cryptoDomain.NullValue(),
		"empty bytes":  cryptoDomain.BytesValue([]byte{}),
		"unicode":      cryptoDomain.StringValue("José O'Brien ñ 漢字 🙂"),
		"large":        cryptoDomain.StringValue(strings.Repeat("a", 16*1024)),
		"binary":       cryptoDomain.BytesValue([]byte{0x00, 0xff, 0x10}),
	}

	for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
		for name, value := range values {
			t.Run(string(alg)+"/"+name, func(t *testing.T) {
				field, err := fieldCipher.Encrypt(key, alg, value, aad)
				require.NoError(t, err)
				assert.Equal(t, alg, field.Algorithm)

				field.KeyVersion = 1
				parsed, err := cryptoDomain.ParseEncryptedField(field.String())
				require.NoError(t, err)

				decrypted, err := fieldCipher.Decrypt(key, parsed, aad)
				require.NoError(t, err)
				assert.Equal(t, value.Kind, decrypted.Kind)
				assert.Equal(t, value.Any(), decrypted.Any())
			})
		}
	}
}

func TestFieldCipherService_NullDistinctFromEmpty(t *testing.T) {
	fieldCipher := NewFieldCipher(NewAEADManager())
	key := randomKey(t)

	field, err := fieldCipher.Encrypt(key, cryptoDomain.AESGCM, cryptoDomain.NullValue(), nil)
	require.NoError(t, err)

	decrypted, err := fieldCipher.Decrypt(key, field, nil)
	require.NoError(t, err)
	assert.True(t, decrypted.IsNull())
	assert.Nil(t, decrypted.Any())
}

func TestFieldCipherService_Decrypt(t *testing.T) {
	fieldCipher := NewFieldCipher(NewAEADManager())
	key := randomKey(t)
	aad := FieldAAD("u1", "ssn")

	field, err := fieldCipher.Encrypt(key, cryptoDomain.AESGCM, cryptoDomain.StringValue("123-45-6789"), aad)
	require.NoError(t, err)

	t.Run("Error_WrongKey", func(t *testing.T) {
		_, err := fieldCipher.Decrypt(randomKey(t), field, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_WrongUser", func(t *testing.T) {
		_, err := fieldCipher.Decrypt(key, field, FieldAAD("u2", "ssn"))
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_WrongField", func(t *testing.T) {
		_, err := fieldCipher.Decrypt(key, field, FieldAAD("u1", "dob"))
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_WrongAlgorithm", func(t *testing.T) {
		swapped := field
		swapped.Algorithm = cryptoDomain.ChaCha20
		_, err := fieldCipher.Decrypt(key, swapped, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_TamperedTag", func(t *testing.T) {
		tampered := field
		tampered.Ciphertext = append([]byte(nil), field.Ciphertext...)
		tampered.Ciphertext[len(tampered.Ciphertext)-1] ^= 0x80
		_, err := fieldCipher.Decrypt(key, tampered, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_InvalidKeySize", func(t *testing.T) {
		_, err := fieldCipher.Decrypt(make([]byte, 16), field, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})
}

func TestFieldCipherService_EnvelopeBitFlips(t *testing.T) {
	fieldCipher := NewFieldCipher(NewAEADManager())
	key := randomKey(t)
	aad := FieldAAD("u1", "name")

	field, err := fieldCipher.Encrypt(key, cryptoDomain.AESGCM, cryptoDomain.StringValue("José O'Brien"), aad)
	require.NoError(t, err)
	field.KeyVersion = 1
	serialized := []byte(field.String())

	// Every single-bit flip either breaks parsing, changes the key version (which
	// the orchestrator resolves to a different or missing key) or fails the tag.
	for i := range serialized {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), serialized...)
			mutated[i] ^= 1 << bit

			parsed, err := cryptoDomain.ParseEncryptedField(string(mutated))
			if err != nil {
				assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
				continue
			}
			if parsed.KeyVersion != field.KeyVersion {
				continue
			}
			_, err = fieldCipher.Decrypt(key, parsed, aad)
			assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity, "byte %d bit %d", i, bit)
		}
	}
}
