package service

import (
	"fmt"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
)

// FieldAAD returns the associated data binding an envelope to its owner and field.
// The zero byte separator keeps ("ab", "c") and ("a", "bc") distinct.
func FieldAAD(userID, fieldName string) []byte {
	aad := make([]byte, 0, len(userID)+len(fieldName)+1)
	aad = append(aad, userID...)
	aad = append(aad, 0x00)
	aad = append(aad, fieldName...)
	return aad
}

// FieldCipherService implements FieldCipher on top of an AEADManager.
type FieldCipherService struct {
	aeadManager AEADManager
}

// NewFieldCipher creates a new FieldCipherService.
func NewFieldCipher(aeadManager AEADManager) *FieldCipherService {
	return &FieldCipherService{aeadManager: aeadManager}
}

// Encrypt seals the kind-tagged value. A null value produces a normal envelope whose
// plaintext is the authenticated null marker.
func (f *FieldCipherService) Encrypt(
	key []byte,
	alg cryptoDomain.Algorithm,
	value cryptoDomain.FieldValue,
	aad []byte,
) (cryptoDomain.EncryptedField, error) {
	cipher, err := f.aeadManager.CreateCipher(key, alg)
	if err != nil {
		return cryptoDomain.EncryptedField{}, err
	}

	plaintext := cryptoDomain.MarshalFieldValue(value)
	defer cryptoDomain.Zero(plaintext)

	ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
	if err != nil {
		return cryptoDomain.EncryptedField{}, fmt.Errorf("failed to encrypt field: %w", err)
	}

	return cryptoDomain.EncryptedField{
		Algorithm:  alg,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt opens field. Tag mismatches, wrong keys, wrong aad and malformed
// plaintexts all return ErrIntegrity without detail.
func (f *FieldCipherService) Decrypt(
	key []byte,
	field cryptoDomain.EncryptedField,
	aad []byte,
) (cryptoDomain.FieldValue, error) {
	if len(key) != cryptoDomain.KeySize {
		return cryptoDomain.FieldValue{}, cryptoDomain.ErrInvalidKeySize
	}

	cipher, err := f.aeadManager.CreateCipher(key, field.Algorithm)
	if err != nil {
		return cryptoDomain.FieldValue{}, cryptoDomain.ErrIntegrity
	}

	plaintext, err := cipher.Decrypt(field.Ciphertext, field.Nonce, aad)
	if err != nil {
		return cryptoDomain.FieldValue{}, cryptoDomain.ErrIntegrity
	}
	defer cryptoDomain.Zero(plaintext)

	return cryptoDomain.UnmarshalFieldValue(plaintext)
}
