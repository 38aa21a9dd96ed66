package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	vault "github.com/hashicorp/vault/api"
)

// VaultTransitClient implements MasterKeyClient with the Vault transit secrets engine.
//
// Wrapped DEKs are the transit ciphertext strings ("vault:v<n>:...") stored as
// bytes, so Vault-side key rotation keeps old rows decryptable.
type VaultTransitClient struct {
	client  *vault.Client
	mount   string
	keyName string
}

// NewVaultTransitClient creates a Vault client for addr authenticated with token.
func NewVaultTransitClient(addr, token, mount, keyName string) (*VaultTransitClient, error) {
	cfg := vault.DefaultConfig()
	if cfg.Error != nil {
		return nil, cfg.Error
	}
	cfg.Address = addr

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	return NewVaultTransitClientWithClient(client, mount, keyName), nil
}

// NewVaultTransitClientWithClient creates a VaultTransitClient over an existing client.
func NewVaultTransitClientWithClient(client *vault.Client, mount, keyName string) *VaultTransitClient {
	return &VaultTransitClient{client: client, mount: mount, keyName: keyName}
}

// KeyID returns the identifier recorded on wrapped DEKs.
func (c *VaultTransitClient) KeyID() string {
	return "vault-transit:" + c.mount + "/" + c.keyName
}

// Wrap encrypts plaintextKey with the transit key.
func (c *VaultTransitClient) Wrap(ctx context.Context, plaintextKey []byte) ([]byte, string, error) {
	secret, err := c.client.Logical().WriteWithContext(
		ctx,
		fmt.Sprintf("%s/encrypt/%s", c.mount, c.keyName),
		map[string]any{"plaintext": base64.StdEncoding.EncodeToString(plaintextKey)},
	)
	if err != nil {
		return nil, "", newKeyServiceError("wrap", vaultErrorKind(err), err)
	}
	if secret == nil || secret.Data == nil {
		return nil, "", newKeyServiceError("wrap", KeyServiceUnavailable, errors.New("empty transit response"))
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok || ciphertext == "" {
		return nil, "", newKeyServiceError("wrap", KeyServiceUnavailable, errors.New("ciphertext missing in transit response"))
	}
	return []byte(ciphertext), c.KeyID(), nil
}

// Unwrap decrypts a transit ciphertext produced by Wrap.
func (c *VaultTransitClient) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	secret, err := c.client.Logical().WriteWithContext(
		ctx,
		fmt.Sprintf("%s/decrypt/%s", c.mount, c.keyName),
		map[string]any{"ciphertext": string(wrapped)},
	)
	if err != nil {
		return nil, newKeyServiceError("unwrap", vaultErrorKind(err), err)
	}
	if secret == nil || secret.Data == nil {
		return nil, newKeyServiceError("unwrap", KeyServiceUnavailable, errors.New("empty transit response"))
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, newKeyServiceError("unwrap", KeyServiceUnavailable, errors.New("plaintext missing in transit response"))
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, newKeyServiceError("unwrap", KeyServiceUnavailable, fmt.Errorf("invalid transit plaintext: %w", err))
	}
	return plaintext, nil
}

func vaultErrorKind(err error) KeyServiceErrorKind {
	var respErr *vault.ResponseError
	if !errors.As(err, &respErr) {
		return KeyServiceUnavailable
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return KeyServiceNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KeyServiceAccessDenied
	default:
		return KeyServiceUnavailable
	}
}
