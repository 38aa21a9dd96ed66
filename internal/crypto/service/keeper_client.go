package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"

	"gocloud.dev/gcerrors"
)

// KeeperClient implements MasterKeyClient on top of a gocloud.dev/secrets keeper.
type KeeperClient struct {
	keeper KMSKeeper
	keyID  string
}

// NewKeeperClient creates a KeeperClient. keyID is recorded on every wrapped DEK;
// use KeeperKeyID to derive it from the keeper URI.
func NewKeeperClient(keeper KMSKeeper, keyID string) *KeeperClient {
	return &KeeperClient{keeper: keeper, keyID: keyID}
}

// Wrap encrypts plaintextKey with the keeper.
func (k *KeeperClient) Wrap(ctx context.Context, plaintextKey []byte) ([]byte, string, error) {
	wrapped, err := k.keeper.Encrypt(ctx, plaintextKey)
	if err != nil {
		return nil, "", newKeyServiceError("wrap", keeperErrorKind(err), err)
	}
	return wrapped, k.keyID, nil
}

// Unwrap decrypts wrapped with the keeper.
func (k *KeeperClient) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	plaintext, err := k.keeper.Decrypt(ctx, wrapped)
	if err != nil {
		return nil, newKeyServiceError("unwrap", keeperErrorKind(err), err)
	}
	return plaintext, nil
}

// Close releases the keeper.
func (k *KeeperClient) Close() error {
	return k.keeper.Close()
}

func keeperErrorKind(err error) KeyServiceErrorKind {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return KeyServiceNotFound
	case gcerrors.PermissionDenied:
		return KeyServiceAccessDenied
	default:
		return KeyServiceUnavailable
	}
}

// KeeperKeyID derives a loggable master key identifier from a keeper URI.
//
// base64key:// URIs embed the key itself, so only a short fingerprint of them is
// kept. Other schemes keep scheme, host and path and drop the query string.
func KeeperKeyID(keyURI string) string {
	u, err := url.Parse(keyURI)
	if err != nil || u.Scheme == "" || u.Scheme == "base64key" {
		sum := sha256.Sum256([]byte(keyURI))
		scheme := "keeper"
		if err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		return scheme + ":" + hex.EncodeToString(sum[:8])
	}
	return u.Scheme + "://" + u.Host + u.Path
}
