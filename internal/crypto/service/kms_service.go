package service

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"gocloud.dev/secrets"
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

// KeeperSchemes lists the KMS_KEY_URI schemes the keeper provider accepts.
var KeeperSchemes = []string{"base64key", "awskms", "gcpkms", "azurekeyvault", "hashivault"}

// KMSService opens gocloud.dev/secrets keepers for the configured master key.
type KMSService interface {
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

type kmsService struct{}

// NewKMSService returns the gocloud keeper opener.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper checks the scheme of keyURI and opens the matching keeper. An
// unknown scheme fails with ErrInvalidInput before any driver is contacted.
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error) {
	u, err := url.Parse(keyURI)
	if err != nil || !slices.Contains(KeeperSchemes, u.Scheme) {
		return nil, fmt.Errorf(
			"failed to open KMS keeper: %w",
			apperrors.Wrap(apperrors.ErrInvalidInput, "unsupported key uri scheme"),
		)
	}

	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper %s: %w", KeeperKeyID(keyURI), err)
	}
	return keeper, nil
}
