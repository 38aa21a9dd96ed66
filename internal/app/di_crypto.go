package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/fieldcrypt/internal/config"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
)

// KMSService returns the gocloud keeper opener.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// MasterKeyClient returns the client that wraps and unwraps DEKs, selected by
// KMS_PROVIDER and rate limited when KMS_RATE_LIMIT_PER_SEC is positive.
func (c *Container) MasterKeyClient() (cryptoService.MasterKeyClient, error) {
	var err error
	c.masterKeyClientInit.Do(func() {
		c.masterKeyClient, err = c.initMasterKeyClient()
		if err != nil {
			c.setInitError("masterKeyClient", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("masterKeyClient"); storedErr != nil {
		return nil, storedErr
	}
	return c.masterKeyClient, nil
}

// FieldCipher returns the envelope cipher.
func (c *Container) FieldCipher() cryptoService.FieldCipher {
	c.fieldCipherInit.Do(func() {
		c.fieldCipher = cryptoService.NewFieldCipher(cryptoService.NewAEADManager())
	})
	return c.fieldCipher
}

func (c *Container) initMasterKeyClient() (cryptoService.MasterKeyClient, error) {
	ctx := context.Background()
	logger := c.Logger()

	var client cryptoService.MasterKeyClient
	switch c.config.KMSProvider {
	case config.KMSProviderKeeper, "":
		if c.config.KMSKeyURI == "" {
			return nil, fmt.Errorf("KMS_KEY_URI is required for the %q provider", config.KMSProviderKeeper)
		}
		keeper, err := c.KMSService().OpenKeeper(ctx, c.config.KMSKeyURI)
		if err != nil {
			return nil, err
		}
		keeperClient := cryptoService.NewKeeperClient(keeper, cryptoService.KeeperKeyID(c.config.KMSKeyURI))
		c.masterKeyCloser = keeperClient
		client = keeperClient

	case config.KMSProviderAWSKMS:
		awsClient, err := cryptoService.NewAWSKMSClient(ctx, c.config.AWSKMSKeyID)
		if err != nil {
			return nil, fmt.Errorf("failed to create aws kms client: %w", err)
		}
		client = awsClient

	case config.KMSProviderVault:
		vaultClient, err := cryptoService.NewVaultTransitClient(
			c.config.VaultAddr,
			c.config.VaultToken,
			c.config.VaultTransitMount,
			c.config.VaultTransitKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create vault transit client: %w", err)
		}
		client = vaultClient

	default:
		return nil, fmt.Errorf("unsupported kms provider: %s", c.config.KMSProvider)
	}

	logger.Info("master key client ready", slog.String("provider", c.config.KMSProvider))

	if c.config.KMSRateLimitPerSec <= 0 {
		return client, nil
	}
	return cryptoService.NewRateLimitedClient(
		client,
		c.config.KMSRateLimitPerSec,
		c.config.KMSRateLimitBurst,
	), nil
}
