package app

import (
	"fmt"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/userkey/cache"
	userkeyRepository "github.com/allisson/fieldcrypt/internal/userkey/repository"
	userkeyService "github.com/allisson/fieldcrypt/internal/userkey/service"
	userkeyUseCase "github.com/allisson/fieldcrypt/internal/userkey/usecase"
)

// UserKeyRepository returns the key store for the configured database driver.
func (c *Container) UserKeyRepository() (userkeyUseCase.UserKeyRepository, error) {
	var err error
	c.userKeyRepositoryInit.Do(func() {
		c.userKeyRepository, err = c.initUserKeyRepository()
		if err != nil {
			c.setInitError("userKeyRepository", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("userKeyRepository"); storedErr != nil {
		return nil, storedErr
	}
	return c.userKeyRepository, nil
}

// AuditRepository returns the audit trail store for the configured database driver.
func (c *Container) AuditRepository() (userkeyUseCase.AuditRepository, error) {
	var err error
	c.auditRepositoryInit.Do(func() {
		c.auditRepository, err = c.initAuditRepository()
		if err != nil {
			c.setInitError("auditRepository", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("auditRepository"); storedErr != nil {
		return nil, storedErr
	}
	return c.auditRepository, nil
}

// DekCache returns the process-wide DEK cache.
func (c *Container) DekCache() *cache.DekCache {
	c.dekCacheInit.Do(func() {
		c.dekCache = cache.NewDekCache(c.config.DEKCacheTTL)
	})
	return c.dekCache
}

// AuditSigningEnabled reports whether AUDIT_SIGNING_KEY is set.
func (c *Container) AuditSigningEnabled() bool {
	return c.config.AuditSigningKey != ""
}

// AuditSigner returns the audit signer. It is nil when AuditSigningEnabled is false.
func (c *Container) AuditSigner() (*userkeyService.AuditSigner, error) {
	var err error
	c.auditSignerInit.Do(func() {
		if !c.AuditSigningEnabled() {
			return
		}
		c.auditSigner, err = userkeyService.NewAuditSigner([]byte(c.config.AuditSigningKey))
		if err != nil {
			c.setInitError("auditSigner", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("auditSigner"); storedErr != nil {
		return nil, storedErr
	}
	return c.auditSigner, nil
}

// EncryptionUseCase returns the encryption orchestrator.
func (c *Container) EncryptionUseCase() (userkeyUseCase.EncryptionUseCase, error) {
	var err error
	c.encryptionUseCaseInit.Do(func() {
		c.encryptionUseCase, err = c.initEncryptionUseCase()
		if err != nil {
			c.setInitError("encryptionUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("encryptionUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.encryptionUseCase, nil
}

// AuditUseCase returns the audit trail reader and verifier.
func (c *Container) AuditUseCase() (userkeyUseCase.AuditUseCase, error) {
	var err error
	c.auditUseCaseInit.Do(func() {
		c.auditUseCase, err = c.initAuditUseCase()
		if err != nil {
			c.setInitError("auditUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("auditUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.auditUseCase, nil
}

func (c *Container) initUserKeyRepository() (userkeyUseCase.UserKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for user key repository: %w", err)
	}
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for user key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return userkeyRepository.NewMySQLUserKeyRepository(db, txManager), nil
	case "postgres":
		return userkeyRepository.NewPostgreSQLUserKeyRepository(db, txManager), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initAuditRepository() (userkeyUseCase.AuditRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for audit repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return userkeyRepository.NewMySQLAuditRepository(db), nil
	case "postgres":
		return userkeyRepository.NewPostgreSQLAuditRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// auditSignerOrNil keeps a disabled signer out of the interface so the use cases
// see a true nil.
func (c *Container) auditSignerOrNil() (userkeyUseCase.AuditSigner, error) {
	if !c.AuditSigningEnabled() {
		return nil, nil
	}
	signer, err := c.AuditSigner()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit signer: %w", err)
	}
	return signer, nil
}

func (c *Container) initEncryptionUseCase() (userkeyUseCase.EncryptionUseCase, error) {
	algorithm, err := cryptoDomain.ParseAlgorithm(c.config.FieldAlgorithm)
	if err != nil {
		return nil, err
	}

	userKeyRepo, err := c.UserKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get user key repository for encryption use case: %w", err)
	}
	auditRepo, err := c.AuditRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for encryption use case: %w", err)
	}
	masterKeyClient, err := c.MasterKeyClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key client for encryption use case: %w", err)
	}
	signer, err := c.auditSignerOrNil()
	if err != nil {
		return nil, err
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for encryption use case: %w", err)
	}

	baseUseCase := userkeyUseCase.NewEncryptionUseCase(
		userKeyRepo,
		auditRepo,
		masterKeyClient,
		c.FieldCipher(),
		c.DekCache(),
		signer,
		businessMetrics,
		c.Logger(),
		userkeyUseCase.Config{
			Algorithm:         algorithm,
			KeyServiceTimeout: c.config.KeyServiceTimeout,
			KeyStoreTimeout:   c.config.KeyStoreTimeout,
		},
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		return userkeyUseCase.NewEncryptionUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}
	return baseUseCase, nil
}

func (c *Container) initAuditUseCase() (userkeyUseCase.AuditUseCase, error) {
	auditRepo, err := c.AuditRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for audit use case: %w", err)
	}
	signer, err := c.auditSignerOrNil()
	if err != nil {
		return nil, err
	}
	return userkeyUseCase.NewAuditUseCase(auditRepo, signer), nil
}
