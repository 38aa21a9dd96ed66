package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
	"github.com/allisson/fieldcrypt/internal/metrics"
	"github.com/allisson/fieldcrypt/internal/userkey/cache"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
	customValidation "github.com/allisson/fieldcrypt/internal/validation"
)

// Config tunes the orchestrator.
type Config struct {
	// Algorithm seals fields under newly generated keys. Existing keys keep theirs.
	Algorithm cryptoDomain.Algorithm
	// KeyServiceTimeout bounds every master key Wrap and Unwrap call.
	KeyServiceTimeout time.Duration
	// KeyStoreTimeout bounds every repository call.
	KeyStoreTimeout time.Duration
}

type encryptionUseCase struct {
	userKeyRepo UserKeyRepository
	masterKey   cryptoService.MasterKeyClient
	fieldCipher cryptoService.FieldCipher
	dekCache    DekCache
	audit       *auditEmitter
	logger      *slog.Logger
	cfg         Config
}

// GenerateUserKey provisions the first DEK of userID.
func (e *encryptionUseCase) GenerateUserKey(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	if err := userkeyDomain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	// Skip the master key round trip when the user is already provisioned.
	_, err := e.getActive(ctx, userID)
	if err == nil {
		return nil, userkeyDomain.ErrAlreadyExists
	}
	if !errors.Is(err, userkeyDomain.ErrNoKeyProvisioned) {
		return nil, err
	}

	key, err := e.newWrappedKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	key.Version = 1
	if err := key.Validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.KeyStoreTimeout)
	defer cancel()
	if err := e.userKeyRepo.Create(storeCtx, key); err != nil {
		return nil, err
	}

	e.logger.Info("user key generated",
		slog.String("user_id", userID),
		slog.Uint64("version", uint64(key.Version)),
		slog.String("master_key_id", key.MasterKeyID),
	)
	e.audit.emit(ctx, userID, userkeyDomain.AuditGenerate, map[string]any{
		"version":       key.Version,
		"algorithm":     string(key.Algorithm),
		"master_key_id": key.MasterKeyID,
	})

	return key, nil
}

// GetUserDEK returns a copy of the active DEK of userID.
func (e *encryptionUseCase) GetUserDEK(ctx context.Context, userID string) (*userkeyDomain.DEK, error) {
	if err := userkeyDomain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	return e.dekCache.GetOrFetch(ctx, userID, cache.ActiveVersion, func(fetchCtx context.Context) (*userkeyDomain.DEK, error) {
		return e.loadDEK(fetchCtx, userID, cache.ActiveVersion)
	})
}

// EncryptFields seals the named fields of record under the active DEK of userID.
// Named fields missing from record are skipped; nil values seal to a null envelope.
func (e *encryptionUseCase) EncryptFields(
	ctx context.Context,
	userID string,
	record userkeyDomain.Record,
	fieldNames []string,
) (userkeyDomain.Record, error) {
	dek, err := e.GetUserDEK(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer dek.Zero()

	out := record.Clone()
	for _, name := range fieldNames {
		raw, ok := record[name]
		if !ok {
			continue
		}

		value, err := cryptoDomain.FieldValueFrom(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}

		field, err := e.fieldCipher.Encrypt(dek.Key, dek.Algorithm, value, cryptoService.FieldAAD(userID, name))
		if err != nil {
			return nil, err
		}
		field.KeyVersion = dek.Version
		out[name] = field.String()
	}

	return out, nil
}

type sealedField struct {
	name  string
	field cryptoDomain.EncryptedField
}

// DecryptFields opens the named envelopes of record. Each envelope is opened with
// the key version it names, so records written before a rotation stay readable.
func (e *encryptionUseCase) DecryptFields(
	ctx context.Context,
	userID string,
	record userkeyDomain.Record,
	fieldNames []string,
) (userkeyDomain.Record, error) {
	if err := userkeyDomain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	// Parse everything up front so a malformed envelope fails before any key is fetched.
	sealed := make([]sealedField, 0, len(fieldNames))
	for _, name := range fieldNames {
		raw, ok := record[name]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, e.integrityFailure(ctx, userID, name, 0, "not an envelope")
		}
		field, err := cryptoDomain.ParseEncryptedField(s)
		if err != nil {
			return nil, e.integrityFailure(ctx, userID, name, 0, "malformed envelope")
		}
		sealed = append(sealed, sealedField{name: name, field: field})
	}

	deks := make(map[uint]*userkeyDomain.DEK)
	defer func() {
		for _, dek := range deks {
			dek.Zero()
		}
	}()

	out := record.Clone()
	for _, s := range sealed {
		version := s.field.KeyVersion
		dek, ok := deks[version]
		if !ok {
			var err error
			dek, err = e.dekForVersion(ctx, userID, version)
			if errors.Is(err, userkeyDomain.ErrIntegrity) {
				return nil, e.integrityFailure(ctx, userID, s.name, version, "unknown key version")
			}
			if err != nil {
				return nil, err
			}
			deks[version] = dek
		}

		value, err := e.fieldCipher.Decrypt(dek.Key, s.field, cryptoService.FieldAAD(userID, s.name))
		if errors.Is(err, userkeyDomain.ErrIntegrity) {
			return nil, e.integrityFailure(ctx, userID, s.name, version, "authentication failed")
		}
		if err != nil {
			return nil, err
		}
		out[s.name] = value.Any()
	}

	return out, nil
}

// RotateUserKey generates, wraps and activates a new DEK for userID.
func (e *encryptionUseCase) RotateUserKey(ctx context.Context, userID string) (uint, error) {
	if err := userkeyDomain.ValidateUserID(userID); err != nil {
		return 0, err
	}

	newKey, err := e.newWrappedKey(ctx, userID)
	if err != nil {
		return 0, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.KeyStoreTimeout)
	defer cancel()
	version, err := e.userKeyRepo.Rotate(storeCtx, userID, newKey)
	if errors.Is(err, userkeyDomain.ErrUserKeyNotFound) {
		return 0, userkeyDomain.ErrNoKeyProvisioned
	}
	if err != nil {
		return 0, err
	}

	e.dekCache.Invalidate(userID)

	e.logger.Info("user key rotated",
		slog.String("user_id", userID),
		slog.Uint64("version", uint64(version)),
		slog.String("master_key_id", newKey.MasterKeyID),
	)
	e.audit.emit(ctx, userID, userkeyDomain.AuditRotate, map[string]any{
		"old_version":   version - 1,
		"new_version":   version,
		"algorithm":     string(newKey.Algorithm),
		"master_key_id": newKey.MasterKeyID,
	})

	return version, nil
}

// ClearCache evicts cached DEKs for userID, or for everyone when userID is empty.
func (e *encryptionUseCase) ClearCache(ctx context.Context, userID string) error {
	scope := "user"
	if userID == "" {
		scope = "all"
		e.dekCache.InvalidateAll()
	} else {
		if err := userkeyDomain.ValidateUserID(userID); err != nil {
			return err
		}
		e.dekCache.Invalidate(userID)
	}

	e.logger.Info("dek cache cleared", slog.String("user_id", userID), slog.String("scope", scope))
	e.audit.emit(ctx, userID, userkeyDomain.AuditCacheClear, map[string]any{"scope": scope})
	return nil
}

// GetCacheStats reports the DEK cache contents.
func (e *encryptionUseCase) GetCacheStats() userkeyDomain.CacheStats {
	return e.dekCache.Stats()
}

// GetKeyCoverage reports how many users have an active key and how many keys were rotated.
func (e *encryptionUseCase) GetKeyCoverage(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.KeyStoreTimeout)
	defer cancel()
	return e.userKeyRepo.Stats(storeCtx)
}

// dekForVersion returns the DEK sealed envelopes name. A version the user never had
// is reported as ErrIntegrity since only a tampered envelope can name it.
func (e *encryptionUseCase) dekForVersion(
	ctx context.Context,
	userID string,
	version uint,
) (*userkeyDomain.DEK, error) {
	dek, err := e.dekCache.GetOrFetch(ctx, userID, version, func(fetchCtx context.Context) (*userkeyDomain.DEK, error) {
		return e.loadDEK(fetchCtx, userID, version)
	})
	if !errors.Is(err, userkeyDomain.ErrUserKeyNotFound) {
		return dek, err
	}

	if _, activeErr := e.getActive(ctx, userID); activeErr != nil {
		return nil, activeErr
	}
	return nil, userkeyDomain.ErrIntegrity
}

// loadDEK reads a key row and unwraps it. It runs on cache misses only.
func (e *encryptionUseCase) loadDEK(
	ctx context.Context,
	userID string,
	version uint,
) (*userkeyDomain.DEK, error) {
	e.logger.Debug("dek cache miss", slog.String("user_id", userID), slog.Uint64("version", uint64(version)))

	var (
		row *userkeyDomain.UserEncryptionKey
		err error
	)
	if version == cache.ActiveVersion {
		row, err = e.getActive(ctx, userID)
	} else {
		storeCtx, cancel := context.WithTimeout(ctx, e.cfg.KeyStoreTimeout)
		row, err = e.userKeyRepo.GetByVersion(storeCtx, userID, version)
		cancel()
	}
	if err != nil {
		return nil, err
	}

	serviceCtx, cancel := context.WithTimeout(ctx, e.cfg.KeyServiceTimeout)
	defer cancel()
	key, err := e.masterKey.Unwrap(serviceCtx, row.WrappedDEK)
	if err != nil {
		return nil, keyServiceFailure(err)
	}
	if len(key) != cryptoDomain.KeySize {
		cryptoDomain.Zero(key)
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	return &userkeyDomain.DEK{
		UserID:    userID,
		Version:   row.Version,
		Algorithm: row.Algorithm,
		Key:       key,
	}, nil
}

func (e *encryptionUseCase) getActive(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.KeyStoreTimeout)
	defer cancel()

	key, err := e.userKeyRepo.GetActive(storeCtx, userID)
	if errors.Is(err, userkeyDomain.ErrUserKeyNotFound) {
		return nil, userkeyDomain.ErrNoKeyProvisioned
	}
	return key, err
}

// newWrappedKey draws a fresh DEK, wraps it and returns an unsaved active row.
// The plaintext DEK never leaves this function.
func (e *encryptionUseCase) newWrappedKey(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	dek := make([]byte, cryptoDomain.KeySize)
	defer cryptoDomain.Zero(dek)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("failed to generate dek: %w", err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, e.cfg.KeyServiceTimeout)
	defer cancel()
	wrapped, masterKeyID, err := e.masterKey.Wrap(serviceCtx, dek)
	if err != nil {
		return nil, keyServiceFailure(err)
	}

	return &userkeyDomain.UserEncryptionKey{
		ID:          uuid.Must(uuid.NewV7()),
		UserID:      userID,
		WrappedDEK:  wrapped,
		MasterKeyID: masterKeyID,
		Algorithm:   e.cfg.Algorithm,
		CreatedAt:   time.Now().UTC(),
		IsActive:    true,
	}, nil
}

// keyServiceFailure maps a MasterKeyClient error into the engine taxonomy. A missing
// or refused master key will not fix itself, so only the remaining failures are
// reported as ErrKeyServiceUnavailable.
func keyServiceFailure(err error) error {
	switch {
	case cryptoService.IsKeyServiceError(err, cryptoService.KeyServiceAccessDenied):
		return fmt.Errorf("%w: %w", userkeyDomain.ErrMasterKeyAccessDenied, err)
	case cryptoService.IsKeyServiceError(err, cryptoService.KeyServiceNotFound):
		return fmt.Errorf("%w: %w", userkeyDomain.ErrMasterKeyNotFound, err)
	default:
		return fmt.Errorf("%w: %w", userkeyDomain.ErrKeyServiceUnavailable, err)
	}
}

// integrityFailure logs and audits a rejected envelope and returns ErrIntegrity.
func (e *encryptionUseCase) integrityFailure(
	ctx context.Context,
	userID, fieldName string,
	version uint,
	reason string,
) error {
	e.logger.Error("field integrity check failed",
		slog.String("user_id", userID),
		slog.String("field", fieldName),
		slog.Uint64("key_version", uint64(version)),
		slog.String("reason", reason),
	)
	e.audit.emit(ctx, userID, userkeyDomain.AuditDecryptError, map[string]any{
		"field":       fieldName,
		"key_version": version,
		"reason":      reason,
	})
	return userkeyDomain.ErrIntegrity
}

// NewEncryptionUseCase creates the orchestrator. signer may be nil to store unsigned
// audit entries.
func NewEncryptionUseCase(
	userKeyRepo UserKeyRepository,
	auditRepo AuditRepository,
	masterKey cryptoService.MasterKeyClient,
	fieldCipher cryptoService.FieldCipher,
	dekCache DekCache,
	signer AuditSigner,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
	cfg Config,
) EncryptionUseCase {
	return &encryptionUseCase{
		userKeyRepo: userKeyRepo,
		masterKey:   masterKey,
		fieldCipher: fieldCipher,
		dekCache:    dekCache,
		audit:       newAuditEmitter(auditRepo, signer, logger, businessMetrics, cfg.KeyStoreTimeout),
		logger:      logger,
		cfg:         cfg,
	}
}
