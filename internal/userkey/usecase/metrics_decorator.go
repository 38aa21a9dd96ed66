package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/allisson/fieldcrypt/internal/metrics"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

const metricsDomain = "userkey"

// encryptionUseCaseWithMetrics decorates EncryptionUseCase with metrics instrumentation.
type encryptionUseCaseWithMetrics struct {
	next    EncryptionUseCase
	metrics metrics.BusinessMetrics
}

// NewEncryptionUseCaseWithMetrics wraps an EncryptionUseCase with metrics recording.
func NewEncryptionUseCaseWithMetrics(useCase EncryptionUseCase, m metrics.BusinessMetrics) EncryptionUseCase {
	return &encryptionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// GenerateUserKey records metrics for key provisioning.
func (e *encryptionUseCaseWithMetrics) GenerateUserKey(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	start := time.Now()
	key, err := e.next.GenerateUserKey(ctx, userID)
	e.record(ctx, "key_generate", start, err)
	return key, err
}

// GetUserDEK records metrics for DEK retrieval.
func (e *encryptionUseCaseWithMetrics) GetUserDEK(ctx context.Context, userID string) (*userkeyDomain.DEK, error) {
	start := time.Now()
	dek, err := e.next.GetUserDEK(ctx, userID)
	e.record(ctx, "dek_get", start, err)
	return dek, err
}

// EncryptFields records metrics for record encryption.
func (e *encryptionUseCaseWithMetrics) EncryptFields(
	ctx context.Context,
	userID string,
	record userkeyDomain.Record,
	fieldNames []string,
) (userkeyDomain.Record, error) {
	start := time.Now()
	out, err := e.next.EncryptFields(ctx, userID, record, fieldNames)
	e.record(ctx, "fields_encrypt", start, err)
	return out, err
}

// DecryptFields records metrics for record decryption. Integrity failures get their
// own status so tampering shows up apart from outages.
func (e *encryptionUseCaseWithMetrics) DecryptFields(
	ctx context.Context,
	userID string,
	record userkeyDomain.Record,
	fieldNames []string,
) (userkeyDomain.Record, error) {
	start := time.Now()
	out, err := e.next.DecryptFields(ctx, userID, record, fieldNames)
	e.record(ctx, "fields_decrypt", start, err)
	return out, err
}

// RotateUserKey records metrics for key rotation.
func (e *encryptionUseCaseWithMetrics) RotateUserKey(ctx context.Context, userID string) (uint, error) {
	start := time.Now()
	version, err := e.next.RotateUserKey(ctx, userID)
	e.record(ctx, "key_rotate", start, err)
	return version, err
}

// ClearCache records metrics for cache invalidation.
func (e *encryptionUseCaseWithMetrics) ClearCache(ctx context.Context, userID string) error {
	start := time.Now()
	err := e.next.ClearCache(ctx, userID)
	e.record(ctx, "cache_clear", start, err)
	return err
}

// GetCacheStats is not instrumented.
func (e *encryptionUseCaseWithMetrics) GetCacheStats() userkeyDomain.CacheStats {
	return e.next.GetCacheStats()
}

// GetKeyCoverage records metrics for key coverage queries.
func (e *encryptionUseCaseWithMetrics) GetKeyCoverage(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	start := time.Now()
	coverage, err := e.next.GetKeyCoverage(ctx)
	e.record(ctx, "key_coverage", start, err)
	return coverage, err
}

func (e *encryptionUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, userkeyDomain.ErrIntegrity):
		status = metrics.StatusIntegrityError
	case err != nil:
		status = metrics.StatusError
	}

	e.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	e.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}
