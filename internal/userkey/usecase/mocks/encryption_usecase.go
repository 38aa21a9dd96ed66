package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// MockEncryptionUseCase is a mock implementation of EncryptionUseCase.
type MockEncryptionUseCase struct {
	mock.Mock
}

// GenerateUserKey mocks the GenerateUserKey method of EncryptionUseCase.
func (m *MockEncryptionUseCase) GenerateUserKey(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userkeyDomain.UserEncryptionKey), args.Error(1)
}

// GetUserDEK mocks the GetUserDEK method of EncryptionUseCase.
func (m *MockEncryptionUseCase) GetUserDEK(ctx context.Context, userID string) (*userkeyDomain.DEK, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userkeyDomain.DEK), args.Error(1)
}

// EncryptFields mocks the EncryptFields method of EncryptionUseCase.
func (m *MockEncryptionUseCase) EncryptFields(
	ctx context.Context,
	userID string,
	record userkeyDomain.Record,
	fieldNames []string,
) (userkeyDomain.Record, error) {
	args := m.Called(ctx, userID, record, fieldNames)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(userkeyDomain.Record), args.Error(1)
}

// DecryptFields mocks the DecryptFields method of EncryptionUseCase.
func (m *MockEncryptionUseCase) DecryptFields(
	ctx context.Context,
	userID string,
	record userkeyDomain.Record,
	fieldNames []string,
) (userkeyDomain.Record, error) {
	args := m.Called(ctx, userID, record, fieldNames)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(userkeyDomain.Record), args.Error(1)
}

// RotateUserKey mocks the RotateUserKey method of EncryptionUseCase.
func (m *MockEncryptionUseCase) RotateUserKey(ctx context.Context, userID string) (uint, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(uint), args.Error(1)
}

// ClearCache mocks the ClearCache method of EncryptionUseCase.
func (m *MockEncryptionUseCase) ClearCache(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// GetCacheStats mocks the GetCacheStats method of EncryptionUseCase.
func (m *MockEncryptionUseCase) GetCacheStats() userkeyDomain.CacheStats {
	args := m.Called()
	return args.Get(0).(userkeyDomain.CacheStats)
}

// GetKeyCoverage mocks the GetKeyCoverage method of EncryptionUseCase.
func (m *MockEncryptionUseCase) GetKeyCoverage(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	args := m.Called(ctx)
	return args.Get(0).(userkeyDomain.KeyCoverage), args.Error(1)
}

// MockBusinessMetrics is a mock implementation of metrics.BusinessMetrics.
type MockBusinessMetrics struct {
	mock.Mock
}

// RecordOperation mocks the RecordOperation method of BusinessMetrics.
func (m *MockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

// RecordDuration mocks the RecordDuration method of BusinessMetrics.
func (m *MockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}
