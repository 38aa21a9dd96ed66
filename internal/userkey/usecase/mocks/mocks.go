// Package mocks provides mock implementations of the orchestrator's collaborators.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// MockUserKeyRepository is a mock implementation of UserKeyRepository.
type MockUserKeyRepository struct {
	mock.Mock
}

// Create mocks the Create method of UserKeyRepository.
func (m *MockUserKeyRepository) Create(ctx context.Context, key *userkeyDomain.UserEncryptionKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// GetActive mocks the GetActive method of UserKeyRepository.
func (m *MockUserKeyRepository) GetActive(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userkeyDomain.UserEncryptionKey), args.Error(1)
}

// GetByVersion mocks the GetByVersion method of UserKeyRepository.
func (m *MockUserKeyRepository) GetByVersion(
	ctx context.Context,
	userID string,
	version uint,
) (*userkeyDomain.UserEncryptionKey, error) {
	args := m.Called(ctx, userID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userkeyDomain.UserEncryptionKey), args.Error(1)
}

// Rotate mocks the Rotate method of UserKeyRepository.
func (m *MockUserKeyRepository) Rotate(
	ctx context.Context,
	userID string,
	newKey *userkeyDomain.UserEncryptionKey,
) (uint, error) {
	args := m.Called(ctx, userID, newKey)
	return args.Get(0).(uint), args.Error(1)
}

// Stats mocks the Stats method of UserKeyRepository.
func (m *MockUserKeyRepository) Stats(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	args := m.Called(ctx)
	return args.Get(0).(userkeyDomain.KeyCoverage), args.Error(1)
}

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	mock.Mock
}

// Create mocks the Create method of AuditRepository.
func (m *MockAuditRepository) Create(ctx context.Context, entry *userkeyDomain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// List mocks the List method of AuditRepository.
func (m *MockAuditRepository) List(ctx context.Context, offset, limit int) ([]*userkeyDomain.AuditEntry, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*userkeyDomain.AuditEntry), args.Error(1)
}

// MockMasterKeyClient is a mock implementation of MasterKeyClient.
type MockMasterKeyClient struct {
	mock.Mock
}

// Wrap mocks the Wrap method of MasterKeyClient.
func (m *MockMasterKeyClient) Wrap(ctx context.Context, plaintextKey []byte) ([]byte, string, error) {
	args := m.Called(ctx, plaintextKey)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

// Unwrap mocks the Unwrap method of MasterKeyClient.
func (m *MockMasterKeyClient) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	args := m.Called(ctx, wrapped)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Hand out a copy: the caller zeroes what it receives.
	key := args.Get(0).([]byte)
	return append([]byte(nil), key...), args.Error(1)
}

// MockAuditSigner is a mock implementation of AuditSigner.
type MockAuditSigner struct {
	mock.Mock
}

// Sign mocks the Sign method of AuditSigner.
func (m *MockAuditSigner) Sign(entry *userkeyDomain.AuditEntry) ([]byte, error) {
	args := m.Called(entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Verify mocks the Verify method of AuditSigner.
func (m *MockAuditSigner) Verify(entry *userkeyDomain.AuditEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}
