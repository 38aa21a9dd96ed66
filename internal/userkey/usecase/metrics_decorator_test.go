package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
	"github.com/allisson/fieldcrypt/internal/userkey/usecase/mocks"
)

func expectMetrics(m *mocks.MockBusinessMetrics, operation, status string) {
	m.On("RecordOperation", mock.Anything, "userkey", operation, status).Once()
	m.On("RecordDuration", mock.Anything, "userkey", operation, mock.AnythingOfType("time.Duration"), status).Once()
}

func TestEncryptionUseCaseWithMetrics(t *testing.T) {
	ctx := context.Background()
	record := userkeyDomain.Record{"name": "x"}
	fields := []string{"name"}

	t.Run("Success_GenerateUserKey", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		key := &userkeyDomain.UserEncryptionKey{UserID: "u1", Version: 1}
		next.On("GenerateUserKey", ctx, "u1").Return(key, nil).Once()
		expectMetrics(m, "key_generate", "success")

		got, err := NewEncryptionUseCaseWithMetrics(next, m).GenerateUserKey(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, key, got)
		next.AssertExpectations(t)
		m.AssertExpectations(t)
	})

	t.Run("Error_GetUserDEK", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		next.On("GetUserDEK", ctx, "u1").Return(nil, userkeyDomain.ErrKeyServiceUnavailable).Once()
		expectMetrics(m, "dek_get", "error")

		_, err := NewEncryptionUseCaseWithMetrics(next, m).GetUserDEK(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrKeyServiceUnavailable)
		m.AssertExpectations(t)
	})

	t.Run("Success_EncryptFields", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		sealed := userkeyDomain.Record{"name": "enc:v1:aes-gcm:1:AAAA"}
		next.On("EncryptFields", ctx, "u1", record, fields).Return(sealed, nil).Once()
		expectMetrics(m, "fields_encrypt", "success")

		got, err := NewEncryptionUseCaseWithMetrics(next, m).EncryptFields(ctx, "u1", record, fields)
		require.NoError(t, err)
		assert.Equal(t, sealed, got)
		m.AssertExpectations(t)
	})

	t.Run("Error_DecryptFieldsIntegrity", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		next.On("DecryptFields", ctx, "u1", record, fields).Return(nil, userkeyDomain.ErrIntegrity).Once()
		expectMetrics(m, "fields_decrypt", "integrity_error")

		_, err := NewEncryptionUseCaseWithMetrics(next, m).DecryptFields(ctx, "u1", record, fields)
		assert.ErrorIs(t, err, userkeyDomain.ErrIntegrity)
		m.AssertExpectations(t)
	})

	t.Run("Success_RotateUserKey", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		next.On("RotateUserKey", ctx, "u1").Return(uint(3), nil).Once()
		expectMetrics(m, "key_rotate", "success")

		version, err := NewEncryptionUseCaseWithMetrics(next, m).RotateUserKey(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, uint(3), version)
		m.AssertExpectations(t)
	})

	t.Run("Error_ClearCache", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		next.On("ClearCache", ctx, "bad").Return(userkeyDomain.ErrInvalidUserID).Once()
		expectMetrics(m, "cache_clear", "error")

		err := NewEncryptionUseCaseWithMetrics(next, m).ClearCache(ctx, "bad")
		assert.ErrorIs(t, err, userkeyDomain.ErrInvalidUserID)
		m.AssertExpectations(t)
	})

	t.Run("Success_GetKeyCoverage", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		coverage := userkeyDomain.KeyCoverage{UsersWithActiveKey: 4, RotatedKeys: 2}
		next.On("GetKeyCoverage", ctx).Return(coverage, nil).Once()
		expectMetrics(m, "key_coverage", "success")

		got, err := NewEncryptionUseCaseWithMetrics(next, m).GetKeyCoverage(ctx)
		require.NoError(t, err)
		assert.Equal(t, coverage, got)
		m.AssertExpectations(t)
	})

	t.Run("Success_GetCacheStatsNotInstrumented", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		stats := userkeyDomain.CacheStats{ActiveCount: 7}
		next.On("GetCacheStats").Return(stats).Once()

		assert.Equal(t, stats, NewEncryptionUseCaseWithMetrics(next, m).GetCacheStats())
		m.AssertNotCalled(t, "RecordOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error_WrappedErrorsKeepStatus", func(t *testing.T) {
		next := &mocks.MockEncryptionUseCase{}
		m := &mocks.MockBusinessMetrics{}
		wrapped := errors.Join(errors.New("field \"dob\""), userkeyDomain.ErrIntegrity)
		next.On("DecryptFields", ctx, "u1", record, fields).Return(nil, wrapped).Once()
		expectMetrics(m, "fields_decrypt", "integrity_error")

		_, err := NewEncryptionUseCaseWithMetrics(next, m).DecryptFields(ctx, "u1", record, fields)
		assert.Error(t, err)
		m.AssertExpectations(t)
	})
}
