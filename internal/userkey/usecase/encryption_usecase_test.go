package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	"github.com/allisson/fieldcrypt/internal/metrics"
	"github.com/allisson/fieldcrypt/internal/userkey/cache"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
	"github.com/allisson/fieldcrypt/internal/userkey/usecase/mocks"
)

var phiFields = []string{"name", "dob"}

func TestEncryptionUseCase_ProvisionEncryptDecrypt(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	key, err := engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), key.Version)
	assert.True(t, key.IsActive)
	assert.NotEmpty(t, key.MasterKeyID)

	original := userkeyDomain.Record{
		"name":    "José O'Brien",
		"dob":     "1980-01-15",
		"case_id": 4521,
	}
	snapshot := original.Clone()

	stored, err := engine.uc.EncryptFields(ctx, "u1", original, phiFields)
	require.NoError(t, err)

	assert.Equal(t, snapshot, original, "input record must not be mutated")
	assert.Equal(t, 4521, stored["case_id"])
	for _, field := range phiFields {
		envelope, ok := stored[field].(string)
		require.True(t, ok)
		assert.True(t, cryptoDomain.IsEnvelope(envelope))
		assert.NotContains(t, envelope, original[field])
	}

	decrypted, err := engine.uc.DecryptFields(ctx, "u1", stored, phiFields)
	require.NoError(t, err)
	assert.Equal(t, original, decrypted)

	assert.Equal(t, []userkeyDomain.AuditOperation{userkeyDomain.AuditGenerate}, engine.auditRepo.operations())
}

func TestEncryptionUseCase_TwoUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	for _, user := range []string{"u1", "u2"} {
		_, err := engine.uc.GenerateUserKey(ctx, user)
		require.NoError(t, err)
	}

	record := userkeyDomain.Record{"name": "José O'Brien"}
	sealed1, err := engine.uc.EncryptFields(ctx, "u1", record, []string{"name"})
	require.NoError(t, err)
	sealed2, err := engine.uc.EncryptFields(ctx, "u2", record, []string{"name"})
	require.NoError(t, err)
	assert.NotEqual(t, sealed1["name"], sealed2["name"])

	t.Run("Error_OtherUserCannotDecrypt", func(t *testing.T) {
		_, err := engine.uc.DecryptFields(ctx, "u2", sealed1, []string{"name"})
		assert.ErrorIs(t, err, userkeyDomain.ErrIntegrity)
	})

	t.Run("Error_OtherUsersKeyFailsEvenWithMatchingAAD", func(t *testing.T) {
		dek2, err := engine.uc.GetUserDEK(ctx, "u2")
		require.NoError(t, err)
		defer dek2.Zero()

		field, err := cryptoDomain.ParseEncryptedField(sealed1["name"].(string))
		require.NoError(t, err)

		cipher := cryptoService.NewFieldCipher(cryptoService.NewAEADManager())
		_, err = cipher.Decrypt(dek2.Key, field, cryptoService.FieldAAD("u1", "name"))
		assert.ErrorIs(t, err, cryptoDomain.ErrIntegrity)
	})

	t.Run("Error_FieldSwapDetected", func(t *testing.T) {
		swapped := userkeyDomain.Record{"nickname": sealed1["name"]}
		_, err := engine.uc.DecryptFields(ctx, "u1", swapped, []string{"nickname"})
		assert.ErrorIs(t, err, userkeyDomain.ErrIntegrity)
	})
}

func TestEncryptionUseCase_RoundTripValues(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	_, err := engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value any
	}{
		{"EmptyString", ""},
		{"Null", nil},
		{"Combining", "José Zoë 山田"},
		{"Emoji", "👩🏽‍⚕️ notes"},
		{"Large", strings.Repeat("x", 12*1024)},
		{"Bytes", []byte{0x00, 0xff, 0x10}},
		{"EmptyBytes", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := userkeyDomain.Record{"field": tt.value}
			sealed, err := engine.uc.EncryptFields(ctx, "u1", record, []string{"field"})
			require.NoError(t, err)

			opened, err := engine.uc.DecryptFields(ctx, "u1", sealed, []string{"field"})
			require.NoError(t, err)
			assert.Equal(t, tt.value, opened["field"])
		})
	}

	t.Run("NullDistinctFromEmptyString", func(t *testing.T) {
		sealed, err := engine.uc.EncryptFields(ctx, "u1",
			userkeyDomain.Record{"a": nil, "b": ""}, []string{"a", "b"})
		require.NoError(t, err)

		opened, err := engine.uc.DecryptFields(ctx, "u1", sealed, []string{"a", "b"})
		require.NoError(t, err)
		assert.Nil(t, opened["a"])
		assert.Equal(t, "", opened["b"])
	})

	t.Run("StringPointer", func(t *testing.T) {
		s := "pointer"
		sealed, err := engine.uc.EncryptFields(ctx, "u1", userkeyDomain.Record{"p": &s}, []string{"p"})
		require.NoError(t, err)

		opened, err := engine.uc.DecryptFields(ctx, "u1", sealed, []string{"p"})
		require.NoError(t, err)
		assert.Equal(t, "pointer", opened["p"])
	})

	t.Run("MissingFieldsSkipped", func(t *testing.T) {
		sealed, err := engine.uc.EncryptFields(ctx, "u1", userkeyDomain.Record{"a": "1"}, []string{"a", "absent"})
		require.NoError(t, err)
		assert.NotContains(t, sealed, "absent")
	})
}

func TestEncryptionUseCase_NonceUniqueness(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	_, err := engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for range 200 {
		sealed, err := engine.uc.EncryptFields(ctx, "u1", userkeyDomain.Record{"name": "same"}, []string{"name"})
		require.NoError(t, err)
		field, err := cryptoDomain.ParseEncryptedField(sealed["name"].(string))
		require.NoError(t, err)

		nonce := string(field.Nonce)
		assert.False(t, seen[nonce], "nonce reused")
		seen[nonce] = true
	}
}

func TestEncryptionUseCase_TamperDetection(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	_, err := engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)

	sealed, err := engine.uc.EncryptFields(ctx, "u1",
		userkeyDomain.Record{"name": "José O'Brien", "dob": "1980-01-15"}, phiFields)
	require.NoError(t, err)
	envelope := sealed["name"].(string)

	t.Run("Error_EveryBitFlip", func(t *testing.T) {
		raw := []byte(envelope)
		for i := range raw {
			for bit := range 8 {
				tampered := append([]byte(nil), raw...)
				tampered[i] ^= 1 << bit
				record := userkeyDomain.Record{"name": string(tampered)}

				out, err := engine.uc.DecryptFields(ctx, "u1", record, []string{"name"})
				require.ErrorIs(t, err, userkeyDomain.ErrIntegrity, "byte %d bit %d", i, bit)
				require.Nil(t, out)
			}
		}
	})

	t.Run("Error_AllOrNothing", func(t *testing.T) {
		record := sealed.Clone()
		record["dob"] = envelope[:len(envelope)-4] + "AAAA"

		out, err := engine.uc.DecryptFields(ctx, "u1", record, phiFields)
		assert.ErrorIs(t, err, userkeyDomain.ErrIntegrity)
		assert.Nil(t, out)
	})

	t.Run("Error_UnknownKeyVersion", func(t *testing.T) {
		record := userkeyDomain.Record{"name": strings.Replace(envelope, ":1:", ":9:", 1)}
		_, err := engine.uc.DecryptFields(ctx, "u1", record, []string{"name"})
		assert.ErrorIs(t, err, userkeyDomain.ErrIntegrity)
	})

	t.Run("Error_NotAnEnvelope", func(t *testing.T) {
		_, err := engine.uc.DecryptFields(ctx, "u1", userkeyDomain.Record{"name": "plain"}, []string{"name"})
		assert.ErrorIs(t, err, userkeyDomain.ErrIntegrity)

		_, err = engine.uc.DecryptFields(ctx, "u1", userkeyDomain.Record{"name": 42}, []string{"name"})
		assert.ErrorIs(t, err, userkeyDomain.ErrIntegrity)
	})

	t.Run("Success_FailuresAreAudited", func(t *testing.T) {
		auditRepo := &memoryAuditRepository{}
		uc := NewEncryptionUseCase(
			engine.repo, auditRepo, engine.masterKey,
			cryptoService.NewFieldCipher(cryptoService.NewAEADManager()),
			engine.cache, nil, metrics.NewNoOpBusinessMetrics(), discardLogger(), testConfig(),
		)

		record := userkeyDomain.Record{"name": strings.Replace(envelope, "enc:v1:aes-gcm:1:", "enc:v1:aes-gcm:1:A", 1)}
		_, err := uc.DecryptFields(ctx, "u1", record, []string{"name"})
		require.ErrorIs(t, err, userkeyDomain.ErrIntegrity)

		require.Len(t, auditRepo.entries, 1)
		entry := auditRepo.entries[0]
		assert.Equal(t, userkeyDomain.AuditDecryptError, entry.Operation)
		assert.Equal(t, "u1", entry.UserID)
		assert.Equal(t, "name", entry.Details["field"])
		assert.NotContains(t, fmt.Sprint(entry.Details), "José")
	})
}

func TestEncryptionUseCase_Rotation(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	_, err := engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)

	before, err := engine.uc.EncryptFields(ctx, "u1", userkeyDomain.Record{"name": "before"}, []string{"name"})
	require.NoError(t, err)
	dekV1, err := engine.uc.GetUserDEK(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint(1), dekV1.Version)

	version, err := engine.uc.RotateUserKey(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.Equal(t, 1, engine.repo.activeCount("u1"))

	dekV2, err := engine.uc.GetUserDEK(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint(2), dekV2.Version)
	assert.NotEqual(t, dekV1.Key, dekV2.Key)

	after, err := engine.uc.EncryptFields(ctx, "u1", userkeyDomain.Record{"name": "after"}, []string{"name"})
	require.NoError(t, err)
	assert.Contains(t, after["name"], ":2:")

	old, err := engine.uc.DecryptFields(ctx, "u1", before, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, "before", old["name"])

	current, err := engine.uc.DecryptFields(ctx, "u1", after, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, "after", current["name"])

	assert.Equal(t,
		[]userkeyDomain.AuditOperation{userkeyDomain.AuditGenerate, userkeyDomain.AuditRotate},
		engine.auditRepo.operations(),
	)
	assert.Equal(t, uint(1), engine.auditRepo.entries[1].Details["old_version"])

	coverage, err := engine.uc.GetKeyCoverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, userkeyDomain.KeyCoverage{UsersWithActiveKey: 1, RotatedKeys: 1}, coverage)
}

func TestEncryptionUseCase_IdempotentProvisioning(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_SecondCallAlreadyExists", func(t *testing.T) {
		engine := newTestEngine(t)
		_, err := engine.uc.GenerateUserKey(ctx, "u1")
		require.NoError(t, err)

		_, err = engine.uc.GenerateUserKey(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrAlreadyExists)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Equal(t, 1, engine.repo.activeCount("u1"))
		assert.Equal(t, int32(1), engine.masterKey.wraps.Load())
	})

	t.Run("Success_ConcurrentCallsProvisionOnce", func(t *testing.T) {
		engine := newTestEngine(t)
		const callers = 16

		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for range callers {
			wg.Go(func() {
				_, err := engine.uc.GenerateUserKey(ctx, "u1")
				errs <- err
			})
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, userkeyDomain.ErrAlreadyExists)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, engine.repo.activeCount("u1"))
	})
}

func TestEncryptionUseCase_SingleFlight(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	_, err := engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)

	engine.repo.getActiveCalls.Store(0)
	engine.repo.getActiveDelay = 50 * time.Millisecond

	const callers = 32
	var wg sync.WaitGroup
	for range callers {
		wg.Go(func() {
			dek, err := engine.uc.GetUserDEK(ctx, "u1")
			if assert.NoError(t, err) {
				dek.Zero()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), engine.repo.getActiveCalls.Load())
	assert.Equal(t, int32(1), engine.masterKey.unwraps.Load())
	assert.Equal(t, 1, engine.uc.GetCacheStats().ActiveCount)
}

func TestEncryptionUseCase_NoKeyProvisioned(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	_, err := engine.uc.EncryptFields(ctx, "ghost", userkeyDomain.Record{"name": "x"}, []string{"name"})
	assert.ErrorIs(t, err, userkeyDomain.ErrNoKeyProvisioned)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = engine.uc.RotateUserKey(ctx, "ghost")
	assert.ErrorIs(t, err, userkeyDomain.ErrNoKeyProvisioned)

	_, err = engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)
	sealed, err := engine.uc.EncryptFields(ctx, "u1", userkeyDomain.Record{"name": "x"}, []string{"name"})
	require.NoError(t, err)

	_, err = engine.uc.DecryptFields(ctx, "ghost", sealed, []string{"name"})
	assert.ErrorIs(t, err, userkeyDomain.ErrNoKeyProvisioned)
}

func TestEncryptionUseCase_InvalidInput(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	for _, userID := range []string{"", "bad\x00id", strings.Repeat("u", userkeyDomain.MaxUserIDLength+1)} {
		_, err := engine.uc.GenerateUserKey(ctx, userID)
		assert.ErrorIs(t, err, userkeyDomain.ErrInvalidUserID)
		_, err = engine.uc.DecryptFields(ctx, userID, userkeyDomain.Record{}, nil)
		assert.ErrorIs(t, err, userkeyDomain.ErrInvalidUserID)
	}

	_, err := engine.uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)

	record := userkeyDomain.Record{"name": "ok", "age": 42}
	out, err := engine.uc.EncryptFields(ctx, "u1", record, []string{"name", "age"})
	assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedFieldType)
	assert.Nil(t, out)
	assert.Equal(t, "ok", record["name"])
}

func TestEncryptionUseCase_ClearCache(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	for _, user := range []string{"u1", "u2"} {
		_, err := engine.uc.GenerateUserKey(ctx, user)
		require.NoError(t, err)
		dek, err := engine.uc.GetUserDEK(ctx, user)
		require.NoError(t, err)
		dek.Zero()
	}
	assert.Equal(t, 2, engine.uc.GetCacheStats().ActiveCount)

	actorCtx := userkeyDomain.WithActor(ctx, userkeyDomain.Actor{PerformedBy: "admin@example.com", SourceAddress: "10.0.0.7"})
	require.NoError(t, engine.uc.ClearCache(actorCtx, "u1"))
	assert.Equal(t, 1, engine.uc.GetCacheStats().ActiveCount)

	require.NoError(t, engine.uc.ClearCache(actorCtx, ""))
	assert.Equal(t, 0, engine.uc.GetCacheStats().ActiveCount)

	entries := engine.auditRepo.entries
	last := entries[len(entries)-1]
	assert.Equal(t, userkeyDomain.AuditCacheClear, last.Operation)
	assert.Equal(t, "all", last.Details["scope"])
	require.NotNil(t, last.PerformedBy)
	assert.Equal(t, "admin@example.com", *last.PerformedBy)
	require.NotNil(t, last.SourceAddress)
	assert.Equal(t, "10.0.0.7", *last.SourceAddress)

	assert.ErrorIs(t, engine.uc.ClearCache(ctx, "bad\x00id"), userkeyDomain.ErrInvalidUserID)
}

func TestEncryptionUseCase_Failures(t *testing.T) {
	ctx := context.Background()
	activeKey := &userkeyDomain.UserEncryptionKey{
		UserID:      "u1",
		WrappedDEK:  []byte("wrapped"),
		MasterKeyID: "mk",
		Algorithm:   cryptoDomain.AESGCM,
		Version:     1,
		IsActive:    true,
	}

	newUseCase := func(
		repo *mocks.MockUserKeyRepository,
		auditRepo AuditRepository,
		masterKey *mocks.MockMasterKeyClient,
		cfg Config,
	) EncryptionUseCase {
		return NewEncryptionUseCase(
			repo, auditRepo, masterKey,
			cryptoService.NewFieldCipher(cryptoService.NewAEADManager()),
			cache.NewDekCache(time.Hour), nil,
			metrics.NewNoOpBusinessMetrics(), discardLogger(), cfg,
		)
	}

	keyServiceKinds := []struct {
		name      string
		kind      cryptoService.KeyServiceErrorKind
		want      error
		category  error
		retryable bool
	}{
		{"unavailable", cryptoService.KeyServiceUnavailable, userkeyDomain.ErrKeyServiceUnavailable, apperrors.ErrUnavailable, true},
		{"access-denied", cryptoService.KeyServiceAccessDenied, userkeyDomain.ErrMasterKeyAccessDenied, apperrors.ErrForbidden, false},
		{"not-found", cryptoService.KeyServiceNotFound, userkeyDomain.ErrMasterKeyNotFound, apperrors.ErrNotFound, false},
	}

	for _, tt := range keyServiceKinds {
		t.Run("Error_UnwrapKind_"+tt.name, func(t *testing.T) {
			repo := &mocks.MockUserKeyRepository{}
			masterKey := &mocks.MockMasterKeyClient{}
			kmsErr := &cryptoService.KeyServiceError{Kind: tt.kind, Op: "unwrap"}

			repo.On("GetActive", mock.Anything, "u1").Return(activeKey, nil).Once()
			masterKey.On("Unwrap", mock.Anything, activeKey.WrappedDEK).Return(nil, kmsErr).Once()

			uc := newUseCase(repo, &memoryAuditRepository{}, masterKey, testConfig())
			_, err := uc.EncryptFields(ctx, "u1", userkeyDomain.Record{"name": "x"}, []string{"name"})

			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.category)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
			assert.True(t, cryptoService.IsKeyServiceError(err, tt.kind))
			assert.NotErrorIs(t, err, userkeyDomain.ErrNoKeyProvisioned)
			repo.AssertExpectations(t)
			masterKey.AssertExpectations(t)
		})

		t.Run("Error_WrapKind_"+tt.name, func(t *testing.T) {
			repo := &mocks.MockUserKeyRepository{}
			masterKey := &mocks.MockMasterKeyClient{}

			repo.On("GetActive", mock.Anything, "u1").Return(nil, userkeyDomain.ErrUserKeyNotFound).Once()
			masterKey.On("Wrap", mock.Anything, mock.Anything).
				Return(nil, "", &cryptoService.KeyServiceError{Kind: tt.kind, Op: "wrap"}).
				Once()

			uc := newUseCase(repo, &memoryAuditRepository{}, masterKey, testConfig())
			_, err := uc.GenerateUserKey(ctx, "u1")

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	t.Run("Error_UnclassifiedUnwrapErrorIsUnavailable", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		masterKey := &mocks.MockMasterKeyClient{}

		repo.On("GetActive", mock.Anything, "u1").Return(activeKey, nil).Once()
		masterKey.On("Unwrap", mock.Anything, activeKey.WrappedDEK).Return(nil, errors.New("connection reset")).Once()

		uc := newUseCase(repo, &memoryAuditRepository{}, masterKey, testConfig())
		_, err := uc.GetUserDEK(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrKeyServiceUnavailable)
	})

	t.Run("Error_CallerDeadlineOnColdFetch", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		masterKey := &mocks.MockMasterKeyClient{}
		release := make(chan struct{})
		defer close(release)

		repo.On("GetActive", mock.Anything, "u1").
			Run(func(mock.Arguments) { <-release }).
			Return(activeKey, nil).
			Maybe()
		masterKey.On("Unwrap", mock.Anything, activeKey.WrappedDEK).Return(make([]byte, 32), nil).Maybe()

		uc := newUseCase(repo, &memoryAuditRepository{}, masterKey, testConfig())
		callerCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := uc.GetUserDEK(callerCtx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrStoreUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("Error_FailedFetchIsRetriedOnNextCall", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		masterKey := &mocks.MockMasterKeyClient{}
		kmsErr := &cryptoService.KeyServiceError{Kind: cryptoService.KeyServiceUnavailable, Op: "unwrap"}

		repo.On("GetActive", mock.Anything, "u1").Return(activeKey, nil).Twice()
		masterKey.On("Unwrap", mock.Anything, activeKey.WrappedDEK).Return(nil, kmsErr).Once()
		masterKey.On("Unwrap", mock.Anything, activeKey.WrappedDEK).Return(make([]byte, 32), nil).Once()

		uc := newUseCase(repo, &memoryAuditRepository{}, masterKey, testConfig())
		_, err := uc.GetUserDEK(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrKeyServiceUnavailable)

		dek, err := uc.GetUserDEK(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, uint(1), dek.Version)
		masterKey.AssertExpectations(t)
	})

	t.Run("Error_StoreUnavailableIsNotNoKey", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		storeErr := fmt.Errorf("%w: connection refused", userkeyDomain.ErrStoreUnavailable)
		repo.On("GetActive", mock.Anything, "u1").Return(nil, storeErr).Once()

		uc := newUseCase(repo, &memoryAuditRepository{}, &mocks.MockMasterKeyClient{}, testConfig())
		_, err := uc.GetUserDEK(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, userkeyDomain.ErrNoKeyProvisioned)
	})

	t.Run("Error_StoreTimeoutBounded", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		cfg := testConfig()
		cfg.KeyStoreTimeout = 20 * time.Millisecond

		repo.On("GetActive", mock.Anything, "u1").
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, fmt.Errorf("%w: %w", userkeyDomain.ErrStoreUnavailable, context.DeadlineExceeded)).
			Once()

		uc := newUseCase(repo, &memoryAuditRepository{}, &mocks.MockMasterKeyClient{}, cfg)
		start := time.Now()
		_, err := uc.GetUserDEK(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrStoreUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("Error_WrapFailsNothingStored", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		masterKey := &mocks.MockMasterKeyClient{}
		auditRepo := &memoryAuditRepository{}

		repo.On("GetActive", mock.Anything, "u1").Return(nil, userkeyDomain.ErrUserKeyNotFound).Once()
		masterKey.On("Wrap", mock.Anything, mock.Anything).
			Return(nil, "", &cryptoService.KeyServiceError{Kind: cryptoService.KeyServiceUnavailable, Op: "wrap"}).
			Once()

		uc := newUseCase(repo, auditRepo, masterKey, testConfig())
		_, err := uc.GenerateUserKey(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrKeyServiceUnavailable)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		assert.Empty(t, auditRepo.entries)
	})

	t.Run("Success_AuditFailureDoesNotFailGenerate", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		masterKey := &mocks.MockMasterKeyClient{}
		auditRepo := &memoryAuditRepository{err: errors.New("audit table locked")}

		repo.On("GetActive", mock.Anything, "u1").Return(nil, userkeyDomain.ErrUserKeyNotFound).Once()
		masterKey.On("Wrap", mock.Anything, mock.Anything).Return([]byte("wrapped"), "mk", nil).Once()
		repo.On("Create", mock.Anything, mock.MatchedBy(func(key *userkeyDomain.UserEncryptionKey) bool {
			return key.UserID == "u1" && key.Version == 1 && key.IsActive && string(key.WrappedDEK) == "wrapped"
		})).Return(nil).Once()

		uc := newUseCase(repo, auditRepo, masterKey, testConfig())
		key, err := uc.GenerateUserKey(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "mk", key.MasterKeyID)
		repo.AssertExpectations(t)
	})

	t.Run("Error_RotateStoreFailureKeepsCache", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		masterKey := &mocks.MockMasterKeyClient{}
		storeErr := fmt.Errorf("%w: deadlock", userkeyDomain.ErrStoreUnavailable)

		repo.On("GetActive", mock.Anything, "u1").Return(activeKey, nil).Once()
		masterKey.On("Unwrap", mock.Anything, activeKey.WrappedDEK).Return(make([]byte, 32), nil).Once()
		masterKey.On("Wrap", mock.Anything, mock.Anything).Return([]byte("wrapped-2"), "mk", nil).Once()
		repo.On("Rotate", mock.Anything, "u1", mock.Anything).Return(uint(0), storeErr).Once()

		uc := newUseCase(repo, &memoryAuditRepository{}, masterKey, testConfig())
		_, err := uc.GetUserDEK(ctx, "u1")
		require.NoError(t, err)

		_, err = uc.RotateUserKey(ctx, "u1")
		assert.ErrorIs(t, err, userkeyDomain.ErrStoreUnavailable)
		assert.Equal(t, 1, uc.GetCacheStats().ActiveCount)
	})

	t.Run("Error_UnwrappedKeyWrongSize", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		masterKey := &mocks.MockMasterKeyClient{}

		repo.On("GetActive", mock.Anything, "u1").Return(activeKey, nil).Once()
		masterKey.On("Unwrap", mock.Anything, activeKey.WrappedDEK).Return([]byte("short"), nil).Once()

		uc := newUseCase(repo, &memoryAuditRepository{}, masterKey, testConfig())
		_, err := uc.GetUserDEK(ctx, "u1")
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})
}

func TestEncryptionUseCase_SignedAudit(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	signer := &mocks.MockAuditSigner{}
	signer.On("Sign", mock.AnythingOfType("*domain.AuditEntry")).Return([]byte("signature"), nil)

	uc := NewEncryptionUseCase(
		engine.repo, engine.auditRepo, engine.masterKey,
		cryptoService.NewFieldCipher(cryptoService.NewAEADManager()),
		engine.cache, signer, metrics.NewNoOpBusinessMetrics(), discardLogger(), testConfig(),
	)

	_, err := uc.GenerateUserKey(ctx, "u1")
	require.NoError(t, err)

	require.Len(t, engine.auditRepo.entries, 1)
	assert.Equal(t, []byte("signature"), engine.auditRepo.entries[0].Signature)
	signer.AssertExpectations(t)
}
