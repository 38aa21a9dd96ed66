package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"
	_ "gocloud.dev/secrets/localsecrets"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
	"github.com/allisson/fieldcrypt/internal/metrics"
	"github.com/allisson/fieldcrypt/internal/userkey/cache"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// memoryUserKeyRepository is an in-memory UserKeyRepository with the same active-row
// rules as the SQL repositories.
type memoryUserKeyRepository struct {
	mu             sync.Mutex
	rows           map[string][]userkeyDomain.UserEncryptionKey
	getActiveDelay time.Duration
	getActiveCalls atomic.Int32
}

func newMemoryUserKeyRepository() *memoryUserKeyRepository {
	return &memoryUserKeyRepository{rows: make(map[string][]userkeyDomain.UserEncryptionKey)}
}

func (r *memoryUserKeyRepository) Create(ctx context.Context, key *userkeyDomain.UserEncryptionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows[key.UserID] {
		if row.IsActive {
			return userkeyDomain.ErrUserKeyAlreadyExists
		}
	}
	r.rows[key.UserID] = append(r.rows[key.UserID], *key)
	return nil
}

func (r *memoryUserKeyRepository) GetActive(
	ctx context.Context,
	userID string,
) (*userkeyDomain.UserEncryptionKey, error) {
	r.getActiveCalls.Add(1)
	if r.getActiveDelay > 0 {
		time.Sleep(r.getActiveDelay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows[userID] {
		if row.IsActive {
			return &row, nil
		}
	}
	return nil, userkeyDomain.ErrUserKeyNotFound
}

func (r *memoryUserKeyRepository) GetByVersion(
	ctx context.Context,
	userID string,
	version uint,
) (*userkeyDomain.UserEncryptionKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows[userID] {
		if row.Version == version {
			return &row, nil
		}
	}
	return nil, userkeyDomain.ErrUserKeyNotFound
}

func (r *memoryUserKeyRepository) Rotate(
	ctx context.Context,
	userID string,
	newKey *userkeyDomain.UserEncryptionKey,
) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.rows[userID]
	for i := range rows {
		if !rows[i].IsActive {
			continue
		}
		now := time.Now().UTC()
		rows[i].IsActive = false
		rows[i].RotatedAt = &now

		newKey.UserID = userID
		newKey.Version = rows[i].Version + 1
		newKey.IsActive = true
		r.rows[userID] = append(rows, *newKey)
		return newKey.Version, nil
	}
	return 0, userkeyDomain.ErrUserKeyNotFound
}

func (r *memoryUserKeyRepository) Stats(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var coverage userkeyDomain.KeyCoverage
	for _, rows := range r.rows {
		for _, row := range rows {
			if row.IsActive {
				coverage.UsersWithActiveKey++
			} else {
				coverage.RotatedKeys++
			}
		}
	}
	return coverage, nil
}

func (r *memoryUserKeyRepository) activeCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows[userID] {
		if row.IsActive {
			n++
		}
	}
	return n
}

type memoryAuditRepository struct {
	mu      sync.Mutex
	entries []*userkeyDomain.AuditEntry
	err     error
}

func (r *memoryAuditRepository) Create(ctx context.Context, entry *userkeyDomain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryAuditRepository) List(ctx context.Context, offset, limit int) ([]*userkeyDomain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.entries) {
		return []*userkeyDomain.AuditEntry{}, nil
	}
	end := min(offset+limit, len(r.entries))
	return append([]*userkeyDomain.AuditEntry(nil), r.entries[offset:end]...), nil
}

func (r *memoryAuditRepository) operations() []userkeyDomain.AuditOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]userkeyDomain.AuditOperation, 0, len(r.entries))
	for _, e := range r.entries {
		ops = append(ops, e.Operation)
	}
	return ops
}

// countingMasterKey counts calls made to a real MasterKeyClient.
type countingMasterKey struct {
	next    cryptoService.MasterKeyClient
	wraps   atomic.Int32
	unwraps atomic.Int32
}

func (c *countingMasterKey) Wrap(ctx context.Context, plaintextKey []byte) ([]byte, string, error) {
	c.wraps.Add(1)
	return c.next.Wrap(ctx, plaintextKey)
}

func (c *countingMasterKey) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	c.unwraps.Add(1)
	return c.next.Unwrap(ctx, wrapped)
}

// newLocalMasterKey opens a base64key:// keeper with a random key.
func newLocalMasterKey(t *testing.T) *countingMasterKey {
	t.Helper()

	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	uri := "base64key://" + base64.URLEncoding.EncodeToString(secret)

	keeper, err := secrets.OpenKeeper(context.Background(), uri)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = keeper.Close()
	})

	return &countingMasterKey{next: cryptoService.NewKeeperClient(keeper, cryptoService.KeeperKeyID(uri))}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Algorithm:         cryptoDomain.AESGCM,
		KeyServiceTimeout: time.Second,
		KeyStoreTimeout:   time.Second,
	}
}

type testEngine struct {
	uc        EncryptionUseCase
	repo      *memoryUserKeyRepository
	auditRepo *memoryAuditRepository
	masterKey *countingMasterKey
	cache     *cache.DekCache
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	e := &testEngine{
		repo:      newMemoryUserKeyRepository(),
		auditRepo: &memoryAuditRepository{},
		masterKey: newLocalMasterKey(t),
		cache:     cache.NewDekCache(time.Hour),
	}
	e.uc = NewEncryptionUseCase(
		e.repo,
		e.auditRepo,
		e.masterKey,
		cryptoService.NewFieldCipher(cryptoService.NewAEADManager()),
		e.cache,
		nil,
		metrics.NewNoOpBusinessMetrics(),
		discardLogger(),
		testConfig(),
	)
	return e
}
