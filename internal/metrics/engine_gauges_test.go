package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

type fakeEngineStats struct {
	cache       userkeyDomain.CacheStats
	coverage    userkeyDomain.KeyCoverage
	coverageErr error
}

func (f *fakeEngineStats) GetCacheStats() userkeyDomain.CacheStats {
	return f.cache
}

func (f *fakeEngineStats) GetKeyCoverage(ctx context.Context) (userkeyDomain.KeyCoverage, error) {
	return f.coverage, f.coverageErr
}

func TestRegisterEngineGauges(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Success_ObservesCacheAndCoverage", func(t *testing.T) {
		provider, err := NewProvider("gauges")
		require.NoError(t, err)

		stats := &fakeEngineStats{
			cache:    userkeyDomain.CacheStats{ActiveCount: 3, OldestAge: 90 * time.Second},
			coverage: userkeyDomain.KeyCoverage{UsersWithActiveKey: 12, RotatedKeys: 4},
		}
		reg, err := RegisterEngineGauges(provider.MeterProvider(), "gauges", stats, logger)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, reg.Unregister())
		}()

		output := scrape(t, provider)
		assertBizMetricLine(t, output, `gauges_dek_cache_entries`, ``, `3`)
		assertBizMetricLine(t, output, `gauges_dek_cache_oldest_age_seconds`, ``, `90`)
		assertBizMetricLine(t, output, `gauges_users_with_active_key`, ``, `12`)
		assertBizMetricLine(t, output, `gauges_rotated_keys`, ``, `4`)

		stats.cache.ActiveCount = 0
		output = scrape(t, provider)
		assertBizMetricLine(t, output, `gauges_dek_cache_entries`, ``, `0`)
	})

	t.Run("Success_CoverageFailureKeepsCacheGauges", func(t *testing.T) {
		provider, err := NewProvider("gauges")
		require.NoError(t, err)

		stats := &fakeEngineStats{
			cache:       userkeyDomain.CacheStats{ActiveCount: 1},
			coverageErr: errors.New("store down"),
		}
		_, err = RegisterEngineGauges(provider.MeterProvider(), "gauges", stats, logger)
		require.NoError(t, err)

		output := scrape(t, provider)
		assertBizMetricLine(t, output, `gauges_dek_cache_entries`, ``, `1`)
		assert.NotContains(t, output, "gauges_users_with_active_key{")
	})
}
