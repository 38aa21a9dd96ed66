package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// EngineStats is the read side of the encryption engine sampled on every scrape.
type EngineStats interface {
	GetCacheStats() userkeyDomain.CacheStats
	GetKeyCoverage(ctx context.Context) (userkeyDomain.KeyCoverage, error)
}

// RegisterEngineGauges exports DEK cache occupancy and key coverage as observable
// gauges. Coverage is read from the key store at scrape time; a failed read skips the
// coverage gauges for that scrape and is logged.
func RegisterEngineGauges(
	meterProvider metric.MeterProvider,
	namespace string,
	stats EngineStats,
	logger *slog.Logger,
) (metric.Registration, error) {
	meter := meterProvider.Meter(namespace)

	cachedKeys, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_dek_cache_entries", namespace),
		metric.WithDescription("Number of unwrapped DEKs held in the cache"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache entries gauge: %w", err)
	}

	oldestAge, err := meter.Float64ObservableGauge(
		fmt.Sprintf("%s_dek_cache_oldest_age_seconds", namespace),
		metric.WithDescription("Age of the oldest cached DEK in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache age gauge: %w", err)
	}

	activeKeys, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_users_with_active_key", namespace),
		metric.WithDescription("Number of users with an active encryption key"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active keys gauge: %w", err)
	}

	rotatedKeys, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_rotated_keys", namespace),
		metric.WithDescription("Number of retained inactive key versions"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rotated keys gauge: %w", err)
	}

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		cacheStats := stats.GetCacheStats()
		o.ObserveInt64(cachedKeys, int64(cacheStats.ActiveCount))
		o.ObserveFloat64(oldestAge, cacheStats.OldestAge.Seconds())

		coverage, err := stats.GetKeyCoverage(ctx)
		if err != nil {
			logger.Warn("failed to read key coverage", slog.Any("error", err))
			return nil
		}
		o.ObserveInt64(activeKeys, coverage.UsersWithActiveKey)
		o.ObserveInt64(rotatedKeys, coverage.RotatedKeys)
		return nil
	}, cachedKeys, oldestAge, activeKeys, rotatedKeys)
}
