package service

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient decorates a MasterKeyClient with a token bucket so bursts of
// cache misses stay inside the KMS request quota.
type RateLimitedClient struct {
	next    MasterKeyClient
	limiter *rate.Limiter
}

// NewRateLimitedClient allows perSecond calls with the given burst.
func NewRateLimitedClient(next MasterKeyClient, perSecond float64, burst int) *RateLimitedClient {
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Wrap waits for a token and delegates.
func (c *RateLimitedClient) Wrap(ctx context.Context, plaintextKey []byte) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", newKeyServiceError("wrap", KeyServiceUnavailable, err)
	}
	return c.next.Wrap(ctx, plaintextKey)
}

// Unwrap waits for a token and delegates.
func (c *RateLimitedClient) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newKeyServiceError("unwrap", KeyServiceUnavailable, err)
	}
	return c.next.Unwrap(ctx, wrapped)
}
