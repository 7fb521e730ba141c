package fx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// CachedProvider decorates another provider with a redis last-known-rate
// cache. Concurrent lookups for the same pair are collapsed through
// singleflight, and when FallbackLastKnown is set a provider outage is
// answered from the cache instead of failing the posting.
type CachedProvider struct {
	next              RateProvider
	client            *redis.Client
	ttl               time.Duration
	fallbackLastKnown bool
	logger            *slog.Logger
	group             singleflight.Group
}

// CachedProviderConfig groups constructor options.
type CachedProviderConfig struct {
	Next              RateProvider
	Client            *redis.Client
	TTL               time.Duration
	FallbackLastKnown bool
	Logger            *slog.Logger
}

func NewCachedProvider(cfg CachedProviderConfig) *CachedProvider {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{
		next:              cfg.Next,
		client:            cfg.Client,
		ttl:               ttl,
		fallbackLastKnown: cfg.FallbackLastKnown,
		logger:            logger,
	}
}

func (p *CachedProvider) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	key := rateKey(from, to)
	ch := p.group.DoChan(key, func() (any, error) {
		return p.lookup(context.WithoutCancel(ctx), key, from, to)
	})
	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

func (p *CachedProvider) lookup(ctx context.Context, key, from, to string) (decimal.Decimal, error) {
	if cached, err := p.client.Get(ctx, key).Result(); err == nil {
		if rate, perr := decimal.NewFromString(cached); perr == nil {
			return rate, nil
		}
	}
	rate, err := p.next.Rate(ctx, from, to)
	if err != nil {
		if p.fallbackLastKnown {
			if stale, serr := p.client.Get(ctx, lastKnownKey(from, to)).Result(); serr == nil {
				if fallback, perr := decimal.NewFromString(stale); perr == nil {
					p.logger.Warn("fx provider unavailable, using last known rate",
						slog.String("pair", from+"/"+to), slog.Any("error", err))
					return fallback, nil
				}
			}
		}
		return decimal.Zero, err
	}
	if err := p.client.Set(ctx, key, rate.String(), p.ttl).Err(); err != nil {
		p.logger.Warn("fx cache write failed", slog.Any("error", err))
	}
	// Last-known copy has no TTL so it survives provider outages.
	if err := p.client.Set(ctx, lastKnownKey(from, to), rate.String(), 0).Err(); err != nil {
		p.logger.Warn("fx last-known write failed", slog.Any("error", err))
	}
	return rate, nil
}

func rateKey(from, to string) string {
	return fmt.Sprintf("fx:rate:%s:%s", from, to)
}

func lastKnownKey(from, to string) string {
	return fmt.Sprintf("fx:last:%s:%s", from, to)
}
