// Package fx supplies currency conversion rates to the posting engine.
package fx

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/shared"
)

// RateProvider resolves a conversion rate between two ISO currency codes.
// Posting multiplies amounts by the returned rate, so Rate("USD","EUR")
// answers "how many EUR is one USD".
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// StaticProvider serves rates from a fixed table, typically seeded from
// configuration. Same-currency lookups always return 1.
type StaticProvider struct {
	rates map[string]decimal.Decimal
}

func NewStaticProvider(rates map[string]decimal.Decimal) *StaticProvider {
	table := make(map[string]decimal.Decimal, len(rates))
	for pair, rate := range rates {
		table[strings.ToUpper(pair)] = rate
	}
	return &StaticProvider{rates: table}
}

func (p *StaticProvider) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := p.rates[pairKey(from, to)]; ok {
		return rate, nil
	}
	// Derive the inverse when only the opposite direction is configured.
	if rate, ok := p.rates[pairKey(to, from)]; ok && !rate.IsZero() {
		return decimal.NewFromInt(1).DivRound(rate, 10), nil
	}
	return decimal.Zero, fmt.Errorf("%w: no rate for %s/%s", shared.ErrRateUnavailable, from, to)
}

// ParseRates parses "USD/EUR=0.92,EUR/GBP=0.85" style configuration values.
func ParseRates(raw string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	if strings.TrimSpace(raw) == "" {
		return rates, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("fx: malformed rate entry %q", part)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("fx: malformed rate value %q: %w", value, err)
		}
		from, to, found := strings.Cut(strings.TrimSpace(pair), "/")
		if !found || len(from) != 3 || len(to) != 3 {
			return nil, fmt.Errorf("fx: malformed currency pair %q", pair)
		}
		rates[pairKey(strings.ToUpper(from), strings.ToUpper(to))] = rate
	}
	return rates, nil
}

func pairKey(from, to string) string {
	return from + "/" + to
}
