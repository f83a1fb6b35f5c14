// Package marketdata feeds the venue with reference prices. Live quotes
// come from CoinGecko and the tradable symbol list from Binance, both
// behind a TTL cache; when the upstreams are down a deterministic mock
// feed keeps the venue usable.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	tickerCacheKey = "md:tickers"
	tickerCacheTTL = 30 * time.Second
	symbolCacheKey = "md:symbols"
	symbolCacheTTL = 6 * time.Hour
	symbolStaleKey = "md:symbols:stale"
	symbolStaleTTL = 7 * 24 * time.Hour
)

type Ticker struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24hPct"`
	Volume24h decimal.Decimal `json:"volume24h"`
	Source    string          `json:"source"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type upstream interface {
	FetchQuotes(ctx context.Context) (map[string]coingeckoQuote, error)
	FetchSymbols(ctx context.Context) ([]string, error)
}

type Service struct {
	feed  upstream
	cache Cache
	log   *logrus.Logger
}

func NewService(feed *Client, cache Cache, log *logrus.Logger) *Service {
	return &Service{feed: feed, cache: cache, log: log}
}

// Tickers returns the current quote set, served from cache inside the
// TTL. An upstream failure falls back to the mock feed without caching
// it, so the next call probes the upstream again.
func (s *Service) Tickers(ctx context.Context) ([]Ticker, error) {
	if raw, ok, err := s.cache.Get(ctx, tickerCacheKey); err == nil && ok {
		var tickers []Ticker
		if err := json.Unmarshal(raw, &tickers); err == nil {
			return tickers, nil
		}
	}

	quotes, err := s.feed.FetchQuotes(ctx)
	if err != nil {
		s.log.WithError(err).Warn("quote feed unavailable, serving mock tickers")
		return MockTickers(time.Now().UTC()), nil
	}

	now := time.Now().UTC()
	tickers := make([]Ticker, 0, len(coinIDs))
	for symbol, id := range coinIDs {
		q, ok := quotes[id]
		if !ok || q.USD <= 0 {
			continue
		}
		tickers = append(tickers, Ticker{
			Symbol:    symbol,
			Price:     decimal.NewFromFloat(q.USD),
			Change24h: decimal.NewFromFloat(q.Change24h).Round(4),
			Volume24h: decimal.NewFromFloat(q.Volume24h).Round(2),
			Source:    "live",
			UpdatedAt: now,
		})
	}
	if len(tickers) == 0 {
		return MockTickers(now), nil
	}

	if raw, err := json.Marshal(tickers); err == nil {
		if err := s.cache.Set(ctx, tickerCacheKey, raw, tickerCacheTTL); err != nil {
			s.log.WithError(err).Warn("failed to cache tickers")
		}
	}
	return tickers, nil
}

// LastPrice satisfies the price source contract of the trading engines.
// Mock quotes keep the markets page alive during an outage but must never
// price a settlement, so anything not sourced live is refused here.
func (s *Service) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	tickers, err := s.Tickers(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	for _, t := range tickers {
		if t.Symbol == symbol {
			if t.Source != "live" {
				return decimal.Decimal{}, fmt.Errorf("no live quote for %s", symbol)
			}
			return t.Price, nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("no quote for %s", symbol)
}

// Symbols returns the tradable pair list. A fresh fetch also refreshes a
// long-lived stale copy that is served when the upstream is down.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	if raw, ok, err := s.cache.Get(ctx, symbolCacheKey); err == nil && ok {
		var symbols []string
		if err := json.Unmarshal(raw, &symbols); err == nil {
			return symbols, nil
		}
	}

	symbols, err := s.feed.FetchSymbols(ctx)
	if err != nil {
		s.log.WithError(err).Warn("symbol feed unavailable")
		if raw, ok, cacheErr := s.cache.Get(ctx, symbolStaleKey); cacheErr == nil && ok {
			var stale []string
			if err := json.Unmarshal(raw, &stale); err == nil {
				return stale, nil
			}
		}
		return trackedSymbols(), nil
	}

	if raw, err := json.Marshal(symbols); err == nil {
		if err := s.cache.Set(ctx, symbolCacheKey, raw, symbolCacheTTL); err != nil {
			s.log.WithError(err).Warn("failed to cache symbols")
		}
		if err := s.cache.Set(ctx, symbolStaleKey, raw, symbolStaleTTL); err != nil {
			s.log.WithError(err).Warn("failed to cache stale symbols")
		}
	}
	return symbols, nil
}

// IsAllowed satisfies the symbol list contract of the trading engines.
func (s *Service) IsAllowed(ctx context.Context, symbol string) (bool, error) {
	symbols, err := s.Symbols(ctx)
	if err != nil {
		return false, err
	}
	for _, candidate := range symbols {
		if candidate == symbol {
			return true, nil
		}
	}
	return false, nil
}

func trackedSymbols() []string {
	symbols := make([]string, 0, len(coinIDs))
	for symbol := range coinIDs {
		symbols = append(symbols, symbol)
	}
	return symbols
}
