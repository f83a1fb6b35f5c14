package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"
	binanceBaseURL   = "https://api.binance.com/api/v3"

	requestTimeout = 5 * time.Second
	maxAttempts    = 3
	retryBackoff   = 350 * time.Millisecond
)

// coinIDs maps a trading pair to its CoinGecko coin id. The map is also
// the universe the mock feed covers.
var coinIDs = map[string]string{
	"BTCUSDT":  "bitcoin",
	"ETHUSDT":  "ethereum",
	"BNBUSDT":  "binancecoin",
	"SOLUSDT":  "solana",
	"XRPUSDT":  "ripple",
	"ADAUSDT":  "cardano",
	"DOGEUSDT": "dogecoin",
	"DOTUSDT":  "polkadot",
	"AVAXUSDT": "avalanche-2",
	"LINKUSDT": "chainlink",
}

type Client struct {
	http          *http.Client
	coingeckoBase string
	binanceBase   string
}

func NewClient() *Client {
	return &Client{
		http:          &http.Client{Timeout: requestTimeout},
		coingeckoBase: coingeckoBaseURL,
		binanceBase:   binanceBaseURL,
	}
}

// getJSON fetches url into dst, retrying transient failures with a
// linear backoff.
func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt-1)):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("upstream returned %d for %s", resp.StatusCode, url)
			continue
		}
		err = json.NewDecoder(resp.Body).Decode(dst)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

type coingeckoQuote struct {
	USD       float64 `json:"usd"`
	Change24h float64 `json:"usd_24h_change"`
	Volume24h float64 `json:"usd_24h_vol"`
}

// FetchQuotes pulls the USD quotes for every tracked coin in one call.
func (c *Client) FetchQuotes(ctx context.Context) (map[string]coingeckoQuote, error) {
	ids := make([]string, 0, len(coinIDs))
	for _, id := range coinIDs {
		ids = append(ids, id)
	}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true&include_24hr_vol=true",
		c.coingeckoBase, strings.Join(ids, ","))
	quotes := make(map[string]coingeckoQuote)
	if err := c.getJSON(ctx, url, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// FetchSymbols returns every actively trading USDT pair on Binance.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	var info binanceExchangeInfo
	if err := c.getJSON(ctx, c.binanceBase+"/exchangeInfo", &info); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && s.QuoteAsset == "USDT" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}
