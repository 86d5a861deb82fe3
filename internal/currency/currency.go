// Package currency converts USD prices into display currencies using ECB
// reference rates from the Frankfurter API (no API key required).
//
// Rates are cached in the Converter and refreshed at most once per TTL.
// The Converter is an explicit component owned by the composition root and
// passed by reference to consumers; there is no package-level state.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dealsbot/pkg/logx"
)

const DefaultBaseURL = "https://api.frankfurter.dev/v1"

var symbols = map[string]string{
	"USD": "$",
	"CAD": "C$",
	"EUR": "€",
	"GBP": "£",
}

type Converter struct {
	baseURL string
	targets []string
	ttl     time.Duration
	http    *http.Client
	log     logx.Logger

	mu      sync.RWMutex
	rates   map[string]float64 // currency -> units per USD
	fetched time.Time
}

func New(targets []string, ttl time.Duration, client *http.Client, log logx.Logger) *Converter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Converter{
		baseURL: DefaultBaseURL,
		targets: append([]string(nil), targets...),
		ttl:     ttl,
		http:    client,
		log:     log,
	}
}

// SetBaseURL overrides the Frankfurter endpoint (tests).
func (c *Converter) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// IsStale reports whether the cached rates are missing or older than the TTL.
func (c *Converter) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rates) == 0 || time.Since(c.fetched) > c.ttl
}

// Refresh fetches the latest USD-based rates. Returns true when the cache
// was updated. Failure leaves any previous rates in place.
func (c *Converter) Refresh(ctx context.Context) bool {
	var rates map[string]float64

	op := func() error {
		r, err := c.fetchRates(ctx)
		if err != nil {
			return err
		}
		rates = r
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 20 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		c.log.Warn("exchange rate refresh failed", logx.Err(err))
		return false
	}

	c.mu.Lock()
	c.rates = rates
	c.fetched = time.Now()
	c.mu.Unlock()
	c.log.Info("exchange rates updated", logx.Any("rates", rates))
	return true
}

// EnsureFresh refreshes only when the cache is stale, so callers can invoke
// it before every formatting pass without hammering the API.
func (c *Converter) EnsureFresh(ctx context.Context) {
	if c.IsStale() {
		c.Refresh(ctx)
	}
}

func (c *Converter) fetchRates(ctx context.Context) (map[string]float64, error) {
	q := url.Values{}
	q.Set("base", "USD")
	q.Set("symbols", strings.Join(c.targets, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("frankfurter: http %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("frankfurter: empty rates")
	}
	return body.Rates, nil
}

// Format returns a pre-joined multi-currency display string, e.g.
// "$14.99 · C$20.54 · €13.78 · £11.98". Currencies without a cached rate
// are skipped, degrading to USD-only when no rates are available.
func (c *Converter) Format(usd float64) string {
	parts := []string{fmt.Sprintf("$%.2f", usd)}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cur := range c.targets {
		rate, ok := c.rates[cur]
		if !ok {
			continue
		}
		sym, ok := symbols[cur]
		if !ok {
			sym = cur
		}
		parts = append(parts, fmt.Sprintf("%s%.2f", sym, usd*rate))
	}
	return strings.Join(parts, " · ")
}

// ToUSD converts an amount in the given currency to USD. Unknown currencies
// fall back to the source amount unchanged, keeping cross-region price
// filtering best-effort.
func (c *Converter) ToUSD(amount float64, cur string) float64 {
	if cur == "" || cur == "USD" {
		return amount
	}
	c.mu.RLock()
	rate, ok := c.rates[cur]
	c.mu.RUnlock()
	if !ok || rate == 0 {
		return amount
	}
	return amount / rate
}
