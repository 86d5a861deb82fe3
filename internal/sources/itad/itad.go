// Package itad talks to the IsThereAnyDeal API: a cross-region deals list
// and the historical-low price classifier.
package itad

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"dealsbot/internal/deal"
	"dealsbot/pkg/logx"
)

const DefaultBaseURL = "https://api.isthereanydeal.com"

// USDConverter normalizes regional prices so filters compare like with like.
type USDConverter interface {
	ToUSD(amount float64, currency string) float64
}

// Filters for the deals list; discounts below MinDiscountPercent and prices
// above MaxPriceUSD are dropped.
type Filters struct {
	MaxPriceUSD        float64
	MinDiscountPercent float64
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	conv    USDConverter
	log     logx.Logger
}

func New(apiKey string, client *http.Client, conv USDConverter, log logx.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{baseURL: DefaultBaseURL, apiKey: apiKey, http: client, conv: conv, log: log}
}

func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return strings.TrimSpace(c.apiKey) != "" }

// FetchDeals fetches current deals across the given countries. Duplicate
// game+shop pairs are merged with the first-listed country taking priority,
// and the merged list is sorted newest-first by deal timestamp (the API
// itself only sorts by discount or price).
func (c *Client) FetchDeals(ctx context.Context, countries []string, f Filters, limit int) []deal.Candidate {
	if !c.Enabled() {
		return nil
	}
	if len(countries) == 0 {
		countries = []string{"US"}
	}

	seen := make(map[string]struct{})
	var all []timedCandidate
	for _, country := range countries {
		for _, tc := range c.fetchCountry(ctx, country, f, limit) {
			// Cross-country merge keyed on game+shop; the first-listed
			// country wins.
			mergeKey := tc.gameID + "-" + strconv.Itoa(tc.shopID)
			if _, dup := seen[mergeKey]; dup {
				continue
			}
			seen[mergeKey] = struct{}{}
			all = append(all, tc)
		}
	}

	// ISO-8601 timestamps compare correctly as strings.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].timestamp > all[j].timestamp
	})

	out := make([]deal.Candidate, len(all))
	for i, tc := range all {
		out[i] = tc.cand
	}
	c.log.Info("itad deals merged", logx.Int("count", len(out)), logx.Int("countries", len(countries)))
	return out
}

// timedCandidate keeps fetch-only ordering and merge fields alongside the
// candidate until the merged list is final.
type timedCandidate struct {
	cand      deal.Candidate
	gameID    string
	shopID    int
	timestamp string
}

func (c *Client) fetchCountry(ctx context.Context, country string, f Filters, limit int) []timedCandidate {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("country", country)
	q.Set("sort", "-cut")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("nondeals", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/deals/v2?"+q.Encode(), nil)
	if err != nil {
		c.log.Warn("itad request build failed", logx.Err(err))
		return nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("itad deals fetch failed", logx.String("country", country), logx.Err(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		c.log.Warn("itad deals fetch failed", logx.String("country", country), logx.Int("status", resp.StatusCode))
		return nil
	}

	var body struct {
		List []dealEntry `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warn("itad response malformed", logx.Err(err))
		return nil
	}

	out := make([]timedCandidate, 0, len(body.List))
	for _, entry := range body.List {
		d := entry.Deal
		if d == nil {
			continue
		}

		priceUSD := d.Price.Amount
		regularUSD := d.Regular.Amount
		if c.conv != nil {
			priceUSD = c.conv.ToUSD(d.Price.Amount, d.Price.Currency)
			regularUSD = c.conv.ToUSD(d.Regular.Amount, d.Regular.Currency)
		}

		if float64(d.Cut) < f.MinDiscountPercent {
			continue
		}
		if priceUSD > f.MaxPriceUSD {
			continue
		}

		out = append(out, timedCandidate{
			gameID:    entry.ID,
			shopID:    d.Shop.ID,
			timestamp: d.Timestamp,
			cand: deal.Candidate{
				Key:      deal.ITADKey(entry.ID, d.Shop.ID, d.Cut),
				Source:   deal.SourceITAD,
				Category: categoryForType(entry.Type),
				Title:    orUnknown(entry.Title),
				// "H" marks a historical low, "N" a new one.
				HistoricalLow: d.Flag == "H" || d.Flag == "N",
				Price: &deal.Price{
					Sale:     priceUSD,
					Normal:   regularUSD,
					Discount: d.Cut,
					Store:    orUnknown(d.Shop.Name),
				},
				URL:    d.URL,
				Expiry: d.Expiry,
			},
		})
	}
	c.log.Debug("itad country deals", logx.String("country", country),
		logx.Int("kept", len(out)), logx.Int("raw", len(body.List)))
	return out
}

// categoryForType maps an ITAD entry type onto a thread category. Anything
// that is neither a game nor DLC (software, courses, bundles) lands in the
// non-game bucket.
func categoryForType(t string) deal.Category {
	switch t {
	case "game":
		return deal.CategoryGameDeals
	case "dlc":
		return deal.CategoryDLCDeals
	default:
		return deal.CategoryNonGameDeals
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

type dealEntry struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Title string   `json:"title"`
	Deal  *rawDeal `json:"deal"`
}

type rawDeal struct {
	Shop struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"shop"`
	Price     amount `json:"price"`
	Regular   amount `json:"regular"`
	Cut       int    `json:"cut"`
	Flag      string `json:"flag"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	Expiry    string `json:"expiry"`
}

type amount struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}
