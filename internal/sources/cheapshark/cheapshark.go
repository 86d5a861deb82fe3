// Package cheapshark fetches storefront discounts from the CheapShark API
// and normalizes them into candidates.
package cheapshark

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

const DefaultBaseURL = "https://www.cheapshark.com/api/1.0"

// storeNames maps CheapShark store IDs to PC/digital storefronts we track.
// Only deals from these stores are fetched.
var storeNames = map[string]string{
	"1":  "Steam",
	"7":  "GOG",
	"11": "Humble Store",
	"23": "GreenManGaming",
}

// Filters are the thresholds a raw deal must clear to become a candidate.
type Filters struct {
	MaxPriceUSD        float64
	MinDealRating      float64
	MinDiscountPercent float64
}

type Client struct {
	baseURL  string
	http     *http.Client
	log      logx.Logger
	pageSize int
}

func New(client *http.Client, log logx.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{baseURL: DefaultBaseURL, http: client, log: log, pageSize: 10}
}

func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// Fetch returns the current top deals as normalized candidates. Transient
// failures degrade to an empty slice; the next cycle retries.
func (c *Client) Fetch(ctx context.Context, f Filters) []deal.Candidate {
	storeIDs := make([]string, 0, len(storeNames))
	for id := range storeNames {
		storeIDs = append(storeIDs, id)
	}
	sort.Strings(storeIDs)

	q := url.Values{}
	q.Set("storeID", strings.Join(storeIDs, ","))
	q.Set("upperPrice", strconv.Itoa(int(f.MaxPriceUSD)))
	q.Set("sortBy", "Deal Rating")
	q.Set("desc", "1")
	q.Set("pageSize", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/deals?"+q.Encode(), nil)
	if err != nil {
		c.log.Warn("cheapshark request build failed", logx.Err(err))
		return nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("cheapshark fetch failed", logx.Err(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		c.log.Warn("cheapshark fetch failed", logx.Int("status", resp.StatusCode))
		return nil
	}

	var raw []rawDeal
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.log.Warn("cheapshark response malformed", logx.Err(err))
		return nil
	}
	c.log.Debug("cheapshark raw deals", logx.Int("count", len(raw)))

	out := make([]deal.Candidate, 0, len(raw))
	for _, d := range raw {
		savings := parseFloat(d.Savings)
		rating := parseFloat(d.DealRating)
		if savings < f.MinDiscountPercent {
			continue
		}
		if rating > 0 && rating < f.MinDealRating {
			continue
		}

		appID := d.SteamAppID
		if appID == "0" {
			appID = ""
		}
		store, ok := storeNames[d.StoreID]
		if !ok {
			store = "Store " + d.StoreID
		}

		out = append(out, deal.Candidate{
			Key:      deal.CheapSharkKey(d.GameID, parseInt(d.LastChange)),
			Source:   deal.SourceCheapShark,
			Category: deal.CategoryGameDeals,
			Title:    d.Title,
			Price: &deal.Price{
				Sale:     parseFloat(d.SalePrice),
				Normal:   parseFloat(d.NormalPrice),
				Discount: int(savings),
				Store:    store,
			},
			SteamAppID: appID,
			URL:        "https://www.cheapshark.com/redirect?dealID=" + url.QueryEscape(d.DealID),
		})
	}
	c.log.Info("cheapshark deals fetched", logx.Int("kept", len(out)), logx.Int("raw", len(raw)))
	return out
}

// rawDeal mirrors the CheapShark wire format, which reports numbers as
// strings for most fields and a bare number for lastChange.
type rawDeal struct {
	DealID      string      `json:"dealID"`
	GameID      string      `json:"gameID"`
	Title       string      `json:"title"`
	SalePrice   string      `json:"salePrice"`
	NormalPrice string      `json:"normalPrice"`
	Savings     string      `json:"savings"`
	DealRating  string      `json:"dealRating"`
	StoreID     string      `json:"storeID"`
	LastChange  json.Number `json:"lastChange"`
	SteamAppID  string      `json:"steamAppID"`
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(n json.Number) int64 {
	v, err := n.Int64()
	if err != nil {
		if f, ferr := n.Float64(); ferr == nil {
			return int64(f)
		}
		return 0
	}
	return v
}
