package itad

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// IsHistoricalLow reports whether the referenced title currently sits at or
// below its lowest recorded price on the reference storefront.
//
// Best-effort by contract: any failure (no key, unknown app, timeout,
// malformed response) yields false. It never returns an error and never
// blocks a post on anything but its own network timeout.
func (c *Client) IsHistoricalLow(ctx context.Context, steamAppID string) bool {
	if !c.Enabled() || steamAppID == "" {
		return false
	}

	gameID, ok := c.lookupGameID(ctx, steamAppID)
	if !ok {
		return false
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	payload, err := json.Marshal([]string{gameID})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/games/overview/v2?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("itad overview failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return false
	}

	var body struct {
		Prices []struct {
			ID      string      `json:"id"`
			Current *pricePoint `json:"current"`
			Lowest  *pricePoint `json:"lowest"`
		} `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}

	for _, p := range body.Prices {
		if p.Current == nil || p.Lowest == nil {
			continue
		}
		if p.Current.Price.Amount <= p.Lowest.Price.Amount {
			return true
		}
	}
	return false
}

// lookupGameID resolves a Steam app ID to the ITAD game UUID.
func (c *Client) lookupGameID(ctx context.Context, steamAppID string) (string, bool) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("appid", steamAppID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/games/lookup/v1?"+q.Encode(), nil)
	if err != nil {
		return "", false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", false
	}

	var body struct {
		Found bool `json:"found"`
		Game  *struct {
			ID string `json:"id"`
		} `json:"game"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false
	}
	if !body.Found || body.Game == nil || body.Game.ID == "" {
		return "", false
	}
	return body.Game.ID, true
}

type pricePoint struct {
	Price amount `json:"price"`
}
