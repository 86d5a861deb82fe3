// Package epic fetches the Epic Games Store free-games promotion feed and
// normalizes current and upcoming giveaways into candidates.
package epic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"dealsbot/internal/deal"
	"dealsbot/pkg/logx"
)

const DefaultBaseURL = "https://store-site-backend-static.ak.epicgames.com"

type Client struct {
	baseURL string
	http    *http.Client
	log     logx.Logger
	now     func() time.Time
}

func New(client *http.Client, log logx.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{baseURL: DefaultBaseURL, http: client, log: log, now: time.Now}
}

func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// Fetch returns (current, upcoming) free games. Transient failures degrade
// to empty slices; the next cycle retries.
func (c *Client) Fetch(ctx context.Context) (current, upcoming []deal.Candidate) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/freeGamesPromotions?locale=en-US", nil)
	if err != nil {
		c.log.Warn("epic request build failed", logx.Err(err))
		return nil, nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("epic fetch failed", logx.Err(err))
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		c.log.Warn("epic fetch failed", logx.Int("status", resp.StatusCode))
		return nil, nil
	}

	var body feedBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warn("epic response malformed", logx.Err(err))
		return nil, nil
	}

	elements := body.Data.Catalog.SearchStore.Elements
	if len(elements) == 0 {
		c.log.Warn("epic feed contained no elements")
		return nil, nil
	}

	current, upcoming = c.parsePromotions(elements)
	c.log.Info("epic free games fetched",
		logx.Int("current", len(current)), logx.Int("upcoming", len(upcoming)))
	return current, upcoming
}

func (c *Client) parsePromotions(elements []element) (current, upcoming []deal.Candidate) {
	now := c.now().UTC()

	for _, el := range elements {
		if el.Promotions == nil {
			continue
		}
		cand := deal.Candidate{
			Key:      deal.EpicKey(el.ID),
			Source:   deal.SourceEpic,
			Category: deal.CategoryEpicFree,
			Title:    orUnknown(el.Title),
			URL:      storeURL(el),
		}

		// A giveaway is an offer whose discount drops the price to zero.
		for _, group := range el.Promotions.PromotionalOffers {
			for _, offer := range group.PromotionalOffers {
				if offer.DiscountSetting.DiscountPercentage == nil || *offer.DiscountSetting.DiscountPercentage != 0 {
					continue
				}
				if !activeWindow(offer, now) {
					continue
				}
				cc := cand
				cc.Expiry = offer.EndDate
				current = append(current, cc)
			}
		}
		for _, group := range el.Promotions.UpcomingPromotionalOffers {
			for _, offer := range group.PromotionalOffers {
				if offer.DiscountSetting.DiscountPercentage == nil || *offer.DiscountSetting.DiscountPercentage != 0 {
					continue
				}
				cc := cand
				cc.Expiry = offer.EndDate
				cc.Upcoming = true
				upcoming = append(upcoming, cc)
			}
		}
	}
	return current, upcoming
}

func activeWindow(o offer, now time.Time) bool {
	if o.StartDate != "" {
		if t, err := time.Parse(time.RFC3339, o.StartDate); err == nil && t.After(now) {
			return false
		}
	}
	if o.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, o.EndDate); err == nil && t.Before(now) {
			return false
		}
	}
	return true
}

func storeURL(el element) string {
	slug := el.ProductSlug
	if slug == "" {
		slug = el.URLSlug
	}
	if slug == "" && len(el.CatalogNs.Mappings) > 0 {
		slug = el.CatalogNs.Mappings[0].PageSlug
	}
	if slug == "" {
		return ""
	}
	return "https://store.epicgames.com/en-US/p/" + slug
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// Wire format. Epic nests the catalog deeply; only the fields we read are
// declared.
type feedBody struct {
	Data struct {
		Catalog struct {
			SearchStore struct {
				Elements []element `json:"elements"`
			} `json:"searchStore"`
		} `json:"Catalog"`
	} `json:"data"`
}

type element struct {
	Title       string `json:"title"`
	ID          string `json:"id"`
	Description string `json:"description"`
	ProductSlug string `json:"productSlug"`
	URLSlug     string `json:"urlSlug"`
	CatalogNs   struct {
		Mappings []struct {
			PageSlug string `json:"pageSlug"`
		} `json:"mappings"`
	} `json:"catalogNs"`
	Promotions *promotions `json:"promotions"`
}

type promotions struct {
	PromotionalOffers         []offerGroup `json:"promotionalOffers"`
	UpcomingPromotionalOffers []offerGroup `json:"upcomingPromotionalOffers"`
}

type offerGroup struct {
	PromotionalOffers []offer `json:"promotionalOffers"`
}

type offer struct {
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	DiscountSetting struct {
		DiscountPercentage *int `json:"discountPercentage"`
	} `json:"discountSetting"`
}
