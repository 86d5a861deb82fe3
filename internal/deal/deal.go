// Package deal holds the normalized candidate model shared by all sources
// and the posting pipeline.
package deal

import "fmt"

// Source identifies the upstream API a candidate came from. Identity keys
// are namespaced by source, so keys from different sources never collide.
type Source string

const (
	SourceCheapShark Source = "cheapshark"
	SourceEpic       Source = "epic"
	SourceITAD       Source = "itad"
)

// Category routes a candidate to a per-category thread.
type Category string

const (
	CategoryGameDeals    Category = "game_deals"
	CategoryDLCDeals     Category = "dlc_deals"
	CategoryEpicFree     Category = "epic_free"
	CategoryNonGameDeals Category = "non_game_deals"
)

// CategoryMeta is the display metadata for a thread root message.
type CategoryMeta struct {
	Label       string
	Description string
}

var categoryMeta = map[Category]CategoryMeta{
	CategoryGameDeals: {
		Label:       "🎮 Game Deals",
		Description: "PC game deals from CheapShark and IsThereAnyDeal",
	},
	CategoryDLCDeals: {
		Label:       "🧩 DLC Deals",
		Description: "DLC and expansion deals from IsThereAnyDeal",
	},
	CategoryEpicFree: {
		Label:       "🆓 Epic Free Games",
		Description: "Weekly free games from the Epic Games Store",
	},
	CategoryNonGameDeals: {
		Label:       "📦 Non-Game Deals",
		Description: "Software, courses, and other non-game deals",
	},
}

// Meta returns display metadata for c, falling back to the game-deals
// metadata for unknown values so a bad mapping never breaks a post.
func (c Category) Meta() CategoryMeta {
	if m, ok := categoryMeta[c]; ok {
		return m
	}
	return categoryMeta[CategoryGameDeals]
}

// Price carries the price fields of a discounted candidate. Amounts are in
// USD; sources that report other currencies normalize before building a
// Candidate. Free promotions leave Price nil.
type Price struct {
	Sale     float64
	Normal   float64
	Discount int    // percent off, 0-100
	Store    string // storefront display name
}

// Candidate is one normalized deal or promotion produced by a fetch cycle.
//
// Key is the sole dedup mechanism: two candidates with an equal Key are the
// same announcement and must never both be delivered. The key derivation
// functions below are an append-only contract; changing a scheme orphans
// stored records and causes a one-time duplicate burst.
type Candidate struct {
	Key      string
	Source   Source
	Category Category
	Title    string

	Price *Price // nil for free promotions

	// SteamAppID cross-references the historical-price lookup; empty when
	// the source cannot supply one.
	SteamAppID string

	// HistoricalLow is set when the source itself reports the price as an
	// all-time low, sparing the per-candidate lookup.
	HistoricalLow bool

	URL      string
	Expiry   string // ISO timestamp, display-only
	Upcoming bool   // free promotion announced ahead of its start
}

// CheapSharkKey derives the identity key for a CheapShark deal instance.
// lastChange makes a re-priced deal on the same game a new candidate.
func CheapSharkKey(gameID string, lastChange int64) string {
	return fmt.Sprintf("cheapshark-%s-%d", gameID, lastChange)
}

// EpicKey derives the identity key for an Epic free-game promotion.
func EpicKey(gameID string) string {
	return "epic-" + gameID
}

// ITADKey derives the identity key for an ITAD deal instance. A new discount
// tier on the same game+shop is a different candidate.
func ITADKey(gameID string, shopID, discount int) string {
	return fmt.Sprintf("itad-%s-%d-%d", gameID, shopID, discount)
}
