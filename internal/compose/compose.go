// Package compose renders candidates into chat messages. Every function is
// pure: no I/O, no persistence, no clocks beyond parsing timestamps that
// are already in the candidate.
//
// Each message carries two independent representations of the same
// information: a plain-text form that stands on its own, and an HTML form
// for transports that render rich markup. Titles and URLs come from
// upstream APIs and are escaped before any HTML embedding.
package compose

import (
	"fmt"
	"strings"
	"time"

	"dealsbot/internal/deal"
	"dealsbot/pkg/htmlx"
)

// Message is one composed announcement in both representations.
type Message struct {
	Plain string
	HTML  string
}

// Deal renders a discounted candidate. salePrices and normalPrice are
// pre-joined display strings from the currency formatter and are treated
// as opaque.
func Deal(c deal.Candidate, histLow bool, salePrices, normalPrice string) Message {
	p := c.Price
	store := ""
	discount := 0
	if p != nil {
		store = p.Store
		discount = p.Discount
	}

	var plain, html strings.Builder

	fmt.Fprintf(&plain, "🎮 [DEAL] %s\n", c.Title)
	fmt.Fprintf(&plain, "  %d%% off on %s (was %s)\n", discount, store, normalPrice)
	fmt.Fprintf(&plain, "  💰 %s\n", salePrices)

	html.WriteString(htmlx.B("🎮 [DEAL] " + c.Title).String())
	html.WriteString("\n")
	fmt.Fprintf(&html, "%d%% off on %s %s\n",
		discount, htmlx.Esc(store), htmlx.Strike(normalPrice))
	fmt.Fprintf(&html, "💰 %s\n", htmlx.B(salePrices))

	if histLow {
		plain.WriteString("  🏆 All-time low!\n")
		html.WriteString("🏆 " + htmlx.I("All-time low!").String() + "\n")
	}

	if c.URL != "" {
		fmt.Fprintf(&plain, "  🔗 %s", c.URL)
		html.WriteString("🔗 " + htmlx.Link("View Deal", c.URL).String())
	}

	return Message{Plain: strings.TrimRight(plain.String(), "\n"), HTML: strings.TrimRight(html.String(), "\n")}
}

// EpicFree renders a currently claimable free game.
func EpicFree(c deal.Candidate) Message {
	return epicPromo(c, "🆓 [FREE]", "Free on Epic Games Store", "Claim Now")
}

// EpicUpcoming renders a giveaway announced ahead of its start.
func EpicUpcoming(c deal.Candidate) Message {
	return epicPromo(c, "📢 [UPCOMING FREE]", "Coming soon — free on Epic Games Store", "Store Page")
}

func epicPromo(c deal.Candidate, tag, blurb, linkText string) Message {
	var plain, html strings.Builder

	fmt.Fprintf(&plain, "%s %s\n  %s\n", tag, c.Title, blurb)
	html.WriteString(htmlx.B(tag + " " + c.Title).String())
	html.WriteString("\n" + htmlx.Esc(blurb).String() + "\n")

	if until := untilDate(c.Expiry); until != "" {
		fmt.Fprintf(&plain, "  📅 Free until %s\n", until)
		html.WriteString("📅 " + htmlx.I("Free until "+until).String() + "\n")
	}
	if c.URL != "" {
		fmt.Fprintf(&plain, "  🔗 %s", c.URL)
		html.WriteString("🔗 " + htmlx.Link(linkText, c.URL).String())
	}

	return Message{Plain: strings.TrimRight(plain.String(), "\n"), HTML: strings.TrimRight(html.String(), "\n")}
}

// ThreadRoot renders the durable top-level message a category thread hangs
// off. Fixed per category; composed once per store lifetime.
func ThreadRoot(cat deal.Category) Message {
	meta := cat.Meta()
	plain := meta.Label + "\n" + meta.Description
	html := htmlx.B(meta.Label).String() + "\n" + htmlx.I(meta.Description).String()
	return Message{Plain: plain, HTML: html}
}

// untilDate turns an ISO expiry timestamp into a short display date.
// Unparseable input is display-only, so it simply drops the line.
func untilDate(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return ""
	}
	return t.Format("January 2")
}
