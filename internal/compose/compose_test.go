package compose

import (
	"strings"
	"testing"

	"dealsbot/internal/deal"
)

func dealCandidate() deal.Candidate {
	return deal.Candidate{
		Key:      "cheapshark-42-100",
		Source:   deal.SourceCheapShark,
		Category: deal.CategoryGameDeals,
		Title:    "Some Game",
		Price:    &deal.Price{Sale: 9.99, Normal: 19.99, Discount: 50, Store: "Steam"},
		URL:      "https://www.cheapshark.com/redirect?dealID=abc",
	}
}

func TestDealBothRepresentations(t *testing.T) {
	msg := Deal(dealCandidate(), false, "$9.99 · €9.20", "$19.99")

	for _, want := range []string{"Some Game", "50% off", "Steam", "$9.99 · €9.20", "$19.99", "🔗"} {
		if !strings.Contains(msg.Plain, want) {
			t.Fatalf("plain missing %q:\n%s", want, msg.Plain)
		}
	}
	if !strings.Contains(msg.HTML, "<b>") || !strings.Contains(msg.HTML, "<s>$19.99</s>") {
		t.Fatalf("html missing markup:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, `<a href="https://www.cheapshark.com/redirect?dealID=abc">View Deal</a>`) {
		t.Fatalf("html missing link:\n%s", msg.HTML)
	}
	if strings.Contains(msg.Plain, "<") {
		t.Fatalf("plain form must not contain markup:\n%s", msg.Plain)
	}
}

func TestDealHistoricalLowLine(t *testing.T) {
	with := Deal(dealCandidate(), true, "$9.99", "$19.99")
	without := Deal(dealCandidate(), false, "$9.99", "$19.99")

	if !strings.Contains(with.Plain, "All-time low!") {
		t.Fatalf("expected milestone line:\n%s", with.Plain)
	}
	if strings.Contains(without.Plain, "All-time low!") {
		t.Fatalf("unexpected milestone line:\n%s", without.Plain)
	}
}

func TestHostileTitleIsEscaped(t *testing.T) {
	c := dealCandidate()
	c.Title = `<script>alert("x")</script> & Knuckles`

	msg := Deal(c, false, "$9.99", "$19.99")
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("unescaped title in html:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "&lt;script&gt;") || !strings.Contains(msg.HTML, "&amp; Knuckles") {
		t.Fatalf("title not escaped:\n%s", msg.HTML)
	}
	// The plain form carries the title verbatim.
	if !strings.Contains(msg.Plain, c.Title) {
		t.Fatalf("plain form altered the title:\n%s", msg.Plain)
	}
}

func TestEpicFreeWithExpiry(t *testing.T) {
	msg := EpicFree(deal.Candidate{
		Title:  "Free Game",
		Expiry: "2026-09-04T15:00:00Z",
		URL:    "https://store.epicgames.com/p/free-game",
	})

	if !strings.Contains(msg.Plain, "🆓 [FREE] Free Game") {
		t.Fatalf("plain missing tag line:\n%s", msg.Plain)
	}
	if !strings.Contains(msg.Plain, "Free until September 4") {
		t.Fatalf("plain missing expiry date:\n%s", msg.Plain)
	}
	if !strings.Contains(msg.HTML, `<a href="https://store.epicgames.com/p/free-game">Claim Now</a>`) {
		t.Fatalf("html missing claim link:\n%s", msg.HTML)
	}
}

func TestEpicFreeUnparseableExpiryDropsLine(t *testing.T) {
	msg := EpicFree(deal.Candidate{Title: "Free Game", Expiry: "soon"})
	if strings.Contains(msg.Plain, "Free until") {
		t.Fatalf("unparseable expiry must drop the line:\n%s", msg.Plain)
	}
}

func TestEpicUpcoming(t *testing.T) {
	msg := EpicUpcoming(deal.Candidate{Title: "Next Week Game", Upcoming: true})
	if !strings.Contains(msg.Plain, "📢 [UPCOMING FREE] Next Week Game") {
		t.Fatalf("plain missing upcoming tag:\n%s", msg.Plain)
	}
	if !strings.Contains(msg.Plain, "Coming soon") {
		t.Fatalf("plain missing blurb:\n%s", msg.Plain)
	}
}

func TestThreadRootPerCategory(t *testing.T) {
	seen := map[string]bool{}
	for _, cat := range []deal.Category{
		deal.CategoryGameDeals, deal.CategoryDLCDeals,
		deal.CategoryEpicFree, deal.CategoryNonGameDeals,
	} {
		msg := ThreadRoot(cat)
		if msg.Plain == "" || msg.HTML == "" {
			t.Fatalf("empty root for %s", cat)
		}
		if seen[msg.Plain] {
			t.Fatalf("duplicate root text for %s", cat)
		}
		seen[msg.Plain] = true
	}
}

func TestThreadRootUnknownCategoryFallsBack(t *testing.T) {
	msg := ThreadRoot(deal.Category("mystery"))
	if msg.Plain != ThreadRoot(deal.CategoryGameDeals).Plain {
		t.Fatalf("unknown category must fall back to game deals:\n%s", msg.Plain)
	}
}
