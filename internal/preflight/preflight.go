// Package preflight validates configuration and upstream connectivity
// before the bot starts posting. It is wired to the -preflight flag and
// prints a human-readable report rather than logging.
package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	tele "gopkg.in/telebot.v4"

	"dealsbot/internal/config"
	"dealsbot/internal/currency"
	"dealsbot/internal/sources/cheapshark"
	"dealsbot/internal/sources/epic"
	"dealsbot/internal/sources/itad"
)

const (
	green  = "\033[32m"
	red    = "\033[31m"
	yellow = "\033[33m"
	bold   = "\033[1m"
	reset  = "\033[0m"
)

func pass(label, detail string) bool {
	fmt.Printf("  %s✓%s %s%s\n", green, reset, label, suffix(detail))
	return true
}

func fail(label, detail string) bool {
	fmt.Printf("  %s✗%s %s%s\n", red, reset, label, suffix(detail))
	return false
}

func skip(label, detail string) bool {
	fmt.Printf("  %s–%s %s%s\n", yellow, reset, label, suffix(detail))
	return true // skips are not failures
}

func suffix(detail string) string {
	if detail == "" {
		return ""
	}
	return " — " + detail
}

// Run executes every check and reports whether all critical ones passed.
func Run(ctx context.Context, cfg *config.Config) bool {
	fmt.Printf("\n%sdealsbot — preflight checks%s\n\n", bold, reset)
	client := &http.Client{Timeout: 15 * time.Second}
	ok := true

	fmt.Printf("%sTelegram%s\n", bold, reset)
	ok = checkTelegram(cfg) && ok

	fmt.Printf("\n%sCheapShark%s\n", bold, reset)
	ok = checkGet(ctx, client, cheapshark.DefaultBaseURL+"/deals?pageSize=1") && ok

	fmt.Printf("\n%sEpic Games Store%s\n", bold, reset)
	ok = checkGet(ctx, client, epic.DefaultBaseURL+"/freeGamesPromotions?locale=en-US") && ok

	fmt.Printf("\n%sFrankfurter (exchange rates)%s\n", bold, reset)
	ok = checkGet(ctx, client, currency.DefaultBaseURL+"/latest?base=USD&symbols=EUR") && ok

	fmt.Printf("\n%sIsThereAnyDeal%s\n", bold, reset)
	ok = checkITAD(ctx, client, cfg.ITAD.APIKey) && ok

	fmt.Println()
	if ok {
		fmt.Printf("%s%sAll checks passed.%s The bot is ready to run.\n\n", green, bold, reset)
	} else {
		fmt.Printf("%s%sSome checks failed.%s Review the errors above before starting the bot.\n\n", red, bold, reset)
	}
	return ok
}

func checkTelegram(cfg *config.Config) bool {
	b, err := tele.NewBot(tele.Settings{Token: cfg.Telegram.Token})
	if err != nil {
		return fail("Authentication", err.Error())
	}
	ok := pass("Authentication", "logged in as @"+b.Me.Username)

	chat, err := b.ChatByID(cfg.Telegram.ChatID)
	if err != nil {
		return fail("Chat access", fmt.Sprintf("cannot see chat %d — add the bot first", cfg.Telegram.ChatID))
	}
	return pass("Chat access", "bot can see "+chat.Title) && ok
}

func checkGet(ctx context.Context, client *http.Client, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fail("API reachable", err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		return fail("API reachable", err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fail("API reachable", fmt.Sprintf("http %d", resp.StatusCode))
	}
	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return fail("API reachable", "unexpected response format")
	}
	return pass("API reachable", "")
}

func checkITAD(ctx context.Context, client *http.Client, apiKey string) bool {
	if apiKey == "" {
		return skip("Skipped", "no ITAD API key configured (optional)")
	}

	q := url.Values{}
	q.Set("key", apiKey)
	q.Set("country", "US")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		itad.DefaultBaseURL+"/deals/v2?"+q.Encode(), nil)
	if err != nil {
		return fail("API reachable", err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		return fail("API reachable", err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fail("API key", "rejected by ITAD (401/403)")
	}
	if resp.StatusCode/100 != 2 {
		return fail("API reachable", fmt.Sprintf("http %d", resp.StatusCode))
	}
	return pass("API key valid", "ITAD responded successfully")
}
