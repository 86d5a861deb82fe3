// Package telegram adapts the transport.Sender boundary onto the Telegram
// Bot API via telebot.
package telegram

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"dealsbot/internal/transport"
	"dealsbot/pkg/logx"
)

type Config struct {
	Token string
	// RatePerSec caps outbound sends; Telegram allows roughly one message
	// per second per chat.
	RatePerSec int
}

type Adapter struct {
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter
}

// New builds the adapter and verifies the token with a getMe call. An
// unreachable Telegram API at startup is a fatal configuration error for
// the caller.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// Send-only: the bot never consumes updates, so no poller is configured.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Adapter{
		bot:     b,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Send delivers one message with HTML formatting, falling back to the plain
// representation when Telegram rejects the markup. It never returns an
// error; the outcome is folded into the Result.
func (a *Adapter) Send(ctx context.Context, to transport.Target, plain, html string) transport.Result {
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.Failed("rate limit wait: " + err.Error())
	}

	chat := &tele.Chat{ID: to.ChatID}
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              to.ThreadID,
	}

	msg, err := a.bot.Send(chat, html, opts)
	if err != nil {
		// Bad markup (hostile title that slipped escaping, oversized
		// entity) should not lose the deal: retry with the plain form.
		a.log.Warn("html send failed; retrying plain", logx.Err(err))
		opts.ParseMode = tele.ModeDefault
		msg, err = a.bot.Send(chat, plain, opts)
	}
	if err != nil {
		return transport.Failed(err.Error())
	}
	return transport.Delivered(transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID})
}
