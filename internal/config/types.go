package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Filters  FilterConfig   `json:"filters"`
	ITAD     ITADConfig     `json:"itad,omitempty"`
	Currency CurrencyConfig `json:"currency,omitempty"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// UseThreads posts each category into its own thread rooted at a
	// per-category header message.
	UseThreads bool `json:"use_threads,omitempty"`
	// RatePerSec caps outbound sends. Telegram allows ~1 msg/s per chat.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// FilterConfig thresholds apply to the discount-aggregator sources.
type FilterConfig struct {
	MaxPriceUSD        float64 `json:"max_price_usd,omitempty"`
	MinDealRating      float64 `json:"min_deal_rating,omitempty"`
	MinDiscountPercent float64 `json:"min_discount_percent,omitempty"`
}

// ITADConfig is optional; without an API key the ITAD deals source and the
// historical-low classifier are disabled.
type ITADConfig struct {
	APIKey    string   `json:"api_key,omitempty"`
	Countries []string `json:"countries,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

type CurrencyConfig struct {
	Targets []string `json:"targets,omitempty"`
	// RefreshTTL is a Go duration string; rates older than this are stale.
	RefreshTTL string `json:"refresh_ttl,omitempty"`
}

// ScheduleConfig holds per-source polling intervals as Go duration strings.
type ScheduleConfig struct {
	CheapShark string `json:"cheapshark,omitempty"`
	Epic       string `json:"epic,omitempty"`
	ITAD       string `json:"itad,omitempty"`
	// Retention bounds dedup-store growth; records older than this are
	// pruned after each cycle.
	Retention string `json:"retention,omitempty"`
}

// Normalize fills defaults and validates required settings. It is called
// once at startup and again on every hot reload before publishing.
func (c *Config) Normalize() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required")
	}
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = 1
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./deals.db"
	}
	if c.Filters.MaxPriceUSD <= 0 {
		c.Filters.MaxPriceUSD = 20
	}
	if c.Filters.MinDealRating <= 0 {
		c.Filters.MinDealRating = 8.0
	}
	if c.Filters.MinDiscountPercent <= 0 {
		c.Filters.MinDiscountPercent = 50
	}
	if len(c.ITAD.Countries) == 0 {
		c.ITAD.Countries = []string{"US"}
	}
	if c.ITAD.Limit <= 0 || c.ITAD.Limit > 200 {
		c.ITAD.Limit = 100
	}
	if len(c.Currency.Targets) == 0 {
		c.Currency.Targets = []string{"CAD", "EUR", "GBP"}
	}

	for path, raw := range map[string]string{
		"storage.busy_timeout": c.Storage.BusyTimeout,
		"currency.refresh_ttl": c.Currency.RefreshTTL,
		"schedule.cheapshark":  c.Schedule.CheapShark,
		"schedule.epic":        c.Schedule.Epic,
		"schedule.itad":        c.Schedule.ITAD,
		"schedule.retention":   c.Schedule.Retention,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)
	return d
}

func (c *Config) RefreshTTL() time.Duration {
	d, _ := ParseDurationOrDefault("currency.refresh_ttl", c.Currency.RefreshTTL, time.Hour)
	return d
}

func (c *Config) CheapSharkEvery() time.Duration {
	d, _ := ParseDurationOrDefault("schedule.cheapshark", c.Schedule.CheapShark, 2*time.Hour)
	return d
}

func (c *Config) EpicEvery() time.Duration {
	d, _ := ParseDurationOrDefault("schedule.epic", c.Schedule.Epic, 24*time.Hour)
	return d
}

func (c *Config) ITADEvery() time.Duration {
	d, _ := ParseDurationOrDefault("schedule.itad", c.Schedule.ITAD, 6*time.Hour)
	return d
}

func (c *Config) Retention() time.Duration {
	d, _ := ParseDurationOrDefault("schedule.retention", c.Schedule.Retention, 30*24*time.Hour)
	return d
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
