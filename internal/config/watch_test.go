package config

import (
	"context"
	"os"
	"testing"
	"time"

	"dealsbot/pkg/logx"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "config.yaml", minimalYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, logx.Nop(), func(cfg *Config) { got <- cfg })
	}()

	// Give the watcher a moment to register before rewriting the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`
telegram:
  token: "123:abc"
  chat_id: -1001234567890
logging: {level: info, console: true}
storage: {path: ./deals.db}
filters:
  max_price_usd: 12
`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-got:
		if cfg.Filters.MaxPriceUSD != 12 {
			t.Fatalf("reloaded config stale: %v", cfg.Filters.MaxPriceUSD)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload observed")
	}
}

func TestWatchDropsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", minimalYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, logx.Nop(), func(cfg *Config) { got <- cfg })
	}()

	time.Sleep(100 * time.Millisecond)
	// Token removed: the reload must be rejected and dropped.
	if err := os.WriteFile(path, []byte(`
telegram:
  chat_id: -100
logging: {level: info, console: true}
storage: {path: ./deals.db}
filters: {}
`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-got:
		t.Fatalf("invalid config published: %+v", cfg)
	case <-time.After(time.Second):
	}
}
