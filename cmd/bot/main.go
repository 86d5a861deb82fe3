package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"dealsbot/internal/bot"
	"dealsbot/internal/config"
	"dealsbot/internal/currency"
	"dealsbot/internal/preflight"
	"dealsbot/internal/scheduler"
	"dealsbot/internal/sources/cheapshark"
	"dealsbot/internal/sources/epic"
	"dealsbot/internal/sources/itad"
	"dealsbot/internal/storage"
	"dealsbot/internal/transport/telegram"
	"dealsbot/pkg/logx"
)

func main() {
	var (
		cfgPath  string
		runCheck bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.BoolVar(&runCheck, "preflight", false, "run connectivity checks and exit")
	flag.Parse()

	// Secrets may live in a .env next to the binary; missing file is fine.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal: config:", err)
		os.Exit(1)
	}

	if runCheck {
		if !preflight.Run(ctx, cfg) {
			os.Exit(1)
		}
		return
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logSvc.Close()

	if err := run(ctx, cfg, cfgPath, logSvc, log); err != nil {
		log.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cfgPath string, logSvc *logx.Service, log logx.Logger) error {
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	// An unreachable Telegram API here is a startup failure by design.
	sender, err := telegram.New(telegram.Config{
		Token:      cfg.Telegram.Token,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	conv := currency.New(cfg.Currency.Targets, cfg.RefreshTTL(), httpClient,
		log.With(logx.String("comp", "currency")))

	cheapSrc := cheapshark.New(httpClient, log.With(logx.String("comp", "cheapshark")))
	epicSrc := epic.New(httpClient, log.With(logx.String("comp", "epic")))
	itadSrc := itad.New(cfg.ITAD.APIKey, httpClient, conv, log.With(logx.String("comp", "itad")))

	b := bot.New(store, sender, conv, optionsFor(cfg), log.With(logx.String("comp", "bot")))
	b.SetSources(cheapSrc, epicSrc, itadSrc)
	if itadSrc.Enabled() {
		b.SetClassifier(itadSrc)
	}

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("first-run population: %w", err)
	}

	sched := scheduler.New(log.With(logx.String("comp", "scheduler")))
	if err := sched.Add("cheapshark", cfg.CheapSharkEvery(), b.CheckCheapShark); err != nil {
		return err
	}
	if err := sched.Add("epic", cfg.EpicEvery(), b.CheckEpic); err != nil {
		return err
	}
	if itadSrc.Enabled() {
		if err := sched.Add("itad", cfg.ITADEvery(), b.CheckITAD); err != nil {
			return err
		}
	}
	sched.Start(ctx)

	// Hot reload: logging and filter thresholds follow the file; identity
	// and transport settings stay fixed until restart.
	go func() {
		err := config.Watch(ctx, cfgPath, log.With(logx.String("comp", "config")), func(next *config.Config) {
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
			})
			b.Reconfigure(optionsFor(next))
		})
		if err != nil {
			log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("bot started")

	// Run the initial cycles immediately rather than waiting a full interval.
	b.CheckCheapShark(ctx)
	b.CheckEpic(ctx)
	b.CheckITAD(ctx)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("bot stopped")
	return nil
}

func optionsFor(cfg *config.Config) bot.Options {
	return bot.Options{
		ChatID:             cfg.Telegram.ChatID,
		UseThreads:         cfg.Telegram.UseThreads,
		MaxPriceUSD:        cfg.Filters.MaxPriceUSD,
		MinDealRating:      cfg.Filters.MinDealRating,
		MinDiscountPercent: cfg.Filters.MinDiscountPercent,
		Countries:          cfg.ITAD.Countries,
		ITADLimit:          cfg.ITAD.Limit,
		Retention:          cfg.Retention(),
	}
}
