// Command backtest runs the option chain universe selection harness over a
// simulated session calendar and verifies the configured expected selections.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/davzucky/chainuniverse/internal/broker"
	"github.com/davzucky/chainuniverse/internal/config"
	"github.com/davzucky/chainuniverse/internal/dashboard"
	"github.com/davzucky/chainuniverse/internal/engine"
	"github.com/davzucky/chainuniverse/internal/feed"
	"github.com/davzucky/chainuniverse/internal/orders"
	"github.com/davzucky/chainuniverse/internal/storage"
	"github.com/davzucky/chainuniverse/internal/universe"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[BACKTEST] ", log.LstdFlags)

	if err := run(configPath, logger); err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}

	logger.Println("Backtest finished successfully")
}

func run(configPath string, logger *log.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	provider, err := feed.NewCSVProvider(cfg.Feed.Chains, cfg.Feed.Prices)
	if err != nil {
		return fmt.Errorf("initializing feed: %w", err)
	}

	tracker := universe.NewTracker()
	scheduler := universe.NewScheduler(tracker, log.New(os.Stdout, "[SCHEDULE] ", log.LstdFlags))

	paper := broker.NewPaperBroker(nil)
	orderManager, err := orders.NewManager(
		broker.NewCircuitBreakerBroker(paper),
		store,
		tracker,
		log.New(os.Stdout, "[ORDERS] ", log.LstdFlags),
		orders.Config{
			OrderTime: cfg.Orders.Time,
			Location:  loc,
			Quantity:  cfg.Orders.Quantity,
		},
	)
	if err != nil {
		return fmt.Errorf("initializing order manager: %w", err)
	}

	// Chains tracked from the start of the run.
	for _, u := range cfg.Universe.Underlyings {
		filterCfg, err := u.Filter.Build()
		if err != nil {
			return fmt.Errorf("building filter for %s: %w", u.Symbol, err)
		}
		if err := tracker.AddChain(u.Symbol, filterCfg); err != nil {
			return fmt.Errorf("adding chain %s: %w", u.Symbol, err)
		}
		orderManager.SetTradable(u.Symbol, u.Tradable)
		logger.Printf("Tracking %s (window %s-%s, right %q, count %d)",
			u.Symbol, filterCfg.MinWindow, filterCfg.MaxWindow, filterCfg.Right, filterCfg.Count)
	}

	// Chains added or removed mid-run.
	for _, entry := range cfg.Universe.Schedule {
		at, err := cfg.MutationTime(entry.At)
		if err != nil {
			return fmt.Errorf("parsing schedule time %q: %w", entry.At, err)
		}
		mutation := universe.ScheduledMutation{
			At:         at,
			Kind:       universe.MutationKind(entry.Action),
			Underlying: entry.Underlying,
		}
		if mutation.Kind == universe.MutationAddChain {
			if mutation.Config, err = entry.Filter.Build(); err != nil {
				return fmt.Errorf("building scheduled filter for %s: %w", entry.Underlying, err)
			}
			orderManager.SetTradable(entry.Underlying, entry.Tradable)
		}
		if err := scheduler.Register(mutation); err != nil {
			return fmt.Errorf("registering schedule entry: %w", err)
		}
		logger.Printf("Scheduled %s %s at %s", entry.Action, entry.Underlying, entry.At)
	}

	calendar, err := engine.NewSessionCalendar(cfg.Session.Open, cfg.Session.Close, loc)
	if err != nil {
		return fmt.Errorf("building session calendar: %w", err)
	}
	start, err := cfg.StartTime()
	if err != nil {
		return fmt.Errorf("parsing session start: %w", err)
	}
	end, err := cfg.EndTime()
	if err != nil {
		return fmt.Errorf("parsing session end: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Start:    start,
		End:      end,
		Step:     cfg.StepDuration(),
		Calendar: calendar,
		Expected: cfg.ExpectedSelections(),
	}, tracker, scheduler, provider, store, logger)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	if err := eng.RegisterDataHandler(orderManager.OnData); err != nil {
		return fmt.Errorf("registering order handler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping backtest...")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel() // stop the dashboard once the run ends
		return eng.Run(ctx)
	})

	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		srv := dashboard.NewServer(dashboard.Config{Port: cfg.Dashboard.Port}, tracker, store, dashLogger)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("saving results: %w", err)
	}
	return nil
}
