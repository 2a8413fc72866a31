package main

import (
	"context"
	"net/http"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"scalper/internal/api"
	"scalper/internal/channel"
	"scalper/internal/core"
	"scalper/internal/journal"
	"scalper/internal/obs"
	"scalper/internal/og"
	"scalper/internal/ops"
	"scalper/internal/order/delegator/bridge"
	"scalper/internal/paper"
	"scalper/internal/schema"
	"scalper/internal/state"
	"scalper/pkg/exception"
)

func run(ctx context.Context, flags *globalFlags, rt *ops.Runtime, paperMode bool) error {
	cfg := rt.Load()
	metrics := obs.NewMetrics("scalper")

	var (
		broker og.Broker
		quotes core.QuoteSource
		market *paper.Market
	)
	if paperMode {
		market = paper.NewMarket(paper.MarketConfig{
			Symbol:     cfg.Symbol,
			Start:      cfg.Paper.StartPrice,
			Spread:     cfg.Paper.Spread,
			Volatility: cfg.Paper.Volatility,
			Seed:       cfg.Paper.Seed,
		})
		broker = paper.NewBroker(paper.BrokerConfig{
			Balance:   cfg.Paper.Balance,
			TickValue: cfg.Registry.Lookup(cfg.Symbol).TickValue,
		}, market)
		quotes = market
		chaos := paper.ChaosConfig{
			Seed:          uint64(cfg.Paper.Seed),
			RejectRate:    cfg.Paper.RejectRate,
			QueryFailRate: cfg.Paper.QueryFailRate,
			MaxDelay:      time.Duration(cfg.Paper.MaxDelayMs) * time.Millisecond,
		}
		if chaos.Enabled() {
			c, err := paper.NewChaos(broker, chaos)
			if err != nil {
				return err
			}
			logs.Warnf("paper broker fault injection on, reject: %.2f, query fail: %.2f, max delay: %s", chaos.RejectRate, chaos.QueryFailRate, chaos.MaxDelay)
			broker = c
		}
	} else {
		d := bridge.NewDelegator(cfg.Broker.URL, &http.Client{Timeout: cfg.BrokerTimeout})
		broker, quotes = d, d
	}

	dialer, err := newDialer(cfg.Channel)
	if err != nil {
		return err
	}
	var engine *core.Engine
	client, err := channel.NewClient(channel.Config{
		InboundSize: cfg.Channel.InboundSize,
		Backoff:     channel.DefaultBackoff(),
		OnReply: func(reply schema.HeartbeatReply, at time.Time) {
			engine.OnHeartbeatReply(reply, at)
		},
	}, dialer)
	if err != nil {
		return err
	}
	defer client.Close()

	store, closeStore, err := newSnapshotStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := newJournal(cfg.Storage, paperMode)
	if err != nil {
		return err
	}

	var recorder journal.Recorder
	if rec != nil {
		recorder = rec
	}
	engine, err = core.New(core.Deps{
		Runtime: rt,
		Broker:  broker,
		Quotes:  quotes,
		Channel: client,
		Journal: recorder,
		Store:   store,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if rec != nil {
		rec.Start(gctx)
	}
	g.Go(func() error {
		if err := client.Run(gctx); err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ops.Watch(gctx, flags.config, flags.reload, rt.Update)
		return nil
	})
	if cfg.API.Addr != "" {
		srv := api.NewServer(api.Config{Addr: cfg.API.Addr, StaleAfter: 10 * cfg.TickInterval}, engine, metrics)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	if market != nil {
		g.Go(func() error {
			walkMarket(gctx, market, cfg.TickInterval)
			return nil
		})
	}
	g.Go(func() error {
		return engine.Run(gctx)
	})

	err = g.Wait()
	client.Close()
	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			logs.Warnf("journal close, err: %+v", cerr)
		}
		logs.Infof("journal written: %d, failed: %d, dropped: %d", rec.Written(), rec.Failed(), rec.Dropped())
	}
	logs.Infof("scalper stopped")
	return err
}

func newDialer(cfg ops.ChannelConfig) (channel.Dialer, error) {
	switch cfg.Transport {
	case ops.TransportUDS:
		return channel.NewUDSDialer(cfg.Path, cfg.MaxFrameSize)
	case ops.TransportWS:
		return channel.NewWSDialer(cfg.URL, nil, cfg.MaxFrameSize), nil
	default:
		return nil, errors.Wrap(exception.ErrChannelUnknownKind, cfg.Transport)
	}
}

func newSnapshotStore(ctx context.Context, cfg ops.StorageConfig) (state.Store, func(), error) {
	if cfg.RedisURL == "" {
		return state.NewFileStore(cfg.SnapshotDir), func() {}, nil
	}
	rs, err := state.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := rs.Ping(ctx); err != nil {
		_ = rs.Close()
		return nil, nil, errors.Wrap(err, "redis ping")
	}
	return rs, func() { _ = rs.Close() }, nil
}

// newJournal prefers the database, then the local segment files. It returns
// nil in live mode when neither is configured.
func newJournal(cfg ops.StorageConfig, paperMode bool) (*journal.Async, error) {
	var store journal.Store
	switch {
	case cfg.DatabaseURL != "":
		gs, err := journal.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = gs
	case cfg.JournalDir != "":
		ws, err := journal.NewWALStore(journal.WALConfig{Dir: cfg.JournalDir})
		if err != nil {
			return nil, err
		}
		store = ws
	case paperMode:
		store = journal.NewMemoryStore()
	default:
		logs.Warnf("no journal backend configured, trade journal disabled")
		return nil, nil
	}
	return journal.NewAsync(store, cfg.JournalQueue), nil
}

func walkMarket(ctx context.Context, market *paper.Market, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			market.Step()
		}
	}
}
