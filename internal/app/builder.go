package app

import (
	"context"
	"fmt"

	"adapilot/internal/config"
	"adapilot/internal/execution"
	"adapilot/internal/gateway/algorithm"
	"adapilot/internal/gateway/binance"
	"adapilot/internal/gateway/notifier"
	"adapilot/internal/gateway/venue"
	"adapilot/internal/gateway/venue/strike"
	"adapilot/internal/gateway/wallet"
	"adapilot/internal/generator"
	"adapilot/internal/logger"
	"adapilot/internal/manager"
	"adapilot/internal/signal"
	"adapilot/internal/store/execlog"
	"adapilot/internal/store/signallog"
	"adapilot/internal/tracker"
	livehttp "adapilot/internal/transport/http/live"
)

// AppBuilder assembles the pipeline from configuration. The fn fields exist
// so tests can substitute individual stages.
type AppBuilder struct {
	cfg *config.Config

	venueFn     func(config.VenueConfig) (venue.Venue, error)
	sourceFn    func(*config.Config) (algorithm.Source, error)
	notifierFn  func(config.NotifyConfig) notifier.TextNotifier
	execlogFn   func(string) (*execlog.Store, error)
	signallogFn func(string) (*signallog.Store, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		venueFn:     buildVenue,
		sourceFn:    buildSource,
		notifierFn:  buildNotifier,
		execlogFn:   execlog.New,
		signallogFn: signallog.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildVenue(cfg config.VenueConfig) (venue.Venue, error) {
	return strike.NewClient(cfg)
}

// buildSource picks the configured analysis source: the external engine over
// HTTP, or the local analyzer fed by exchange candles.
func buildSource(cfg *config.Config) (algorithm.Source, error) {
	switch cfg.Algorithm.Mode {
	case "http":
		return algorithm.NewHTTPSource(cfg.Algorithm)
	case "local":
		candles := binance.New(binance.Config{RESTBaseURL: cfg.Market.RESTBaseURL})
		return algorithm.NewLocalSource(candles, cfg.Market.Symbol, cfg.Market.KlineLimit), nil
	default:
		return nil, fmt.Errorf("unknown algorithm mode %q", cfg.Algorithm.Mode)
	}
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	if cfg.Telegram.Enabled {
		return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	return notifier.Nop{}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	v, err := b.venueFn(cfg.Venue)
	if err != nil {
		return nil, fmt.Errorf("building venue client: %w", err)
	}
	w, err := wallet.NewVenueWallet(cfg.Wallet.Address, v)
	if err != nil {
		return nil, err
	}
	source, err := b.sourceFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("building analysis source: %w", err)
	}
	notify := b.notifierFn(cfg.Notify)

	execStore, err := b.execlogFn(cfg.Store.ExecLogPath)
	if err != nil {
		return nil, fmt.Errorf("opening execution log: %w", err)
	}
	sigStore, err := b.signallogFn(cfg.Store.SignalLogPath)
	if err != nil {
		execStore.Close()
		return nil, fmt.Errorf("opening signal log: %w", err)
	}

	conv := signal.NewConverter(cfg.Converter)
	gen := generator.NewService(cfg.Generator, cfg.Algorithm.Timeframe, source, conv)

	trackCfg := cfg.Tracker
	if len(trackCfg.MonitoredWallets) == 0 {
		trackCfg.MonitoredWallets = []string{cfg.Wallet.Address}
	}
	tr := tracker.New(trackCfg, v, notify)

	exec := execution.NewService(cfg.Execution, v, w, tr, execStore)

	policy, err := manager.NewPolicyWatcher(cfg.Manager.PolicyPath)
	if err != nil {
		execStore.Close()
		sigStore.Close()
		return nil, fmt.Errorf("loading auto-execute policy: %w", err)
	}
	mgr := manager.New(cfg.Manager, gen, exec, tr, v, w, notify, execStore, policy)

	// Persist every accepted signal regardless of execution outcome.
	gen.Subscribe("signal-log", func(sig *signal.TradingSignal) {
		if err := sigStore.Save(context.Background(), sig); err != nil {
			logger.Errorf("app: persisting signal %s failed: %v", sig.ID, err)
		}
	})

	live := &liveService{
		generator: gen,
		manager:   mgr,
		tracker:   tr,
		execlog:   execStore,
		signallog: sigStore,
	}
	liveHTTP, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Pipeline: live,
	})
	if err != nil {
		execStore.Close()
		sigStore.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		generator: gen,
		tracker:   tr,
		manager:   mgr,
		liveHTTP:  liveHTTP,
		execlog:   execStore,
		signallog: sigStore,
	}, nil
}
