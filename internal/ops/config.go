package ops

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"scalper/internal/lifecycle"
	"scalper/internal/risk"
	"scalper/internal/schema"
	"scalper/internal/sizing"
	"scalper/pkg/exception"
)

const (
	TransportUDS = "uds"
	TransportWS  = "ws"
)

// FileConfig mirrors the JSON config layout. Absent fields keep their defaults.
type FileConfig struct {
	Symbol    string               `json:"symbol"`
	Risk      RiskConfig           `json:"risk"`
	Sizing    sizing.SizerConfig   `json:"sizing"`
	Planner   sizing.PlannerConfig `json:"planner"`
	Lifecycle lifecycle.Config     `json:"lifecycle"`
	Order     OrderConfig          `json:"order"`
	WinRate   WinRateConfig        `json:"winRate"`
	Registry  RegistryConfig       `json:"registry"`
	Channel   ChannelConfig        `json:"channel"`
	Broker    BrokerConfig         `json:"broker"`
	Paper     PaperConfig          `json:"paper"`
	Storage   StorageConfig        `json:"storage"`
	Engine    EngineConfig         `json:"engine"`
	API       APIConfig            `json:"api"`
}

// RiskConfig holds admission limits. Intervals are in seconds.
type RiskConfig struct {
	ConfidenceThreshold      float64 `json:"confidenceThreshold"`
	MinVolatility            float64 `json:"minVolatility"`
	MaxTradesPerSymbol       int     `json:"maxTradesPerSymbol"`
	MaxDailyLoss             float64 `json:"maxDailyLoss"`
	MinSignalIntervalSeconds float64 `json:"minSignalIntervalSeconds"`
}

// OrderConfig describes how entries are sent to the broker.
type OrderConfig struct {
	MaxSlippage int    `json:"maxSlippage"`
	Magic       int    `json:"magic"`
	TagPrefix   string `json:"tagPrefix"`
}

// WinRateConfig selects the historical win rate fed to the sizer.
type WinRateConfig struct {
	Value float64 `json:"value"`
	// Adaptive switches to the realized win rate once MinSamples trades closed.
	Adaptive   bool `json:"adaptive"`
	MinSamples int  `json:"minSamples"`
}

// RegistryConfig defines per-symbol specs and the fallback for unknown symbols.
type RegistryConfig struct {
	Fallback schema.SymbolSpec   `json:"fallback"`
	Symbols  []schema.SymbolSpec `json:"symbols"`
}

// ChannelConfig describes the signal channel.
type ChannelConfig struct {
	Transport                string  `json:"transport"`
	Path                     string  `json:"path"`
	URL                      string  `json:"url"`
	HeartbeatIntervalSeconds float64 `json:"heartbeatIntervalSeconds"`
	MaxFrameSize             int     `json:"maxFrameSize"`
	InboundSize              int     `json:"inboundSize"`
}

// BrokerConfig points at the HTTP terminal bridge.
type BrokerConfig struct {
	URL            string  `json:"url"`
	TimeoutSeconds float64 `json:"timeoutSeconds"`
}

// PaperConfig tunes the simulated broker and quote walk.
type PaperConfig struct {
	Balance    float64 `json:"balance"`
	StartPrice float64 `json:"startPrice"`
	Spread     float64 `json:"spread"`
	Volatility float64 `json:"volatility"`
	Seed       int64   `json:"seed"`

	// Fault injection for rehearsals. Zero disables it.
	RejectRate    float64 `json:"rejectRate"`
	QueryFailRate float64 `json:"queryFailRate"`
	MaxDelayMs    int     `json:"maxDelayMs"`
}

// StorageConfig selects snapshot and journal backends.
type StorageConfig struct {
	SnapshotDir  string `json:"snapshotDir"`
	RedisURL     string `json:"redisUrl"`
	DatabaseURL  string `json:"databaseUrl"`
	JournalDir   string `json:"journalDir"`
	JournalQueue int    `json:"journalQueue"`
}

// EngineConfig controls the control loop.
type EngineConfig struct {
	TickIntervalMs int64  `json:"tickIntervalMs"`
	ATRPeriod      int    `json:"atrPeriod"`
	Timezone       string `json:"timezone"`
}

// APIConfig controls the operator status server.
type APIConfig struct {
	Addr string `json:"addr"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Version  uint64
	Symbol   string
	Registry *schema.Registry

	Risk      risk.Config
	Sizing    sizing.SizerConfig
	Planner   sizing.PlannerConfig
	Lifecycle lifecycle.Config
	Order     OrderConfig
	WinRate   WinRateConfig
	Channel   ChannelConfig
	Broker    BrokerConfig
	Paper     PaperConfig
	Storage   StorageConfig
	API       APIConfig

	HeartbeatInterval time.Duration
	TickInterval      time.Duration
	BrokerTimeout     time.Duration
	ATRPeriod         int
	Location          *time.Location
}

// DefaultFile returns the file layout with every default filled in.
func DefaultFile() FileConfig {
	rc := risk.DefaultConfig("EURUSD")
	return FileConfig{
		Symbol: rc.Symbol,
		Risk: RiskConfig{
			ConfidenceThreshold: rc.ConfidenceThreshold,
			MinVolatility:       rc.MinVolatility,
			MaxTradesPerSymbol:  rc.MaxTradesPerSymbol,
			MaxDailyLoss:        rc.MaxDailyLoss,
		},
		Sizing:    sizing.DefaultSizerConfig(),
		Planner:   sizing.DefaultPlannerConfig(),
		Lifecycle: lifecycle.DefaultConfig(),
		Order: OrderConfig{
			MaxSlippage: 3,
			Magic:       20240101,
			TagPrefix:   "scalp",
		},
		WinRate: WinRateConfig{Value: 0.55, MinSamples: 20},
		Registry: RegistryConfig{
			Fallback: schema.SymbolSpec{Name: "*", MaxSpread: 0.0003, TickValue: 100000, LotStep: 0.01},
		},
		Channel: ChannelConfig{
			Transport:                TransportUDS,
			Path:                     "/tmp/scalper-signals.sock",
			HeartbeatIntervalSeconds: 60,
			MaxFrameSize:             64 * 1024,
			InboundSize:              256,
		},
		Broker: BrokerConfig{URL: "http://127.0.0.1:8765", TimeoutSeconds: 5},
		Paper: PaperConfig{
			Balance:    10000,
			StartPrice: 1.1000,
			Spread:     0.0001,
			Volatility: 0.0008,
			Seed:       1,
		},
		Storage: StorageConfig{SnapshotDir: "data", JournalDir: "data/journal", JournalQueue: 1024},
		Engine:  EngineConfig{TickIntervalMs: 500, ATRPeriod: 14, Timezone: "UTC"},
		API:     APIConfig{Addr: ":8080"},
	}
}

// Default returns the resolved defaults.
func Default() Loaded {
	loaded, err := Resolve(DefaultFile())
	if err != nil {
		panic(err)
	}
	return loaded
}

// Load reads a JSON config file over the defaults, applies environment
// overrides and resolves the result.
func Load(path string) (Loaded, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// LoadFile returns the defaults overlaid with path and the environment.
// An empty path uses the defaults only.
func LoadFile(path string) (FileConfig, error) {
	cfg := DefaultFile()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return FileConfig{}, errors.Wrap(err, "read config").With("path", path)
		}
		if err := sonic.ConfigDefault.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, errors.Wrap(err, "decode config").With("path", path)
		}
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// Resolve validates cfg and builds the runtime form.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, "timezone").With("timezone", cfg.Engine.Timezone)
	}
	loaded := Loaded{
		Symbol:   cfg.Symbol,
		Registry: registry,
		Risk: risk.Config{
			Symbol:              cfg.Symbol,
			ConfidenceThreshold: cfg.Risk.ConfidenceThreshold,
			MinVolatility:       cfg.Risk.MinVolatility,
			MaxTradesPerSymbol:  cfg.Risk.MaxTradesPerSymbol,
			MaxDailyLoss:        cfg.Risk.MaxDailyLoss,
			MinSignalInterval:   seconds(cfg.Risk.MinSignalIntervalSeconds),
		},
		Sizing:            cfg.Sizing,
		Planner:           cfg.Planner,
		Lifecycle:         cfg.Lifecycle,
		Order:             cfg.Order,
		WinRate:           cfg.WinRate,
		Channel:           cfg.Channel,
		Broker:            cfg.Broker,
		Paper:             cfg.Paper,
		Storage:           cfg.Storage,
		API:               cfg.API,
		HeartbeatInterval: seconds(cfg.Channel.HeartbeatIntervalSeconds),
		TickInterval:      time.Duration(cfg.Engine.TickIntervalMs) * time.Millisecond,
		BrokerTimeout:     seconds(cfg.Broker.TimeoutSeconds),
		ATRPeriod:         cfg.Engine.ATRPeriod,
		Location:          loc,
	}
	// The planner and the sizer share one stop multiplier.
	loaded.Planner.SLMultiplier = loaded.Sizing.SLMultiplier
	loaded.Lifecycle.MinLot = loaded.Sizing.MinLot
	if spec := registry.Lookup(cfg.Symbol); spec.LotStep > 0 {
		loaded.Lifecycle.LotStep = spec.LotStep
	}
	if err := loaded.Validate(); err != nil {
		return Loaded{}, err
	}
	return loaded, nil
}

// Validate rejects nonsensical limits.
func (l Loaded) Validate() error {
	invalid := func(field string, value any) error {
		return errors.Wrap(exception.ErrConfigInvalid, field).With("value", value)
	}
	switch {
	case l.Symbol == "":
		return exception.ErrConfigEmptySymbol
	case l.Risk.ConfidenceThreshold < 0 || l.Risk.ConfidenceThreshold > 1:
		return invalid("risk.confidenceThreshold", l.Risk.ConfidenceThreshold)
	case l.Risk.MinVolatility < 0:
		return invalid("risk.minVolatility", l.Risk.MinVolatility)
	case l.Risk.MaxTradesPerSymbol < 0:
		return invalid("risk.maxTradesPerSymbol", l.Risk.MaxTradesPerSymbol)
	case l.Risk.MaxDailyLoss < 0 || l.Risk.MaxDailyLoss > 1:
		return invalid("risk.maxDailyLoss", l.Risk.MaxDailyLoss)
	case l.Risk.MinSignalInterval < 0:
		return invalid("risk.minSignalIntervalSeconds", l.Risk.MinSignalInterval)
	case l.Sizing.RiskPercent < 0 || l.Sizing.RiskPercent > 1:
		return invalid("sizing.riskPercent", l.Sizing.RiskPercent)
	case l.Sizing.MinLot <= 0:
		return invalid("sizing.minLot", l.Sizing.MinLot)
	case l.Sizing.MinLot > l.Sizing.MaxLot:
		return invalid("sizing.maxLot", l.Sizing.MaxLot)
	case l.Sizing.SLMultiplier <= 0:
		return invalid("sizing.slMultiplier", l.Sizing.SLMultiplier)
	case !ascending(l.Planner.TPMultiples):
		return invalid("planner.tpMultiples", l.Planner.TPMultiples)
	case l.WinRate.Value < 0 || l.WinRate.Value > 1:
		return invalid("winRate.value", l.WinRate.Value)
	case l.Lifecycle.TP1Trigger <= 0 || l.Lifecycle.TP2Trigger < l.Lifecycle.TP1Trigger:
		return invalid("lifecycle.tp2Trigger", l.Lifecycle.TP2Trigger)
	case l.Lifecycle.TrailMode != lifecycle.TrailATR && l.Lifecycle.TrailMode != lifecycle.TrailStatic:
		return invalid("lifecycle.trailMode", l.Lifecycle.TrailMode)
	case l.Channel.Transport != TransportUDS && l.Channel.Transport != TransportWS:
		return invalid("channel.transport", l.Channel.Transport)
	case l.HeartbeatInterval <= 0:
		return invalid("channel.heartbeatIntervalSeconds", l.Channel.HeartbeatIntervalSeconds)
	case l.TickInterval <= 0:
		return invalid("engine.tickIntervalMs", l.TickInterval)
	case l.ATRPeriod <= 0:
		return invalid("engine.atrPeriod", l.ATRPeriod)
	}
	return nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	if cfg.Fallback.MaxSpread <= 0 || cfg.Fallback.TickValue <= 0 {
		return nil, errors.Wrap(exception.ErrConfigInvalid, "registry.fallback").With("fallback", cfg.Fallback)
	}
	reg := schema.NewRegistry(cfg.Fallback)
	for _, sym := range cfg.Symbols {
		if err := reg.Add(sym); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func ascending(levels [3]float64) bool {
	return levels[0] > 0 && levels[0] < levels[1] && levels[1] < levels[2]
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
