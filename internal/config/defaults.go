package config

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9982"

	defaultAlgorithmMode    = "local"
	defaultAlgorithmTimeout = 15
	defaultTimeframe        = "15m"

	defaultMarketREST   = "https://fapi.binance.com"
	defaultMarketSymbol = "ADAUSDT"
	defaultKlineLimit   = 200

	defaultPollInterval    = 300
	defaultMaxPerHour      = 10
	defaultDedupWindowMin  = 30
	defaultCacheHorizonMin = 120
	defaultErrorWindow     = 5
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 120

	defaultBasePositionSize  = 50
	defaultMaxPositionSize   = 200
	defaultBaseStopLossPct   = 0.05
	defaultBaseTakeProfitPct = 0.10
	defaultExpiryMinutes     = 30
	defaultAlgorithmName     = "ADA Custom Algorithm"
	defaultAlgorithmVersion  = "1.0"

	defaultMinConfidence   = 70
	defaultMaxLeverage     = 10
	defaultLeverage        = 2
	defaultEstimatedFeePct = 0.003
	defaultMaxAttempts     = 3
	defaultBackoffBaseMs   = 500
	defaultBudgetSeconds   = 30
	defaultMinPosition     = 40

	defaultTxPollSeconds       = 10
	defaultPositionPollSeconds = 30
	defaultHistoryLimit        = 1000
	defaultLiquidationAlert    = 0.05

	defaultVenueTimeout   = 20
	defaultVenueAsset     = "ADA"
	defaultVenueMinAmount = 40
	defaultVenueMaxLev    = 10

	defaultPolicyPath    = "configs/auto_execute.yaml"
	defaultExecLogPath   = "data/execlog.db"
	defaultSignalLogPath = "data/signals.db"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Algorithm.applyDefaults()
	c.Market.applyDefaults()
	c.Generator.applyDefaults()
	c.Converter.applyDefaults()
	c.Execution.applyDefaults()
	c.Tracker.applyDefaults()
	c.Manager.applyDefaults()
	c.Venue.applyDefaults()
	c.Store.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (a *AlgorithmConfig) applyDefaults() {
	if a.Mode == "" {
		a.Mode = defaultAlgorithmMode
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = defaultAlgorithmTimeout
	}
	if a.Timeframe == "" {
		a.Timeframe = defaultTimeframe
	}
}

func (m *MarketConfig) applyDefaults() {
	if m.RESTBaseURL == "" {
		m.RESTBaseURL = defaultMarketREST
	}
	if m.Symbol == "" {
		m.Symbol = defaultMarketSymbol
	}
	if m.KlineLimit <= 0 {
		m.KlineLimit = defaultKlineLimit
	}
}

func (g *GeneratorConfig) applyDefaults() {
	if g.PollIntervalSeconds <= 0 {
		g.PollIntervalSeconds = defaultPollInterval
	}
	if g.MaxSignalsPerHour <= 0 {
		g.MaxSignalsPerHour = defaultMaxPerHour
	}
	if g.DedupWindowMinutes <= 0 {
		g.DedupWindowMinutes = defaultDedupWindowMin
	}
	if g.CacheHorizonMinutes <= 0 {
		g.CacheHorizonMinutes = defaultCacheHorizonMin
	}
	if g.ErrorWindow <= 0 {
		g.ErrorWindow = defaultErrorWindow
	}
}

func (c *ConverterConfig) applyDefaults() {
	if c.BasePositionSize <= 0 {
		c.BasePositionSize = defaultBasePositionSize
	}
	if c.MaxPositionSize <= 0 {
		c.MaxPositionSize = defaultMaxPositionSize
	}
	if c.BaseStopLossPct <= 0 {
		c.BaseStopLossPct = defaultBaseStopLossPct
	}
	if c.BaseTakeProfitPct <= 0 {
		c.BaseTakeProfitPct = defaultBaseTakeProfitPct
	}
	if c.ExpiryMinutes <= 0 {
		c.ExpiryMinutes = defaultExpiryMinutes
	}
	if c.AlgorithmName == "" {
		c.AlgorithmName = defaultAlgorithmName
	}
	if c.AlgorithmVersion == "" {
		c.AlgorithmVersion = defaultAlgorithmVersion
	}
}

func (e *ExecutionConfig) applyDefaults() {
	if e.MinConfidence <= 0 {
		e.MinConfidence = defaultMinConfidence
	}
	if e.MaxLeverage <= 0 {
		e.MaxLeverage = defaultMaxLeverage
	}
	if e.DefaultLeverage <= 0 {
		e.DefaultLeverage = defaultLeverage
	}
	if e.EstimatedFeePct <= 0 {
		e.EstimatedFeePct = defaultEstimatedFeePct
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = defaultMaxAttempts
	}
	if e.BackoffBaseMs <= 0 {
		e.BackoffBaseMs = defaultBackoffBaseMs
	}
	if e.BudgetSeconds <= 0 {
		e.BudgetSeconds = defaultBudgetSeconds
	}
	if e.MinPositionSize <= 0 {
		e.MinPositionSize = defaultMinPosition
	}
	if e.MaxPositionSize <= 0 {
		e.MaxPositionSize = defaultMaxPositionSize
	}
}

func (t *TrackerConfig) applyDefaults() {
	if t.PollIntervalSeconds <= 0 {
		t.PollIntervalSeconds = defaultTxPollSeconds
	}
	if t.PositionIntervalSeconds <= 0 {
		t.PositionIntervalSeconds = defaultPositionPollSeconds
	}
	if t.HistoryLimit <= 0 {
		t.HistoryLimit = defaultHistoryLimit
	}
	if t.LiquidationAlertPct <= 0 {
		t.LiquidationAlertPct = defaultLiquidationAlert
	}
}

func (m *ManagerConfig) applyDefaults() {
	if m.PolicyPath == "" {
		m.PolicyPath = defaultPolicyPath
	}
}

func (v *VenueConfig) applyDefaults() {
	if v.TimeoutSeconds <= 0 {
		v.TimeoutSeconds = defaultVenueTimeout
	}
	if v.Asset == "" {
		v.Asset = defaultVenueAsset
	}
	if v.MinTradeAmount <= 0 {
		v.MinTradeAmount = defaultVenueMinAmount
	}
	if v.MaxLeverage <= 0 {
		v.MaxLeverage = defaultVenueMaxLev
	}
	if v.BreakerThreshold <= 0 {
		v.BreakerThreshold = defaultBreakerFailures
	}
	if v.BreakerCooldownSeconds <= 0 {
		v.BreakerCooldownSeconds = defaultBreakerCooldown
	}
}

func (s *StoreConfig) applyDefaults() {
	if s.ExecLogPath == "" {
		s.ExecLogPath = defaultExecLogPath
	}
	if s.SignalLogPath == "" {
		s.SignalLogPath = defaultSignalLogPath
	}
}
