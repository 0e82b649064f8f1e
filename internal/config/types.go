package config

// Config is the top-level configuration carrier for adapilot.
type Config struct {
	App       AppConfig       `toml:"app"`
	Algorithm AlgorithmConfig `toml:"algorithm"`
	Market    MarketConfig    `toml:"market"`
	Generator GeneratorConfig `toml:"generator"`
	Converter ConverterConfig `toml:"converter"`
	Execution ExecutionConfig `toml:"execution"`
	Tracker   TrackerConfig   `toml:"tracker"`
	Manager   ManagerConfig   `toml:"manager"`
	Venue     VenueConfig     `toml:"venue"`
	Wallet    WalletConfig    `toml:"wallet"`
	Notify    NotifyConfig    `toml:"notify"`
	Store     StoreConfig     `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// AlgorithmConfig describes how raw market analysis is obtained: either the
// external analysis engine over HTTP, or the built-in local analyzer.
type AlgorithmConfig struct {
	Mode           string `toml:"mode"` // "http" | "local"
	APIURL         string `toml:"api_url"`
	APIToken       string `toml:"api_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Timeframe      string `toml:"timeframe"`
}

// MarketConfig feeds the local analyzer with candles.
type MarketConfig struct {
	RESTBaseURL string `toml:"rest_base_url"`
	Symbol      string `toml:"symbol"`
	KlineLimit  int    `toml:"kline_limit"`
}

type GeneratorConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	MaxSignalsPerHour   int `toml:"max_signals_per_hour"`
	DedupWindowMinutes  int `toml:"dedup_window_minutes"`
	CacheHorizonMinutes int `toml:"cache_horizon_minutes"`
	ErrorWindow         int `toml:"error_window"`
}

type ConverterConfig struct {
	BasePositionSize  float64 `toml:"base_position_size"`
	MaxPositionSize   float64 `toml:"max_position_size"`
	BaseStopLossPct   float64 `toml:"base_stop_loss_pct"`
	BaseTakeProfitPct float64 `toml:"base_take_profit_pct"`
	ExpiryMinutes     int     `toml:"expiry_minutes"`
	AlgorithmName     string  `toml:"algorithm_name"`
	AlgorithmVersion  string  `toml:"algorithm_version"`
}

type ExecutionConfig struct {
	MinConfidence    float64 `toml:"min_confidence"`
	MaxLeverage      float64 `toml:"max_leverage"`
	DefaultLeverage  float64 `toml:"default_leverage"`
	EstimatedFeePct  float64 `toml:"estimated_fee_pct"`
	MaxAttempts      int     `toml:"max_attempts"`
	BackoffBaseMs    int     `toml:"backoff_base_ms"`
	BudgetSeconds    int     `toml:"budget_seconds"`
	MinPositionSize  float64 `toml:"min_position_size"`
	MaxPositionSize  float64 `toml:"max_position_size"`
}

type TrackerConfig struct {
	PollIntervalSeconds     int      `toml:"poll_interval_seconds"`
	PositionIntervalSeconds int      `toml:"position_interval_seconds"`
	HistoryLimit            int      `toml:"history_limit"`
	LiquidationAlertPct     float64  `toml:"liquidation_alert_pct"`
	MonitoredWallets        []string `toml:"monitored_wallets"`
}

type ManagerConfig struct {
	AutoExecute bool   `toml:"auto_execute"`
	PolicyPath  string `toml:"policy_path"`
}

// VenueConfig describes access to the external perpetuals venue.
type VenueConfig struct {
	APIURL         string  `toml:"api_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Asset          string  `toml:"asset"`
	MinTradeAmount float64 `toml:"min_trade_amount"`
	MaxLeverage    float64 `toml:"max_leverage"`

	BreakerThreshold       int `toml:"breaker_threshold"`
	BreakerCooldownSeconds int `toml:"breaker_cooldown_seconds"`
}

type WalletConfig struct {
	Address string `toml:"address"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type StoreConfig struct {
	ExecLogPath   string `toml:"exec_log_path"`
	SignalLogPath string `toml:"signal_log_path"`
}
