// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/avolkoff/solana-sentry/internal/engine"
)

// TakeProfitTier mirrors engine.TakeProfitTier for config unmarshalling.
type TakeProfitTier struct {
	ThresholdPercent float64 `mapstructure:"threshold_percent"`
	ClosePercent     float64 `mapstructure:"close_percent"`
}

type Config struct {
	RPCList      []string `mapstructure:"rpc_list"`
	WebSocketURL string   `mapstructure:"websocket_url"`
	PrivateKey   string   `mapstructure:"private_key"`

	// Engine cadence and limits.
	TickDelay    int `mapstructure:"tick_delay"` // milliseconds between position checks
	Workers      int `mapstructure:"workers"`
	MaxPositions int `mapstructure:"max_positions"`

	// Entry sizing.
	BuyAmountSOL        float64 `mapstructure:"buy_amount_sol"`
	SlippageBps         int     `mapstructure:"slippage_bps"`
	PriorityFeeLamports uint64  `mapstructure:"priority_fee_lamports"`

	// Exit rules.
	StopLossPercent           float64          `mapstructure:"stop_loss_percent"`
	EmergencyStopPercent      float64          `mapstructure:"emergency_stop_percent"`
	TakeProfitTiers           []TakeProfitTier `mapstructure:"take_profit_tiers"`
	TrailingActivationPercent float64          `mapstructure:"trailing_activation_percent"`
	TrailingStopPercent       float64          `mapstructure:"trailing_stop_percent"`
	MaxHoldMinutes            int              `mapstructure:"max_hold_minutes"`
	TimeoutRequiresLoss       bool             `mapstructure:"timeout_requires_loss"`

	// Failure thresholds.
	MaxExecFailures int `mapstructure:"max_exec_failures"`
	MaxLoopErrors   int `mapstructure:"max_loop_errors"`

	// Discovery of new pump.fun mints. Disabled by default so the engine
	// can run as a pure exit manager over manually opened positions.
	DiscoveryEnabled bool `mapstructure:"discovery_enabled"`

	// Notifications.
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`

	// Trade log. PostgresURL takes precedence; SQLitePath is the
	// fallback; both empty disables persistence.
	PostgresURL string `mapstructure:"postgres_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	// Daily summary cron expression, empty disables the job.
	SummarySchedule string `mapstructure:"summary_schedule"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultTickDelay       = 1000
	DefaultWorkers         = 5
	DefaultMaxPositions    = 10
	DefaultSlippageBps     = 300
	DefaultPriorityFee     = 100_000
	DefaultMaxExecFailures = 5
	DefaultMaxLoopErrors   = 10
	DefaultSummaryCron     = "0 0 * * *"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"tick_delay":            DefaultTickDelay,
		"workers":               DefaultWorkers,
		"max_positions":         DefaultMaxPositions,
		"slippage_bps":          DefaultSlippageBps,
		"priority_fee_lamports": DefaultPriorityFee,
		"max_exec_failures":     DefaultMaxExecFailures,
		"max_loop_errors":       DefaultMaxLoopErrors,
		"summary_schedule":      DefaultSummaryCron,
		"sqlite_path":           "trades.db",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

// RiskParams converts the exit-rule section into the engine's validated form.
func (c *Config) RiskParams() engine.RiskParams {
	tiers := make([]engine.TakeProfitTier, len(c.TakeProfitTiers))
	for i, tier := range c.TakeProfitTiers {
		tiers[i] = engine.TakeProfitTier{
			ThresholdPercent: tier.ThresholdPercent,
			ClosePercent:     tier.ClosePercent,
		}
	}
	return engine.RiskParams{
		StopLossPercent:           c.StopLossPercent,
		EmergencyStopPercent:      c.EmergencyStopPercent,
		TakeProfitTiers:           tiers,
		TrailingActivationPercent: c.TrailingActivationPercent,
		TrailingStopPercent:       c.TrailingStopPercent,
		MaxHold:                   time.Duration(c.MaxHoldMinutes) * time.Minute,
		TimeoutRequiresLoss:       c.TimeoutRequiresLoss,
	}
}

// TickInterval returns the position check cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickDelay) * time.Millisecond
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	if cfg.PrivateKey == "" {
		return errors.New("missing private_key in configuration")
	}
	if cfg.DiscoveryEnabled && cfg.WebSocketURL == "" {
		return errors.New("discovery requires websocket_url")
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if err := cfg.RiskParams().Validate(); err != nil {
		return fmt.Errorf("exit rules: %w", err)
	}
	if (cfg.TelegramToken == "") != (cfg.TelegramChatID == "") {
		return errors.New("telegram_token and telegram_chat_id must be set together")
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.TickDelay <= 0 {
		return errors.New("invalid tick_delay")
	}
	if cfg.Workers < 0 {
		return errors.New("invalid workers count")
	}
	if cfg.MaxPositions <= 0 {
		return errors.New("invalid max_positions")
	}
	if cfg.BuyAmountSOL <= 0 {
		return errors.New("invalid buy_amount_sol")
	}
	if cfg.SlippageBps <= 0 || cfg.SlippageBps > 10000 {
		return errors.New("invalid slippage_bps")
	}
	if cfg.MaxHoldMinutes < 0 {
		return errors.New("invalid max_hold_minutes")
	}
	if cfg.MaxExecFailures < 0 {
		return errors.New("invalid max_exec_failures")
	}
	if cfg.MaxLoopErrors < 0 {
		return errors.New("invalid max_loop_errors")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("SENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envKey := v.GetString("PRIVATE_KEY")
	if envKey != "" {
		cfg.PrivateKey = envKey
	}

	envToken := v.GetString("TELEGRAM_TOKEN")
	if envToken != "" {
		cfg.TelegramToken = envToken
	}

	envPostgres := v.GetString("POSTGRES_URL")
	if envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
