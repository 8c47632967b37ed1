package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"milestone-escrow/dispute"
	"milestone-escrow/funding"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	LevelDB   LevelDBConfig   `mapstructure:"leveldb"`
	Payout    PayoutConfig    `mapstructure:"payout"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Events    EventsConfig    `mapstructure:"events"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Escrow    EscrowConfig    `mapstructure:"escrow"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"app_log_file"` // empty logs to stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

// PayoutConfig configures the balance book. It lives in its own LevelDB
// because the ledger's write transaction is held while payouts run.
type PayoutConfig struct {
	Path    string   `mapstructure:"path"`
	Blocked []string `mapstructure:"blocked"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Workers  int           `mapstructure:"workers"`
}

type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type AdminConfig struct {
	Identities []string `mapstructure:"identities"`
}

type EscrowConfig struct {
	MinFundingGoal     string        `mapstructure:"min_funding_goal"` // decimal base units
	MaxDurationDays    int           `mapstructure:"max_duration_days"`
	MinValidations     int           `mapstructure:"min_validations"`
	PlatformFeePercent uint64        `mapstructure:"platform_fee_percent"`
	VotingDuration     time.Duration `mapstructure:"voting_duration"`
	MinReputation      uint64        `mapstructure:"min_reputation"`
	DisputeQuorum      int           `mapstructure:"dispute_quorum"`
	ValidationReward   uint64        `mapstructure:"validation_reward"`
	DisputeVoteReward  uint64        `mapstructure:"dispute_vote_reward"`
	ValidationWindow   time.Duration `mapstructure:"validation_window"`
	PlatformAccount    string        `mapstructure:"platform_account"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("leveldb.path", "data/ledger")
	v.SetDefault("payout.path", "data/payouts")
	v.SetDefault("payout.blocked", []string{})

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.workers", 4)

	v.SetDefault("events.buffer", 64)
	v.SetDefault("admin.identities", []string{})

	v.SetDefault("escrow.min_funding_goal", "10000000000000000")
	v.SetDefault("escrow.max_duration_days", 365)
	v.SetDefault("escrow.min_validations", 3)
	v.SetDefault("escrow.platform_fee_percent", 1)
	v.SetDefault("escrow.voting_duration", 7*24*time.Hour)
	v.SetDefault("escrow.min_reputation", 10)
	v.SetDefault("escrow.dispute_quorum", 10)
	v.SetDefault("escrow.validation_reward", 10)
	v.SetDefault("escrow.dispute_vote_reward", 5)
	v.SetDefault("escrow.validation_window", 30*24*time.Hour)
	v.SetDefault("escrow.platform_account", "platform")
}

// Load reads path (or config.yaml from . or ./config when path is empty),
// applies ESCROW_ environment overrides and validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("escrow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Escrow.FundingParams(); err != nil {
		return err
	}
	switch {
	case c.Escrow.DisputeQuorum < 1:
		return errors.New("escrow.dispute_quorum must be at least 1")
	case c.Escrow.VotingDuration <= 0:
		return errors.New("escrow.voting_duration must be positive")
	case c.Scheduler.Enabled && c.Scheduler.Interval <= 0:
		return errors.New("scheduler.interval must be positive")
	case c.LevelDB.Path == "" || c.Payout.Path == "":
		return errors.New("leveldb.path and payout.path are required")
	case c.LevelDB.Path == c.Payout.Path:
		return errors.New("leveldb.path and payout.path must differ")
	}
	return nil
}

func (e EscrowConfig) FundingParams() (funding.Params, error) {
	goal, err := uint256.FromDecimal(e.MinFundingGoal)
	if err != nil {
		return funding.Params{}, fmt.Errorf("escrow.min_funding_goal: %w", err)
	}
	switch {
	case e.MaxDurationDays < 1:
		return funding.Params{}, errors.New("escrow.max_duration_days must be at least 1")
	case e.MinValidations < 1:
		return funding.Params{}, errors.New("escrow.min_validations must be at least 1")
	case e.PlatformFeePercent > 100:
		return funding.Params{}, errors.New("escrow.platform_fee_percent must be at most 100")
	case e.PlatformAccount == "":
		return funding.Params{}, errors.New("escrow.platform_account is required")
	}
	return funding.Params{
		MinFundingGoal:     goal,
		MaxDurationDays:    e.MaxDurationDays,
		MinValidations:     e.MinValidations,
		PlatformFeePercent: e.PlatformFeePercent,
		MinReputation:      e.MinReputation,
		ValidationReward:   e.ValidationReward,
		ValidationWindow:   e.ValidationWindow,
		PlatformAccount:    e.PlatformAccount,
	}, nil
}

func (e EscrowConfig) DisputeParams() dispute.Params {
	return dispute.Params{
		VotingDuration:    e.VotingDuration,
		MinReputation:     e.MinReputation,
		Quorum:            e.DisputeQuorum,
		DisputeVoteReward: e.DisputeVoteReward,
	}
}
