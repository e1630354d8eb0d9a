package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MatchingConfig carries the matcher and detector tunables.
type MatchingConfig struct {
	AmountEpsilon        float64         `mapstructure:"amountEpsilon" json:"amount_epsilon"`
	AmountToleranceRatio float64         `mapstructure:"amountToleranceRatio" json:"amount_tolerance_ratio"`
	DateWindowDays       int             `mapstructure:"dateWindowDays" json:"date_window_days"`
	MinConfidence        float64         `mapstructure:"minConfidence" json:"min_confidence"`
	Weights              MatchingWeights `mapstructure:"weights" json:"weights"`
	MaxCandidates        int             `mapstructure:"maxCandidates" json:"max_candidates"`
	Workers              int             `mapstructure:"workers" json:"workers"`
	DiscrepancyTolerance float64         `mapstructure:"discrepancyTolerance" json:"discrepancy_tolerance"`
	HighSeverityRatio    float64         `mapstructure:"highSeverityRatio" json:"high_severity_ratio"`
}

type MatchingWeights struct {
	Amount        float64 `mapstructure:"amount" json:"amount"`
	Date          float64 `mapstructure:"date" json:"date"`
	InvoiceNumber float64 `mapstructure:"invoiceNumber" json:"invoice_number"`
}

func (w MatchingWeights) Total() float64 {
	return w.Amount + w.Date + w.InvoiceNumber
}

func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		AmountEpsilon:        0.01,
		AmountToleranceRatio: 0.05,
		DateWindowDays:       30,
		MinConfidence:        0.6,
		Weights: MatchingWeights{
			Amount:        0.4,
			Date:          0.3,
			InvoiceNumber: 0.3,
		},
		MaxCandidates:        500,
		Workers:              4,
		DiscrepancyTolerance: 0.01,
		HighSeverityRatio:    0.10,
	}
}

// MatchingConfigSource is read on every matching call so reloads apply to
// the next run without restarting.
type MatchingConfigSource interface {
	Get() MatchingConfig
}

// StaticMatchingConfig is a fixed source, used by tests and tools.
type StaticMatchingConfig MatchingConfig

func (c StaticMatchingConfig) Get() MatchingConfig { return MatchingConfig(c) }

type MatchingConfigHolder struct {
	current atomic.Value // holds MatchingConfig
}

func NewMatchingConfigHolder(log *zap.Logger) (*MatchingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("matching")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/soarecon")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SOARECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMatchingConfig()
	v.SetDefault("matching.amountEpsilon", defaults.AmountEpsilon)
	v.SetDefault("matching.amountToleranceRatio", defaults.AmountToleranceRatio)
	v.SetDefault("matching.dateWindowDays", defaults.DateWindowDays)
	v.SetDefault("matching.minConfidence", defaults.MinConfidence)
	v.SetDefault("matching.weights.amount", defaults.Weights.Amount)
	v.SetDefault("matching.weights.date", defaults.Weights.Date)
	v.SetDefault("matching.weights.invoiceNumber", defaults.Weights.InvoiceNumber)
	v.SetDefault("matching.maxCandidates", defaults.MaxCandidates)
	v.SetDefault("matching.workers", defaults.Workers)
	v.SetDefault("matching.discrepancyTolerance", defaults.DiscrepancyTolerance)
	v.SetDefault("matching.highSeverityRatio", defaults.HighSeverityRatio)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg MatchingConfig
	if err := v.UnmarshalKey("matching", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateMatchingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &MatchingConfigHolder{}
	holder.current.Store(cfg)

	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.matching")

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated MatchingConfig
			if err := v.UnmarshalKey("matching", &updated); err != nil {
				log.Warn("matching config reload failed", zap.Error(err))
				return
			}
			if err := ValidateMatchingConfig(updated); err != nil {
				log.Warn("invalid matching config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("matching config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewMatchingConfigHolderFrom builds a holder around a fixed value.
func NewMatchingConfigHolderFrom(cfg MatchingConfig) (*MatchingConfigHolder, error) {
	if err := ValidateMatchingConfig(cfg); err != nil {
		return nil, err
	}
	holder := &MatchingConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func (h *MatchingConfigHolder) Get() MatchingConfig {
	return h.current.Load().(MatchingConfig)
}

func ValidateMatchingConfig(cfg MatchingConfig) error {
	if cfg.AmountEpsilon < 0 {
		return errors.New("matching.amountEpsilon cannot be negative")
	}
	if cfg.AmountToleranceRatio < 0 {
		return errors.New("matching.amountToleranceRatio cannot be negative")
	}
	if cfg.DateWindowDays <= 0 {
		return errors.New("matching.dateWindowDays must be positive")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return errors.New("matching.minConfidence must be within [0,1]")
	}
	if cfg.Weights.Amount < 0 || cfg.Weights.Date < 0 || cfg.Weights.InvoiceNumber < 0 {
		return errors.New("matching.weights cannot be negative")
	}
	if cfg.Weights.Total() <= 0 {
		return errors.New("matching.weights must not all be zero")
	}
	if cfg.MaxCandidates <= 0 {
		return errors.New("matching.maxCandidates must be positive")
	}
	if cfg.Workers <= 0 {
		return errors.New("matching.workers must be positive")
	}
	if cfg.DiscrepancyTolerance < 0 {
		return errors.New("matching.discrepancyTolerance cannot be negative")
	}
	if cfg.HighSeverityRatio <= 0 {
		return errors.New("matching.highSeverityRatio must be positive")
	}
	return nil
}
