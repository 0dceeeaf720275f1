package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReconcileConfig holds the default matching tolerances. Intermediary accounts
// may override both values individually. PauseAutoReconcile stops scheduled
// runs without a restart; manual runs are unaffected.
type ReconcileConfig struct {
	AmountEpsilon      string `mapstructure:"amountEpsilon"`
	DateToleranceDays  int    `mapstructure:"dateToleranceDays"`
	PauseAutoReconcile bool   `mapstructure:"pauseAutoReconcile"`
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		AmountEpsilon:     "0.00",
		DateToleranceDays: 3,
	}
}

// Epsilon returns the parsed amount tolerance. The value is validated on load.
func (c ReconcileConfig) Epsilon() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.AmountEpsilon))
	if err != nil {
		return decimal.Zero
	}
	return d
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig
}

// NewStaticReconcileConfigHolder returns a holder that never reloads.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReconcileConfigHolder(appCfg Config, log *zap.Logger) (*ReconcileConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	for _, path := range appCfg.ReconcileConfigPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("LEDGERCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcileConfig()
	v.SetDefault("reconcile.amountEpsilon", defaults.AmountEpsilon)
	v.SetDefault("reconcile.dateToleranceDays", defaults.DateToleranceDays)
	v.SetDefault("reconcile.pauseAutoReconcile", defaults.PauseAutoReconcile)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg ReconcileConfig
	if err := v.UnmarshalKey("reconcile", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconcileConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReconcileConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.reconcile")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconcileConfig
		if err := v.UnmarshalKey("reconcile", &updated); err != nil {
			log.Warn("reconcile config reload failed", zap.Error(err))
			return
		}
		if err := validateReconcileConfig(updated); err != nil {
			log.Warn("invalid reconcile config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reconcile config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	return h.current.Load().(ReconcileConfig)
}

func validateReconcileConfig(cfg ReconcileConfig) error {
	eps, err := decimal.NewFromString(strings.TrimSpace(cfg.AmountEpsilon))
	if err != nil {
		return errors.New("reconcile.amountEpsilon must be a decimal")
	}
	if eps.IsNegative() {
		return errors.New("reconcile.amountEpsilon cannot be negative")
	}
	if cfg.DateToleranceDays < 0 {
		return errors.New("reconcile.dateToleranceDays cannot be negative")
	}
	return nil
}
