package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/fredphp/yunwei/internal/model"
)

// Policy holds the tunable thresholds of the analytics passes and the accounts to track.
type Policy struct {
	Aggregation AggregationPolicy    `mapstructure:"aggregation"`
	Waste       WastePolicy          `mapstructure:"waste"`
	Idle        IdlePolicy           `mapstructure:"idle"`
	Forecast    ForecastPolicy       `mapstructure:"forecast"`
	Accounts    []model.CloudAccount `mapstructure:"accounts"`
}

// AggregationPolicy bounds cost aggregation requests.
type AggregationPolicy struct {
	TopServices   int           `mapstructure:"top_services"`
	MaxWindowDays int           `mapstructure:"max_window_days"`
	Anomaly       AnomalyPolicy `mapstructure:"anomaly"`
}

// AnomalyPolicy configures daily cost anomaly detection. A day is compared with the mean of
// the WindowDays before it and flagged beyond Sigma standard deviations.
type AnomalyPolicy struct {
	WindowDays int     `mapstructure:"window_days"`
	Sigma      float64 `mapstructure:"sigma"`
}

// SeverityTiers maps hourly cost onto severity. A resource costing at least Critical per
// hour is critical, and so on down; anything cheaper than Medium is low.
type SeverityTiers struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
}

// WastePolicy configures the waste detector.
type WastePolicy struct {
	SampleWindow              int           `mapstructure:"sample_window"`
	ZombieGraceDays           int           `mapstructure:"zombie_grace_days"`
	UnusedCPUPercent          float64       `mapstructure:"unused_cpu_percent"`
	OverprovisionedPercent    float64       `mapstructure:"overprovisioned_percent"`
	OverprovisionedCategories []string      `mapstructure:"overprovisioned_categories"`
	MinimalSizes              []string      `mapstructure:"minimal_sizes"`
	TerminableFraction        float64       `mapstructure:"terminable_fraction"`
	DownsizableFraction       float64       `mapstructure:"downsizable_fraction"`
	Severity                  SeverityTiers `mapstructure:"severity"`
}

// IdlePolicy configures the idle resource tracker.
type IdlePolicy struct {
	SampleWindow     int     `mapstructure:"sample_window"`
	MinIdleDays      int     `mapstructure:"min_idle_days"`
	StoppedLongDays  int     `mapstructure:"stopped_long_days"`
	CPUPercent       float64 `mapstructure:"cpu_percent"`
	NetworkBytes     float64 `mapstructure:"network_bytes"`
	RecoveryFraction float64 `mapstructure:"recovery_fraction"`
}

// ForecastPolicy configures the budget forecaster.
type ForecastPolicy struct {
	TrailingMonths        int     `mapstructure:"trailing_months"`
	HorizonMonths         int     `mapstructure:"horizon_months"`
	MaxGrowthStep         float64 `mapstructure:"max_growth_step"`
	DecreaseRatio         float64 `mapstructure:"decrease_ratio"`
	DefaultAlertThreshold float64 `mapstructure:"default_alert_threshold"`
	TrendDays             int     `mapstructure:"trend_days"`
}

func setPolicyDefaults(v *viper.Viper) {
	v.SetDefault("aggregation.top_services", 20)
	v.SetDefault("aggregation.max_window_days", 366)
	v.SetDefault("aggregation.anomaly.window_days", 7)
	v.SetDefault("aggregation.anomaly.sigma", 2.0)

	v.SetDefault("waste.sample_window", 24)
	v.SetDefault("waste.zombie_grace_days", 14)
	v.SetDefault("waste.unused_cpu_percent", 10.0)
	v.SetDefault("waste.overprovisioned_percent", 30.0)
	v.SetDefault("waste.overprovisioned_categories", []string{"compute", "database"})
	v.SetDefault("waste.minimal_sizes", []string{"nano", "micro", "small"})
	v.SetDefault("waste.terminable_fraction", 0.9)
	v.SetDefault("waste.downsizable_fraction", 0.5)
	v.SetDefault("waste.severity.critical", 1.0)
	v.SetDefault("waste.severity.high", 0.5)
	v.SetDefault("waste.severity.medium", 0.1)

	v.SetDefault("idle.sample_window", 720)
	v.SetDefault("idle.min_idle_days", 7)
	v.SetDefault("idle.stopped_long_days", 14)
	v.SetDefault("idle.cpu_percent", 5.0)
	v.SetDefault("idle.network_bytes", 1024.0)
	v.SetDefault("idle.recovery_fraction", 0.8)

	v.SetDefault("forecast.trailing_months", 3)
	v.SetDefault("forecast.horizon_months", 1)
	v.SetDefault("forecast.max_growth_step", 0.1)
	v.SetDefault("forecast.decrease_ratio", 0.95)
	v.SetDefault("forecast.default_alert_threshold", 80.0)
	v.SetDefault("forecast.trend_days", 30)
}

// DefaultPolicy returns the built-in thresholds with no tracked accounts.
func DefaultPolicy() Policy {
	v := viper.New()
	setPolicyDefaults(v)
	var p Policy
	_ = v.Unmarshal(&p)
	return p
}

// LoadPolicy reads the policy file at path, if any, over the built-in defaults. Individual
// keys can be overridden with YUNWEI_-prefixed environment variables, for example
// YUNWEI_WASTE_ZOMBIE_GRACE_DAYS.
func LoadPolicy(path string) (*Policy, error) {
	v := viper.New()
	setPolicyDefaults(v)
	v.SetEnvPrefix("YUNWEI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	for i := range p.Accounts {
		normalizeAccount(&p.Accounts[i])
	}
	return &p, nil
}

func normalizeAccount(a *model.CloudAccount) {
	if a.Provider == "" {
		a.Provider = model.CloudProviderAWS
	}
	if a.Status == "" {
		a.Status = model.AccountStatusActive
	}
	if a.ID == "" {
		a.ID = model.StableID("account", string(a.Provider), a.AccountID)
	}
}

// Validate checks the policy for values that would make a pass meaningless.
func (p Policy) Validate() error {
	switch {
	case p.Aggregation.MaxWindowDays <= 0:
		return fmt.Errorf("policy aggregation.max_window_days must be positive")
	case p.Aggregation.Anomaly.WindowDays < 2 || p.Aggregation.Anomaly.Sigma <= 0:
		return fmt.Errorf("policy aggregation.anomaly needs window_days of at least 2 and a positive sigma")
	case p.Waste.SampleWindow <= 0 || p.Idle.SampleWindow <= 0:
		return fmt.Errorf("policy sample_window must be positive")
	case p.Waste.TerminableFraction < 0 || p.Waste.TerminableFraction > 1,
		p.Waste.DownsizableFraction < 0 || p.Waste.DownsizableFraction > 1,
		p.Idle.RecoveryFraction < 0 || p.Idle.RecoveryFraction > 1:
		return fmt.Errorf("policy savings fractions must be within [0,1]")
	case p.Forecast.TrailingMonths <= 0:
		return fmt.Errorf("policy forecast.trailing_months must be positive")
	case p.Forecast.HorizonMonths <= 0:
		return fmt.Errorf("policy forecast.horizon_months must be positive")
	}
	for _, a := range p.Accounts {
		if a.AccountID == "" {
			return fmt.Errorf("policy account %q is missing account_id", a.Name)
		}
		if a.AlertThreshold < 0 || a.AlertThreshold > 1000 {
			return fmt.Errorf("policy account %s alert_threshold %.1f is out of range", a.AccountID, a.AlertThreshold)
		}
	}
	return nil
}
