// Package config loads queueloss settings.
// Order: defaults → optional YAML file → QUEUELOSS_* environment.
// A Config is immutable after Load.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"queueloss/internal/domain"
	"queueloss/internal/engine"
	"queueloss/internal/loss"
	"queueloss/internal/queueing"
	"queueloss/internal/variability"
)

// EnvPrefix prefixes every environment override, e.g. QUEUELOSS_LOG_LEVEL.
const EnvPrefix = "QUEUELOSS"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database" // postgres + clickhouse
)

// ErrInvalidConfig is returned by Load and Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Loss    loss.Params   `mapstructure:"loss"`
	Policy  engine.Policy `mapstructure:"policy"`

	// Capacity is keyed by location type.
	Capacity map[string]CapacityConfig `mapstructure:"capacity"`
	// Locations overrides capacity for single location ids.
	Locations map[string]LocationConfig `mapstructure:"locations"`

	byType     map[domain.LocationType]domain.CapacityConstraint
	byLocation map[string]domain.CapacityConstraint
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text (colored), json
}

// StorageConfig selects and addresses the stores.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
	Migrate       bool   `mapstructure:"migrate"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr             string        `mapstructure:"addr"`
	MetricsNamespace string        `mapstructure:"metrics_namespace"`
	RunInterval      time.Duration `mapstructure:"run_interval"`
}

// EngineConfig holds calculator thresholds and the day-run limits.
type EngineConfig struct {
	ConfidenceLevel            float64       `mapstructure:"confidence_level"`
	MinDataPoints              int           `mapstructure:"min_data_points"`
	ServiceRateEstimator       string        `mapstructure:"service_rate_estimator"`
	EntropyMinSamples          int           `mapstructure:"entropy_min_samples"`
	ServiceCVFallback          float64       `mapstructure:"service_cv_fallback"`
	StabilityWindow            int           `mapstructure:"stability_window"`
	VerificationTolerance      float64       `mapstructure:"verification_tolerance"`
	ExpectedObservationsPerDay int           `mapstructure:"expected_observations_per_day"`
	DisplayRhoCap              float64       `mapstructure:"display_rho_cap"`
	Budget                     time.Duration `mapstructure:"budget"`
	Concurrency                int           `mapstructure:"concurrency"`
}

// CapacityConfig is the fixed capacity of a service point.
type CapacityConfig struct {
	Servers           int     `mapstructure:"servers"`
	QueueCapacity     int     `mapstructure:"queue_capacity"`
	TargetUtilization float64 `mapstructure:"target_utilization"`
}

// LocationConfig overrides the capacity of one location.
// An empty Type keeps the type reported by measurements.
type LocationConfig struct {
	Type           string `mapstructure:"type"`
	CapacityConfig `mapstructure:",squash"`
}

// defaultCapacities per location type: servers, queue capacity.
var defaultCapacities = map[domain.LocationType][2]int{
	domain.LocationFrontDesk:    {3, 50},
	domain.LocationRestaurant:   {25, 30},
	domain.LocationLobby:        {2, 20},
	domain.LocationHousekeeping: {2, 20},
	domain.LocationConcierge:    {2, 20},
	domain.LocationValet:        {2, 20},
	domain.LocationSpa:          {2, 20},
	domain.LocationGym:          {2, 20},
}

// LoadDotEnv loads .env style files into the process environment.
// Missing files are ignored; existing variables are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration. An empty path searches for queueloss.yaml in
// ., ./config and /etc/queueloss; a missing file is not an error then.
// An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("queueloss")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/queueloss")
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

// Default returns the configuration Load yields with no file and no environment.
func Default() *Config {
	cfg := &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Backend: BackendMemory, Migrate: true},
		Server: ServerConfig{
			Addr:             ":9090",
			MetricsNamespace: "queueloss",
			RunInterval:      time.Hour,
		},
		Engine: EngineConfig{
			ConfidenceLevel:            queueing.DefaultConfidenceLevel,
			MinDataPoints:              domain.DefaultMinDataPoints,
			ServiceRateEstimator:       string(queueing.DefaultServiceRateEstimator),
			EntropyMinSamples:          variability.DefaultMinDataPoints,
			ServiceCVFallback:          variability.DefaultServiceCV,
			StabilityWindow:            variability.DefaultWindowSize,
			VerificationTolerance:      queueing.DefaultVerificationTolerance,
			ExpectedObservationsPerDay: engine.DefaultExpectedObservationsPerDay,
			DisplayRhoCap:              domain.DefaultDisplayRhoCap,
			Budget:                     30 * time.Second,
		},
		Loss:      loss.DefaultParams(),
		Policy:    engine.DefaultPolicy(0),
		Capacity:  make(map[string]CapacityConfig, len(defaultCapacities)),
		Locations: map[string]LocationConfig{},
	}
	for t, c := range defaultCapacities {
		cfg.Capacity[string(t)] = CapacityConfig{
			Servers:           c[0],
			QueueCapacity:     c[1],
			TargetUtilization: domain.DefaultTargetUtilization,
		}
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.migrate", d.Storage.Migrate)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.metrics_namespace", d.Server.MetricsNamespace)
	v.SetDefault("server.run_interval", d.Server.RunInterval)

	e := d.Engine
	v.SetDefault("engine.confidence_level", e.ConfidenceLevel)
	v.SetDefault("engine.min_data_points", e.MinDataPoints)
	v.SetDefault("engine.service_rate_estimator", e.ServiceRateEstimator)
	v.SetDefault("engine.entropy_min_samples", e.EntropyMinSamples)
	v.SetDefault("engine.service_cv_fallback", e.ServiceCVFallback)
	v.SetDefault("engine.stability_window", e.StabilityWindow)
	v.SetDefault("engine.verification_tolerance", e.VerificationTolerance)
	v.SetDefault("engine.expected_observations_per_day", e.ExpectedObservationsPerDay)
	v.SetDefault("engine.display_rho_cap", e.DisplayRhoCap)
	v.SetDefault("engine.budget", e.Budget)
	v.SetDefault("engine.concurrency", e.Concurrency)

	l := d.Loss
	v.SetDefault("loss.avg_revenue_per_customer", l.AvgRevenuePerCustomer)
	v.SetDefault("loss.customer_lifetime_value", l.CustomerLifetimeValue)
	v.SetDefault("loss.customer_time_value_per_minute", l.CustomerTimeValuePerMinute)
	v.SetDefault("loss.acceptable_wait_minutes", l.AcceptableWaitMinutes)
	v.SetDefault("loss.labor_cost_per_hour", l.LaborCostPerHour)
	v.SetDefault("loss.overtime_multiplier", l.OvertimeMultiplier)
	v.SetDefault("loss.walkaway_threshold_minutes", l.WalkawayThresholdMinutes)
	v.SetDefault("loss.walkaway_probability_per_minute", l.WalkawayProbabilityPerMinute)
	v.SetDefault("loss.conservative_factor", l.ConservativeFactor)
	v.SetDefault("loss.walkaway_probability_cap", l.WalkawayProbabilityCap)
	v.SetDefault("loss.entropy_multiplier_cap", l.EntropyMultiplierCap)
	v.SetDefault("loss.throughput_buffer", l.ThroughputBuffer)
	v.SetDefault("loss.idle_utilization_band", l.IdleUtilizationBand)
	v.SetDefault("loss.unknown_utilization", l.UnknownUtilization)
	v.SetDefault("loss.lifetime_value_share", l.LifetimeValueShare)

	p := d.Policy
	v.SetDefault("policy.peak_staff_hourly_cost", p.PeakStaffHourlyCost)
	v.SetDefault("policy.default_peak_hours", p.DefaultPeakHours)
	v.SetDefault("policy.add_capacity_cost", p.AddCapacityCost)
	v.SetDefault("policy.queue_management_cost", p.QueueManagementCost)
	bands := map[string]engine.Band{
		"wait_recovery":     p.WaitRecovery,
		"capacity_recovery": p.CapacityRecovery,
		"walkaway_recovery": p.WalkawayRecovery,
		"idle_recovery":     p.IdleRecovery,
		"general_recovery":  p.GeneralRecovery,
	}
	for name, b := range bands {
		v.SetDefault("policy."+name+".min", b.Min)
		v.SetDefault("policy."+name+".max", b.Max)
	}
	v.SetDefault("policy.wait_confidence", p.WaitConfidence)
	v.SetDefault("policy.capacity_confidence", p.CapacityConfidence)
	v.SetDefault("policy.walkaway_confidence", p.WalkawayConfidence)
	v.SetDefault("policy.idle_confidence", p.IdleConfidence)
	v.SetDefault("policy.general_confidence", p.GeneralConfidence)

	for t, c := range d.Capacity {
		v.SetDefault("capacity."+t+".servers", c.Servers)
		v.SetDefault("capacity."+t+".queue_capacity", c.QueueCapacity)
		v.SetDefault("capacity."+t+".target_utilization", c.TargetUtilization)
	}
}

// Validate checks every value and builds the capacity tables.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendDatabase:
		if c.Storage.PostgresDSN == "" || c.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn and storage.clickhouse_dsn are required for the %s backend", ErrInvalidConfig, BackendDatabase)
		}
	default:
		return fmt.Errorf("%w: storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if c.Server.RunInterval <= 0 {
		return fmt.Errorf("%w: server.run_interval must be > 0, got %s", ErrInvalidConfig, c.Server.RunInterval)
	}

	e := c.Engine
	if e.ConfidenceLevel < 0.5 || e.ConfidenceLevel > 0.99 {
		return fmt.Errorf("%w: engine.confidence_level must be in [0.5, 0.99], got %g", ErrInvalidConfig, e.ConfidenceLevel)
	}
	if e.MinDataPoints < 5 {
		return fmt.Errorf("%w: engine.min_data_points must be >= 5, got %d", ErrInvalidConfig, e.MinDataPoints)
	}
	if !queueing.ServiceRateEstimator(e.ServiceRateEstimator).IsValid() {
		return fmt.Errorf("%w: engine.service_rate_estimator must be %q or %q, got %q", ErrInvalidConfig,
			queueing.ServiceRateBusyServer, queueing.ServiceRateDeparture, e.ServiceRateEstimator)
	}
	if e.EntropyMinSamples < 1 {
		return fmt.Errorf("%w: engine.entropy_min_samples must be >= 1, got %d", ErrInvalidConfig, e.EntropyMinSamples)
	}
	if e.ServiceCVFallback < 0 {
		return fmt.Errorf("%w: engine.service_cv_fallback must be >= 0, got %g", ErrInvalidConfig, e.ServiceCVFallback)
	}
	if e.StabilityWindow < 2 {
		return fmt.Errorf("%w: engine.stability_window must be >= 2, got %d", ErrInvalidConfig, e.StabilityWindow)
	}
	if !(e.VerificationTolerance > 0 && e.VerificationTolerance < 1) {
		return fmt.Errorf("%w: engine.verification_tolerance must be in (0, 1), got %g", ErrInvalidConfig, e.VerificationTolerance)
	}
	if e.ExpectedObservationsPerDay < 1 {
		return fmt.Errorf("%w: engine.expected_observations_per_day must be >= 1, got %d", ErrInvalidConfig, e.ExpectedObservationsPerDay)
	}
	if e.DisplayRhoCap < 1 {
		return fmt.Errorf("%w: engine.display_rho_cap must be >= 1, got %g", ErrInvalidConfig, e.DisplayRhoCap)
	}
	if e.Budget < 0 || e.Concurrency < 0 {
		return fmt.Errorf("%w: engine.budget and engine.concurrency must be >= 0", ErrInvalidConfig)
	}

	if err := c.Loss.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := validatePolicy(c.Policy); err != nil {
		return err
	}
	return c.buildCapacities()
}

func validatePolicy(p engine.Policy) error {
	if p.PeakStaffHourlyCost < 0 || p.AddCapacityCost < 0 || p.QueueManagementCost < 0 {
		return fmt.Errorf("%w: policy costs must be >= 0", ErrInvalidConfig)
	}
	if p.DefaultPeakHours < 1 {
		return fmt.Errorf("%w: policy.default_peak_hours must be >= 1, got %d", ErrInvalidConfig, p.DefaultPeakHours)
	}
	bands := []struct {
		name string
		band engine.Band
	}{
		{"wait_recovery", p.WaitRecovery},
		{"capacity_recovery", p.CapacityRecovery},
		{"walkaway_recovery", p.WalkawayRecovery},
		{"idle_recovery", p.IdleRecovery},
		{"general_recovery", p.GeneralRecovery},
	}
	for _, b := range bands {
		if b.band.Min < 0 || b.band.Max > 1 || b.band.Min > b.band.Max {
			return fmt.Errorf("%w: policy.%s must satisfy 0 <= min <= max <= 1", ErrInvalidConfig, b.name)
		}
	}
	for _, conf := range []float64{p.WaitConfidence, p.CapacityConfidence, p.WalkawayConfidence, p.IdleConfidence, p.GeneralConfidence} {
		if conf < 0 || conf > 1 {
			return fmt.Errorf("%w: policy confidences must be in [0, 1]", ErrInvalidConfig)
		}
	}
	return nil
}

func (c *Config) buildCapacities() error {
	byType := make(map[domain.LocationType]domain.CapacityConstraint, len(c.Capacity))
	for name, cc := range c.Capacity {
		t := domain.LocationType(name)
		if !t.IsValid() {
			return fmt.Errorf("%w: capacity.%s: unknown location type", ErrInvalidConfig, name)
		}
		constraint, err := domain.NewCapacityConstraint(t, cc.Servers, cc.QueueCapacity, targetOrDefault(cc.TargetUtilization))
		if err != nil {
			return fmt.Errorf("%w: capacity.%s: %w", ErrInvalidConfig, name, err)
		}
		byType[t] = constraint
	}

	byLocation := make(map[string]domain.CapacityConstraint, len(c.Locations))
	for id, lc := range c.Locations {
		t := domain.LocationType(lc.Type)
		if lc.Type != "" && !t.IsValid() {
			return fmt.Errorf("%w: locations.%s: unknown location type %q", ErrInvalidConfig, id, lc.Type)
		}
		constraint, err := domain.NewCapacityConstraint(t, lc.Servers, lc.QueueCapacity, targetOrDefault(lc.TargetUtilization))
		if err != nil {
			return fmt.Errorf("%w: locations.%s: %w", ErrInvalidConfig, id, err)
		}
		byLocation[strings.ToLower(id)] = constraint
	}

	c.byType = byType
	c.byLocation = byLocation
	return nil
}

func targetOrDefault(u float64) float64 {
	if u == 0 {
		return domain.DefaultTargetUtilization
	}
	return u
}

// CapacityLookup resolves capacity by location id override first, then by
// location type. Location ids are matched case-insensitively.
func (c *Config) CapacityLookup() domain.CapacityLookup {
	return func(locationID string, locationType domain.LocationType) *domain.CapacityConstraint {
		if constraint, ok := c.byLocation[strings.ToLower(locationID)]; ok {
			if constraint.LocationType() == "" {
				constraint = domain.MustCapacityConstraint(locationType, constraint.MaxServers(), constraint.MaxQueueCapacity(), constraint.TargetUtilization())
			}
			return &constraint
		}
		if constraint, ok := c.byType[locationType]; ok {
			return &constraint
		}
		return nil
	}
}

// OverriddenLocations returns the location ids with explicit capacity, sorted.
func (c *Config) OverriddenLocations() []string {
	ids := make([]string, 0, len(c.byLocation))
	for id := range c.byLocation {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnginePolicy returns the recommendation policy. A zero peak staff rate is
// priced at the configured labor rate.
func (c *Config) EnginePolicy() engine.Policy {
	p := c.Policy
	if p.PeakStaffHourlyCost == 0 {
		p.PeakStaffHourlyCost = c.Loss.LaborCostPerHour
	}
	return p
}

// EngineOptions builds engine options around calc.
func (c *Config) EngineOptions(calc *loss.Calculator, logger *slog.Logger) engine.Options {
	policy := c.EnginePolicy()
	e := c.Engine
	return engine.Options{
		Littles: queueing.LittlesLawCalculator{
			ConfidenceLevel: e.ConfidenceLevel,
			MinDataPoints:   e.MinDataPoints,
			ServiceRate:     queueing.ServiceRateEstimator(e.ServiceRateEstimator),
		},
		Entropy:                    variability.Calculator{MinDataPoints: e.EntropyMinSamples, ServiceCVFallback: e.ServiceCVFallback},
		Stability:                  variability.StabilityAnalyzer{WindowSize: e.StabilityWindow},
		Loss:                       calc,
		Policy:                     &policy,
		VerificationTolerance:      e.VerificationTolerance,
		ExpectedObservationsPerDay: e.ExpectedObservationsPerDay,
		DisplayRhoCap:              e.DisplayRhoCap,
		Budget:                     e.Budget,
		Concurrency:                e.Concurrency,
		Logger:                     logger,
	}
}

// NewEngine builds the loss calculator and engine from the configuration.
func (c *Config) NewEngine(logger *slog.Logger) (*engine.Engine, error) {
	calc, err := loss.NewCalculator(c.Loss)
	if err != nil {
		return nil, err
	}
	return engine.New(c.EngineOptions(calc, logger))
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
