package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/chassisctl/chassisctl.toml"
	DefaultEnvPrefix  = "CHASSISCTL"
	DefaultLogLevel   = "info"
	DefaultMetricsDB  = "/var/lib/chassisctl/metrics.db"
	DefaultMQTTTopic  = "chassisctl/cooling"
	configEnv         = "CONFIG"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	CoolingDataPoints   int     `mapstructure:"cooling_data_points"`
	CoolingMaxDecrease  float64 `mapstructure:"cooling_max_decrease"`
	CoolingMaxIncrease  float64 `mapstructure:"cooling_max_increase"`
	CoolingMinSpeed     float64 `mapstructure:"cooling_min_speed"`
	CoolingTargetOffset float64 `mapstructure:"cooling_target_offset"`
	CoolingTargetFactor float64 `mapstructure:"cooling_target_factor"`
	CoolingExportPath   string  `mapstructure:"cooling_export_path"`
	CoolingGCCount      int     `mapstructure:"cooling_gc_count"`
	CoolingXcvrsViaAPI  bool    `mapstructure:"cooling_xcvrs_via_api"`
	CoolingLoopInterval int     `mapstructure:"cooling_loop_interval"`
	WriteHWThresholds   bool    `mapstructure:"write_hw_thresholds"`

	Simulation    bool   `mapstructure:"simulation"`
	LogLevel      string `mapstructure:"log_level"`
	ThermalPolicy string `mapstructure:"thermal_policy"`

	StateDB        string `mapstructure:"state_db"`
	ChassisDB      string `mapstructure:"chassis_db"`
	PlatformAPI    string `mapstructure:"platform_api"`
	InventoryHwmon bool   `mapstructure:"inventory_hwmon"`
	InventoryNVML  bool   `mapstructure:"inventory_nvml"`

	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsDB      string `mapstructure:"metrics_db"`
	// MetricsRetention is in hours, 0 keeps every sample
	MetricsRetention int    `mapstructure:"metrics_retention"`
	MQTTBroker       string `mapstructure:"mqtt_broker"`
	MQTTTopic        string `mapstructure:"mqtt_topic"`
	StatusListen     string `mapstructure:"status_listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cooling_data_points", 10)
	v.SetDefault("cooling_max_decrease", 10.0)
	v.SetDefault("cooling_max_increase", 25.0)
	v.SetDefault("cooling_min_speed", 30.0)
	v.SetDefault("cooling_target_offset", 0.0)
	v.SetDefault("cooling_target_factor", 0.8)
	v.SetDefault("cooling_export_path", "")
	v.SetDefault("cooling_gc_count", 15)
	v.SetDefault("cooling_xcvrs_via_api", false)
	v.SetDefault("cooling_loop_interval", 20)
	v.SetDefault("write_hw_thresholds", true)
	v.SetDefault("simulation", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("thermal_policy", "")
	v.SetDefault("state_db", "")
	v.SetDefault("chassis_db", "")
	v.SetDefault("platform_api", "")
	v.SetDefault("inventory_hwmon", true)
	v.SetDefault("inventory_nvml", false)
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("metrics_db", DefaultMetricsDB)
	v.SetDefault("metrics_retention", 7*24)
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_topic", DefaultMQTTTopic)
	v.SetDefault("status_listen", "")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("chassisctl", pflag.ContinueOnError)
	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Int("interval", 20, "Seconds between control ticks")
	fs.String("policy", "", "Thermal policy JSON file")
	fs.String("export-path", "", "Directory for per-zone cooling exports")
	fs.Bool("simulation", false, "Do not export zone state")

	return fs
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level":   "log_level",
	"interval":    "cooling_loop_interval",
	"policy":      "thermal_policy",
	"export-path": "cooling_export_path",
	"simulation":  "simulation",
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: DefaultEnvPrefix,
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path := resolveConfigPath(o, fs)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			// The default path is optional, an explicit one is not.
			if !(path == DefaultConfigPath && os.IsNotExist(unwrapPathError(err))) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolveConfigPath(o *options, fs *pflag.FlagSet) string {
	if o.configPath != "" {
		return o.configPath
	}
	if p, err := fs.GetString("config"); err == nil && p != "" {
		return p
	}
	if p, ok := os.LookupEnv(o.envPrefix + "_" + configEnv); ok {
		return p
	}

	return DefaultConfigPath
}

func unwrapPathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr
	}
	return err
}
