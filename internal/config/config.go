package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = ".gpx2img/config.json"
	DefaultCachePath  = ".gpx2img/capture_cache.json"
	EnvPrefix         = "GPX2IMG"
)

// Config holds one geotagging run's settings.
type Config struct {
	Tracks      string        `mapstructure:"tracks"`
	Photos      string        `mapstructure:"photos"`
	Timezone    string        `mapstructure:"timezone"`
	Tolerance   int           `mapstructure:"tolerance"` // minutes
	Offset      time.Duration `mapstructure:"offset"`    // added to camera time
	Commit      bool          `mapstructure:"commit"`
	Overwrite   bool          `mapstructure:"overwrite"`
	LogLevel    string        `mapstructure:"log_level"`
	Pushgateway string        `mapstructure:"pushgateway"`
	Cache       string        `mapstructure:"cache"`
}

// ToleranceDuration returns the tolerance as a duration.
func (c Config) ToleranceDuration() time.Duration {
	return time.Duration(c.Tolerance) * time.Minute
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// flag name -> config key
var flagKeys = map[string]string{
	"tracks":      "tracks",
	"photos":      "photos",
	"timezone":    "timezone",
	"tolerance":   "tolerance",
	"offset":      "offset",
	"commit":      "commit",
	"overwrite":   "overwrite",
	"log-level":   "log_level",
	"pushgateway": "pushgateway",
	"cache":       "cache",
}

// Flags returns the command-line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	set := pflag.NewFlagSet(name, pflag.ContinueOnError)
	set.String("config", "", "config file (default ~/"+DefaultConfigPath+")")
	set.String("tracks", "", "directory holding .gpx and .nmea track logs")
	set.String("photos", "", "directory holding the JPEG photos to tag")
	set.String("timezone", "UTC", "IANA time zone the camera clock was set to")
	set.Int("tolerance", 10, "largest accepted gap between photo and trackpoint, in minutes")
	set.Duration("offset", 0, "correction added to camera time before matching, e.g. -1m30s")
	set.Bool("commit", false, "write GPS tags into the photos")
	set.Bool("dry-run", false, "report matches without writing (the default)")
	set.Bool("overwrite", false, "replace GPS tags that are already present")
	set.String("log-level", "info", "debug, info, warn or error")
	set.String("pushgateway", "", "Prometheus Pushgateway URL for run metrics")
	set.String("cache", "", "capture time cache file, \"off\" to disable (default ~/"+DefaultCachePath+")")
	return set
}

// Load merges defaults, the JSON config file, GPX2IMG_* environment
// variables and flags, in increasing order of precedence.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()

	v.SetDefault("tracks", "")
	v.SetDefault("photos", "")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("tolerance", 10)
	v.SetDefault("offset", "0s")
	v.SetDefault("commit", false)
	v.SetDefault("overwrite", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("pushgateway", "")
	v.SetDefault("cache", "")
	if home != "" {
		v.SetDefault("cache", filepath.Join(home, DefaultCachePath))
	}

	v.SetConfigType("json")
	configPath, _ := flags.GetString("config")
	explicit := configPath != ""
	if !explicit && home != "" {
		configPath = filepath.Join(home, DefaultConfigPath)
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to read config file at %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if dryRun, _ := flags.GetBool("dry-run"); dryRun {
		if flags.Changed("commit") && cfg.Commit {
			return Config{}, errors.New("--commit and --dry-run are mutually exclusive")
		}
		cfg.Commit = false
	}
	if strings.EqualFold(cfg.Cache, "off") {
		cfg.Cache = ""
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a runnable batch.
func (c Config) Validate() error {
	var errs []string

	for _, d := range []struct{ key, path string }{{"tracks", c.Tracks}, {"photos", c.Photos}} {
		if d.path == "" {
			errs = append(errs, d.key+" directory is required")
			continue
		}
		info, err := os.Stat(d.path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s directory: %v", d.key, err))
			continue
		}
		if !info.IsDir() {
			errs = append(errs, fmt.Sprintf("%s: %s is not a directory", d.key, d.path))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Tolerance < 0 {
		errs = append(errs, fmt.Sprintf("tolerance must not be negative, got %d", c.Tolerance))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
