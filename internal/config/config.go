// Package config loads probeutil's runtime settings: which probe/chip to
// target by default, the wire protocol, and the flash-builder policy flags.
// Settings come from a probeutil.yaml found via a cwd/env-dir/home-dir
// search path, bound through viper so CLI flags and environment variables
// override the file without any bespoke precedence code.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the settings every probeutil subcommand reads.
type Config struct {
	Probe    string // serial number or identifier substring, "" = first found
	Protocol string // "swd" or "jtag"
	Chip     string // target name as listed under a family's variants (e.g. "nrf51822"), matched exactly
	Timeout  int    // seconds; read and stored, but no command applies it (core polls use core.PollBudget)

	DoChipErase           bool
	RestoreUnwrittenBytes bool

	Quiet   bool
	Verbose bool
}

// BindFlags registers the flags Load reads as persistent flags on the
// root command.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("probe", "", "probe serial number or identifier substring")
	flags.String("protocol", "swd", "wire protocol: swd or jtag")
	flags.String("chip", "", "target name, e.g. nrf51822")
	flags.Int("timeout", 15, "timeout in seconds (stored in the configuration; not applied by any command)")
	flags.Bool("chip-erase", false, "erase the whole chip instead of touched sectors")
	flags.Bool("restore-unwritten", false, "preserve untouched bytes within a programmed page")
	flags.Bool("quiet", false, "suppress info-level logging")
	flags.Bool("verbose", false, "enable debug-level logging")
}

// Load reads probeutil.yaml from the current directory, $PROBEUTIL_CONFIG,
// or the user's home directory (in that precedence order), then overlays
// any bound flags and PROBEUTIL_-prefixed environment variables.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("probeutil")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir := os.Getenv("PROBEUTIL_CONFIG"); dir != "" {
		v.AddConfigPath(dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	v.SetEnvPrefix("PROBEUTIL")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	v.SetDefault("protocol", "swd")
	v.SetDefault("timeout", 15)

	yamlFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: %w", err)
		}
		yamlFound = false
	}

	cfg := &Config{
		Probe:                 v.GetString("probe"),
		Protocol:              v.GetString("protocol"),
		Chip:                  v.GetString("chip"),
		Timeout:               v.GetInt("timeout"),
		DoChipErase:           v.GetBool("chip-erase"),
		RestoreUnwrittenBytes: v.GetBool("restore-unwritten"),
		Quiet:                 v.GetBool("quiet"),
		Verbose:               v.GetBool("verbose"),
	}

	// Scripts written against the ini-based config that predates YAML+viper
	// still work: if no probeutil.yaml was found and no flag/env var set
	// probe or chip, fall back to a probeutil.ini in the current directory or
	// the user's home directory (see LegacyPath; $PROBEUTIL_CONFIG is not
	// searched for it).
	if !yamlFound && cfg.Probe == "" && cfg.Chip == "" {
		if path, err := LegacyPath(); err == nil {
			legacy, err := LoadLegacyINI(path)
			if err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
			cfg.Probe = legacy.Probe
			cfg.Chip = legacy.Chip
		}
	}

	return cfg, nil
}

// LegacyPath returns the path to a probeutil.ini file if one exists in the
// current directory or the user's home directory, for back-compat with
// scripts written against the ini-based config that predates YAML+viper.
func LegacyPath() (string, error) {
	candidates := []string{filepath.Join(".", "probeutil.ini")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "probeutil.ini"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config: no probeutil.ini found")
}
