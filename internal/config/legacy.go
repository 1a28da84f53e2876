package config

import "gopkg.in/ini.v1"

// LegacyConfig is the subset of probeutil.ini's [DEFAULT] section still
// honored for scripts that predate the YAML/viper config.
type LegacyConfig struct {
	Probe string
	Chip  string
}

// LoadLegacyINI reads path (as returned by LegacyPath) using ini.v1.
func LoadLegacyINI(path string) (*LegacyConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	section := f.Section("DEFAULT")
	return &LegacyConfig{
		Probe: section.Key("probe").MustString(""),
		Chip:  section.Key("chip").MustString(""),
	}, nil
}
