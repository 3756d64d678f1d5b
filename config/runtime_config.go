package config

// RuntimeConfig defines the subset of the configuration that can be
// safely modified at runtime through the web API. It excludes pins,
// storage layout and broker settings.
type RuntimeConfig struct {
	Thresholds ThresholdsConfig `yaml:"Thresholds" json:"Thresholds"`
	Control    ControlConfig    `yaml:"Control" json:"Control"`
}

func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		Thresholds: c.Thresholds,
		Control:    c.Control,
	}
}
