package logger

// Config configures the logger.
type Config struct {
	// Level is the minimum level: debug, info, warn, error or fatal.
	Level string `env:"LOG_LEVEL" yaml:"level"`
	// Development disables sampling.
	Development bool `env:"LOG_DEVELOPMENT" yaml:"development"`
	// OutputPaths lists zap sinks (stdout, stderr or file paths).
	OutputPaths []string `env:"LOG_OUTPUT_PATHS" yaml:"output_paths"`
	// Service is attached to every entry.
	Service string `yaml:"service"`
}

// Defaults.
const (
	DefaultLevel   = "info"
	DefaultService = "progress-scraper"
)

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stdout"}
	}
	if c.Service == "" {
		c.Service = DefaultService
	}
}
