package logger

// Config holds logger configuration.
type Config struct {
	Level       string     `yaml:"level"`
	OutputPaths []string   `yaml:"output_paths"`
	File        FileConfig `yaml:"file"`
}

// FileConfig enables a size-rotated JSON log file next to the console
// output. An empty Path disables it.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Defaults returns the default logger configuration.
func (Config) Defaults() Config {
	return Config{
		Level:       "info",
		OutputPaths: []string{"stdout"},
		File: FileConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}
