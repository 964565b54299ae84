package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	OCR    OCRConfig    `yaml:"ocr" mapstructure:"ocr"`
	Fields FieldsConfig `yaml:"fields" mapstructure:"fields"`
}

// ServerConfig configures the verification HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// OCRConfig configures the external field-extraction stage.
type OCRConfig struct {
	Provider      string   `yaml:"provider" mapstructure:"provider"`
	Command       string   `yaml:"command" mapstructure:"command"`
	Args          []string `yaml:"args" mapstructure:"args"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit     float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxAttempts   int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	SidecarSuffix string   `yaml:"sidecar_suffix" mapstructure:"sidecar_suffix"`
}

// FieldsConfig configures the document field registry.
type FieldsConfig struct {
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_secs", 60)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ocr.provider", "process")
	v.SetDefault("ocr.command", "python3")
	v.SetDefault("ocr.args", []string{"ocr_service.py"})
	v.SetDefault("ocr.timeout_secs", 120)
	v.SetDefault("ocr.rate_limit", 2)
	v.SetDefault("ocr.max_attempts", 3)
	v.SetDefault("ocr.sidecar_suffix", ".json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
