package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the provisioner.
// PostgresDSN and NATSUrl are optional; leaving either empty disables the
// corresponding collaborator (audit trail, event publishing).
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Remote PBX API (NS API) connection details.
	PBXAPIBaseURL        string `mapstructure:"PBX_API_BASE_URL"`
	PBXAPIToken          string `mapstructure:"PBX_API_TOKEN"`
	PBXAPITimeoutSeconds int    `mapstructure:"PBX_API_TIMEOUT_SECONDS"`

	PostgresDSN string `mapstructure:"POSTGRES_DSN"`
	NATSUrl     string `mapstructure:"NATS_URL"`

	// Directory import files are written into when relative paths are given.
	ExportPath string `mapstructure:"EXPORT_PATH"`
}

// Load reads config.defaults.yaml (if present) layered under APP_* environment
// variables. serviceName is kept for future per-tool config overlays.
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config.defaults")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix("APP") // APP_LOG_LEVEL, APP_PBX_API_TOKEN etc.

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PBX_API_BASE_URL", "https://pbx.example.com/ns-api/v2")
	v.SetDefault("PBX_API_TOKEN", "")
	v.SetDefault("PBX_API_TIMEOUT_SECONDS", 15)
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("EXPORT_PATH", ".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Base configuration file ('config.defaults.yaml') not found; using defaults and environment variables.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
