// Package config loads metis settings from defaults, an optional metis.yaml,
// a .env file and METIS_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/pkg/models"
)

const (
	configName = "metis"
	envPrefix  = "METIS"

	DefaultPort      = 8011
	DefaultTelosPort = 8008
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Telos    TelosConfig    `mapstructure:"telos"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port" validate:"min=1,max=65535"`
	APIPrefix      string   `mapstructure:"api_prefix" validate:"required,startswith=/"`
	WebSocketPath  string   `mapstructure:"websocket_path" validate:"required,startswith=/"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig locates the SQLite file. ":memory:" keeps the graph in
// memory only.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

func (d DatabaseConfig) InMemory() bool {
	return d.Path == ":memory:"
}

type SnapshotConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	Auto bool   `mapstructure:"auto"`
}

type TelosConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Port    int           `mapstructure:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type EventsConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" validate:"gt=0"`
	QueueSize       int           `mapstructure:"queue_size" validate:"min=1"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.path", ".metis/metis.db")

	v.SetDefault("snapshot.path", ".metis/snapshot.jsonl")
	v.SetDefault("snapshot.auto", false)

	v.SetDefault("telos.port", DefaultTelosPort)
	v.SetDefault("telos.timeout", 10*time.Second)

	v.SetDefault("events.delivery_timeout", 5*time.Second)
	v.SetDefault("events.queue_size", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration. file, when set, must exist; otherwise metis.yaml
// is looked up in the working directory and in .metis/.
func Load(file string) (*Config, error) {
	// a missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.InvalidArgumentf("read .env: %v", err)
	}
	return load(viper.New(), file)
}

func load(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// short aliases kept for existing deployments
	_ = v.BindEnv("server.port", "METIS_SERVER_PORT", "METIS_PORT")
	_ = v.BindEnv("telos.port", "METIS_TELOS_PORT", "TELOS_PORT")
	_ = v.BindEnv("telos.url")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath(".metis")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.InvalidArgumentf("read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.InvalidArgumentf("decode config: %v", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.Telos.URL == "" {
		cfg.Telos.URL = fmt.Sprintf("http://localhost:%d", cfg.Telos.Port)
	}

	if err := models.ValidateStruct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
