package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Metadata  MetadataConfig `mapstructure:"metadata"`
	Filter    FilterConfig   `mapstructure:"filter"`
	Auth      AuthConfig     `mapstructure:"auth"`
	Log       LogConfig      `mapstructure:"log"`
	JWTSecret string         `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// MetadataConfig selects where entity descriptors come from.
type MetadataConfig struct {
	Source string `mapstructure:"source"` // database or file
	Path   string `mapstructure:"path"`   // JSON file when source is file
}

type FilterConfig struct {
	MaxDepth       int  `mapstructure:"max_depth"`
	ScopeRelations bool `mapstructure:"scope_relations"` // validate relation filters against the related entity
}

type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		if d.Name == ":memory:" {
			return d.Name
		}
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// UsesDatabase reports whether metadata is read from the system tables.
func (m MetadataConfig) UsesDatabase() bool {
	return m.Source != "file"
}

// Load reads app.yaml from the working directory or the repository root.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads the given config file, or searches for app.yaml when path is
// empty. A missing app.yaml is not an error; defaults and environment apply.
// A .env file in the working directory is loaded first when present.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "rocket")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("metadata.source", "database")
	v.SetDefault("metadata.path", "./metadata.json")
	v.SetDefault("filter.max_depth", 32)
	v.SetDefault("filter.scope_relations", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
