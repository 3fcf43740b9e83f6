package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Cache      CacheConfig      `json:"cache"`
	Extraction ExtractionConfig `json:"extraction"`
	Logging    LoggingConfig    `json:"logging"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	// Backend selects the graph store: "memory", "sqlite", "postgres",
	// or "neo4j".
	Backend  string         `json:"backend"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type CacheConfig struct {
	Enabled bool `json:"enabled"`
	MaxSize int  `json:"max_size"`
	// Redis switches the cache from in-process to shared when set.
	Redis RedisConfig `json:"redis"`
}

type RedisConfig struct {
	URL        string `json:"url"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type ExtractionConfig struct {
	// Enabled wires the heuristic extractor so text can be absorbed
	// without caller-provided triplets.
	Enabled bool `json:"enabled"`
}

type LoggingConfig struct {
	// StoreContent keeps raw interaction content in the log table instead
	// of a content reference.
	StoreContent bool `json:"store_content"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "memory"
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "ghostkg.db"
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.Redis.TTLSeconds == 0 {
		c.Cache.Redis.TTLSeconds = 300
	}
}
