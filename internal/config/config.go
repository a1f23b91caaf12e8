package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/regions/internal/geom"
)

// Regions holds all configuration for the region engine daemon.
type Regions struct {
	LogLevel string `yaml:"log_level"`

	// Authority: exactly one process in a deployment sets primary.
	Primary      bool         `yaml:"primary"`
	PrimaryWorld geom.WorldID `yaml:"primary_world"`
	PresetsWorld geom.WorldID `yaml:"presets_world"`

	Worlds []WorldConfig `yaml:"worlds"`

	Bulk BulkConfig `yaml:"bulk"`

	Districts  []DistrictConfig  `yaml:"districts"`
	RadioMasts []RadioMastConfig `yaml:"radio_masts"`

	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Database DatabaseConfig `yaml:"database"`
}

// WorldConfig describes one block world created at startup.
type WorldConfig struct {
	ID     geom.WorldID `yaml:"id"`
	MinY   int32        `yaml:"min_y"`
	Height int32        `yaml:"height"`
}

// DistrictConfig is a named group of chunk columns in one world.
type DistrictConfig struct {
	ID          int          `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	World       geom.WorldID `yaml:"world"`
	Chunks      []ChunkRef   `yaml:"chunks"`
}

// ChunkRef is a chunk column coordinate.
type ChunkRef struct {
	CX int32 `yaml:"cx"`
	CZ int32 `yaml:"cz"`
}

// RadioMastConfig places a radio mast.
type RadioMastConfig struct {
	Name  string       `yaml:"name"`
	World geom.WorldID `yaml:"world"`
	X     int32        `yaml:"x"`
	Z     int32        `yaml:"z"`
	Range int32        `yaml:"range"`
}

// BulkConfig sizes the bulk job pool.
type BulkConfig struct {
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	BackupDir string `yaml:"backup_dir"` // empty = no destination backups
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DatabaseConfig selects and parameterises region persistence.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`

	// postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// sqlite
	Path string `yaml:"path"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultRegions returns Regions config with sensible defaults.
func DefaultRegions() Regions {
	return Regions{
		LogLevel:     "info",
		Primary:      true,
		PrimaryWorld: "world",
		PresetsWorld: "presets",
		Worlds: []WorldConfig{
			{ID: "world", MinY: -64, Height: 384},
			{ID: "presets", MinY: -64, Height: 384},
		},
		Bulk: BulkConfig{
			Workers:   2,
			QueueSize: 64,
		},
		MetricsAddr:     ":9102",
		ShutdownTimeout: 10 * time.Second,
		Database: DatabaseConfig{
			Driver:   DriverSQLite,
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "regions",
			Password: "regions",
			DBName:   "regions",
			SSLMode:  "disable",
			Path:     "data/regions.db",
		},
	}
}

// Validate checks cross-field constraints.
func (c Regions) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Bulk.Workers <= 0 || c.Bulk.QueueSize <= 0 {
		return fmt.Errorf("bulk workers and queue_size must be positive")
	}

	seen := make(map[geom.WorldID]bool, len(c.Worlds))
	for _, w := range c.Worlds {
		if w.ID == "" || w.Height <= 0 {
			return fmt.Errorf("world %q: id and positive height required", w.ID)
		}
		if seen[w.ID] {
			return fmt.Errorf("world %q declared twice", w.ID)
		}
		seen[w.ID] = true
	}
	for _, id := range []geom.WorldID{c.PrimaryWorld, c.PresetsWorld} {
		if !seen[id] {
			return fmt.Errorf("world %q is not declared in worlds", id)
		}
	}
	for _, d := range c.Districts {
		if !seen[d.World] {
			return fmt.Errorf("district %d: world %q is not declared in worlds", d.ID, d.World)
		}
	}
	for _, m := range c.RadioMasts {
		if !seen[m.World] {
			return fmt.Errorf("radio mast %q: world %q is not declared in worlds", m.Name, m.World)
		}
	}
	return nil
}

// LoadRegions loads config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadRegions(path string) (Regions, error) {
	cfg := DefaultRegions()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}
