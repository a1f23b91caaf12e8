package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/regions/internal/geom"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRegions_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadRegions(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRegions(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRegions_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
primary: false
primary_world: overworld
presets_world: templates
worlds:
  - id: overworld
    min_y: 0
    height: 256
  - id: templates
    min_y: 0
    height: 128
bulk:
  workers: 4
  backup_dir: /var/lib/regions/backups
districts:
  - id: 1
    name: Harbour
    world: overworld
    chunks:
      - {cx: 0, cz: 0}
      - {cx: 1, cz: 0}
radio_masts:
  - {name: north, world: overworld, x: 10, z: -400, range: 250}
shutdown_timeout: 3s
database:
  driver: postgres
  host: db
  dbname: mv
`)
	cfg, err := LoadRegions(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Primary)
	assert.Equal(t, geom.WorldID("overworld"), cfg.PrimaryWorld)
	require.Len(t, cfg.Worlds, 2)
	assert.Equal(t, int32(128), cfg.Worlds[1].Height)
	assert.Equal(t, 4, cfg.Bulk.Workers)
	assert.Equal(t, 64, cfg.Bulk.QueueSize, "unset keys keep defaults")
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	require.Len(t, cfg.Districts, 1)
	assert.Equal(t, []ChunkRef{{CX: 0, CZ: 0}, {CX: 1, CZ: 0}}, cfg.Districts[0].Chunks)
	require.Len(t, cfg.RadioMasts, 1)
	assert.Equal(t, int32(-400), cfg.RadioMasts[0].Z)
	assert.Equal(t, "postgres://regions:regions@db:5432/mv?sslmode=disable", cfg.Database.DSN())
}

func TestLoadRegions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "worlds: [\n"},
		{"unknown driver", "database:\n  driver: mongo\n"},
		{"primary world undeclared", "primary_world: elsewhere\n"},
		{"duplicate world", "worlds:\n  - {id: world, height: 1}\n  - {id: world, height: 1}\n"},
		{"zero workers", "bulk:\n  workers: 0\n"},
		{"mast in unknown world", "radio_masts:\n  - {name: m, world: moon, range: 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegions(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
