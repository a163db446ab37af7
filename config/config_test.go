package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1024*1024, cfg.BlockSize)
	assert.Equal(t, "local", cfg.ConfiguredStorage)
	require.Len(t, cfg.StorageLocations, 1)
	assert.Equal(t, "./blocks/", cfg.StorageLocations[0].Path)
	assert.Same(t, cfg, Config)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
block_size: 4096
configured_storage: badger
log_level: debug
hash_algorithm: blake3
compression: gzip
storage_locations:
  - path: /srv/a/
    capacity: 100
  - path: /srv/b/
    capacity: 200
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.BlockSize)
	assert.Equal(t, "badger", cfg.ConfiguredStorage)
	assert.Equal(t, "blake3", cfg.HashAlgorithm)
	assert.Equal(t, []StorageLocation{{Path: "/srv/a/", Capacity: 100}, {Path: "/srv/b/", Capacity: 200}}, cfg.StorageLocations)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BLOCK_SIZE", "2048")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.BlockSize)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigStorageLocationsFromEnv(t *testing.T) {
	t.Setenv("STORAGE_LOCATIONS", "/mnt/disk-a/:1073741824, /mnt/disk-b/")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []StorageLocation{
		{Path: "/mnt/disk-a/", Capacity: 1073741824},
		{Path: "/mnt/disk-b/"},
	}, cfg.StorageLocations)
}

func TestParseStorageLocations(t *testing.T) {
	locs, err := ParseStorageLocations("./a/")
	require.NoError(t, err)
	assert.Equal(t, []StorageLocation{{Path: "./a/"}}, locs)

	locs, err = ParseStorageLocations(`C:\blocks:500,s3:bucket/prefix/`)
	require.NoError(t, err)
	assert.Equal(t, []StorageLocation{
		{Path: `C:\blocks`, Capacity: 500},
		{Path: "s3:bucket/prefix/"},
	}, locs)

	_, err = ParseStorageLocations(" , ")
	assert.Error(t, err)

	_, err = ParseStorageLocations("/a/:-5")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.BlockSize = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.ConfiguredStorage = "tape"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.StorageLocations = []StorageLocation{{Path: ""}}
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.CompressionRatio = 1.5
	assert.Error(t, bad.Validate())
}
