package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// StorageLocation is one namespace blocks and inodes can live under.
type StorageLocation struct {
	Path     string `mapstructure:"path" yaml:"path"`
	Capacity int64  `mapstructure:"capacity" yaml:"capacity"`
}

// AppConfig holds the application-level configuration
type AppConfig struct {
	BlockSize          int               `mapstructure:"block_size" yaml:"block_size"`
	StorageLocations   []StorageLocation `mapstructure:"storage_locations" yaml:"storage_locations"`
	ConfiguredStorage  string            `mapstructure:"configured_storage" yaml:"configured_storage"`
	StorageRoot        string            `mapstructure:"storage_root" yaml:"storage_root"`
	LogLevel           string            `mapstructure:"log_level" yaml:"log_level"`
	LogFile            string            `mapstructure:"log_file" yaml:"log_file"`
	CipherMode         string            `mapstructure:"cipher_mode" yaml:"cipher_mode"`
	HashAlgorithm      string            `mapstructure:"hash_algorithm" yaml:"hash_algorithm"`
	Compression        string            `mapstructure:"compression" yaml:"compression"`
	CompressionRatio   float64           `mapstructure:"compression_ratio" yaml:"compression_ratio"`
	RequireAllReplicas bool              `mapstructure:"require_all_replicas" yaml:"require_all_replicas"`
}

var Config *AppConfig

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() AppConfig {
	return AppConfig{
		BlockSize:         1024 * 1024,
		StorageLocations:  []StorageLocation{{Path: "./blocks/", Capacity: 4294967296}},
		ConfiguredStorage: "local",
		StorageRoot:       "",
		LogLevel:          "info",
		CipherMode:        "aead",
		HashAlgorithm:     "sha1",
		Compression:       "none",
		CompressionRatio:  0.9,
	}
}

// LoadConfig reads config.yaml from path, applies environment overrides
// (BLOCK_SIZE, CONFIGURED_STORAGE, LOG_LEVEL, ...) and validates the result.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var appConfig AppConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		storageLocationsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&appConfig, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := appConfig.Validate(); err != nil {
		return nil, err
	}

	Config = &appConfig
	return &appConfig, nil
}

// storageLocationsHook decodes STORAGE_LOCATIONS style values: a comma
// separated list of path[:capacity] entries, e.g. "/srv/a/:1073741824,/srv/b/".
func storageLocationsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]StorageLocation{}) {
		return data, nil
	}
	return ParseStorageLocations(data.(string))
}

// ParseStorageLocations parses a comma separated path[:capacity] list.
// A suffix after the last colon is a capacity only if it is a number, so
// paths containing colons stay intact.
func ParseStorageLocations(s string) ([]StorageLocation, error) {
	var out []StorageLocation
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		loc := StorageLocation{Path: entry}
		if i := strings.LastIndex(entry, ":"); i > 0 {
			if capacity, err := strconv.ParseInt(entry[i+1:], 10, 64); err == nil {
				if capacity < 0 {
					return nil, fmt.Errorf("storage location %q has a negative capacity", entry)
				}
				loc = StorageLocation{Path: entry[:i], Capacity: capacity}
			}
		}
		out = append(out, loc)
	}
	if len(out) == 0 {
		return nil, errors.New("no storage locations given")
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("block_size", defaults.BlockSize)
	v.SetDefault("storage_locations", []map[string]any{
		{"path": defaults.StorageLocations[0].Path, "capacity": defaults.StorageLocations[0].Capacity},
	})
	v.SetDefault("configured_storage", defaults.ConfiguredStorage)
	v.SetDefault("storage_root", defaults.StorageRoot)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("cipher_mode", defaults.CipherMode)
	v.SetDefault("hash_algorithm", defaults.HashAlgorithm)
	v.SetDefault("compression", defaults.Compression)
	v.SetDefault("compression_ratio", defaults.CompressionRatio)
	v.SetDefault("require_all_replicas", defaults.RequireAllReplicas)
}

// Validate rejects settings the engine cannot run with.
func (c *AppConfig) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	switch strings.ToLower(c.ConfiguredStorage) {
	case "local", "fs", "badger", "memory":
	default:
		return fmt.Errorf("unknown configured_storage %q", c.ConfiguredStorage)
	}
	switch strings.ToLower(c.CipherMode) {
	case "", "aead", "legacy":
	default:
		return fmt.Errorf("unknown cipher_mode %q", c.CipherMode)
	}
	switch strings.ToLower(c.HashAlgorithm) {
	case "", "sha1", "blake3":
	default:
		return fmt.Errorf("unknown hash_algorithm %q", c.HashAlgorithm)
	}
	switch strings.ToLower(c.Compression) {
	case "", "none", "gzip", "lz4", "zstd":
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	if c.CompressionRatio <= 0 || c.CompressionRatio > 1 {
		return fmt.Errorf("compression_ratio must be in (0, 1], got %v", c.CompressionRatio)
	}
	for i, loc := range c.StorageLocations {
		if loc.Path == "" {
			return fmt.Errorf("storage_locations[%d] has an empty path", i)
		}
	}
	return nil
}
