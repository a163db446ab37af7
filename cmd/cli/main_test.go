package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.BlockSize = 64
	cfg.StorageRoot = filepath.Join(dir, "data")
	cfg.StorageLocations = []config.StorageLocation{{Path: "a/", Capacity: 1 << 20}, {Path: "b/", Capacity: 1 << 20}}
	cfg.LogLevel = "error"
	cfg.CipherMode = "legacy"

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), out, 0644))
	return dir
}

func run(t *testing.T, cfgDir string, argv ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"blockstash", "--config", cfgDir}, argv...))
	return out.String(), err
}

func TestPutGetStatRm(t *testing.T) {
	cfgDir := writeConfig(t)
	src := filepath.Join(t.TempDir(), "in.wav")
	dst := filepath.Join(t.TempDir(), "out.wav")
	wav := testutil.Wave(2, 10, testutil.Noise(500, 4))
	require.NoError(t, os.WriteFile(src, wav, 0644))

	_, err := run(t, cfgDir, "put", "--private", "--access-key", "k", "/.com.example/in.wav", src)
	require.NoError(t, err)

	out, err := run(t, cfgDir, "stat", "/.com.example/in.wav")
	require.NoError(t, err)
	assert.Contains(t, out, `"media_type": "wave"`)
	assert.Contains(t, out, `"private": true`)

	_, err = run(t, cfgDir, "get", "/.com.example/in.wav", dst)
	assert.Error(t, err, "private file needs credentials")

	_, err = run(t, cfgDir, "get", "--access-key", "k", "/.com.example/in.wav", dst)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, wav, got)

	_, err = run(t, cfgDir, "put", "/.com.example/in.wav", src)
	assert.Error(t, err, "already exists")

	_, err = run(t, cfgDir, "rm", "/.com.example/in.wav")
	require.NoError(t, err)
	_, err = run(t, cfgDir, "stat", "/.com.example/in.wav")
	assert.Error(t, err)
}

func TestTokenGrantsAccess(t *testing.T) {
	cfgDir := writeConfig(t)
	src := filepath.Join(t.TempDir(), "doc")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	_, err := run(t, cfgDir, "put", "--private", "/.com.example/doc", src)
	require.NoError(t, err)

	out, err := run(t, cfgDir, "token", "--expires-in", "1h", "/.com.example/doc", "GET")
	require.NoError(t, err)
	out = strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(out, "access_token="), out)

	var token, expires string
	for _, kv := range strings.Split(out, "&") {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case "access_token":
			token = v
		case "expires":
			expires = v
		}
	}
	require.NotEmpty(t, expires)

	dst := filepath.Join(t.TempDir(), "doc")
	_, err = run(t, cfgDir, "get", "--access-token", token, "--expires", expires, "/.com.example/doc", dst)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestConfigCommand(t *testing.T) {
	cfgDir := writeConfig(t)
	out, err := run(t, cfgDir, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "block_size: 64")
	assert.Contains(t, out, "path: a/")
}

func TestArgumentCount(t *testing.T) {
	cfgDir := writeConfig(t)
	_, err := run(t, cfgDir, "stat")
	assert.Error(t, err)
}
