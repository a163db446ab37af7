package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("BLOCKSTASH_TEST_VAR", "set")
	assert.Equal(t, "set", GetEnv("BLOCKSTASH_TEST_VAR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("BLOCKSTASH_TEST_UNSET", "fallback"))
}

func TestLoadEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("BLOCKSTASH_FROM_FILE=yes\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("BLOCKSTASH_FROM_FILE") })

	LoadEnv(file)
	assert.Equal(t, "yes", GetEnv("BLOCKSTASH_FROM_FILE", ""))

	LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
}
