package gcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PP_STRING", "tracker")
	t.Setenv("PP_INT", "5")
	t.Setenv("PP_BAD_INT", "five")
	t.Setenv("PP_BOOL", "true")

	assert.Equal(t, "tracker", GetEnv("PP_STRING", "x"))
	assert.Equal(t, "x", GetEnv("PP_MISSING", "x"))
	assert.Equal(t, 5, GetEnvInt("PP_INT", 3))
	assert.Equal(t, 3, GetEnvInt("PP_BAD_INT", 3))
	assert.Equal(t, 3, GetEnvInt("PP_MISSING", 3))
	assert.True(t, GetEnvBool("PP_BOOL", false))
	assert.False(t, GetEnvBool("PP_MISSING", false))
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PP_FROM_FILE=file\nPP_PRESET=file\n"), 0o600))
	t.Setenv("PP_PRESET", "env")
	t.Setenv("PP_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("PP_FROM_FILE"))

	LoadDotEnv(path)
	t.Cleanup(func() { os.Unsetenv("PP_FROM_FILE") })

	assert.Equal(t, "file", os.Getenv("PP_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("PP_PRESET"))
	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
