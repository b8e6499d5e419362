package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	withEnv(t, map[string]string{"ASKFOX_TEST_KEY": "from-file"})
	t.Setenv("ASKFOX_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("ASKFOX_TEST_KEY", "def"))
}

func TestGetEnvFallsBackToOSAndDefault(t *testing.T) {
	withEnv(t, map[string]string{})
	t.Setenv("ASKFOX_TEST_OS", "os")

	assert.Equal(t, "os", GetEnv("ASKFOX_TEST_OS", "def"))
	assert.Equal(t, "def", GetEnv("ASKFOX_TEST_MISSING", "def"))
}

func TestTypedGetters(t *testing.T) {
	withEnv(t, map[string]string{
		"INT_OK":       "42",
		"INT_BAD":      "forty-two",
		"BOOL_OK":      "true",
		"BOOL_BAD":     "maybe",
		"DURATION_OK":  "45s",
		"DURATION_BAD": "soon",
	})

	assert.Equal(t, 42, GetEnvInt("INT_OK", 1))
	assert.Equal(t, 1, GetEnvInt("INT_BAD", 1))
	assert.Equal(t, 7, GetEnvInt("INT_MISSING", 7))

	assert.True(t, GetEnvBool("BOOL_OK", false))
	assert.False(t, GetEnvBool("BOOL_BAD", false))

	assert.Equal(t, 45*time.Second, GetEnvDuration("DURATION_OK", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("DURATION_BAD", time.Second))
}
