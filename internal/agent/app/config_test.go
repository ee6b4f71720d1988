package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresEndpointsAndCredentials(t *testing.T) {
	t.Setenv("AIRBNG_API_BASE_URL", "")
	t.Setenv("AIRBNG_PUSH_URL", "")
	t.Setenv("AIRBNG_EMAIL", "")
	t.Setenv("AIRBNG_PASSWORD", "")
	t.Setenv("AIRBNG_CONFIG_FILE", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AIRBNG_API_BASE_URL", "https://api.airbng.test")
	t.Setenv("AIRBNG_PUSH_URL", "wss://api.airbng.test/alarms")
	t.Setenv("AIRBNG_EMAIL", "haejun@example.com")
	t.Setenv("AIRBNG_PASSWORD", "secret")
	t.Setenv("AIRBNG_CONFIG_FILE", "")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://api.airbng.test", cfg.APIBaseURL)
	require.Equal(t, "wss://api.airbng.test/alarms", cfg.PushURL)
	require.Equal(t, "inbox.db", cfg.DatabaseFile)
	require.Equal(t, 5*time.Second, cfg.ShutdownGracePeriod)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_base_url = "https://file.airbng.test"
push_url = "wss://file.airbng.test/alarms"
database_file = "/var/lib/airbng/inbox.db"
log_level = "debug"
`), 0o600))

	t.Setenv("AIRBNG_CONFIG_FILE", path)
	t.Setenv("AIRBNG_API_BASE_URL", "https://env.airbng.test")
	t.Setenv("AIRBNG_PUSH_URL", "")
	t.Setenv("AIRBNG_EMAIL", "haejun@example.com")
	t.Setenv("AIRBNG_PASSWORD", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://env.airbng.test", cfg.APIBaseURL)
	require.Equal(t, "wss://file.airbng.test/alarms", cfg.PushURL)
	require.Equal(t, "/var/lib/airbng/inbox.db", cfg.DatabaseFile)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`api_base_url = [`), 0o600))

	t.Setenv("AIRBNG_CONFIG_FILE", path)

	_, err := LoadConfig()
	require.Error(t, err)
}
