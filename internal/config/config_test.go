package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"ACCOUNT", "PASSWORD", "lt_room", "LT_ROOM", "ac_room", "AC_ROOM",
	"CAMPUS_BASE_URL", "TOKEN_FILE", "TOKEN_PASSWORD",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TELEGRAM_API_URL",
	"SERVERCHAN_KEYS", "SERVERCHAN_BASE_URL",
	"EMAIL", "SMTP_CODE", "SMTP_SERVER", "SMTP_PORT",
	"DATA_DIR", "TZ_NAME", "SQLITE_PATH", "PUSHGATEWAY_URL",
	"SCHEDULE_CRON", "LOG_LEVEL", "LOG_FORMAT", "HTTPS_PROXY",
}

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_YAMLThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
campus:
  account: "yaml-account"
  password: "yaml-secret"
  light_room: "99-1"
  ac_room: "99-2"
serverchan:
  keys: ["k1"]
storage:
  data_dir: "/tmp/yaml"
`), 0o644))

	t.Setenv("ACCOUNT", "env-account")
	t.Setenv("SERVERCHAN_KEYS", "a, b,,c")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "env-account", cfg.Campus.Account)
	assert.Equal(t, "yaml-secret", cfg.Campus.Password)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.ServerChan.Keys)
	assert.Equal(t, "/tmp/yaml", cfg.Storage.DataDir)
	assert.Equal(t, 465, cfg.Email.SMTPPort)
	assert.Equal(t, "Asia/Shanghai", cfg.Storage.Timezone)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, "./page/data", cfg.Storage.DataDir)
	assert.Equal(t, "tokens.sealed", cfg.Campus.TokenFile)
	assert.Equal(t, "https://sctapi.ftqq.com", cfg.ServerChan.BaseURL)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("ACCOUNT=dotenv\nLT_ROOM=1-101\n"), 0o644))
	// godotenv does not override variables that are already set.
	require.NoError(t, os.Unsetenv("ACCOUNT"))
	require.NoError(t, os.Unsetenv("LT_ROOM"))
	require.NoError(t, os.Unsetenv("lt_room"))
	t.Cleanup(func() {
		os.Unsetenv("ACCOUNT")
		os.Unsetenv("LT_ROOM")
	})

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.Campus.Account)
	assert.Equal(t, "1-101", cfg.Campus.LightRoom)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("campus: ["), 0o644))
	_, err := Load(path, "")
	require.Error(t, err)
}

func TestValidate_ListsEveryMissingKey(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", "")
	require.NoError(t, err)
	cfg.Campus.Account = "someone"

	err = cfg.Validate()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"PASSWORD", "lt_room", "ac_room"}, cerr.Missing)
	assert.Contains(t, err.Error(), "PASSWORD, lt_room, ac_room")
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := &Config{}
	cfg.Campus.Account, cfg.Campus.Password = "a", "p"
	cfg.Campus.LightRoom, cfg.Campus.ACRoom = "1", "2"
	cfg.Storage.Timezone = "Mars/Olympus"

	var cerr *Error
	require.ErrorAs(t, cfg.Validate(), &cerr)
	assert.NotEmpty(t, cerr.Invalid)
}
