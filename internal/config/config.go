package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Campus struct {
		BaseURL  string `yaml:"base_url"`
		Account  string `yaml:"account"`
		Password string `yaml:"password"`
		// Room identifiers for the lighting and air-conditioning meters.
		LightRoom string `yaml:"light_room"`
		ACRoom    string `yaml:"ac_room"`
		TokenFile string `yaml:"token_file"`
		// TokenPassword seals the token file; empty stores it as plain JSON.
		TokenPassword string `yaml:"token_password"`
	} `yaml:"campus"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		APIURL   string `yaml:"api_url"`
	} `yaml:"telegram"`
	ServerChan struct {
		Keys    []string `yaml:"keys"`
		BaseURL string   `yaml:"base_url"`
	} `yaml:"serverchan"`
	Email struct {
		Address    string `yaml:"address"`
		SMTPCode   string `yaml:"smtp_code"`
		SMTPServer string `yaml:"smtp_server"`
		SMTPPort   int    `yaml:"smtp_port"`
	} `yaml:"email"`
	Storage struct {
		DataDir  string `yaml:"data_dir"`
		Timezone string `yaml:"timezone"`
	} `yaml:"storage"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url"`
		Job            string `yaml:"job"`
	} `yaml:"metrics"`
	Schedule struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from an optional .env file and an optional YAML file,
// then applies environment variable overrides and defaults.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else {
		// .env next to the binary is optional.
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Campus.Account, "ACCOUNT")
	setString(&c.Campus.Password, "PASSWORD")
	setString(&c.Campus.LightRoom, "lt_room", "LT_ROOM")
	setString(&c.Campus.ACRoom, "ac_room", "AC_ROOM")
	setString(&c.Campus.BaseURL, "CAMPUS_BASE_URL")
	setString(&c.Campus.TokenFile, "TOKEN_FILE")
	setString(&c.Campus.TokenPassword, "TOKEN_PASSWORD")

	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&c.Telegram.APIURL, "TELEGRAM_API_URL")

	if v := os.Getenv("SERVERCHAN_KEYS"); v != "" {
		c.ServerChan.Keys = SplitKeys(v)
	}
	setString(&c.ServerChan.BaseURL, "SERVERCHAN_BASE_URL")

	setString(&c.Email.Address, "EMAIL")
	setString(&c.Email.SMTPCode, "SMTP_CODE")
	setString(&c.Email.SMTPServer, "SMTP_SERVER")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.Email.SMTPPort = port
		}
	}

	setString(&c.Storage.DataDir, "DATA_DIR")
	setString(&c.Storage.Timezone, "TZ_NAME")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Metrics.PushgatewayURL, "PUSHGATEWAY_URL")
	setString(&c.Schedule.Cron, "SCHEDULE_CRON")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Proxy, "HTTPS_PROXY")
}

func (c *Config) applyDefaults() {
	if c.Campus.BaseURL == "" {
		c.Campus.BaseURL = "https://campus.example.edu/api"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./page/data"
	}
	if c.Campus.TokenFile == "" {
		c.Campus.TokenFile = "tokens.sealed"
	}
	if c.Storage.Timezone == "" {
		c.Storage.Timezone = "Asia/Shanghai"
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.ServerChan.BaseURL == "" {
		c.ServerChan.BaseURL = "https://sctapi.ftqq.com"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 465
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "dormwatch"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set. The returned error is
// an *Error listing every missing key.
func (c *Config) Validate() error {
	var missing []string
	if c.Campus.Account == "" {
		missing = append(missing, "ACCOUNT")
	}
	if c.Campus.Password == "" {
		missing = append(missing, "PASSWORD")
	}
	if c.Campus.LightRoom == "" {
		missing = append(missing, "lt_room")
	}
	if c.Campus.ACRoom == "" {
		missing = append(missing, "ac_room")
	}
	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	if _, err := time.LoadLocation(c.Storage.Timezone); err != nil {
		return &Error{Invalid: fmt.Sprintf("timezone %q: %v", c.Storage.Timezone, err)}
	}
	return nil
}

// Location returns the configured reading timezone, falling back to UTC+8.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Storage.Timezone)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Error reports missing or invalid configuration.
type Error struct {
	Missing []string
	Invalid string
}

func (e *Error) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
	}
	return "invalid configuration: " + e.Invalid
}

// SplitKeys splits a comma-separated list, dropping blanks.
func SplitKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}
