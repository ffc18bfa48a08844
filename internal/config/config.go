package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration knobs for the agent.
type Config struct {
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`
	Backend struct {
		BaseURL        string        `mapstructure:"base_url"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"backend"`
	Storage struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"storage"`
	Crypto struct {
		SeedBytes int `mapstructure:"seed_bytes"`
		KeyBytes  int `mapstructure:"key_bytes"`
	} `mapstructure:"crypto"`
	Push struct {
		TokenPattern        string   `mapstructure:"token_pattern"`
		TokenMinLength      int      `mapstructure:"token_min_length"`
		UnsupportedRuntimes []string `mapstructure:"unsupported_runtimes"`
		AppVersion          string   `mapstructure:"app_version"`
		DeviceName          string   `mapstructure:"device_name"`
	} `mapstructure:"push"`
	Dispatch struct {
		SendTimeout           time.Duration `mapstructure:"send_timeout"`
		LocalWhenNoRecipients bool          `mapstructure:"local_when_no_recipients"`
	} `mapstructure:"dispatch"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Housekeeping struct {
		Schedule          string        `mapstructure:"schedule"`
		DeliveryRetention time.Duration `mapstructure:"delivery_retention"`
		OutboxRetention   time.Duration `mapstructure:"outbox_retention"`
	} `mapstructure:"housekeeping"`
	Auth struct {
		Enabled   bool          `mapstructure:"enabled"`
		Username  string        `mapstructure:"username"`
		Password  string        `mapstructure:"password"`
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
}

// Load reads the configuration from disk/environment using Viper.
func Load(path string) (*Config, error) {
	// .env is optional, real environment variables always win
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("sitepush")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// viper reports a missing explicit file as a path error, not ConfigFileNotFoundError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", "127.0.0.1:8095")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("backend.base_url", "http://127.0.0.1:3000/api")
	v.SetDefault("backend.request_timeout", "12s")

	v.SetDefault("storage.path", "./data/sitepush.db")

	v.SetDefault("crypto.seed_bytes", 32)
	v.SetDefault("crypto.key_bytes", 32)

	v.SetDefault("push.token_pattern", `^(ExponentPushToken|ExpoPushToken)\[[A-Za-z0-9_\-]+\]$`)
	v.SetDefault("push.token_min_length", 24)
	v.SetDefault("push.unsupported_runtimes", []string{"expo-go/android"})
	v.SetDefault("push.app_version", "1.0.0")
	v.SetDefault("push.device_name", "")

	v.SetDefault("dispatch.send_timeout", "15s")
	v.SetDefault("dispatch.local_when_no_recipients", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("housekeeping.schedule", "@daily")
	v.SetDefault("housekeeping.delivery_retention", "720h")
	v.SetDefault("housekeeping.outbox_retention", "168h")

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "admin123")
	v.SetDefault("auth.jwt_secret", "change-me-secret")
	v.SetDefault("auth.token_ttl", "12h")
}
