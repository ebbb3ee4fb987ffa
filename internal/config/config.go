package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. IMSYNC_TOKEN.
const EnvPrefix = "IMSYNC"

// Config represents the global ~/.imsync/config.toml.
type Config struct {
	DefaultSession   string `toml:"default_session" mapstructure:"default_session"`
	UserID           string `toml:"user_id" mapstructure:"user_id"`
	Token            string `toml:"token" mapstructure:"token"`
	GatewayAddr      string `toml:"gateway_addr" mapstructure:"gateway_addr"`
	APIAddr          string `toml:"api_addr" mapstructure:"api_addr"`
	PlatformID       int    `toml:"platform_id" mapstructure:"platform_id"`
	AdminUserID      string `toml:"admin_user_id" mapstructure:"admin_user_id"`
	PageSize         int    `toml:"page_size" mapstructure:"page_size"`
	GalleryPageSize  int    `toml:"gallery_page_size" mapstructure:"gallery_page_size"`
	TypingDebounceMs int    `toml:"typing_debounce_ms" mapstructure:"typing_debounce_ms"`
	Grouping         string `toml:"grouping" mapstructure:"grouping"`
	LogLevel         string `toml:"log_level" mapstructure:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		PlatformID:       5,
		PageSize:         40,
		GalleryPageSize:  100,
		TypingDebounceMs: 3000,
		Grouping:         "strict",
		LogLevel:         "info",
	}
}

// TypingDebounce returns the minimum interval between typing signals.
func (c *Config) TypingDebounce() time.Duration {
	return time.Duration(c.TypingDebounceMs) * time.Millisecond
}

// Validate checks the values the daemon cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.GatewayAddr == "" {
		errs = append(errs, errors.New("gateway_addr is required"))
	}
	if c.APIAddr == "" {
		errs = append(errs, errors.New("api_addr is required"))
	}
	if c.PageSize <= 0 || c.GalleryPageSize <= 0 {
		errs = append(errs, errors.New("page sizes must be positive"))
	}
	if c.Grouping != "strict" && c.Grouping != "sender" {
		errs = append(errs, fmt.Errorf("grouping must be strict or sender, got %q", c.Grouping))
	}
	return errors.Join(errs...)
}

// Load builds configuration from defaults, the TOML file at path, a .env file
// in the working directory and IMSYNC_* environment variables, in increasing
// precedence. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return load(path)
}

// loadDotEnv copies the variables of file into the environment without
// overriding ones already set.
func loadDotEnv(file string) error {
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

func load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	// AutomaticEnv only resolves keys viper already knows, so every key
	// gets a default.
	for key, val := range defaults(cfg) {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func defaults(c Config) map[string]any {
	return map[string]any{
		"default_session":    c.DefaultSession,
		"user_id":            c.UserID,
		"token":              c.Token,
		"gateway_addr":       c.GatewayAddr,
		"api_addr":           c.APIAddr,
		"platform_id":        c.PlatformID,
		"admin_user_id":      c.AdminUserID,
		"page_size":          c.PageSize,
		"gallery_page_size":  c.GalleryPageSize,
		"typing_debounce_ms": c.TypingDebounceMs,
		"grouping":           c.Grouping,
		"log_level":          c.LogLevel,
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
