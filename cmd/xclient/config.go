package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration. Values come from the YAML file, then .env,
// then the process environment; later sources win.
type Config struct {
	Account AccountConfig `yaml:"account"`
	Client  ClientConfig  `yaml:"client"`
	Captcha CaptchaConfig `yaml:"captcha"`
	Cookies string        `yaml:"cookies"`
	Log     string        `yaml:"log_level"`
}

// AccountConfig holds login credentials.
type AccountConfig struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Email      string `yaml:"email"`
	TOTPSecret string `yaml:"totp_secret"`
}

// ClientConfig holds transport and paging settings.
type ClientConfig struct {
	Proxy         string        `yaml:"proxy"`
	UserAgent     string        `yaml:"user_agent"`
	PageSize      int           `yaml:"page_size"`
	GuestTokenTTL time.Duration `yaml:"guest_token_ttl"`
}

// CaptchaConfig configures the Arkose solver used during login.
type CaptchaConfig struct {
	CapsolverKey string `yaml:"capsolver_key"`
}

func defaultConfig() *Config {
	return &Config{
		Cookies: defaultCookiesPath(),
		Log:     "info",
	}
}

func defaultCookiesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "xclient-cookies.json"
	}
	return filepath.Join(dir, "xclient", "cookies.json")
}

// loadConfig reads path (or the first default location that exists), then
// .env, then XCLIENT_* environment variables.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".xclient.yaml",
		".xclient.yml",
		filepath.Join(home, ".config", "xclient", "config.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"XCLIENT_USERNAME":    &c.Account.Username,
		"XCLIENT_PASSWORD":    &c.Account.Password,
		"XCLIENT_EMAIL":       &c.Account.Email,
		"XCLIENT_TOTP_SECRET": &c.Account.TOTPSecret,
		"XCLIENT_PROXY":       &c.Client.Proxy,
		"XCLIENT_USER_AGENT":  &c.Client.UserAgent,
		"XCLIENT_COOKIES":     &c.Cookies,
		"XCLIENT_LOG_LEVEL":   &c.Log,
		"CAPSOLVER_API_KEY":   &c.Captcha.CapsolverKey,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("XCLIENT_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("XCLIENT_PAGE_SIZE: %w", err)
		}
		c.Client.PageSize = n
	}
	if v := os.Getenv("XCLIENT_GUEST_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("XCLIENT_GUEST_TOKEN_TTL: %w", err)
		}
		c.Client.GuestTokenTTL = d
	}
	return nil
}
