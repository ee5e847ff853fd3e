package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	twitter "github.com/anatolykoptev/go-xclient"
	"github.com/anatolykoptev/go-xclient/captcha"
)

var (
	configFile string
	verbose    bool
	jsonOutput bool

	cfg    *Config
	active *twitter.Client

	stdin = bufio.NewReader(os.Stdin)
)

var rootCmd = &cobra.Command{
	Use:           "xclient",
	Short:         "Read and write X from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(configFile)
		if err != nil {
			return err
		}
		cfg = c
		setupLogging(cfg.Log, verbose)
		return nil
	},
	// Persist cookies rotated by the command.
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if active == nil || !active.IsLoggedIn() {
			return nil
		}
		return saveCookies(cfg.Cookies, active.Cookies())
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default .xclient.yaml or ~/.config/xclient/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func setupLogging(level string, verbose bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// newClient builds a client and restores persisted cookies when present.
func newClient() (*twitter.Client, error) {
	cc := twitter.ClientConfig{
		Proxy:         cfg.Client.Proxy,
		UserAgent:     cfg.Client.UserAgent,
		PageSize:      cfg.Client.PageSize,
		GuestTokenTTL: cfg.Client.GuestTokenTTL,
	}
	if cfg.Captcha.CapsolverKey != "" {
		cc.CaptchaSolver = captcha.NewCapsolver(cfg.Captcha.CapsolverKey)
	}
	client, err := twitter.NewClient(cc)
	if err != nil {
		return nil, err
	}

	cookies, err := loadCookies(cfg.Cookies)
	if err != nil {
		return nil, err
	}
	if len(cookies) > 0 {
		if err := client.SetCookies(cookies); err != nil {
			slog.Warn("ignoring saved cookies", slog.String("path", cfg.Cookies), slog.Any("error", err))
		}
	}
	active = client
	return client, nil
}

func loadCookies(path string) ([]twitter.Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	var cookies []twitter.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookies %s: %w", path, err)
	}
	return cookies, nil
}

func saveCookies(path string, cookies []twitter.Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	slog.Debug("cookies saved", slog.String("path", path), slog.Int("count", len(cookies)))
	return nil
}

// stdinPrompt asks on stderr and reads one line from stdin.
func stdinPrompt(_ context.Context, subtask string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", promptLabel(subtask))
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptLabel(subtask string) string {
	switch subtask {
	case "LoginEnterUserIdentifierSSO":
		return "Username"
	case "LoginEnterPassword":
		return "Password"
	case "LoginEnterAlternateIdentifierSubtask":
		return "Email or phone"
	case "LoginTwoFactorAuthChallenge":
		return "2FA code"
	case "LoginAcid":
		return "Confirmation code"
	}
	return subtask
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
