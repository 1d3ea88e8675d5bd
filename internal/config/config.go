// Package config loads the settings for a dashboard test run from
// environment variables, validates them and provides defaults.
//
// The CLI overrides individual values with flags after Load.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/machreg-e2e/internal/driver"
)

const (
	defaultCommandDelay   = time.Second
	defaultKeystrokeDelay = 100 * time.Millisecond
	defaultTimeout        = 4 * time.Second
	defaultLoginTimeout   = 10 * time.Second
	defaultBrowser        = "chromium"
	defaultRegion         = "auto"
)

// Config holds the settings of one run.
type Config struct {
	// Target dashboard
	DashboardURL string // DASHBOARD_URL
	Username     string // DASHBOARD_USERNAME
	Password     string // DASHBOARD_PASSWORD
	CacheSession bool   // CACHE_SESSION

	// Pacing and timeouts
	CommandDelay   time.Duration // COMMAND_DELAY
	KeystrokeDelay time.Duration // KEYSTROKE_DELAY
	DefaultTimeout time.Duration // DEFAULT_TIMEOUT
	LoginTimeout   time.Duration // LOGIN_TIMEOUT

	// Browser
	Browser           string // BROWSER: chromium, firefox or webkit
	Headless          bool   // HEADLESS
	IgnoreHTTPSErrors bool   // IGNORE_HTTPS_ERRORS, for self-signed Rancher installs

	// Failure artifacts (S3-compatible). Disabled without a bucket.
	ArtifactsBucket    string // ARTIFACTS_BUCKET
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Defaults returns a Config with every optional value set.
func Defaults() Config {
	return Config{
		CommandDelay:   defaultCommandDelay,
		KeystrokeDelay: defaultKeystrokeDelay,
		DefaultTimeout: defaultTimeout,
		LoginTimeout:   defaultLoginTimeout,
		Browser:        defaultBrowser,
		Headless:       true,
		AWSRegion:      defaultRegion,
	}
}

// Load reads the environment without validating.
func Load() *Config {
	cfg := Defaults()

	cfg.DashboardURL = strings.TrimRight(getEnvOrDefault("DASHBOARD_URL", ""), "/")
	cfg.Username = getEnvOrDefault("DASHBOARD_USERNAME", "")
	cfg.Password = os.Getenv("DASHBOARD_PASSWORD")
	cfg.CacheSession = parseBoolOrDefault("CACHE_SESSION", false)

	cfg.CommandDelay = parseDurationOrDefault("COMMAND_DELAY", cfg.CommandDelay)
	cfg.KeystrokeDelay = parseDurationOrDefault("KEYSTROKE_DELAY", cfg.KeystrokeDelay)
	cfg.DefaultTimeout = parseDurationOrDefault("DEFAULT_TIMEOUT", cfg.DefaultTimeout)
	cfg.LoginTimeout = parseDurationOrDefault("LOGIN_TIMEOUT", cfg.LoginTimeout)

	cfg.Browser = strings.ToLower(getEnvOrDefault("BROWSER", cfg.Browser))
	cfg.Headless = parseBoolOrDefault("HEADLESS", cfg.Headless)
	cfg.IgnoreHTTPSErrors = parseBoolOrDefault("IGNORE_HTTPS_ERRORS", false)

	cfg.ArtifactsBucket = getEnvOrDefault("ARTIFACTS_BUCKET", "")
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", cfg.AWSRegion)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")

	return &cfg
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.DashboardURL == "" {
		errs = append(errs, "DASHBOARD_URL is required")
	} else if u, err := url.Parse(c.DashboardURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "DASHBOARD_URL must be an absolute http(s) URL")
	}
	if c.Username == "" {
		errs = append(errs, "DASHBOARD_USERNAME is required")
	}
	if c.Password == "" {
		errs = append(errs, "DASHBOARD_PASSWORD is required")
	}

	if c.CommandDelay < 0 {
		errs = append(errs, "COMMAND_DELAY must not be negative")
	}
	if c.KeystrokeDelay < 0 {
		errs = append(errs, "KEYSTROKE_DELAY must not be negative")
	}
	if c.DefaultTimeout <= 0 {
		errs = append(errs, "DEFAULT_TIMEOUT must be positive")
	}
	if c.LoginTimeout <= 0 {
		errs = append(errs, "LOGIN_TIMEOUT must be positive")
	}

	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, fmt.Sprintf("BROWSER must be chromium, firefox or webkit (got %q)", c.Browser))
	}

	if c.ArtifactsEnabled() {
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when ARTIFACTS_BUCKET is set")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when ARTIFACTS_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ArtifactsEnabled reports whether failure screenshots are uploaded.
func (c *Config) ArtifactsEnabled() bool {
	return c.ArtifactsBucket != ""
}

// Pacing returns the driver pacing for this run.
func (c *Config) Pacing() driver.Pacing {
	return driver.Pacing{
		CommandDelay:   c.CommandDelay,
		KeystrokeDelay: c.KeystrokeDelay,
	}
}

// PrintStartupSummary prints a human-readable summary of the run to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "machreg-smoke starting...")
	fmt.Fprintf(os.Stderr, "  Dashboard: %s (user %s)\n", c.DashboardURL, c.Username)
	fmt.Fprintf(os.Stderr, "  Browser:   %s (headless=%t)\n", c.Browser, c.Headless)
	fmt.Fprintf(os.Stderr, "  Pacing:    %s per command, %s per keystroke\n", c.CommandDelay, c.KeystrokeDelay)
	if c.ArtifactsEnabled() {
		fmt.Fprintf(os.Stderr, "  Artifacts: s3://%s\n", c.ArtifactsBucket)
	} else {
		fmt.Fprintln(os.Stderr, "  Artifacts: disabled")
	}
	fmt.Fprintln(os.Stderr, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
