// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	App() AppConfig
	Timeouts() TimeoutsConfig
	Retry() RetryConfig
	Scroll() ScrollConfig
	Popup() PopupConfig
	StatusPoll() StatusPollConfig
	Runner() RunnerConfig
	Metrics() MetricsConfig
	Tracing() TracingConfig

	// Setters for values CLI flags override.
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)
	SetAppBaseURL(string)
	SetRunnerConcurrency(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	AppCfg        AppConfig        `mapstructure:"app" yaml:"app"`
	TimeoutsCfg   TimeoutsConfig   `mapstructure:"timeouts" yaml:"timeouts"`
	RetryCfg      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	ScrollCfg     ScrollConfig     `mapstructure:"scroll" yaml:"scroll"`
	PopupCfg      PopupConfig      `mapstructure:"popup" yaml:"popup"`
	StatusPollCfg StatusPollConfig `mapstructure:"status_poll" yaml:"status_poll"`
	RunnerCfg     RunnerConfig     `mapstructure:"runner" yaml:"runner"`
	MetricsCfg    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	TracingCfg    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) App() AppConfig               { return c.AppCfg }
func (c *Config) Timeouts() TimeoutsConfig     { return c.TimeoutsCfg }
func (c *Config) Retry() RetryConfig           { return c.RetryCfg }
func (c *Config) Scroll() ScrollConfig         { return c.ScrollCfg }
func (c *Config) Popup() PopupConfig           { return c.PopupCfg }
func (c *Config) StatusPoll() StatusPollConfig { return c.StatusPollCfg }
func (c *Config) Runner() RunnerConfig         { return c.RunnerCfg }
func (c *Config) Metrics() MetricsConfig       { return c.MetricsCfg }
func (c *Config) Tracing() TracingConfig       { return c.TracingCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDriver(d string)   { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetAppBaseURL(u string)      { c.AppCfg.BaseURL = u }
func (c *Config) SetRunnerConcurrency(n int)  { c.RunnerCfg.Concurrency = n }

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Browser driver names.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// BrowserConfig selects and tunes the automation driver.
type BrowserConfig struct {
	Driver          string         `mapstructure:"driver" yaml:"driver"`
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	Language        string         `mapstructure:"language" yaml:"language"`
	PageLoadTimeout time.Duration  `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	// AutoInstall lets the playwright driver download its browsers on first use.
	AutoInstall bool `mapstructure:"auto_install" yaml:"auto_install"`
}

// WindowSize returns the configured viewport, falling back to 1440x900.
func (b BrowserConfig) WindowSize() (int, int) {
	w, h := b.Viewport["width"], b.Viewport["height"]
	if w <= 0 {
		w = 1440
	}
	if h <= 0 {
		h = 900
	}
	return w, h
}

// AppConfig describes the application under test.
type AppConfig struct {
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	LoginPath string `mapstructure:"login_path" yaml:"login_path"`
	Username  string `mapstructure:"username" yaml:"username"`
	// Password is read from SCALPEL_E2E_APP_PASSWORD; keep it out of files.
	Password string `mapstructure:"password" yaml:"-"`
}

// TimeoutsConfig holds the named wait budgets.
type TimeoutsConfig struct {
	Tiny    time.Duration `mapstructure:"tiny" yaml:"tiny"`
	Short   time.Duration `mapstructure:"short" yaml:"short"`
	Medium  time.Duration `mapstructure:"medium" yaml:"medium"`
	Long    time.Duration `mapstructure:"long" yaml:"long"`
	Default time.Duration `mapstructure:"default" yaml:"default"`
	Poll    time.Duration `mapstructure:"poll" yaml:"poll"`
}

// RetryConfig tunes the stale-element retry wrapper.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

// ScrollConfig tunes virtualized search.
type ScrollConfig struct {
	MaxSteps  int           `mapstructure:"max_steps" yaml:"max_steps"`
	MinStep   float64       `mapstructure:"min_step" yaml:"min_step"`
	StepRatio float64       `mapstructure:"step_ratio" yaml:"step_ratio"`
	Settle    time.Duration `mapstructure:"settle" yaml:"settle"`
}

// PopupConfig tunes the dropdown protocol.
type PopupConfig struct {
	OpenTimeout   time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
	OpenAttempts  int           `mapstructure:"open_attempts" yaml:"open_attempts"`
	OpenPause     time.Duration `mapstructure:"open_pause" yaml:"open_pause"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	TypeAhead     bool          `mapstructure:"type_ahead" yaml:"type_ahead"`
	CommitTimeout time.Duration `mapstructure:"commit_timeout" yaml:"commit_timeout"`
	CloseTimeout  time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
	ChipTimeout   time.Duration `mapstructure:"chip_timeout" yaml:"chip_timeout"`
	KeepOnlyGuard int           `mapstructure:"keep_only_guard" yaml:"keep_only_guard"`
}

// StatusPollConfig tunes the status-poll loop.
type StatusPollConfig struct {
	Deadline       time.Duration `mapstructure:"deadline" yaml:"deadline"`
	Window         time.Duration `mapstructure:"window" yaml:"window"`
	ActionWindow   time.Duration `mapstructure:"action_window" yaml:"action_window"`
	ActionInterval time.Duration `mapstructure:"action_interval" yaml:"action_interval"`
	IdleInterval   time.Duration `mapstructure:"idle_interval" yaml:"idle_interval"`
	MaxReopens     int           `mapstructure:"max_reopens" yaml:"max_reopens"`
}

// RunnerConfig controls scenario execution.
type RunnerConfig struct {
	Concurrency         int           `mapstructure:"concurrency" yaml:"concurrency"`
	ScenarioTimeout     time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`
	ArtifactsDir        string        `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	ScreenshotOnFailure bool          `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// TracingConfig controls span export. Output "stdout" writes to standard
// output; anything else is a file path.
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Output  string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig creates a configuration object populated with the
// default values from SetDefaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal from a viper holding only defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-e2e")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1440, "height": 900})
	v.SetDefault("browser.language", "tr-TR")
	v.SetDefault("browser.page_load_timeout", "60s")
	v.SetDefault("browser.auto_install", false)

	// -- App --
	v.SetDefault("app.base_url", "")
	v.SetDefault("app.login_path", "/login")

	// -- Timeouts --
	v.SetDefault("timeouts.tiny", "2s")
	v.SetDefault("timeouts.short", "5s")
	v.SetDefault("timeouts.medium", "20s")
	v.SetDefault("timeouts.long", "60s")
	v.SetDefault("timeouts.default", "20s")
	v.SetDefault("timeouts.poll", "250ms")

	// -- Retry --
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.backoff", "150ms")

	// -- Scroll --
	v.SetDefault("scroll.max_steps", 60)
	v.SetDefault("scroll.min_step", 100.0)
	v.SetDefault("scroll.step_ratio", 0.8)
	v.SetDefault("scroll.settle", "40ms")

	// -- Popup --
	v.SetDefault("popup.open_timeout", "2s")
	v.SetDefault("popup.open_attempts", 3)
	v.SetDefault("popup.open_pause", "250ms")
	v.SetDefault("popup.settle_delay", "150ms")
	v.SetDefault("popup.type_ahead", true)
	v.SetDefault("popup.commit_timeout", "10s")
	v.SetDefault("popup.close_timeout", "5s")
	v.SetDefault("popup.chip_timeout", "5s")
	v.SetDefault("popup.keep_only_guard", 20)

	// -- Status Poll --
	v.SetDefault("status_poll.deadline", "30s")
	v.SetDefault("status_poll.window", "12s")
	v.SetDefault("status_poll.action_window", "8s")
	v.SetDefault("status_poll.action_interval", "400ms")
	v.SetDefault("status_poll.idle_interval", "350ms")
	v.SetDefault("status_poll.max_reopens", 3)

	// -- Runner --
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.scenario_timeout", "10m")
	v.SetDefault("runner.artifacts_dir", "artifacts")
	v.SetDefault("runner.screenshot_on_failure", true)

	// -- Metrics & Tracing --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "stdout")
}

// NewConfigFromViper unmarshals, expands paths and validates.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("app.password", EnvPrefix+"_APP_PASSWORD")
	_ = v.BindEnv("app.username", EnvPrefix+"_APP_USERNAME")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.RunnerCfg.ArtifactsDir, &c.MetricsCfg.TextfilePath} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	if c.TracingCfg.Output != "" && c.TracingCfg.Output != "stdout" {
		expanded, err := homedir.Expand(c.TracingCfg.Output)
		if err != nil {
			return fmt.Errorf("expand path %q: %w", c.TracingCfg.Output, err)
		}
		c.TracingCfg.Output = expanded
	}
	return nil
}

// Validate checks the invariants the rest of the program relies on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.BrowserCfg.Driver) {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverPlaywright, c.BrowserCfg.Driver)
	}
	if c.RunnerCfg.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.RetryCfg.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be a positive integer")
	}
	if c.TimeoutsCfg.Poll <= 0 {
		return fmt.Errorf("timeouts.poll must be positive")
	}
	if c.TimeoutsCfg.Default < c.TimeoutsCfg.Poll {
		return fmt.Errorf("timeouts.default (%s) must not be shorter than timeouts.poll (%s)", c.TimeoutsCfg.Default, c.TimeoutsCfg.Poll)
	}
	if c.ScrollCfg.StepRatio <= 0 || c.ScrollCfg.StepRatio > 1 {
		return fmt.Errorf("scroll.step_ratio must be in (0, 1]")
	}
	if c.StatusPollCfg.Window > c.StatusPollCfg.Deadline {
		return fmt.Errorf("status_poll.window must not exceed status_poll.deadline")
	}
	if c.StatusPollCfg.MaxReopens < 0 {
		return fmt.Errorf("status_poll.max_reopens must not be negative")
	}
	if c.MetricsCfg.Enabled && c.MetricsCfg.TextfilePath == "" {
		return fmt.Errorf("metrics.textfile_path is required when metrics are enabled")
	}
	return nil
}
