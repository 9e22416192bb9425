// File: internal/config/config_test.go
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, DriverChromedp, cfg.Browser().Driver)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, "tr-TR", cfg.Browser().Language)
	assert.Equal(t, 20*time.Second, cfg.Timeouts().Default)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts().Poll)
	assert.Equal(t, 3, cfg.Retry().Attempts)
	assert.Equal(t, 60, cfg.Scroll().MaxSteps)
	assert.Equal(t, 150*time.Millisecond, cfg.Popup().SettleDelay)
	assert.Equal(t, 30*time.Second, cfg.StatusPoll().Deadline)
	assert.Equal(t, 1, cfg.Runner().Concurrency)

	w, h := cfg.Browser().WindowSize()
	assert.Equal(t, 1440, w)
	assert.Equal(t, 900, h)

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserDriver(DriverPlaywright)
	cfg.SetBrowserHeadless(false)
	cfg.SetAppBaseURL("https://clinic.example")
	cfg.SetRunnerConcurrency(4)

	assert.Equal(t, DriverPlaywright, cfg.Browser().Driver)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "https://clinic.example", cfg.App().BaseURL)
	assert.Equal(t, 4, cfg.Runner().Concurrency)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.BrowserCfg.Driver = "selenium" }, "browser.driver must be"},
		{"zero concurrency", func(c *Config) { c.RunnerCfg.Concurrency = 0 }, "runner.concurrency must be a positive integer"},
		{"zero attempts", func(c *Config) { c.RetryCfg.Attempts = 0 }, "retry.attempts must be a positive integer"},
		{"zero poll", func(c *Config) { c.TimeoutsCfg.Poll = 0 }, "timeouts.poll must be positive"},
		{"default shorter than poll", func(c *Config) { c.TimeoutsCfg.Default = time.Millisecond }, "must not be shorter than timeouts.poll"},
		{"step ratio above one", func(c *Config) { c.ScrollCfg.StepRatio = 1.5 }, "scroll.step_ratio"},
		{"window beyond deadline", func(c *Config) { c.StatusPollCfg.Window = time.Hour }, "status_poll.window"},
		{"negative reopens", func(c *Config) { c.StatusPollCfg.MaxReopens = -1 }, "status_poll.max_reopens"},
		{"metrics without path", func(c *Config) { c.MetricsCfg.Enabled = true }, "metrics.textfile_path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("driver name is case insensitive", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Driver = "Playwright"
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  driver: playwright
  viewport:
    width: 1280
app:
  base_url: "https://hbys.example"
popup:
  settle_delay: 300ms
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, DriverPlaywright, cfg.Browser().Driver)
		assert.Equal(t, "https://hbys.example", cfg.App().BaseURL)
		assert.Equal(t, 300*time.Millisecond, cfg.Popup().SettleDelay)
		assert.Equal(t, 1280, cfg.Browser().Viewport["width"])
		// A default survives next to the file values.
		assert.Equal(t, "/login", cfg.App().LoginPath)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("runner.concurrency", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "runner.concurrency must be a positive integer")
	})

	t.Run("Credentials From Environment", func(t *testing.T) {
		t.Setenv("SCALPEL_E2E_APP_USERNAME", "nurse")
		t.Setenv("SCALPEL_E2E_APP_PASSWORD", "s3cret")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "nurse", cfg.App().Username)
		assert.Equal(t, "s3cret", cfg.App().Password)
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("runner.artifacts_dir", "~/e2e-artifacts")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.NotContains(t, cfg.Runner().ArtifactsDir, "~")
		assert.True(t, filepath.IsAbs(cfg.Runner().ArtifactsDir))
	})
}

// -- Load Tests --

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	t.Run("File, Overlay and Environment Precedence", func(t *testing.T) {
		dir := t.TempDir()
		base := writeFile(t, dir, "config.yaml", `
app:
  base_url: "https://base.example"
runner:
  concurrency: 2
timeouts:
  poll: 100ms
`)
		writeFile(t, dir, "config.staging.yaml", `
app:
  base_url: "https://staging.example"
`)
		t.Setenv(EnvSelector, "staging")
		t.Setenv("SCALPEL_E2E_TIMEOUTS_POLL", "50ms")

		cfg, err := Load(viper.New(), LoadOptions{File: base, DotEnv: []string{}})
		require.NoError(t, err)
		assert.Equal(t, "https://staging.example", cfg.App().BaseURL, "overlay wins over the base file")
		assert.Equal(t, 2, cfg.Runner().Concurrency, "base file value survives the overlay")
		assert.Equal(t, 50*time.Millisecond, cfg.Timeouts().Poll, "environment wins over files")
	})

	t.Run("Missing Config File Falls Back To Defaults", func(t *testing.T) {
		cfg, err := Load(viper.New(), LoadOptions{SearchPaths: []string{t.TempDir()}, DotEnv: []string{}})
		require.NoError(t, err)
		assert.Equal(t, NewDefaultConfig().Timeouts(), cfg.Timeouts())
	})

	t.Run("DotEnv Does Not Override The Environment", func(t *testing.T) {
		dir := t.TempDir()
		env := writeFile(t, dir, "test.env", "SCALPEL_E2E_APP_USERNAME=from-dotenv\nSCALPEL_E2E_APP_PASSWORD=dotenv-pass\n")
		t.Setenv("SCALPEL_E2E_APP_USERNAME", "from-shell")
		// Registered so t.Setenv restores the variable godotenv sets.
		t.Setenv("SCALPEL_E2E_APP_PASSWORD", "")
		require.NoError(t, os.Unsetenv("SCALPEL_E2E_APP_PASSWORD"))

		cfg, err := Load(viper.New(), LoadOptions{SearchPaths: []string{dir}, DotEnv: []string{env, filepath.Join(dir, "absent.env")}})
		require.NoError(t, err)
		assert.Equal(t, "from-shell", cfg.App().Username)
		assert.Equal(t, "dotenv-pass", cfg.App().Password)
	})

	t.Run("Malformed File", func(t *testing.T) {
		dir := t.TempDir()
		bad := writeFile(t, dir, "config.yaml", "app: [unterminated\n")
		_, err := Load(viper.New(), LoadOptions{File: bad, DotEnv: []string{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}
