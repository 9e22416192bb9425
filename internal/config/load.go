// File: internal/config/load.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. SCALPEL_E2E_BROWSER_HEADLESS.
const EnvPrefix = "SCALPEL_E2E"

// EnvSelector names the variable choosing an environment overlay file.
const EnvSelector = EnvPrefix + "_ENV"

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// File is an explicit config file. When empty, config.yaml is searched
	// for in SearchPaths.
	File        string
	SearchPaths []string
	// DotEnv files are loaded into the process environment without
	// overriding variables that are already set. Missing files are ignored.
	DotEnv []string
}

// Load prepares v (defaults, .env, config file, environment overlay and env
// binding) and returns the validated configuration.
//
// Precedence, lowest first: defaults, config.yaml, config.<env>.yaml,
// environment variables. Flags bound by the caller rank above all of them.
func Load(v *viper.Viper, opts LoadOptions) (*Config, error) {
	SetDefaults(v)

	dotenv := opts.DotEnv
	if dotenv == nil {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{"."}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if env := strings.TrimSpace(os.Getenv(EnvSelector)); env != "" {
		if err := mergeOverlay(v, env); err != nil {
			return nil, err
		}
	}

	return NewConfigFromViper(v)
}

// mergeOverlay merges config.<env>.yaml next to the base file when present.
func mergeOverlay(v *viper.Viper, env string) error {
	dir := "."
	if used := v.ConfigFileUsed(); used != "" {
		dir = filepath.Dir(used)
	}
	overlay := filepath.Join(dir, "config."+env+".yaml")
	f, err := os.Open(overlay)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open overlay %s: %w", overlay, err)
	}
	defer f.Close()

	v.SetConfigType("yaml")
	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("merge overlay %s: %w", overlay, err)
	}
	return nil
}
