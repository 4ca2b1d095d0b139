package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "semenrich.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/semenrich"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables consulted after all files. The first non-empty
// variable in each list wins.
var (
	envNATSURL  = []string{"SEMENRICH_NATS_URL", "NATS_URL"}
	envInstance = []string{"SEMENRICH_INSTANCE"}
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	lookup func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, lookup: os.LookupEnv}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/semenrich/config.yaml)
// 3. Project config (semenrich.yaml in current or parent directories)
// 4. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		projectConfig, err := LoadFromFile(projectConfigPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
		config.Merge(projectConfig)
	} else {
		l.logger.Debug("No project config found")
	}

	return l.finish(config)
}

// LoadPath loads defaults, then the file at path, then the environment.
// User and project files are not consulted.
func (l *Loader) LoadPath(path string) (*Config, error) {
	config := DefaultConfig()

	fileConfig, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("Loaded config", slog.String("path", path))
	config.Merge(fileConfig)

	return l.finish(config)
}

func (l *Loader) finish(config *Config) (*Config, error) {
	if url, name := l.firstEnv(envNATSURL); url != "" {
		config.NATS.URL = url
		l.logger.Debug("NATS URL from environment", slog.String("var", name))
	}
	if instance, _ := l.firstEnv(envInstance); instance != "" {
		config.Instance = instance
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (l *Loader) firstEnv(names []string) (value, name string) {
	for _, n := range names {
		if v, ok := l.lookup(n); ok && v != "" {
			return v, n
		}
	}
	return "", ""
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for semenrich.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
