package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/picowarden/pkg/config"
	"github.com/tinyland-inc/picowarden/pkg/logger"
)

const Logo = "🛡️"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// ConfigPath is set by the root command's --config flag.
var ConfigPath string

func GetConfigPath() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".picowarden", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// SetupLogging applies the logging section; debug forces DEBUG.
func SetupLogging(cfg *config.Config, debug bool) {
	if cfg.Logging.JSON {
		logger.EnableJSON()
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
		return
	}
	level, ok := logger.ParseLevel(cfg.Logging.Level)
	if !ok && cfg.Logging.Level != "" {
		logger.WarnCF("config", "Unknown log level, using INFO", map[string]any{"level": cfg.Logging.Level})
	}
	logger.SetLevel(level)
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
