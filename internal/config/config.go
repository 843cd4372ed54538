package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "vodbatch"
	configFileName = "config.yaml"
)

var extRe = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// Config holds the configuration options for the application. It is built
// once at startup and passed to every component; nothing mutates it after
// GetConfig returns.
type Config struct {
	MaxConcurrentDownloads int            `yaml:"maxConcurrentDownloads,omitempty"`
	DownloadsDir           string         `yaml:"downloadsDir,omitempty"`
	LogFile                string         `yaml:"logFile,omitempty"`
	Server                 *ServerConfig  `yaml:"server,omitempty"`
	Tool                   *ToolConfig    `yaml:"tool,omitempty"`
	Archive                *ArchiveConfig `yaml:"archive,omitempty"`
}

// ServerConfig holds the HTTP listener options.
type ServerConfig struct {
	Port            int           `yaml:"port,omitempty"`
	CORSOrigins     []string      `yaml:"corsOrigins,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout,omitempty"`
	CleanupDelay    time.Duration `yaml:"cleanupDelay,omitempty"`
}

// ToolConfig holds options for the external yt-dlp process.
type ToolConfig struct {
	Path        string        `yaml:"path,omitempty"`
	BaseURL     string        `yaml:"baseUrl,omitempty"`
	Format      string        `yaml:"format,omitempty"`
	MergeFormat string        `yaml:"mergeFormat,omitempty"`
	ExtraArgs   []string      `yaml:"extraArgs,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// ArchiveConfig holds zip assembly options. CompressionLevel is a pointer so
// an explicit 0 (store only) survives the defaults merge.
type ArchiveConfig struct {
	CompressionLevel *int   `yaml:"compressionLevel,omitempty"`
	DownloadName     string `yaml:"downloadName,omitempty"`
}

// Level returns the configured deflate level or the default.
func (a *ArchiveConfig) Level() int {
	if a == nil || a.CompressionLevel == nil {
		return compressionLevel
	}
	return *a.CompressionLevel
}

// DefaultPath is the config file location under the xdg config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}

// Load reads an optional .env file from the working directory, then the
// YAML file at path (DefaultPath when empty), then applies environment
// overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	return GetConfig(path, os.LookupEnv)
}

// GetConfig reads the configuration file and returns a validated Config.
// If the configuration file does not exist, defaults are used. lookupEnv
// supplies environment overrides.
func GetConfig(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg, lookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readFile(path string) (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	serverCfg := zeroOr(cfg.Server, defaults.Server)
	toolCfg := zeroOr(cfg.Tool, defaults.Tool)
	archiveCfg := zeroOr(cfg.Archive, defaults.Archive)

	return &Config{
		MaxConcurrentDownloads: zeroOr(cfg.MaxConcurrentDownloads, defaults.MaxConcurrentDownloads),
		DownloadsDir:           zeroOr(cfg.DownloadsDir, defaults.DownloadsDir),
		LogFile:                zeroOr(cfg.LogFile, defaults.LogFile),
		Server: &ServerConfig{
			Port:            zeroOr(serverCfg.Port, defaults.Server.Port),
			CORSOrigins:     zeroOr(serverCfg.CORSOrigins, defaults.Server.CORSOrigins),
			ShutdownTimeout: zeroOr(serverCfg.ShutdownTimeout, defaults.Server.ShutdownTimeout),
			CleanupDelay:    zeroOr(serverCfg.CleanupDelay, defaults.Server.CleanupDelay),
		},
		Tool: &ToolConfig{
			Path:        zeroOr(toolCfg.Path, defaults.Tool.Path),
			BaseURL:     zeroOr(toolCfg.BaseURL, defaults.Tool.BaseURL),
			Format:      zeroOr(toolCfg.Format, defaults.Tool.Format),
			MergeFormat: zeroOr(toolCfg.MergeFormat, defaults.Tool.MergeFormat),
			ExtraArgs:   toolCfg.ExtraArgs,
			Timeout:     toolCfg.Timeout,
		},
		Archive: &ArchiveConfig{
			CompressionLevel: zeroOr(archiveCfg.CompressionLevel, defaults.Archive.CompressionLevel),
			DownloadName:     zeroOr(archiveCfg.DownloadName, defaults.Archive.DownloadName),
		},
	}, nil
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	if lookupEnv == nil {
		return nil
	}

	if v, ok := lookupEnv("PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = p
	}

	if v, ok := lookupEnv("CORS_ORIGIN"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}

	if v, ok := lookupEnv("DOWNLOADS_DIR"); ok && v != "" {
		cfg.DownloadsDir = v
	}

	if v, ok := lookupEnv("YTDLP_PATH"); ok && v != "" {
		cfg.Tool.Path = v
	}

	if v, ok := lookupEnv("MAX_CONCURRENT_DOWNLOADS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONCURRENT_DOWNLOADS %q: %w", v, err)
		}
		cfg.MaxConcurrentDownloads = n
	}

	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.MaxConcurrentDownloads < 1:
		return fmt.Errorf("maxConcurrentDownloads must be at least 1, got %d", c.MaxConcurrentDownloads)
	case c.DownloadsDir == "":
		return fmt.Errorf("downloadsDir must be set")
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	case c.Server.CleanupDelay < 0:
		return fmt.Errorf("server.cleanupDelay must not be negative")
	case c.Tool.Path == "":
		return fmt.Errorf("tool.path must be set")
	case c.Tool.BaseURL == "":
		return fmt.Errorf("tool.baseUrl must be set")
	case !extRe.MatchString(c.Tool.MergeFormat):
		return fmt.Errorf("tool.mergeFormat must be a bare extension, got %q", c.Tool.MergeFormat)
	case c.Tool.Timeout < 0:
		return fmt.Errorf("tool.timeout must not be negative")
	case c.Archive.Level() < -2 || c.Archive.Level() > 9:
		return fmt.Errorf("archive.compressionLevel must be between -2 and 9, got %d", c.Archive.Level())
	case c.Archive.DownloadName == "" || strings.ContainsAny(c.Archive.DownloadName, `/\`):
		return fmt.Errorf("archive.downloadName must be a plain file name, got %q", c.Archive.DownloadName)
	}

	return nil
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentDownloads: maxConcurrentDownloads,
		DownloadsDir:           defaultDownloadsDir(),
		LogFile:                defaultLogFile(),
		Server: &ServerConfig{
			Port:            port,
			CORSOrigins:     []string{corsOrigin},
			ShutdownTimeout: shutdownTimeout,
			CleanupDelay:    cleanupDelay,
		},
		Tool: &ToolConfig{
			Path:        ytdlpPath,
			BaseURL:     videoBaseURL,
			Format:      formatSelector,
			MergeFormat: mergeFormat,
		},
		Archive: &ArchiveConfig{
			CompressionLevel: ptr(compressionLevel),
			DownloadName:     archiveDownloadName,
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
