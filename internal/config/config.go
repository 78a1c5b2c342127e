// Package config provides configuration management for the telefetch bot.
// It handles loading, saving, and validating configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/telefetch-project/telefetch/internal/storage"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = "config"
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "telefetch.config.yaml"
	// EnvBotToken overrides the configured bot token when set
	EnvBotToken = "TELEFETCH_BOT_TOKEN"
)

// Config represents the complete application configuration
type Config struct {
	Telegram TelegramConfig        `yaml:"telegram" json:"telegram"`
	Download DownloadConfig        `yaml:"download" json:"download"`
	Planner  PlannerConfig         `yaml:"planner" json:"planner"`
	Status   StatusConfig          `yaml:"status" json:"status"`
	Admin    AdminConfig           `yaml:"admin" json:"admin"`
	Storage  storage.StorageConfig `yaml:"storage" json:"storage"`
	Log      LogConfig             `yaml:"log" json:"log"`
}

// TelegramConfig contains chat platform settings
type TelegramConfig struct {
	Token         string `yaml:"token" json:"token"`
	APIEndpoint   string `yaml:"api_endpoint" json:"apiEndpoint"`
	LogChatID     int64  `yaml:"log_chat_id" json:"logChatID"`         // 0 = request logging disabled
	UploadTimeout int    `yaml:"upload_timeout" json:"uploadTimeout"`  // seconds, whole upload
	UploadChunkKB int    `yaml:"upload_chunk_kb" json:"uploadChunkKB"` // multipart streaming chunk size
}

// DownloadConfig contains fetch pipeline configuration
type DownloadConfig struct {
	Directory           string `yaml:"directory" json:"directory"`
	Workers             int    `yaml:"workers" json:"workers"`
	ConcurrentFragments int    `yaml:"concurrent_fragments" json:"concurrentFragments"`
	Retries             int    `yaml:"retries" json:"retries"`
	FragmentRetries     int    `yaml:"fragment_retries" json:"fragmentRetries"`
	SocketTimeout       int    `yaml:"socket_timeout" json:"socketTimeout"` // seconds
	MinFreeBytes        int64  `yaml:"min_free_bytes" json:"minFreeBytes"`  // refuse fetch below this disk headroom
}

// PlannerConfig contains size planning configuration
type PlannerConfig struct {
	MaxSendBytes       int64 `yaml:"max_send_bytes" json:"maxSendBytes"`
	AudioHeadroomBytes int64 `yaml:"audio_headroom_bytes" json:"audioHeadroomBytes"`
	ProbeTimeout       int   `yaml:"probe_timeout" json:"probeTimeout"` // seconds per probe request
	PendingTTL         int   `yaml:"pending_ttl" json:"pendingTTL"`     // seconds
}

// StatusConfig contains status message throttling configuration
type StatusConfig struct {
	EditIntervalMS int `yaml:"edit_interval_ms" json:"editIntervalMS"`
}

// AdminConfig contains the admin HTTP server configuration
type AdminConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"writeTimeout"` // seconds
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`            // debug, info, warn, error
	Format     string `yaml:"format" json:"format"`          // json, text
	Output     string `yaml:"output" json:"output"`          // stdout, file, both
	Directory  string `yaml:"directory" json:"directory"`    // log directory
	MaxSize    int    `yaml:"max_size" json:"maxSize"`       // MB
	MaxBackups int    `yaml:"max_backups" json:"maxBackups"` // number of backup files
	MaxAge     int    `yaml:"max_age" json:"maxAge"`         // days
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:         "",
			APIEndpoint:   "https://api.telegram.org",
			LogChatID:     0,
			UploadTimeout: 1800,
			UploadChunkKB: 256,
		},
		Download: DownloadConfig{
			Directory:           "downloads",
			Workers:             2,
			ConcurrentFragments: 4,
			Retries:             5,
			FragmentRetries:     5,
			SocketTimeout:       20,
			MinFreeBytes:        500_000_000,
		},
		Planner: PlannerConfig{
			MaxSendBytes:       50_000_000,
			AudioHeadroomBytes: 1_500_000,
			ProbeTimeout:       10,
			PendingTTL:         600,
		},
		Status: StatusConfig{
			EditIntervalMS: 1800,
		},
		Admin: AdminConfig{
			Enabled:      true,
			Host:         "127.0.0.1",
			Port:         8090,
			ReadTimeout:  15,
			WriteTimeout: 15,
		},
		Storage: storage.StorageConfig{
			Type: storage.StorageTypeSQLite,
			SQLite: &storage.SQLiteConfig{
				Path: "data/telefetch.db",
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			Directory:  "logs",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Telegram.Token == "" && os.Getenv(EnvBotToken) == "" {
		return fmt.Errorf("telegram token is required (set telegram.token or %s)", EnvBotToken)
	}
	if c.Download.Workers <= 0 {
		return fmt.Errorf("download.workers must be positive, got %d", c.Download.Workers)
	}
	if c.Download.Directory == "" {
		return fmt.Errorf("download.directory is required")
	}
	if c.Planner.MaxSendBytes <= 0 {
		return fmt.Errorf("planner.max_send_bytes must be positive, got %d", c.Planner.MaxSendBytes)
	}
	if c.Planner.AudioHeadroomBytes < 0 {
		return fmt.Errorf("planner.audio_headroom_bytes cannot be negative")
	}
	if c.Planner.PendingTTL <= 0 {
		return fmt.Errorf("planner.pending_ttl must be positive, got %d", c.Planner.PendingTTL)
	}
	if c.Status.EditIntervalMS < 0 {
		return fmt.Errorf("status.edit_interval_ms cannot be negative")
	}
	if c.Admin.Enabled && (c.Admin.Port <= 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("admin.port must be in 1..65535, got %d", c.Admin.Port)
	}
	return nil
}

// BotToken returns the effective bot token, preferring the environment override
func (c *Config) BotToken() string {
	if token := os.Getenv(EnvBotToken); token != "" {
		return token
	}
	return c.Telegram.Token
}

// Manager manages configuration loading and saving
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager with the default path
func NewManager() *Manager {
	return NewManagerWithPath(DefaultConfigDir + "/" + DefaultConfigFile)
}

// NewManagerWithPath creates a new configuration manager with a custom path
func NewManagerWithPath(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
	}
}

// GetConfigPath returns the path of the managed config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
