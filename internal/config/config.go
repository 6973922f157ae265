package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alexjbarnes/mxlink/blobcodec"
	"github.com/alexjbarnes/mxlink/mxlink"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Invite policies for the quickstart daemon.
const (
	InvitePolicyJoin   = "join"
	InvitePolicyReject = "reject"
	InvitePolicyIgnore = "ignore"
)

// Config holds the daemon configuration. Values come from an optional
// YAML file named by MXLINK_CONFIG_FILE, overridden by environment
// variables (and a .env file when present).
type Config struct {
	// Matrix account
	Homeserver  string `env:"MXLINK_HOMESERVER" yaml:"homeserver"`
	Username    string `env:"MXLINK_USERNAME" yaml:"username"`
	Password    string `env:"MXLINK_PASSWORD" yaml:"password"`
	DeviceLabel string `env:"MXLINK_DEVICE_LABEL" yaml:"device_label"`

	// Key recovery. Empty RecoveryPassphrase skips recovery.
	RecoveryPassphrase   string `env:"MXLINK_RECOVERY_PASSPHRASE" yaml:"recovery_passphrase"`
	RecoveryResetAllowed bool   `env:"MXLINK_RECOVERY_RESET_ALLOWED" yaml:"recovery_reset_allowed"`

	// Persistence. SessionFile and StoreDir default to paths under DataDir.
	DataDir     string `env:"MXLINK_DATA_DIR" yaml:"data_dir"`
	SessionFile string `env:"MXLINK_SESSION_FILE" yaml:"session_file"`
	StoreDir    string `env:"MXLINK_STORE_DIR" yaml:"store_dir"`

	// SessionKey is a 64-character hex key encrypting the session file
	// and room settings. Empty stores both in plain JSON.
	SessionKey string `env:"MXLINK_SESSION_KEY" yaml:"session_key"`

	// Daemon behavior. RoomCacheSize 0 means 256; negative disables the
	// room settings cache.
	InvitePolicy  string `env:"MXLINK_INVITE_POLICY" yaml:"invite_policy"`
	RoomCacheSize int    `env:"MXLINK_ROOM_CACHE_SIZE" yaml:"room_cache_size"`
	MetricsAddr   string `env:"MXLINK_METRICS_ADDR" yaml:"metrics_addr"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" yaml:"environment"`
	LogLevel    string `env:"LOG_LEVEL" yaml:"log_level"`

	sessionKey *blobcodec.EncryptionKey
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from MXLINK_CONFIG_FILE (if set) and then
// from environment variables, which take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	return load(FilePath())
}

// FilePath returns the YAML file named by MXLINK_CONFIG_FILE, or "".
func FilePath() string {
	return os.Getenv("MXLINK_CONFIG_FILE")
}

func load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyDefaults() error {
	if c.DeviceLabel == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "mxlink"
		}

		c.DeviceLabel = hostname
	}

	if c.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return err
		}

		c.DataDir = dir
	}

	if c.SessionFile == "" {
		c.SessionFile = filepath.Join(c.DataDir, "session.json")
	}

	if c.StoreDir == "" {
		c.StoreDir = filepath.Join(c.DataDir, "store")
	}

	if c.InvitePolicy == "" {
		c.InvitePolicy = InvitePolicyJoin
	}

	if c.RoomCacheSize == 0 {
		c.RoomCacheSize = 256
	}

	if c.Environment == "" {
		c.Environment = "development"
	}

	// Paths are resolved once so a later chdir cannot move the session.
	for _, p := range []*string{&c.DataDir, &c.SessionFile, &c.StoreDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolving %s to absolute path: %w", *p, err)
		}

		*p = abs
	}

	return nil
}

func (c *Config) validate() error {
	if c.Homeserver == "" {
		return fmt.Errorf("MXLINK_HOMESERVER is required")
	}

	if !strings.HasPrefix(c.Homeserver, "https://") && !strings.HasPrefix(c.Homeserver, "http://") {
		return fmt.Errorf("MXLINK_HOMESERVER must be an http(s) URL")
	}

	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("MXLINK_USERNAME and MXLINK_PASSWORD must be set together")
	}

	switch c.InvitePolicy {
	case InvitePolicyJoin, InvitePolicyReject, InvitePolicyIgnore:
	default:
		return fmt.Errorf("MXLINK_INVITE_POLICY must be one of join, reject, ignore; got %q", c.InvitePolicy)
	}

	if c.RecoveryResetAllowed && c.RecoveryPassphrase == "" {
		return fmt.Errorf("MXLINK_RECOVERY_RESET_ALLOWED requires MXLINK_RECOVERY_PASSPHRASE")
	}

	if c.SessionKey != "" {
		key, err := blobcodec.KeyFromHex(c.SessionKey)
		if err != nil {
			return fmt.Errorf("MXLINK_SESSION_KEY: %w", err)
		}

		c.sessionKey = key
	}

	return nil
}

// DefaultDataDir returns ~/.mxlink.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".mxlink"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SessionEncryptionKey returns the parsed session key, or nil when the
// session file is stored in plain JSON.
func (c *Config) SessionEncryptionKey() *blobcodec.EncryptionKey {
	return c.sessionKey
}

// InitConfig builds the runtime configuration for mxlink.Init.
func (c *Config) InitConfig(logger *slog.Logger, reg prometheus.Registerer, httpClient *http.Client) mxlink.InitConfig {
	return mxlink.InitConfig{
		Login: mxlink.LoginConfig{
			Homeserver:  c.Homeserver,
			Username:    c.Username,
			Password:    c.Password,
			DeviceLabel: c.DeviceLabel,
			Encryption: mxlink.EncryptionConfig{
				RecoveryPassphrase:   c.RecoveryPassphrase,
				RecoveryResetAllowed: c.RecoveryResetAllowed,
			},
		},
		Persistence: mxlink.PersistenceConfig{
			SessionFile: c.SessionFile,
			SessionKey:  c.sessionKey,
			StoreDir:    c.StoreDir,
		},
		Logger:     logger,
		Registerer: reg,
		HTTPClient: httpClient,
	}
}
