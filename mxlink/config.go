package mxlink

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/mxlink/blobcodec"
	"github.com/prometheus/client_golang/prometheus"
)

// LoginConfig describes the account and how this device appears to it.
type LoginConfig struct {
	// Homeserver is the client-server API base URL. It always overrides
	// the one stored in a persisted session.
	Homeserver string

	Username string
	Password string

	// DeviceLabel is the display name given to a newly created device.
	DeviceLabel string

	Encryption EncryptionConfig
}

// EncryptionConfig controls key recovery after a fresh login.
type EncryptionConfig struct {
	// RecoveryPassphrase unlocks or creates recovery material. Empty skips
	// recovery.
	RecoveryPassphrase string

	// RecoveryResetAllowed permits replacing registered recovery material
	// that does not match RecoveryPassphrase.
	RecoveryResetAllowed bool
}

// PersistenceConfig says where session state lives.
type PersistenceConfig struct {
	// SessionFile holds the reconnection record.
	SessionFile string

	// SessionKey encrypts SessionFile. Nil stores it in plain JSON.
	SessionKey *blobcodec.EncryptionKey

	// StoreDir holds the protocol client's local store.
	StoreDir string
}

// InitConfig is everything Init needs.
type InitConfig struct {
	Login       LoginConfig
	Persistence PersistenceConfig

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registerer receives the runtime's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	// HTTPClient is passed to the builder. Nil uses its default.
	HTTPClient *http.Client

	// Builder constructs the protocol client. Nil uses DefaultBuilder.
	Builder Builder
}

func (c *InitConfig) validate() error {
	if c.Login.Homeserver == "" {
		return fmt.Errorf("%w: homeserver is required", ErrConfig)
	}

	if c.Persistence.SessionFile == "" {
		return fmt.Errorf("%w: session file path is required", ErrConfig)
	}

	if c.Persistence.StoreDir == "" {
		return fmt.Errorf("%w: local store directory is required", ErrConfig)
	}

	return nil
}

func (c *InitConfig) validateCredentials() error {
	if c.Login.Username == "" || c.Login.Password == "" {
		return fmt.Errorf("%w: username and password are required for a fresh login", ErrConfig)
	}

	return nil
}

func (c *InitConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return slog.Default()
}

func (c *InitConfig) builder() Builder {
	if c.Builder != nil {
		return c.Builder
	}

	return DefaultBuilder
}
