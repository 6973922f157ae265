// Package mxlink runs a resumable Matrix session for a bot: it restores
// or creates the session, unlocks secret-storage recovery, keeps a
// long-poll sync loop alive, dispatches membership and reaction events,
// and provides typing-notice and room-join helpers. Timeline events in
// encrypted rooms are not decrypted and are skipped by dispatch.
package mxlink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/mxlink/internal/metrics"
	"github.com/cenkalti/backoff/v4"
)

const (
	backoffInitial = 2 * time.Second
	backoffMax     = 30 * time.Second
)

// newBackoff returns the 2s, 4s, 8s, 16s, 30s, 30s... schedule shared by
// the session check and the sync loop.
func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffInitial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = backoffMax
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

type linkConfig struct {
	client       Protocol
	userID       string
	initialToken string
	session      *sessionStore
	logger       *slog.Logger
	metrics      *metrics.Metrics
	sleep        sleepFunc
}

// Link is a live session. It is safe for concurrent use; copies of the
// pointer share all state.
type Link struct {
	client       Protocol
	userID       string
	initialToken string
	session      *sessionStore
	logger       *slog.Logger
	metrics      *metrics.Metrics
	sleep        sleepFunc

	typingMu sync.Mutex
	typing   map[string]*typingEntry

	handlersMu sync.RWMutex
	handlers   handlers

	background sync.WaitGroup
}

func newLink(cfg linkConfig) *Link {
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	if cfg.metrics == nil {
		cfg.metrics = metrics.New(nil)
	}

	if cfg.sleep == nil {
		cfg.sleep = sleepContext
	}

	return &Link{
		client:       cfg.client,
		userID:       cfg.userID,
		initialToken: cfg.initialToken,
		session:      cfg.session,
		logger:       cfg.logger.With(slog.String("user_id", cfg.userID)),
		metrics:      cfg.metrics,
		sleep:        cfg.sleep,
		typing:       make(map[string]*typingEntry),
	}
}

// UserID returns the logged-in user.
func (l *Link) UserID() string {
	return l.userID
}

// Client returns the underlying protocol client, for account data and
// other calls outside the runtime's own surface.
func (l *Link) Client() Protocol {
	return l.client
}

// InitialSyncToken returns the checkpoint the session was restored with,
// or "" after a fresh login.
func (l *Link) InitialSyncToken() string {
	return l.initialToken
}

// Close waits for background invitation work and closes the client.
// Cancel the context given to Start first.
func (l *Link) Close() error {
	l.background.Wait()
	return l.client.Close()
}
