// Package matrix adapts a mautrix client to the small surface the link
// runtime needs: password login, session restore, identity checks,
// long-poll sync, account data, room membership actions, typing notices
// and secret-storage recovery. It also owns the passphrase-protected
// local store bound to the logged-in device.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	apperrors "github.com/alexjbarnes/mxlink/internal/errors"
	"github.com/alexjbarnes/mxlink/internal/state"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// Re-exported classification errors.
var (
	ErrInvalidToken         = apperrors.ErrInvalidToken
	ErrRecoveryMissing      = apperrors.ErrRecoveryMissing
	ErrRecoveryMismatch     = apperrors.ErrRecoveryMismatch
	ErrWrongStorePassphrase = apperrors.ErrWrongStorePassphrase
)

// defaultRequestTimeout bounds non-sync requests when the caller's
// context has no deadline.
const defaultRequestTimeout = 60 * time.Second

// Session is the reconnection token returned by Login and consumed by
// Restore.
type Session struct {
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token"`
}

// BuildConfig holds the inputs needed to construct a client.
type BuildConfig struct {
	Homeserver      string
	StoreDir        string
	StorePassphrase string

	// HTTPClient overrides the transport. Nil uses a client with a
	// timeout long enough for sync long-polls.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client is an authenticated or not-yet-authenticated protocol client
// paired with its local store.
type Client struct {
	cli    *mautrix.Client
	store  *state.State
	logger *slog.Logger
}

// Build opens the local store and constructs an unauthenticated client.
func Build(_ context.Context, cfg BuildConfig) (*Client, error) {
	if cfg.Homeserver == "" {
		return nil, fmt.Errorf("homeserver is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cli, err := mautrix.NewClient(cfg.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating protocol client: %w", err)
	}

	if cfg.HTTPClient != nil {
		cli.Client = cfg.HTTPClient
	} else {
		cli.Client = &http.Client{Timeout: 2 * defaultSyncTimeout}
	}

	store, err := state.Open(cfg.StoreDir, cfg.StorePassphrase)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	return &Client{
		cli:    cli,
		store:  store,
		logger: logger,
	}, nil
}

// Login authenticates with a password and binds the local store to the
// new device.
func (c *Client) Login(ctx context.Context, username, password, deviceLabel string) (Session, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, err := c.cli.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: username,
		},
		Password:                 password,
		InitialDeviceDisplayName: deviceLabel,
		StoreCredentials:         true,
	})
	if err != nil {
		return Session{}, fmt.Errorf("password login: %w", err)
	}

	sess := Session{
		UserID:      string(resp.UserID),
		DeviceID:    string(resp.DeviceID),
		AccessToken: resp.AccessToken,
	}

	if err := c.store.BindIdentity(state.Identity{UserID: sess.UserID, DeviceID: sess.DeviceID}); err != nil {
		return Session{}, fmt.Errorf("binding local store: %w", err)
	}

	c.logger.Info("logged in",
		slog.String("user_id", sess.UserID),
		slog.String("device_id", sess.DeviceID),
	)

	return sess, nil
}

// Restore reuses a previously issued session. No request is made; the
// token is validated by the next call, typically WhoAmI.
func (c *Client) Restore(_ context.Context, sess Session) error {
	if sess.UserID == "" || sess.AccessToken == "" {
		return fmt.Errorf("session is missing user id or access token")
	}

	if err := c.store.BindIdentity(state.Identity{UserID: sess.UserID, DeviceID: sess.DeviceID}); err != nil {
		return fmt.Errorf("binding local store: %w", err)
	}

	c.cli.UserID = id.UserID(sess.UserID)
	c.cli.DeviceID = id.DeviceID(sess.DeviceID)
	c.cli.AccessToken = sess.AccessToken

	return nil
}

// UserID returns the authenticated user, or "" before Login/Restore.
func (c *Client) UserID() string {
	return string(c.cli.UserID)
}

// WhoAmI asks the server which user owns the access token.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, err := c.cli.Whoami(ctx)
	if err != nil {
		return "", classify("whoami", err)
	}

	return string(resp.UserID), nil
}

// JoinRoom joins a room by ID.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if _, err := c.cli.JoinRoomByID(ctx, id.RoomID(roomID)); err != nil {
		return classify("joining room", err)
	}

	c.recordMembership(roomID, "join")

	return nil
}

// LeaveRoom leaves or rejects an invite to a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if _, err := c.cli.LeaveRoom(ctx, id.RoomID(roomID)); err != nil {
		return classify("leaving room", err)
	}

	c.recordMembership(roomID, "leave")

	return nil
}

// JoinedMembers returns the sorted user IDs currently joined to a room.
func (c *Client) JoinedMembers(ctx context.Context, roomID string) ([]string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	resp, err := c.cli.JoinedMembers(ctx, id.RoomID(roomID))
	if err != nil {
		return nil, classify("listing joined members", err)
	}

	members := make([]string, 0, len(resp.Joined))
	for uid := range resp.Joined {
		members = append(members, string(uid))
	}

	sort.Strings(members)

	return members, nil
}

// SetTyping asserts or clears the typing notice for the current user.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if _, err := c.cli.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		return classify("sending typing notice", err)
	}

	return nil
}

// Close releases the local store.
func (c *Client) Close() error {
	return c.store.Close()
}

func (c *Client) recordMembership(roomID, membership string) {
	if err := c.store.SetMembership(roomID, membership); err != nil {
		c.logger.Warn("failed to record membership",
			slog.String("room_id", roomID),
			slog.String("membership", membership),
			slog.String("error", err.Error()),
		)
	}
}

// IsPermanent reports whether err means the session can make no further
// progress without re-authentication. Only an unknown or revoked access
// token qualifies.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrInvalidToken) || errors.Is(err, mautrix.MUnknownToken)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}

// classify wraps err with a description and tags permanent token
// failures with ErrInvalidToken.
func classify(op string, err error) error {
	if errors.Is(err, mautrix.MUnknownToken) {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, defaultRequestTimeout)
}
