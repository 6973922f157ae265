package mxlink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alexjbarnes/mxlink/matrix"
)

// Protocol is the underlying client the runtime drives. *matrix.Client
// implements it.
type Protocol interface {
	Login(ctx context.Context, username, password, deviceLabel string) (matrix.Session, error)
	Restore(ctx context.Context, sess matrix.Session) error
	WhoAmI(ctx context.Context) (string, error)
	Sync(ctx context.Context, req matrix.SyncRequest) (*matrix.SyncResponse, error)

	Recover(ctx context.Context, passphrase string) error
	EnableRecovery(ctx context.Context, passphrase string) error
	ResetRecovery(ctx context.Context, passphrase string) error

	GlobalAccountData(ctx context.Context, eventType string) (json.RawMessage, error)
	SetGlobalAccountData(ctx context.Context, eventType string, content any) error
	RoomAccountData(ctx context.Context, roomID, eventType string) (json.RawMessage, error)
	SetRoomAccountData(ctx context.Context, roomID, eventType string, content any) error

	SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
	JoinedMembers(ctx context.Context, roomID string) ([]string, error)

	Close() error
}

var _ Protocol = (*matrix.Client)(nil)

// Builder constructs a Protocol over the local store described by cfg.
type Builder func(ctx context.Context, cfg matrix.BuildConfig) (Protocol, error)

// DefaultBuilder builds a *matrix.Client.
func DefaultBuilder(ctx context.Context, cfg matrix.BuildConfig) (Protocol, error) {
	c, err := matrix.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return c, nil
}
