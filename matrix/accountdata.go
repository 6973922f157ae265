package matrix

import (
	"context"
	"encoding/json"
	"errors"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// GlobalAccountData fetches account-wide data of the given type. Absent
// data is reported as (nil, nil).
func (c *Client) GlobalAccountData(ctx context.Context, eventType string) (json.RawMessage, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	var raw json.RawMessage

	err := c.cli.GetAccountData(ctx, eventType, &raw)
	if errors.Is(err, mautrix.MNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, classify("fetching account data "+eventType, err)
	}

	return raw, nil
}

// SetGlobalAccountData replaces account-wide data of the given type.
func (c *Client) SetGlobalAccountData(ctx context.Context, eventType string, content any) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := c.cli.SetAccountData(ctx, eventType, content); err != nil {
		return classify("storing account data "+eventType, err)
	}

	return nil
}

// RoomAccountData fetches per-room data of the given type. Absent data is
// reported as (nil, nil).
func (c *Client) RoomAccountData(ctx context.Context, roomID, eventType string) (json.RawMessage, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	var raw json.RawMessage

	err := c.cli.GetRoomAccountData(ctx, id.RoomID(roomID), eventType, &raw)
	if errors.Is(err, mautrix.MNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, classify("fetching room account data "+eventType, err)
	}

	return raw, nil
}

// SetRoomAccountData replaces per-room data of the given type.
func (c *Client) SetRoomAccountData(ctx context.Context, roomID, eventType string, content any) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := c.cli.SetRoomAccountData(ctx, id.RoomID(roomID), eventType, content); err != nil {
		return classify("storing room account data "+eventType, err)
	}

	return nil
}
