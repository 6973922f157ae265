// Package accountconfig keeps typed, encrypted configuration values in
// Matrix account data, either once per account or once per room.
package accountconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrConfigStore wraps failures reading or writing account data.
	ErrConfigStore = errors.New("account data store failed")

	// ErrConfigEncode wraps failures serializing or encrypting a value.
	ErrConfigEncode = errors.New("encoding configuration failed")

	// ErrMissingPayload means the account data event has no payload field.
	ErrMissingPayload = errors.New("account data has no payload")
)

// Carrier maps an encrypted payload to and from the content of one
// account data event type.
type Carrier interface {
	EventType() string
	Wrap(payload string) any
	Unwrap(raw json.RawMessage) (string, error)
}

// PayloadCarrier stores the payload as {"payload": "..."}.
type PayloadCarrier struct {
	Type string
}

type payloadContent struct {
	Payload *string `json:"payload"`
}

func (c PayloadCarrier) EventType() string {
	return c.Type
}

func (c PayloadCarrier) Wrap(payload string) any {
	return payloadContent{Payload: &payload}
}

func (c PayloadCarrier) Unwrap(raw json.RawMessage) (string, error) {
	var content payloadContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", fmt.Errorf("parsing %s content: %w", c.Type, err)
	}

	if content.Payload == nil {
		return "", ErrMissingPayload
	}

	return *content.Payload, nil
}

// Codec encrypts payloads. *blobcodec.Codec implements it.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// GlobalStore reads and writes account-wide account data.
type GlobalStore interface {
	GlobalAccountData(ctx context.Context, eventType string) (json.RawMessage, error)
	SetGlobalAccountData(ctx context.Context, eventType string, content any) error
}

// RoomStore reads and writes per-room account data.
type RoomStore interface {
	RoomAccountData(ctx context.Context, roomID, eventType string) (json.RawMessage, error)
	SetRoomAccountData(ctx context.Context, roomID, eventType string, content any) error
}

// decode turns stored content back into a value. Any failure means the
// stored data is unusable.
func decode[T any](raw json.RawMessage, carrier Carrier, codec Codec) (T, error) {
	var v T

	payload, err := carrier.Unwrap(raw)
	if err != nil {
		return v, err
	}

	plain, err := codec.Decrypt(payload)
	if err != nil {
		return v, err
	}

	if err := json.Unmarshal([]byte(plain), &v); err != nil {
		return v, fmt.Errorf("parsing stored value: %w", err)
	}

	return v, nil
}

func encode[T any](v T, carrier Carrier, codec Codec) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigEncode, err)
	}

	payload, err := codec.Encrypt(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigEncode, err)
	}

	return carrier.Wrap(payload), nil
}
