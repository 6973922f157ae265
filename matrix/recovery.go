package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/mxlink/internal/state"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/ssss"
)

// Recover unlocks the account's default secret-storage key with
// passphrase. It returns ErrRecoveryMissing when no key is registered and
// ErrRecoveryMismatch when the passphrase does not produce the key.
func (c *Client) Recover(ctx context.Context, passphrase string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	keyID, meta, err := ssss.NewSSSSMachine(c.cli).GetDefaultKeyData(ctx)

	switch {
	case errors.Is(err, ssss.ErrNoDefaultKeyID), errors.Is(err, mautrix.MNotFound):
		return fmt.Errorf("%w: %w", ErrRecoveryMissing, err)
	case err != nil:
		return classify("fetching secret storage key", err)
	}

	if meta.Algorithm != ssss.AlgorithmAESHMACSHA2 {
		return fmt.Errorf("unsupported secret storage algorithm %q", meta.Algorithm)
	}

	key, err := meta.VerifyPassphrase(keyID, passphrase)

	switch {
	case errors.Is(err, ssss.ErrIncorrectSSSSKey),
		errors.Is(err, ssss.ErrNoPassphrase),
		errors.Is(err, ssss.ErrUnsupportedPassphraseAlgorithm):
		return fmt.Errorf("%w: key %s: %w", ErrRecoveryMismatch, keyID, err)
	case err != nil:
		return fmt.Errorf("deriving key %s: %w", keyID, err)
	}

	if err := c.store.SetRecoveryKey(state.RecoveryKey{KeyID: key.ID, Key: key.Key}); err != nil {
		return fmt.Errorf("caching recovery key: %w", err)
	}

	c.logger.Info("recovery key unlocked", slog.String("key_id", key.ID))

	return nil
}

// EnableRecovery registers new recovery material bound to passphrase. It
// refuses when the account already has a default key.
func (c *Client) EnableRecovery(ctx context.Context, passphrase string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	mach := ssss.NewSSSSMachine(c.cli)

	keyID, err := mach.GetDefaultKeyID(ctx)

	switch {
	case err == nil:
		return fmt.Errorf("recovery is already enabled with key %s", keyID)
	case errors.Is(err, ssss.ErrNoDefaultKeyID), errors.Is(err, mautrix.MNotFound):
	default:
		return classify("fetching secret storage default key", err)
	}

	return c.registerKey(ctx, mach, passphrase)
}

// ResetRecovery replaces the account's default key with new material
// bound to passphrase. Secrets stored under the old key become
// unreachable.
func (c *Client) ResetRecovery(ctx context.Context, passphrase string) error {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	c.logger.Warn("resetting recovery key")

	return c.registerKey(ctx, ssss.NewSSSSMachine(c.cli), passphrase)
}

func (c *Client) registerKey(ctx context.Context, mach *ssss.Machine, passphrase string) error {
	key, err := ssss.NewKey(passphrase)
	if err != nil {
		return fmt.Errorf("generating recovery key: %w", err)
	}

	if err := mach.SetKeyData(ctx, key.ID, key.Metadata); err != nil {
		return classify("storing secret storage key", err)
	}

	if err := mach.SetDefaultKeyID(ctx, key.ID); err != nil {
		return classify("storing secret storage default key", err)
	}

	if err := c.store.SetRecoveryKey(state.RecoveryKey{KeyID: key.ID, Key: key.Key}); err != nil {
		return fmt.Errorf("caching recovery key: %w", err)
	}

	c.logger.Info("recovery key registered", slog.String("key_id", key.ID))

	return nil
}
