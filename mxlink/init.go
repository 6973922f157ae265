package mxlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/mxlink/blobcodec"
	"github.com/alexjbarnes/mxlink/internal/metrics"
	"github.com/alexjbarnes/mxlink/internal/state"
	"github.com/alexjbarnes/mxlink/matrix"
	"go.mau.fi/util/random"
)

// storePassphraseLen is the length of the generated local-store passphrase.
const storePassphraseLen = 32

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Init restores the persisted session or performs a fresh login, confirms
// the access token is accepted, and returns a Link ready to Start.
//
// A persisted session is always restored, never replaced: when it cannot
// be read or the server rejects it, Init fails and the operator decides
// what to delete. Local-store files without a session record are leftovers
// of an interrupted login and are removed before logging in again.
func Init(ctx context.Context, cfg InitConfig) (*Link, error) {
	return initWith(ctx, cfg, sleepContext)
}

func initWith(ctx context.Context, cfg InitConfig, sleep sleepFunc) (*Link, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.logger()
	m := metrics.New(cfg.Registerer)
	store := newSessionStore(cfg.Persistence.SessionFile, blobcodec.New(cfg.Persistence.SessionKey))

	exists, err := store.exists()
	if err != nil {
		return nil, err
	}

	var (
		client Protocol
		sess   *fullSession
	)

	if exists {
		logger.Info("restoring persisted session", slog.String("session_file", cfg.Persistence.SessionFile))
		client, sess, err = restore(ctx, &cfg, store)
	} else {
		logger.Info("no persisted session, logging in", slog.String("homeserver", cfg.Login.Homeserver))
		client, sess, err = login(ctx, &cfg, store)
	}

	if err != nil {
		return nil, err
	}

	if err := checkLiveness(ctx, client, logger, m, sleep); err != nil {
		client.Close()
		return nil, err
	}

	return newLink(linkConfig{
		client:       client,
		userID:       sess.UserSession.UserID,
		initialToken: sess.SyncToken,
		session:      store,
		logger:       logger,
		metrics:      m,
		sleep:        sleep,
	}), nil
}

// restore rebuilds the client from the session file. The configured
// homeserver replaces the stored one.
func restore(ctx context.Context, cfg *InitConfig, store *sessionStore) (Protocol, *fullSession, error) {
	logger := cfg.logger()

	sess, err := store.load()
	if err != nil {
		return nil, nil, err
	}

	if sess.ClientSession.Homeserver != cfg.Login.Homeserver {
		logger.Info("homeserver changed since session was stored",
			slog.String("stored", sess.ClientSession.Homeserver),
			slog.String("configured", cfg.Login.Homeserver),
		)
		sess.ClientSession.Homeserver = cfg.Login.Homeserver
	}

	client, err := cfg.builder()(ctx, matrix.BuildConfig{
		Homeserver:      sess.ClientSession.Homeserver,
		StoreDir:        sess.ClientSession.LocalStorePath,
		StorePassphrase: sess.ClientSession.LocalStorePassphrase,
		HTTPClient:      cfg.HTTPClient,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrClientBuild, err)
	}

	if err := client.Restore(ctx, sess.UserSession); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrRestore, err)
	}

	logger.Info("session restored",
		slog.String("user_id", sess.UserSession.UserID),
		slog.String("device_id", sess.UserSession.DeviceID),
		slog.Bool("has_sync_token", sess.SyncToken != ""),
	)

	return client, sess, nil
}

// login purges residual store files, logs in, runs recovery when a
// passphrase is configured and persists a new record without a checkpoint.
func login(ctx context.Context, cfg *InitConfig, store *sessionStore) (Protocol, *fullSession, error) {
	logger := cfg.logger()

	if err := cfg.validateCredentials(); err != nil {
		return nil, nil, err
	}

	storeDir := cfg.Persistence.StoreDir

	residual, err := state.HasResidualState(storeDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPurge, err)
	}

	if residual {
		removed, err := state.PurgeResidualState(storeDir)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrPurge, err)
		}

		logger.Warn("removed residual local store from an interrupted login",
			slog.String("store_dir", storeDir),
			slog.Int("files", len(removed)),
		)
	}

	passphrase := random.String(storePassphraseLen)

	client, err := cfg.builder()(ctx, matrix.BuildConfig{
		Homeserver:      cfg.Login.Homeserver,
		StoreDir:        storeDir,
		StorePassphrase: passphrase,
		HTTPClient:      cfg.HTTPClient,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrClientBuild, err)
	}

	userSession, err := client.Login(ctx, cfg.Login.Username, cfg.Login.Password, cfg.Login.DeviceLabel)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	if cfg.Login.Encryption.RecoveryPassphrase != "" {
		if err := recoverEncryption(ctx, client, cfg.Login.Encryption, logger); err != nil {
			client.Close()
			return nil, nil, err
		}
	}

	sess := &fullSession{
		ClientSession: clientSession{
			Homeserver:           cfg.Login.Homeserver,
			LocalStorePath:       storeDir,
			LocalStorePassphrase: passphrase,
		},
		UserSession: userSession,
	}

	if err := store.save(sess); err != nil {
		client.Close()
		return nil, nil, err
	}

	return client, sess, nil
}

// recoverEncryption unlocks recovery material, creating it when none is
// registered. Mismatched material is replaced only when the caller allows
// it.
func recoverEncryption(ctx context.Context, client Protocol, enc EncryptionConfig, logger *slog.Logger) error {
	err := client.Recover(ctx, enc.RecoveryPassphrase)

	switch {
	case err == nil:
		logger.Info("encryption recovery complete")
		return nil

	case errors.Is(err, matrix.ErrRecoveryMissing):
		logger.Info("no recovery material registered, creating it")

		if err := client.EnableRecovery(ctx, enc.RecoveryPassphrase); err != nil {
			return fmt.Errorf("%w: enabling recovery: %w", ErrRecovery, err)
		}

		return nil

	case errors.Is(err, matrix.ErrRecoveryMismatch):
		if !enc.RecoveryResetAllowed {
			return ErrRecoveryRefused
		}

		logger.Warn("recovery passphrase does not match registered material, resetting")

		if err := client.ResetRecovery(ctx, enc.RecoveryPassphrase); err != nil {
			return fmt.Errorf("%w: resetting recovery: %w", ErrRecovery, err)
		}

		return nil

	default:
		return fmt.Errorf("%w: %w", ErrRecovery, err)
	}
}

// checkLiveness confirms the access token with an identity query,
// retrying transient failures without limit.
func checkLiveness(ctx context.Context, client Protocol, logger *slog.Logger, m *metrics.Metrics, sleep sleepFunc) error {
	b := newBackoff()

	for {
		userID, err := client.WhoAmI(ctx)
		if err == nil {
			logger.Info("session check passed", slog.String("user_id", userID))
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if matrix.IsPermanent(err) {
			return fmt.Errorf("%w: %w", ErrLivenessPermanent, err)
		}

		delay := b.NextBackOff()
		m.LivenessRetries.Inc()

		logger.Warn("session check failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}
