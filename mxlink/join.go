package mxlink

import (
	"context"
	"log/slog"
	"time"
)

// joinInitialDelay is the wait after the first failed join attempt.
const joinInitialDelay = 2 * time.Second

// JoinWithRetries joins roomID, waiting 2s, 4s, 8s... between failed
// attempts. Servers can reject a join briefly after the invite arrives
// while state propagates. When maxDelay is positive and the next wait
// would exceed it, the call fails with a *BackoffTooLargeError instead.
func (l *Link) JoinWithRetries(ctx context.Context, roomID string, maxDelay time.Duration) error {
	logger := l.logger.With(slog.String("room_id", roomID))
	delay := joinInitialDelay

	for attempt := 1; ; attempt++ {
		err := l.client.JoinRoom(ctx, roomID)
		if err == nil {
			l.metrics.JoinAttempts.WithLabelValues("success").Inc()
			logger.Info("joined room", slog.Int("attempt", attempt))

			return nil
		}

		l.metrics.JoinAttempts.WithLabelValues("failure").Inc()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("join failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)

		if err := l.sleep(ctx, delay); err != nil {
			return err
		}

		delay *= 2
		if maxDelay > 0 && delay > maxDelay {
			return &BackoffTooLargeError{Delay: delay}
		}
	}
}
