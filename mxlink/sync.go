package mxlink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/mxlink/matrix"
)

// syncServerTimeout is how long the server may hold each long-poll.
const syncServerTimeout = 30 * time.Second

// Start runs the sync loop until ctx is done or the server permanently
// rejects the session. Each round's checkpoint is written to the session
// file before the round's events are dispatched and before the next
// round is requested, so a crash can redeliver at most one round.
// Transient failures back off 2s, 4s, 8s... up to 30s; the schedule
// restarts after any successful round.
func (l *Link) Start(ctx context.Context) error {
	token := l.initialToken
	b := newBackoff()

	l.logger.Info("sync loop starting", slog.Bool("resuming", token != ""))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := l.client.Sync(ctx, matrix.SyncRequest{
			Since:   token,
			Timeout: syncServerTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if matrix.IsPermanent(err) {
				l.metrics.SyncFailures.WithLabelValues("permanent").Inc()
				return fmt.Errorf("%w: %w", ErrSyncPermanent, err)
			}

			delay := b.NextBackOff()
			l.metrics.SyncFailures.WithLabelValues("transient").Inc()
			l.metrics.SyncBackoff.Set(delay.Seconds())

			l.logger.Warn("sync failed, backing off",
				slog.String("error", err.Error()),
				slog.Duration("backoff", delay),
			)

			if err := l.sleep(ctx, delay); err != nil {
				return err
			}

			continue
		}

		b.Reset()
		l.metrics.SyncBackoff.Set(0)
		l.metrics.SyncRounds.Inc()

		if err := l.session.saveSyncToken(resp.NextBatch); err != nil {
			return err
		}

		token = resp.NextBatch

		l.dispatch(ctx, resp)
	}
}
