package mxlink

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/mxlink/blobcodec"
	"github.com/alexjbarnes/mxlink/internal/logging"
	"github.com/alexjbarnes/mxlink/internal/metrics"
	"github.com/stretchr/testify/require"
)

const (
	testUserID = "@bot:example.org"
	testRoom   = "!room:example.org"
)

// sleepRecorder replaces real waits in tests and records each delay.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)

	return nil
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Duration(nil), r.delays...)
}

func seconds(ss ...int) []time.Duration {
	out := make([]time.Duration, len(ss))
	for i, s := range ss {
		out[i] = time.Duration(s) * time.Second
	}

	return out
}

// newTestLink returns a Link over client with a persisted plain session
// record and a recording sleep.
func newTestLink(t *testing.T, client Protocol) (*Link, *sleepRecorder) {
	t.Helper()

	store := newSessionStore(filepath.Join(t.TempDir(), "session.json"), blobcodec.New(nil))
	require.NoError(t, store.save(sampleSession()))

	rec := &sleepRecorder{}

	return newLink(linkConfig{
		client:  client,
		userID:  testUserID,
		session: store,
		logger:  logging.Discard(),
		metrics: metrics.New(nil),
		sleep:   rec.sleep,
	}), rec
}
