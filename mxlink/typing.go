package mxlink

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// typingRefresh is how often an active typing notice is re-asserted.
	typingRefresh = 3 * time.Second

	// typingServerTimeout is how long the server keeps a notice alive
	// without a refresh. It must exceed typingRefresh.
	typingServerTimeout = 4 * time.Second

	// typingStopTimeout bounds the final "stopped typing" request.
	typingStopTimeout = 10 * time.Second
)

// typingEntry is the shared state for one room. An entry whose count has
// dropped to zero stays in the map until its loop has sent the final
// notice, so the next loop for the room can wait for it.
type typingEntry struct {
	count int
	stop  chan struct{}
	done  chan struct{}
}

// TypingGuard keeps the typing notice for one room alive until Release.
type TypingGuard struct {
	link   *Link
	roomID string
	once   sync.Once
}

// StartTyping shows the typing notice in roomID until the returned guard
// is released. Guards for the same room share one notice; it is cleared
// when the last one is released. The notice does not end when ctx is
// cancelled, only on release, so always release, typically with defer.
func (l *Link) StartTyping(ctx context.Context, roomID string) *TypingGuard {
	l.typingMu.Lock()

	var prev <-chan struct{}

	entry, ok := l.typing[roomID]
	if !ok || entry.count == 0 {
		if ok {
			prev = entry.done
		}

		entry = &typingEntry{stop: make(chan struct{}), done: make(chan struct{})}
		l.typing[roomID] = entry
	}

	entry.count++
	first := entry.count == 1

	l.typingMu.Unlock()

	if first {
		l.metrics.TypingLoops.Inc()
		go l.typingLoop(context.WithoutCancel(ctx), roomID, entry, prev)
	}

	return &TypingGuard{link: l, roomID: roomID}
}

// Release drops this guard's hold on the notice. Calling it more than
// once has no further effect.
func (g *TypingGuard) Release() {
	g.once.Do(func() {
		g.link.releaseTyping(g.roomID)
	})
}

func (l *Link) releaseTyping(roomID string) {
	l.typingMu.Lock()
	defer l.typingMu.Unlock()

	entry, ok := l.typing[roomID]
	if !ok || entry.count == 0 {
		return
	}

	entry.count--

	if entry.count == 0 {
		close(entry.stop)
	}
}

// typingCount returns the number of live guards for roomID.
func (l *Link) typingCount(roomID string) int {
	l.typingMu.Lock()
	defer l.typingMu.Unlock()

	if entry, ok := l.typing[roomID]; ok {
		return entry.count
	}

	return 0
}

// typingLoop asserts the notice until entry is stopped, then clears it
// once. prev, when set, is the previous loop for the room; its final
// notice must reach the server before this loop's first one.
func (l *Link) typingLoop(ctx context.Context, roomID string, entry *typingEntry, prev <-chan struct{}) {
	defer l.metrics.TypingLoops.Dec()
	defer l.finishTyping(roomID, entry)

	logger := l.logger.With(slog.String("room_id", roomID))

	if prev != nil {
		select {
		case <-prev:
		case <-entry.stop:
			return
		}
	}

	ticker := time.NewTicker(typingRefresh)
	defer ticker.Stop()

	for {
		if err := l.client.SetTyping(ctx, roomID, true, typingServerTimeout); err != nil {
			logger.Debug("failed to send typing notice", slog.String("error", err.Error()))
		}

		select {
		case <-entry.stop:
			stopCtx, cancel := context.WithTimeout(ctx, typingStopTimeout)
			if err := l.client.SetTyping(stopCtx, roomID, false, 0); err != nil {
				logger.Debug("failed to clear typing notice", slog.String("error", err.Error()))
			}

			cancel()

			return
		case <-ticker.C:
		}
	}
}

func (l *Link) finishTyping(roomID string, entry *typingEntry) {
	l.typingMu.Lock()
	defer l.typingMu.Unlock()

	close(entry.done)

	if l.typing[roomID] == entry {
		delete(l.typing, roomID)
	}
}
