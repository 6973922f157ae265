package accountconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// RoomManager holds one value of type T per room. Store operations share
// one mutex; reads are served from a bounded LRU cache. Concurrent misses
// for the same room are collapsed into a single fetch-or-create.
type RoomManager[T any] struct {
	store   RoomStore
	codec   Codec
	carrier Carrier
	factory func(ctx context.Context, roomID string) (T, error)
	logger  *slog.Logger

	storeMu sync.Mutex
	cache   *lru.Cache[string, T]
	fill    singleflight.Group
}

// NewRoomManager returns a manager caching up to cacheSize rooms. A
// cacheSize of zero or less disables the cache.
func NewRoomManager[T any](store RoomStore, codec Codec, carrier Carrier, factory func(ctx context.Context, roomID string) (T, error), cacheSize int, opts ...Option) *RoomManager[T] {
	o := applyOptions(opts)

	m := &RoomManager[T]{
		store:   store,
		codec:   codecOrPlain(codec),
		carrier: carrier,
		factory: factory,
		logger:  o.logger.With(slog.String("event_type", carrier.EventType())),
	}

	if cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		m.cache, _ = lru.New[string, T](cacheSize)
	}

	return m
}

// GetOrCreate returns the value for roomID, fetching it or creating it
// from the factory on a cache miss.
func (m *RoomManager[T]) GetOrCreate(ctx context.Context, roomID string) (T, error) {
	if v, ok := m.cacheGet(roomID); ok {
		return v, nil
	}

	// The first caller's ctx governs the shared fill.
	res, err, _ := m.fill.Do(roomID, func() (any, error) {
		if v, ok := m.cacheGet(roomID); ok {
			return v, nil
		}

		m.storeMu.Lock()
		defer m.storeMu.Unlock()

		v, err := m.fetchOrCreateLocked(ctx, roomID)
		if err != nil {
			return nil, err
		}

		m.cacheAdd(roomID, v)

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return res.(T), nil
}

// Persist stores v for roomID and updates the cache.
func (m *RoomManager[T]) Persist(ctx context.Context, roomID string, v T) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	if err := m.persistLocked(ctx, roomID, v); err != nil {
		return err
	}

	m.cacheAdd(roomID, v)

	return nil
}

// CreateNew replaces the value for roomID with a fresh one from the
// factory, ignoring anything stored or cached.
func (m *RoomManager[T]) CreateNew(ctx context.Context, roomID string) (T, error) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	v, err := m.createLocked(ctx, roomID)
	if err != nil {
		var zero T
		return zero, err
	}

	m.cacheAdd(roomID, v)

	return v, nil
}

func (m *RoomManager[T]) fetchOrCreateLocked(ctx context.Context, roomID string) (T, error) {
	raw, err := m.store.RoomAccountData(ctx, roomID, m.carrier.EventType())
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrConfigStore, err)
	}

	if raw != nil {
		v, err := decode[T](raw, m.carrier, m.codec)
		if err == nil {
			return v, nil
		}

		m.logger.Warn("stored room configuration unreadable, recreating",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()),
		)
	}

	return m.createLocked(ctx, roomID)
}

func (m *RoomManager[T]) createLocked(ctx context.Context, roomID string) (T, error) {
	v, err := m.factory(ctx, roomID)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("creating configuration for %s: %w", roomID, err)
	}

	if err := m.persistLocked(ctx, roomID, v); err != nil {
		var zero T
		return zero, err
	}

	return v, nil
}

func (m *RoomManager[T]) persistLocked(ctx context.Context, roomID string, v T) error {
	content, err := encode(v, m.carrier, m.codec)
	if err != nil {
		return err
	}

	if err := m.store.SetRoomAccountData(ctx, roomID, m.carrier.EventType(), content); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigStore, err)
	}

	return nil
}

func (m *RoomManager[T]) cacheGet(roomID string) (T, bool) {
	if m.cache == nil {
		var zero T
		return zero, false
	}

	return m.cache.Get(roomID)
}

func (m *RoomManager[T]) cacheAdd(roomID string, v T) {
	if m.cache != nil {
		m.cache.Add(roomID, v)
	}
}
