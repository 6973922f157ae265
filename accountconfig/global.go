package accountconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/mxlink/blobcodec"
)

// Option configures a manager.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for corrupt-data warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}

	return o
}

func codecOrPlain(c Codec) Codec {
	if c == nil {
		return blobcodec.New(nil)
	}

	return c
}

// GlobalManager holds one account-wide value of type T. All operations
// are serialized.
type GlobalManager[T any] struct {
	store   GlobalStore
	codec   Codec
	carrier Carrier
	factory func(ctx context.Context) (T, error)
	logger  *slog.Logger

	mu     sync.Mutex
	cached *T
}

// NewGlobalManager returns a manager for carrier's event type. factory
// produces the value used when none is stored or the stored one cannot be
// read. A nil codec stores plain JSON.
func NewGlobalManager[T any](store GlobalStore, codec Codec, carrier Carrier, factory func(ctx context.Context) (T, error), opts ...Option) *GlobalManager[T] {
	o := applyOptions(opts)

	return &GlobalManager[T]{
		store:   store,
		codec:   codecOrPlain(codec),
		carrier: carrier,
		factory: factory,
		logger:  o.logger.With(slog.String("event_type", carrier.EventType())),
	}
}

// GetOrCreate returns the cached value, else the stored one, else a new
// value from the factory which is persisted before returning.
func (m *GlobalManager[T]) GetOrCreate(ctx context.Context) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return *m.cached, nil
	}

	raw, err := m.store.GlobalAccountData(ctx, m.carrier.EventType())
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrConfigStore, err)
	}

	if raw != nil {
		v, err := decode[T](raw, m.carrier, m.codec)
		if err == nil {
			m.cached = &v
			return v, nil
		}

		m.logger.Warn("stored configuration unreadable, recreating", slog.String("error", err.Error()))
	}

	v, err := m.factory(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("creating configuration: %w", err)
	}

	if err := m.persistLocked(ctx, v); err != nil {
		var zero T
		return zero, err
	}

	return v, nil
}

// Persist stores v and makes it the cached value.
func (m *GlobalManager[T]) Persist(ctx context.Context, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.persistLocked(ctx, v)
}

func (m *GlobalManager[T]) persistLocked(ctx context.Context, v T) error {
	content, err := encode(v, m.carrier, m.codec)
	if err != nil {
		return err
	}

	if err := m.store.SetGlobalAccountData(ctx, m.carrier.EventType(), content); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigStore, err)
	}

	m.cached = &v

	return nil
}
