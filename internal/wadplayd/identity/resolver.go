package identity

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Surface exposes the identity fields the host may populate. Each accessor
// reports false when the host has not provided the field. Implementations must
// return current values on every call; the host fills them asynchronously.
type Surface interface {
	SlotID() (string, bool)
	GroupID() (string, bool)
	HardwareID() (string, bool)
	QueryParam() (string, bool)
}

// Store persists the last host-provided identity for later fallback
type Store interface {
	// Load returns the persisted identifier, or "" when none is stored
	Load(ctx context.Context) (string, error)
	// Save replaces the persisted identifier
	Save(ctx context.Context, id string) error
}

// Resolver reads the host surface and the persisted store on every call
type Resolver struct {
	surface Surface
	store   Store
	logger  zerolog.Logger
}

// NewResolver creates a resolver. A nil store disables the persisted fallback.
func NewResolver(surface Surface, store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{
		surface: surface,
		store:   store,
		logger:  logger.With().Str("component", "identity").Logger(),
	}
}

// Resolve returns the best identity available right now. It never fails:
// a missing identity is reported as false.
func (r *Resolver) Resolve(ctx context.Context) (Identity, bool) {
	fields := r.snapshot(ctx)

	id, ok := Resolve(fields)
	if !ok {
		r.logger.Warn().Msg("no screen identity available")
		return Identity{}, false
	}

	r.logger.Info().
		Str("screenId", id.ID).
		Str("source", string(id.Source)).
		Msg("screen identity resolved")

	if id.FromHost() && r.store != nil && id.ID != fields.Persisted {
		if err := r.store.Save(ctx, id.ID); err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist screen identity")
		}
	}

	return id, true
}

func (r *Resolver) snapshot(ctx context.Context) Fields {
	var f Fields
	if r.surface != nil {
		f.SlotID = optional(r.surface.SlotID())
		f.GroupID = optional(r.surface.GroupID())
		f.HardwareID = optional(r.surface.HardwareID())
		f.QueryParam = optional(r.surface.QueryParam())
	}
	if r.store != nil {
		persisted, err := r.store.Load(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to load persisted screen identity")
		}
		f.Persisted = persisted
	}
	return f
}

func optional(v string, ok bool) string {
	if !ok {
		return ""
	}
	return v
}

// MemoryStore keeps the persisted identity for the lifetime of the process
type MemoryStore struct {
	mu sync.RWMutex
	id string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored identifier
func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, nil
}

// Save replaces the stored identifier
func (s *MemoryStore) Save(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}
