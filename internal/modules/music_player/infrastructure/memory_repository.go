package infrastructure

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/usecases"
)

// MemoryRepository is an in-memory implementation of usecases.SessionRepository.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[snowflake.ID]*usecases.Session
}

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[snowflake.ID]*usecases.Session),
	}
}

// Get returns the session for the given guild, or usecases.ErrSessionNotFound.
func (r *MemoryRepository) Get(_ context.Context, guildID snowflake.ID) (*usecases.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[guildID]
	if !ok {
		return nil, usecases.ErrSessionNotFound
	}
	return s, nil
}

// LoadOrStore returns the live session of s's guild, or stores s.
// A terminated session still in the map is replaced.
func (r *MemoryRepository) LoadOrStore(_ context.Context, s *usecases.Session) (*usecases.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[s.GuildID()]; ok && existing.Alive() {
		return existing, true
	}
	r.sessions[s.GuildID()] = s
	return s, false
}

// Delete removes s if it is still the stored session of its guild.
func (r *MemoryRepository) Delete(_ context.Context, s *usecases.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.GuildID()] != s {
		return usecases.ErrSessionNotFound
	}
	delete(r.sessions, s.GuildID())
	return nil
}

// List returns every stored session.
func (r *MemoryRepository) List(_ context.Context) []*usecases.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*usecases.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Ensure MemoryRepository implements usecases.SessionRepository.
var _ usecases.SessionRepository = (*MemoryRepository)(nil)
