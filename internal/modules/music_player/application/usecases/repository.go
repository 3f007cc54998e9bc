package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// SessionRepository stores the live session of each guild.
type SessionRepository interface {
	// Get returns the session for the guild, or ErrSessionNotFound.
	Get(ctx context.Context, guildID snowflake.ID) (*Session, error)

	// LoadOrStore returns the live session stored for s's guild if there is one.
	// Otherwise it stores s, replacing a terminated session. loaded reports
	// whether s was discarded.
	LoadOrStore(ctx context.Context, s *Session) (actual *Session, loaded bool)

	// Delete removes s if it is still the stored session of its guild.
	Delete(ctx context.Context, s *Session) error

	// List returns every stored session.
	List(ctx context.Context) []*Session
}
