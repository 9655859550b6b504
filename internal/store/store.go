// Package store persists completed turns for later inspection. Persistence is
// optional: when no database is configured the [Noop] implementation is used
// and every write is a cheap no-op.
package store

import (
	"context"
	"time"
)

// TurnRecord is one completed turn as written to the log.
type TurnRecord struct {
	// SessionID identifies the conversation, empty for stateless turns.
	SessionID string

	// InputText is the normalized user input.
	InputText string

	// GeneratedText is the post-processed reply.
	GeneratedText string

	// Language is the target language code of the turn.
	Language string

	// AudioBytes is the size of the synthesized payload. The audio itself is
	// not stored.
	AudioBytes int

	// CreatedAt is when the turn completed. Zero means "now" at write time.
	CreatedAt time.Time
}

// TurnStore records completed turns. Implementations must be safe for
// concurrent use.
type TurnStore interface {
	// SaveTurn appends one record to the log.
	SaveTurn(ctx context.Context, rec TurnRecord) error

	// RecentTurns returns up to limit records for the session, newest first.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases held resources.
	Close()
}

// Noop is a TurnStore that discards everything. Used when persistence is not
// configured.
type Noop struct{}

var _ TurnStore = Noop{}

func (Noop) SaveTurn(context.Context, TurnRecord) error { return nil }

func (Noop) RecentTurns(context.Context, string, int) ([]TurnRecord, error) {
	return nil, nil
}

func (Noop) Ping(context.Context) error { return nil }

func (Noop) Close() {}
