package store

import (
	"context"

	"praman/internal/enrollment/models"
)

// SessionStore holds pending registration ceremonies keyed by user id.
//
// Create returns sentinel.ErrAlreadyUsed while an unexpired session exists
// for the same user; an expired one is replaced. Find and Consume return
// sentinel.ErrNotFound for an unknown or evicted session, and may return an
// expired session so callers can tell the two apart.
//
// Consume deletes the session only while it still holds challenge, checking
// and deleting in one step. A session is therefore consumed at most once
// across every process sharing the store, and a session created by a newer
// Start is left alone. A mismatch reports sentinel.ErrNotFound.
type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	Find(ctx context.Context, userID string) (models.Session, error)
	Consume(ctx context.Context, userID, challenge string) (models.Session, error)
}
