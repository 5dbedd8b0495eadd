package interfaces

import (
	"context"
	"time"

	"supportchat/pkg/types"
)

// SessionRecorder receives pairing lifecycle notifications from the matching engine
// ARCHITECTURAL DISCOVERY: Recording is fire-and-forget; implementations queue the
// write and return immediately so the hub loop never waits on disk
type SessionRecorder interface {
	RecordSessionStarted(record types.SessionRecord)
	RecordSessionEnded(id string, reason string, endedAt time.Time)
}

// SessionLedger is the read and lifecycle side of the pairing ledger
type SessionLedger interface {
	SessionRecorder

	// ListSessions returns the most recent pairings, newest first
	// FUNCTIONAL DISCOVERY: Empty roomID lists every room
	ListSessions(ctx context.Context, roomID string, limit int) ([]types.SessionRecord, error)

	// EndOpenSessions closes every row still missing ended_at
	EndOpenSessions(ctx context.Context, reason string, endedAt time.Time) (int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
