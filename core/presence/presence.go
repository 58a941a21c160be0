// Package presence defines the ephemeral store clients use to signal they are online.
package presence

import (
	"context"
	"time"
)

// Status is the last presence signal of a user.
type Status struct {
	IsOnline    bool      `json:"isOnline"`
	LastChanged time.Time `json:"lastChanged"` // UTC
}

// Store keeps presence entries for a limited time: an entry that is not refreshed expires
// and its user is then considered offline.
type Store interface {
	SetStatus(ctx context.Context, uid string, isOnline bool) error
	// GetStatus returns found == false when the user has no live entry.
	GetStatus(ctx context.Context, uid string) (st Status, found bool, err error)
}
