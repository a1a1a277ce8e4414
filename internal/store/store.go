// ABOUTME: Archive types and interface for docs-copilot persistence
// ABOUTME: Defines archived Thread records and the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/docs-copilot/internal/conversation"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Thread is the archived record of one conversation thread.
type Thread struct {
	ID                 string
	SessionKey         string
	OpenedAt           time.Time
	ClosedAt           *time.Time
	RemoteAcknowledged bool
}

// Store is the archive used by the conversation service and reset coordinator.
type Store interface {
	SaveMessage(ctx context.Context, sessionKey, threadID string, msg conversation.Message) error
	CloseThread(ctx context.Context, threadID string, remoteAcknowledged bool) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	GetThreadMessages(ctx context.Context, threadID string, limit int) ([]conversation.Message, error)
	Close() error
}
