// ABOUTME: Thread identity generation for chat conversations
// ABOUTME: Issues random 128-bit thread IDs; an unusable random source is fatal at startup

package thread

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ErrRandomUnavailable is returned by NewSource when the random source cannot
// produce bytes. Callers should treat it as a fatal initialization failure.
var ErrRandomUnavailable = errors.New("random source unavailable")

// ID identifies one conversation thread. It is opaque to callers.
type ID string

// String returns the canonical text form of the ID.
func (id ID) String() string { return string(id) }

// Source generates thread IDs from a random reader.
type Source struct {
	mu     sync.Mutex
	random io.Reader
}

// NewSource returns a Source reading from r, or crypto/rand when r is nil.
// The reader is probed once so a broken host fails here rather than on a reset.
func NewSource(r io.Reader) (*Source, error) {
	if r == nil {
		r = rand.Reader
	}
	if _, err := uuid.NewRandomFromReader(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
	}
	return &Source{random: r}, nil
}

// NewID returns a fresh version 4 UUID as a thread ID.
// It panics if the random source fails after a successful probe.
func (s *Source) NewID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ID(uuid.Must(uuid.NewRandomFromReader(s.random)).String())
}
