// Package testutil holds in-memory doubles shared by package tests.
package testutil

import (
	"sync"

	"supportchat/pkg/interfaces"
	"supportchat/pkg/types"
)

// FakeConnection records every frame written to it
type FakeConnection struct {
	ID string

	mu     sync.Mutex
	frames []types.OutboundFrame
	closed bool
}

// NewFakeConnection creates a recording connection with the given id
func NewFakeConnection(id string) *FakeConnection {
	return &FakeConnection{ID: id}
}

func (f *FakeConnection) GetConnectionID() string { return f.ID }

// WriteJSON records OutboundFrame values; anything else is stored under an empty event
func (f *FakeConnection) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return interfaces.ErrConnectionClosed
	}
	frame, ok := v.(types.OutboundFrame)
	if !ok {
		frame = types.OutboundFrame{Data: v}
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *FakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// IsClosed reports whether Close was called
func (f *FakeConnection) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Frames returns a copy of every recorded frame in write order
func (f *FakeConnection) Frames() []types.OutboundFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.OutboundFrame, len(f.frames))
	copy(out, f.frames)
	return out
}

// Events returns the event names of every recorded frame in write order
func (f *FakeConnection) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = fr.Event
	}
	return out
}

// Count returns how many frames carried the event
func (f *FakeConnection) Count(event string) int {
	n := 0
	for _, e := range f.Events() {
		if e == event {
			n++
		}
	}
	return n
}

// Last returns the payload of the most recent frame carrying the event
func (f *FakeConnection) Last(event string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Event == event {
			return f.frames[i].Data, true
		}
	}
	return nil, false
}

// Reset forgets recorded frames
func (f *FakeConnection) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}
