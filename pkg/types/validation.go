package types

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxRoomIDLength bounds externally supplied room identifiers
	MaxRoomIDLength = 100

	// MaxTextBytes bounds chat text and signal payloads
	MaxTextBytes = 65536 // 64KB
)

// Validate checks a join-room announcement and normalises its identity
// FUNCTIONAL DISCOVERY: Identity defaulting happens during validation so every
// downstream component can rely on a non-empty display name
func (p *JoinRoomPayload) Validate(maxIdentityLength int) error {
	p.RoomID = strings.TrimSpace(p.RoomID)
	if len(p.RoomID) < 1 || len(p.RoomID) > MaxRoomIDLength {
		return ErrInvalidRoomID
	}
	if !IsValidRole(p.Role) {
		return ErrInvalidRole
	}

	p.Identity = strings.TrimSpace(p.Identity)
	if p.Identity == "" {
		p.Identity = DefaultIdentity(p.Role)
	}
	if maxIdentityLength > 0 && utf8.RuneCountInString(p.Identity) > maxIdentityLength {
		return ErrInvalidIdentity
	}
	return nil
}

// Validate rejects empty or oversized chat text
func (p *SendMessagePayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return ErrEmptyMessage
	}
	if len(p.Text) > MaxTextBytes {
		return ErrMessageTooLarge
	}
	return nil
}

// Validate checks the signal envelope without looking inside the payload
// TECHNICAL DISCOVERY: The signal blob is opaque media negotiation data, so only
// its size is checked and it is forwarded byte-for-byte
func (p *SignalPayload) Validate() error {
	if p.To == "" {
		return ErrMissingSignalTarget
	}
	if len(p.Signal) > MaxTextBytes {
		return ErrSignalTooLarge
	}
	return nil
}

// IsValidRole reports whether role is one of the two supported roles
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleExpert:
		return true
	default:
		return false
	}
}

// DefaultIdentity is the display name used when a client announces none
func DefaultIdentity(role string) string {
	if role == RoleExpert {
		return "Expert"
	}
	return "User"
}
