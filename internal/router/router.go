// Package router relays chat messages and signaling payloads between the two
// sides of an active pairing.
package router

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"supportchat/internal/ratelimit"
	"supportchat/internal/registry"
	"supportchat/internal/session"
	"supportchat/pkg/types"
)

// Router forwards traffic only inside a pairing
// ARCHITECTURAL DISCOVERY: Pure relay logic without matching decisions; the
// session table is the single authority on who may talk to whom
type Router struct {
	registry *registry.Registry
	sessions *session.Table
	limiter  ratelimit.Limiter
}

// NewRouter creates a relay; limiter may be nil to disable throttling
func NewRouter(reg *registry.Registry, sessions *session.Table, limiter ratelimit.Limiter) *Router {
	return &Router{
		registry: reg,
		sessions: sessions,
		limiter:  limiter,
	}
}

// RelayMessage delivers text to the sender's partner and echoes it back
// FUNCTIONAL DISCOVERY: Server-side id and timestamp so both copies of the
// envelope are identical apart from the self flag
func (r *Router) RelayMessage(ctx context.Context, fromID string, msg types.SendMessagePayload) error {
	sender, exists := r.registry.Lookup(fromID)
	if !exists {
		return ErrSenderUnknown
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := r.allow(ctx, fromID); err != nil {
		return err
	}

	partnerID, ok := r.sessions.PartnerOf(fromID)
	if !ok {
		return ErrNoPartner
	}
	if _, live := r.registry.Connection(partnerID); !live {
		return ErrNoPartner
	}

	envelope := types.MessageEnvelope{
		ID:             uuid.New().String(),
		Text:           msg.Text,
		SenderID:       fromID,
		SenderIdentity: sender.Identity,
		SenderRole:     sender.Role,
		Timestamp:      time.Now().UnixMilli(),
		RoomID:         sender.RoomID,
	}
	if err := r.registry.Send(partnerID, types.EventReceiveMessage, envelope); err != nil {
		return ErrNoPartner
	}

	envelope.Self = true
	_ = r.registry.Send(fromID, types.EventReceiveMessage, envelope)
	return nil
}

// RelaySignal forwards an opaque signaling blob to the sender's partner only
// TECHNICAL DISCOVERY: Mismatched targets are dropped and logged, never reported
// to the sender, so probing for other connection ids reveals nothing
func (r *Router) RelaySignal(ctx context.Context, fromID string, sig types.SignalPayload) error {
	sender, exists := r.registry.Lookup(fromID)
	if !exists {
		log.Printf("Dropped signal from unannounced conn=%s", fromID)
		return ErrSignalDropped
	}
	if err := sig.Validate(); err != nil {
		log.Printf("Dropped invalid signal from conn=%s: %v", fromID, err)
		return ErrSignalDropped
	}
	if err := r.allow(ctx, fromID); err != nil {
		return err
	}

	partnerID, ok := r.sessions.PartnerOf(fromID)
	if !ok || partnerID != sig.To {
		log.Printf("Dropped signal conn=%s to=%s partner=%q", fromID, sig.To, partnerID)
		return ErrSignalDropped
	}

	if err := r.registry.Send(partnerID, types.EventSignal, types.RelayedSignal{
		Signal:   sig.Signal,
		From:     fromID,
		FromRole: sender.Role,
	}); err != nil {
		log.Printf("Dropped signal conn=%s to=%s: %v", fromID, partnerID, err)
		return ErrSignalDropped
	}
	return nil
}

// Forget drops rate limit state for a connection that has gone away
func (r *Router) Forget(ctx context.Context, connID string) {
	if r.limiter == nil {
		return
	}
	if err := r.limiter.Reset(ctx, connID); err != nil {
		log.Printf("Failed to reset rate limit for conn=%s: %v", connID, err)
	}
}

// allow applies the limiter; a backend failure lets the event through
func (r *Router) allow(ctx context.Context, connID string) error {
	if r.limiter == nil {
		return nil
	}
	ok, err := r.limiter.Allow(ctx, connID)
	if err != nil {
		log.Printf("Rate limiter unavailable for conn=%s: %v", connID, err)
		return nil
	}
	if !ok {
		log.Printf("Rate limit exceeded conn=%s", connID)
		return ErrRateLimitExceeded
	}
	return nil
}
