// Package services – broadcast plumbing.
//
// Services hold an optional realtime.Broadcaster. Emits through the helpers
// below are best-effort: a nil broadcaster (tests, early boot) swallows the
// event with a debug log, and a delivered event is never allowed to fail the
// mutating operation that triggered it; the store write is authoritative.
package services

import (
	"github.com/rs/zerolog/log"

	"github.com/palettehub/commission-backend/internal/realtime"
)

// emitRoom delivers an event to a commission room, if a broadcaster is wired.
func emitRoom(b realtime.Broadcaster, room, event string, payload any) {
	if b == nil {
		log.Debug().Str("event", event).Str("room", room).Msg("broadcaster not ready, event dropped")
		return
	}
	b.ToRoom(room, event, payload)
}

// emitAll delivers an event to every connected client, if a broadcaster is
// wired. Used for status and payment changes so list views update without
// room membership.
func emitAll(b realtime.Broadcaster, event string, payload any) {
	if b == nil {
		log.Debug().Str("event", event).Msg("broadcaster not ready, event dropped")
		return
	}
	b.ToAll(event, payload)
}
