// Package protocol drives opaque multi-round threshold-signature state
// machines over the relay. It owns the session envelope wire shape, the
// per-phase message multiplexer and the phase runner; the cryptographic
// rounds themselves stay behind the Engine collaborator.
package protocol

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/torusresearch/bijson"
)

// MessageMethod is the notification method protocol traffic travels on,
// both directions.
const MessageMethod = "session_message"

// Phase tags carried on every session envelope. The tag is the single
// discriminator for routing; an envelope with any other tag is dropped.
const (
	PhaseKeygen  = "keygen"
	PhaseOffline = "offline"
	PhasePartial = "partial"
)

// Params are the group parameters a protocol run is started with.
type Params struct {
	Parties   uint16 `json:"parties"`
	Threshold uint16 `json:"threshold"`
}

// Validate rejects parameter combinations before any network activity.
func (p Params) Validate() error {
	if p.Parties < 2 {
		return &ConfigError{Reason: fmt.Sprintf("party count %v, need at least 2", p.Parties)}
	}
	if p.Threshold < 1 {
		return &ConfigError{Reason: "threshold must be at least 1"}
	}
	if p.Threshold >= p.Parties {
		return &ConfigError{Reason: fmt.Sprintf("threshold %v must be below party count %v", p.Threshold, p.Parties)}
	}
	return nil
}

// Identity pins a protocol run to one session and one seat in it.
type Identity struct {
	GroupID   uuid.UUID
	SessionID uuid.UUID
	Party     uint16
}

// Accepts reports whether an inbound envelope belongs to this run: exact
// group and session match, not self-originated, and either broadcast or
// addressed to this party.
func (id Identity) Accepts(env SessionEnvelope) bool {
	if env.GroupID != id.GroupID || env.SessionID != id.SessionID {
		return false
	}
	if env.Sender == id.Party {
		return false
	}
	if env.Message.Receiver != nil && *env.Message.Receiver != id.Party {
		return false
	}
	return true
}

// RoundMsg is one state-machine message. A nil Receiver means broadcast.
type RoundMsg struct {
	Sender   uint16            `json:"sender"`
	Receiver *uint16           `json:"receiver,omitempty"`
	Body     bijson.RawMessage `json:"body"`
}

// SessionEnvelope wraps a RoundMsg with the session coordinates and phase
// tag it is routed by.
type SessionEnvelope struct {
	GroupID   uuid.UUID `json:"group_id"`
	SessionID uuid.UUID `json:"session_id"`
	Sender    uint16    `json:"sender"`
	Phase     string    `json:"phase"`
	Message   RoundMsg  `json:"message"`
}

// ConfigError reports protocol parameters rejected before any network
// activity.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid protocol parameters: " + e.Reason
}

// ExecutionError reports a failed or aborted phase. Terminal for the
// session; the run cannot be resumed.
type ExecutionError struct {
	Phase string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%v phase failed: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CombinationError reports that final signature assembly failed. Terminal,
// never retried.
type CombinationError struct {
	Err error
}

func (e *CombinationError) Error() string {
	return fmt.Sprintf("could not combine partial signatures: %v", e.Err)
}

func (e *CombinationError) Unwrap() error {
	return e.Err
}
