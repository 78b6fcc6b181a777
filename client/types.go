package client

import (
	"errors"

	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/common"
)

// Relay method and event names.
const (
	MethodGroupCreate   = "group_create"
	MethodGroupJoin     = "group_join"
	MethodSessionCreate = "session_create"
	MethodSessionSignup = "session_signup"
	MethodSessionLogin  = "session_login"

	EventSessionCreated = "session_created"
	EventSessionReady   = "session_ready"
)

var (
	ErrInvalidGroupID   = errors.New("group id is not a valid uuid")
	ErrInvalidSessionID = errors.New("session id is not a valid uuid")
	ErrInvalidKind      = errors.New("session kind must be keygen or sign")
	ErrNoShare          = errors.New("no key share cached for session")
)

// Parameters are the party count and signing threshold a group was
// declared with.
type Parameters struct {
	Parties   uint16 `json:"parties"`
	Threshold uint16 `json:"threshold"`
}

// Group is a declared set of parties.
type Group struct {
	ID         string     `json:"id"`
	Parameters Parameters `json:"parameters"`
}

// Session is one keygen or signing run within a group.
type Session struct {
	ID      string             `json:"id"`
	GroupID string             `json:"group_id"`
	Kind    common.SessionKind `json:"kind"`
	Value   bijson.RawMessage  `json:"value,omitempty"`
}

type GroupCreateParams struct {
	Parties   uint16 `json:"parties"`
	Threshold uint16 `json:"threshold"`
}

type GroupCreateResponse struct {
	Group Group `json:"group"`
}

type GroupJoinParams struct {
	GroupID string `json:"group_id"`
}

type GroupJoinResponse struct {
	Group Group `json:"group"`
}

type SessionCreateParams struct {
	GroupID string             `json:"group_id"`
	Kind    common.SessionKind `json:"kind"`
	Value   bijson.RawMessage  `json:"value,omitempty"`
}

type SessionCreateResponse struct {
	Session Session `json:"session"`
}

type SessionSignupParams struct {
	GroupID   string `json:"group_id"`
	SessionID string `json:"session_id"`
}

// SessionSignupResponse carries the 1-based party number the relay
// assigned to this client for the session.
type SessionSignupResponse struct {
	PartyNumber uint16 `json:"party_number"`
}

type SessionLoginParams struct {
	GroupID   string `json:"group_id"`
	SessionID string `json:"session_id"`
}

type SessionLoginResponse struct {
	PartyNumber uint16 `json:"party_number"`
}

// SessionCreatedEvent announces a new session to the group.
type SessionCreatedEvent struct {
	Session Session `json:"session"`
}

// SessionReadyEvent announces that every declared party signed up.
type SessionReadyEvent struct {
	GroupID   string   `json:"group_id"`
	SessionID string   `json:"session_id"`
	Parties   []uint16 `json:"parties"`
}

// KeygenResult is the cached outcome of one keygen session. Share is the
// engine's opaque per-party state; PublicKey is the aggregate key in hex.
type KeygenResult struct {
	Share     bijson.RawMessage `json:"share"`
	PublicKey string            `json:"public_key"`
}

// Signature is a combined threshold signature.
type Signature struct {
	R     string `json:"r"`
	S     string `json:"s"`
	Recid uint8  `json:"recid"`
}
