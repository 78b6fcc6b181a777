package protocol

import (
	"github.com/torusresearch/bijson"
)

// StateMachine is one phase of a multi-round protocol. The runner only
// feeds and drains it; round internals are never inspected. An instance
// is owned by exactly one runner for the duration of its phase.
type StateMachine interface {
	// HandleIncoming applies one peer message to the current round.
	HandleIncoming(msg RoundMsg) error
	// Outgoing drains the messages produced since the last call.
	Outgoing() []RoundMsg
	// Finished reports whether the machine has a result or a failure.
	Finished() bool
	// Result returns the phase output once Finished is true.
	Result() (interface{}, error)
}

// Engine builds the phase machines for one cryptographic scheme.
type Engine interface {
	// Validate rejects party/threshold combinations the scheme cannot run.
	Validate(parties, threshold uint16) error
	// Keygen builds the key-generation phase for one party.
	Keygen(party, threshold, parties uint16) (StateMachine, error)
	// Offline builds the signing precomputation phase over a stored share.
	Offline(party uint16, parties []uint16, share bijson.RawMessage) (StateMachine, error)
	// Signer builds the manual online step from the offline output.
	Signer(message []byte, offline interface{}) (Signer, error)
}

// Signer is the manual final signing step. It is not round-driven: the
// caller broadcasts Partial once, collects the peers' partials and hands
// them to Combine.
type Signer interface {
	Partial() (bijson.RawMessage, error)
	Combine(partials []bijson.RawMessage) (bijson.RawMessage, error)
}

// Notifier ships fire-and-forget requests to the relay in submission
// order. *jrpc.Client satisfies it.
type Notifier interface {
	Notify(method string, params interface{}) error
}
