package simengine

import (
	"fmt"

	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/protocol"
	"go.dedis.ch/kyber/v3"
)

// readiness is the single offline round message. The additive scheme has
// no real precomputation; the round exists to drive the same machinery a
// real scheme would.
type readiness struct {
	Party uint16 `json:"party"`
}

// partialSig is the online round message carrying one party's s_i*H(m).
type partialSig struct {
	Party uint16 `json:"party"`
	Value string `json:"value"`
}

type offlineState struct {
	share   Share
	signers []uint16
}

type offlineMachine struct {
	state  offlineState
	ready  map[uint16]bool
	queued []protocol.RoundMsg
}

func newOfflineMachine(share Share, parties []uint16) (*offlineMachine, error) {
	body, err := bijson.Marshal(readiness{Party: share.Party})
	if err != nil {
		return nil, err
	}
	return &offlineMachine{
		state:  offlineState{share: share, signers: append([]uint16(nil), parties...)},
		ready:  map[uint16]bool{share.Party: true},
		queued: []protocol.RoundMsg{{Sender: share.Party, Body: body}},
	}, nil
}

func (m *offlineMachine) HandleIncoming(msg protocol.RoundMsg) error {
	var r readiness
	if err := bijson.Unmarshal(msg.Body, &r); err != nil {
		return fmt.Errorf("could not decode readiness: %w", err)
	}
	if m.ready[r.Party] {
		return fmt.Errorf("duplicate readiness from party %v", r.Party)
	}
	m.ready[r.Party] = true
	return nil
}

func (m *offlineMachine) Outgoing() []protocol.RoundMsg {
	out := m.queued
	m.queued = nil
	return out
}

func (m *offlineMachine) Finished() bool {
	return len(m.ready) == len(m.state.signers)
}

func (m *offlineMachine) Result() (interface{}, error) {
	return m.state, nil
}

type signer struct {
	state   offlineState
	digest  kyber.Scalar
	partial kyber.Scalar
}

func newSigner(message []byte, state offlineState) (*signer, error) {
	secret, err := scalarFromHex(state.share.Secret)
	if err != nil {
		return nil, fmt.Errorf("could not decode secret share: %w", err)
	}
	digest := hashToScalar(message)
	return &signer{
		state:   state,
		digest:  digest,
		partial: suite.Scalar().Mul(digest, secret),
	}, nil
}

// Partial returns this party's contribution as a round body.
func (s *signer) Partial() (bijson.RawMessage, error) {
	value, err := scalarHex(s.partial)
	if err != nil {
		return nil, err
	}
	return bijson.Marshal(partialSig{Party: s.state.share.Party, Value: value})
}

// Combine sums the peer partials with our own and verifies the result
// against the aggregate public key.
func (s *signer) Combine(partials []bijson.RawMessage) (bijson.RawMessage, error) {
	if len(partials) != len(s.state.signers)-1 {
		return nil, fmt.Errorf("have %v peer partials, want %v", len(partials), len(s.state.signers)-1)
	}

	sigma := suite.Scalar().Set(s.partial)
	for _, raw := range partials {
		var p partialSig
		if err := bijson.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("could not decode partial: %w", err)
		}
		value, err := scalarFromHex(p.Value)
		if err != nil {
			return nil, fmt.Errorf("bad partial from party %v: %w", p.Party, err)
		}
		sigma.Add(sigma, value)
	}

	publicKey, err := pointFromHex(s.state.share.Public)
	if err != nil {
		return nil, fmt.Errorf("could not decode aggregate key: %w", err)
	}
	left := suite.Point().Mul(sigma, nil)
	right := suite.Point().Mul(s.digest, publicKey)
	if !left.Equal(right) {
		return nil, fmt.Errorf("combined signature does not verify")
	}

	sigmaHex, err := scalarHex(sigma)
	if err != nil {
		return nil, err
	}
	commitmentHex, err := pointHex(left)
	if err != nil {
		return nil, err
	}
	return bijson.Marshal(signature{R: commitmentHex, S: sigmaHex, Recid: 0})
}

// signature is the combined result wire shape.
type signature struct {
	R     string `json:"r"`
	S     string `json:"s"`
	Recid uint8  `json:"recid"`
}
