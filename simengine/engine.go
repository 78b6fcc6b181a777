// Package simengine is a toy additive n-of-n signing scheme over
// edwards25519. It exists to exercise the full protocol engine surface in
// tests and the demo binary with real group arithmetic; it is not a
// hardened threshold scheme and must not guard real keys.
//
// Keygen: every party broadcasts a commitment g^s_i; the aggregate public
// key is the sum of all commitments, identical on every party. Signing:
// partial signatures are s_i*H(m); their sum verifies against the
// aggregate key.
package simengine

import (
	"encoding/hex"
	"fmt"

	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/protocol"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// Engine implements protocol.Engine for the additive scheme.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// Validate accepts anything the generic parameter checks allow; the
// additive scheme has no extra constraints beyond needing a peer.
func (e *Engine) Validate(parties, threshold uint16) error {
	if parties < 2 {
		return &protocol.ConfigError{Reason: fmt.Sprintf("additive scheme needs at least 2 parties, got %v", parties)}
	}
	return nil
}

// Keygen picks a fresh secret and returns the commitment-exchange phase.
func (e *Engine) Keygen(party, threshold, parties uint16) (protocol.StateMachine, error) {
	secret := suite.Scalar().Pick(suite.RandomStream())
	return newKeygenMachine(party, parties, secret)
}

// Offline returns the readiness-exchange phase over a stored share.
func (e *Engine) Offline(party uint16, parties []uint16, share bijson.RawMessage) (protocol.StateMachine, error) {
	var s Share
	if err := bijson.Unmarshal(share, &s); err != nil {
		return nil, fmt.Errorf("could not decode share: %w", err)
	}
	if s.Party != party {
		return nil, fmt.Errorf("share belongs to party %v, not %v", s.Party, party)
	}
	return newOfflineMachine(s, parties)
}

// Signer builds the manual online step from the offline output.
func (e *Engine) Signer(message []byte, offline interface{}) (protocol.Signer, error) {
	state, ok := offline.(offlineState)
	if !ok {
		return nil, fmt.Errorf("unexpected offline state type %T", offline)
	}
	return newSigner(message, state)
}

// Share is the per-party keygen output the signing phases run over.
type Share struct {
	Party   uint16 `json:"party"`
	Parties uint16 `json:"parties"`
	Secret  string `json:"secret"`
	Public  string `json:"public_key"`
}

// KeygenOutput is what the keygen phase resolves to.
type KeygenOutput struct {
	Share     Share  `json:"share"`
	PublicKey string `json:"public_key"`
}

func scalarHex(s kyber.Scalar) (string, error) {
	data, err := s.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

func scalarFromHex(in string) (kyber.Scalar, error) {
	data, err := hex.DecodeString(in)
	if err != nil {
		return nil, err
	}
	s := suite.Scalar()
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}

func pointHex(p kyber.Point) (string, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

func pointFromHex(in string) (kyber.Point, error) {
	data, err := hex.DecodeString(in)
	if err != nil {
		return nil, err
	}
	p := suite.Point()
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

func hashToScalar(message []byte) kyber.Scalar {
	h := suite.Hash()
	h.Write(message)
	return suite.Scalar().SetBytes(h.Sum(nil))
}
