package simengine

import (
	"fmt"

	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/protocol"
	"go.dedis.ch/kyber/v3"
)

// commitment is the single keygen round message.
type commitment struct {
	Party uint16 `json:"party"`
	Point string `json:"point"`
}

// keygenMachine collects one commitment per party. Owned by one runner;
// no internal locking.
type keygenMachine struct {
	party       uint16
	parties     uint16
	secret      kyber.Scalar
	commitments map[uint16]kyber.Point
	queued      []protocol.RoundMsg
	failure     error
}

func newKeygenMachine(party, parties uint16, secret kyber.Scalar) (*keygenMachine, error) {
	own := suite.Point().Mul(secret, nil)
	ownHex, err := pointHex(own)
	if err != nil {
		return nil, err
	}
	body, err := bijson.Marshal(commitment{Party: party, Point: ownHex})
	if err != nil {
		return nil, err
	}
	return &keygenMachine{
		party:       party,
		parties:     parties,
		secret:      secret,
		commitments: map[uint16]kyber.Point{party: own},
		queued:      []protocol.RoundMsg{{Sender: party, Body: body}},
	}, nil
}

func (m *keygenMachine) HandleIncoming(msg protocol.RoundMsg) error {
	var c commitment
	if err := bijson.Unmarshal(msg.Body, &c); err != nil {
		return fmt.Errorf("could not decode commitment: %w", err)
	}
	if _, ok := m.commitments[c.Party]; ok {
		return fmt.Errorf("duplicate commitment from party %v", c.Party)
	}
	point, err := pointFromHex(c.Point)
	if err != nil {
		return fmt.Errorf("bad commitment from party %v: %w", c.Party, err)
	}
	m.commitments[c.Party] = point
	return nil
}

func (m *keygenMachine) Outgoing() []protocol.RoundMsg {
	out := m.queued
	m.queued = nil
	return out
}

func (m *keygenMachine) Finished() bool {
	return len(m.commitments) == int(m.parties)
}

func (m *keygenMachine) Result() (interface{}, error) {
	aggregate := suite.Point().Null()
	for _, point := range m.commitments {
		aggregate.Add(aggregate, point)
	}
	publicKey, err := pointHex(aggregate)
	if err != nil {
		return nil, err
	}
	secretHex, err := scalarHex(m.secret)
	if err != nil {
		return nil, err
	}
	return KeygenOutput{
		Share: Share{
			Party:   m.party,
			Parties: m.parties,
			Secret:  secretHex,
			Public:  publicKey,
		},
		PublicKey: publicKey,
	}, nil
}
