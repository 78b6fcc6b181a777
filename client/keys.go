package client

import (
	"context"
	"errors"
	"fmt"

	cache "github.com/patrickmn/go-cache"
	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/protocol"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

// Keygen runs the key-generation protocol for this party's seat in the
// session. The resulting share is cached per group, a group holds one
// aggregate key and a later keygen run replaces it. The run waits
// indefinitely for peer traffic unless ctx bounds it.
func (c *Client) Keygen(ctx context.Context, groupID, sessionID string, partyNumber, parties, threshold uint16) (*KeygenResult, error) {
	ident, err := c.identity(groupID, sessionID, partyNumber)
	if err != nil {
		return nil, err
	}
	result, err := protocol.Keygen(ctx, c.deps(), ident, protocol.Params{Parties: parties, Threshold: threshold})
	if err != nil {
		return nil, err
	}
	out, err := decodeKeygenResult(result)
	if err != nil {
		return nil, err
	}
	c.shares.Set(groupID, out, cache.DefaultExpiration)
	telemetry.IncrementCounter(common.TelemetryConstants.Session.ShareCachedCounter, common.TelemetryConstants.Session.Prefix)
	return out, nil
}

// LocalShare returns the share this client generated for the group,
// ErrNoShare when none was produced here or it expired.
func (c *Client) LocalShare(groupID string) (*KeygenResult, error) {
	item, found := c.shares.Get(groupID)
	if !found {
		telemetry.IncrementCounter(common.TelemetryConstants.Session.ShareMissCounter, common.TelemetryConstants.Session.Prefix)
		return nil, ErrNoShare
	}
	result, ok := item.(*KeygenResult)
	if !ok {
		telemetry.IncrementCounter(common.TelemetryConstants.Session.ShareMissCounter, common.TelemetryConstants.Session.Prefix)
		return nil, ErrNoShare
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Session.ShareHitCounter, common.TelemetryConstants.Session.Prefix)
	return result, nil
}

// Sign produces a threshold signature over message with the declared
// signer set. A nil share falls back to the share cached for the group.
func (c *Client) Sign(ctx context.Context, groupID, sessionID string, partyNumber uint16, parties []uint16, share *KeygenResult, message []byte) (*Signature, error) {
	ident, err := c.identity(groupID, sessionID, partyNumber)
	if err != nil {
		return nil, err
	}
	if share == nil {
		share, err = c.LocalShare(groupID)
		if err != nil {
			return nil, err
		}
	}
	raw, err := protocol.Sign(ctx, c.deps(), ident, parties, share.Share, message)
	if err != nil {
		return nil, err
	}
	var sig Signature
	if err := bijson.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("could not decode signature: %w", err)
	}
	return &sig, nil
}

func decodeKeygenResult(result interface{}) (*KeygenResult, error) {
	data, err := bijson.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("could not encode keygen output: %w", err)
	}
	var out KeygenResult
	if err := bijson.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("could not decode keygen output: %w", err)
	}
	if len(out.Share) == 0 || out.PublicKey == "" {
		return nil, errors.New("keygen output missing share or public key")
	}
	return &out, nil
}
