// Package client is the host boundary of the relay client: group and
// session management calls, session event subscriptions, and the keygen
// and signing entrypoints that drive the protocol layer.
package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/config"
	"github.com/torusresearch/tss-relay-client/jrpc"
	"github.com/torusresearch/tss-relay-client/protocol"
	"github.com/torusresearch/tss-relay-client/telemetry"
	"github.com/torusresearch/tss-relay-client/transport"
	"github.com/torusresearch/tss-relay-client/version"
)

// Client talks to one relay over one multiplexed connection.
type Client struct {
	cfg       config.Config
	engine    protocol.Engine
	rpc       *jrpc.Client
	mux       *protocol.Mux
	shares    *cache.Cache
	closeOnce sync.Once
}

// New dials the configured relay. Construction fails when the relay is
// unreachable after the configured dial attempts.
func New(cfg config.Config, engine protocol.Engine) (*Client, error) {
	tr, err := transport.DialWebsocket(
		cfg.RelayURL,
		transport.WithDialAttempts(cfg.DialAttempts),
		transport.WithDialDelay(cfg.DialDelay()),
	)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(cfg, engine, tr), nil
}

// NewWithTransport wires a client over an already connected transport.
func NewWithTransport(cfg config.Config, engine protocol.Engine, tr transport.Transport) *Client {
	rpc := jrpc.NewClient(
		tr,
		jrpc.WithRequestTimeout(cfg.RequestTimeout()),
		jrpc.WithNotificationBuffer(cfg.NotificationBufferSize),
	)
	shareTTL := cache.NoExpiration
	if cfg.ShareCacheTTLMinutes > 0 {
		shareTTL = time.Duration(cfg.ShareCacheTTLMinutes) * time.Minute
	}
	logging.WithField("version", version.ClientVersion).Debug("relay client ready")
	return &Client{
		cfg:    cfg,
		engine: engine,
		rpc:    rpc,
		mux:    protocol.NewMux(rpc),
		shares: cache.New(shareTTL, 10*time.Minute),
	}
}

// Close tears down the protocol feeds and the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mux.Close()
		err = c.rpc.Close()
	})
	return err
}

// GroupCreate declares a new group with the given party count and signing
// threshold.
func (c *Client) GroupCreate(parties, threshold uint16) (*Group, error) {
	telemetry.IncrementCounter(common.TelemetryConstants.Session.GroupCreateCounter, common.TelemetryConstants.Session.Prefix)
	resp, err := c.rpc.Call(MethodGroupCreate, GroupCreateParams{Parties: parties, Threshold: threshold})
	if err != nil {
		return nil, err
	}
	var result GroupCreateResponse
	if err := resp.UnmarshalResult(&result); err != nil {
		return nil, fmt.Errorf("could not decode %v result: %w", MethodGroupCreate, err)
	}
	return &result.Group, nil
}

// GroupJoin registers this client as a party of an existing group.
func (c *Client) GroupJoin(groupID string) (*Group, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return nil, ErrInvalidGroupID
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Session.GroupJoinCounter, common.TelemetryConstants.Session.Prefix)
	resp, err := c.rpc.Call(MethodGroupJoin, GroupJoinParams{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	var result GroupJoinResponse
	if err := resp.UnmarshalResult(&result); err != nil {
		return nil, fmt.Errorf("could not decode %v result: %w", MethodGroupJoin, err)
	}
	return &result.Group, nil
}

// SessionCreate opens a keygen or signing session in a group. Value is an
// opaque payload shown to the other parties, the message digest for
// signing sessions by convention.
func (c *Client) SessionCreate(groupID string, kind common.SessionKind, value bijson.RawMessage) (*Session, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return nil, ErrInvalidGroupID
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Session.SessionCreateCounter, common.TelemetryConstants.Session.Prefix)
	resp, err := c.rpc.Call(MethodSessionCreate, SessionCreateParams{GroupID: groupID, Kind: kind, Value: value})
	if err != nil {
		return nil, err
	}
	var result SessionCreateResponse
	if err := resp.UnmarshalResult(&result); err != nil {
		return nil, fmt.Errorf("could not decode %v result: %w", MethodSessionCreate, err)
	}
	return &result.Session, nil
}

// SessionSignup claims a seat in a session and returns the 1-based party
// number the relay assigned.
func (c *Client) SessionSignup(groupID, sessionID string) (uint16, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return 0, ErrInvalidGroupID
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return 0, ErrInvalidSessionID
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Session.SessionSignupCounter, common.TelemetryConstants.Session.Prefix)
	resp, err := c.rpc.Call(MethodSessionSignup, SessionSignupParams{GroupID: groupID, SessionID: sessionID})
	if err != nil {
		return 0, err
	}
	var result SessionSignupResponse
	if err := resp.UnmarshalResult(&result); err != nil {
		return 0, fmt.Errorf("could not decode %v result: %w", MethodSessionSignup, err)
	}
	return result.PartyNumber, nil
}

// SessionLogin re-announces this client on a session it already signed up
// for, after a reconnect.
func (c *Client) SessionLogin(groupID, sessionID string) (uint16, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return 0, ErrInvalidGroupID
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return 0, ErrInvalidSessionID
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Session.SessionLoginCounter, common.TelemetryConstants.Session.Prefix)
	resp, err := c.rpc.Call(MethodSessionLogin, SessionLoginParams{GroupID: groupID, SessionID: sessionID})
	if err != nil {
		return 0, err
	}
	var result SessionLoginResponse
	if err := resp.UnmarshalResult(&result); err != nil {
		return 0, fmt.Errorf("could not decode %v result: %w", MethodSessionLogin, err)
	}
	return result.PartyNumber, nil
}

func (c *Client) identity(groupID, sessionID string, party uint16) (protocol.Identity, error) {
	gid, err := uuid.Parse(groupID)
	if err != nil {
		return protocol.Identity{}, ErrInvalidGroupID
	}
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return protocol.Identity{}, ErrInvalidSessionID
	}
	return protocol.Identity{GroupID: gid, SessionID: sid, Party: party}, nil
}

func (c *Client) deps() protocol.Deps {
	return protocol.Deps{Engine: c.engine, Mux: c.mux, Out: c.rpc}
}
