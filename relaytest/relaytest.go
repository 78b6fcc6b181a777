// Package relaytest is an in-memory relay speaking the client's wire
// protocol over local transports. Tests and the demo binary use it to run
// several parties in one process; it is not a production relay.
package relaytest

import (
	"github.com/google/uuid"
	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/client"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/idmutex"
	"github.com/torusresearch/tss-relay-client/jrpc"
	"github.com/torusresearch/tss-relay-client/protocol"
	"github.com/torusresearch/tss-relay-client/transport"
)

// Relay keeps groups, sessions and connected parties in memory and routes
// protocol traffic between them.
type Relay struct {
	lock     idmutex.Mutex
	groups   map[string]*group
	sessions map[string]*session
	conns    []*conn
}

type group struct {
	id        uuid.UUID
	parties   uint16
	threshold uint16
}

func (g *group) dto() client.Group {
	return client.Group{
		ID: g.id.String(),
		Parameters: client.Parameters{
			Parties:   g.parties,
			Threshold: g.threshold,
		},
	}
}

type session struct {
	id      uuid.UUID
	groupID uuid.UUID
	dto     client.Session
	members []*member
}

type member struct {
	party uint16
	conn  *conn
}

type conn struct {
	relay *Relay
	tr    *transport.Local
}

func New() *Relay {
	return &Relay{
		groups:   make(map[string]*group),
		sessions: make(map[string]*session),
	}
}

// Connect attaches a new party and returns the transport its client
// should be built over.
func (r *Relay) Connect() transport.Transport {
	clientSide, relaySide := transport.NewLocalPair()
	c := &conn{relay: r, tr: relaySide}
	relaySide.SetOnMessage(c.handle)
	r.lock.Lock()
	r.conns = append(r.conns, c)
	r.lock.Unlock()
	return clientSide
}

// Close drops every connection. Groups and sessions are kept; a relay is
// as long-lived as the test using it.
func (r *Relay) Close() {
	r.lock.Lock()
	conns := append([]*conn(nil), r.conns...)
	r.lock.Unlock()
	for _, c := range conns {
		if err := c.tr.Close(); err != nil {
			logging.Debugf("relaytest: close: %v", err)
		}
	}
}

func (c *conn) handle(raw string) {
	var req jrpc.Request
	if err := bijson.Unmarshal([]byte(raw), &req); err != nil {
		logging.Debugf("relaytest: dropping unparsable message: %v", err)
		return
	}
	if req.ID == nil {
		c.relay.handleNotification(c, req)
		return
	}
	result, rpcErr := c.relay.handleCall(c, req)
	c.respond(*req.ID, result, rpcErr)
}

func (c *conn) respond(id uint64, result interface{}, rpcErr *jrpc.RPCError) {
	resp := jrpc.Response{JSONRPC: jrpc.Version, ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		data, err := bijson.Marshal(result)
		if err != nil {
			resp.Error = &jrpc.RPCError{Code: -32603, Message: "Internal error"}
		} else {
			raw := bijson.RawMessage(data)
			resp.Result = &raw
		}
	}
	out, err := bijson.Marshal(resp)
	if err != nil {
		logging.Errorf("relaytest: could not marshal response: %v", err)
		return
	}
	if err := c.tr.Send(string(out)); err != nil {
		logging.Debugf("relaytest: could not send response: %v", err)
	}
}

func (c *conn) notify(method string, params interface{}) {
	req, err := jrpc.NewNotification(method, params)
	if err != nil {
		logging.Errorf("relaytest: could not build %v notification: %v", method, err)
		return
	}
	out, err := bijson.Marshal(req)
	if err != nil {
		logging.Errorf("relaytest: could not marshal %v notification: %v", method, err)
		return
	}
	if err := c.tr.Send(string(out)); err != nil {
		logging.Debugf("relaytest: could not send %v notification: %v", method, err)
	}
}

func (r *Relay) handleCall(c *conn, req jrpc.Request) (interface{}, *jrpc.RPCError) {
	switch req.Method {
	case client.MethodGroupCreate:
		return r.groupCreate(req)
	case client.MethodGroupJoin:
		return r.groupJoin(req)
	case client.MethodSessionCreate:
		return r.sessionCreate(req)
	case client.MethodSessionSignup:
		return r.sessionSignup(c, req)
	case client.MethodSessionLogin:
		return r.sessionLogin(c, req)
	default:
		return nil, &jrpc.RPCError{Code: -32601, Message: "Method not found"}
	}
}

func (r *Relay) groupCreate(req jrpc.Request) (interface{}, *jrpc.RPCError) {
	var params client.GroupCreateParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, &jrpc.RPCError{Code: -32602, Message: "Invalid params"}
	}
	if params.Parties < 2 || params.Threshold < 1 || params.Threshold >= params.Parties {
		return nil, &jrpc.RPCError{Code: -32602, Message: "bad group parameters"}
	}
	g := &group{id: uuid.New(), parties: params.Parties, threshold: params.Threshold}
	r.lock.Lock()
	r.groups[g.id.String()] = g
	r.lock.Unlock()
	return client.GroupCreateResponse{Group: g.dto()}, nil
}

func (r *Relay) groupJoin(req jrpc.Request) (interface{}, *jrpc.RPCError) {
	var params client.GroupJoinParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, &jrpc.RPCError{Code: -32602, Message: "Invalid params"}
	}
	r.lock.Lock()
	g, ok := r.groups[params.GroupID]
	r.lock.Unlock()
	if !ok {
		return nil, &jrpc.RPCError{Code: -32602, Message: "unknown group"}
	}
	return client.GroupJoinResponse{Group: g.dto()}, nil
}

func (r *Relay) sessionCreate(req jrpc.Request) (interface{}, *jrpc.RPCError) {
	var params client.SessionCreateParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, &jrpc.RPCError{Code: -32602, Message: "Invalid params"}
	}
	if !params.Kind.Valid() {
		return nil, &jrpc.RPCError{Code: -32602, Message: "bad session kind"}
	}
	r.lock.Lock()
	g, ok := r.groups[params.GroupID]
	if !ok {
		r.lock.Unlock()
		return nil, &jrpc.RPCError{Code: -32602, Message: "unknown group"}
	}
	s := &session{id: uuid.New(), groupID: g.id}
	s.dto = client.Session{
		ID:      s.id.String(),
		GroupID: params.GroupID,
		Kind:    params.Kind,
		Value:   params.Value,
	}
	r.sessions[s.id.String()] = s
	targets := append([]*conn(nil), r.conns...)
	r.lock.Unlock()

	for _, t := range targets {
		t.notify(client.EventSessionCreated, client.SessionCreatedEvent{Session: s.dto})
	}
	return client.SessionCreateResponse{Session: s.dto}, nil
}

func (r *Relay) sessionSignup(c *conn, req jrpc.Request) (interface{}, *jrpc.RPCError) {
	var params client.SessionSignupParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, &jrpc.RPCError{Code: -32602, Message: "Invalid params"}
	}
	r.lock.Lock()
	s, ok := r.sessions[params.SessionID]
	if !ok {
		r.lock.Unlock()
		return nil, &jrpc.RPCError{Code: -32602, Message: "unknown session"}
	}
	g := r.groups[s.groupID.String()]
	for _, m := range s.members {
		if m.conn == c {
			r.lock.Unlock()
			return client.SessionSignupResponse{PartyNumber: m.party}, nil
		}
	}
	if len(s.members) == int(g.parties) {
		r.lock.Unlock()
		return nil, &jrpc.RPCError{Code: -32602, Message: "session full"}
	}
	m := &member{party: uint16(len(s.members) + 1), conn: c}
	s.members = append(s.members, m)
	full := len(s.members) == int(g.parties)
	var targets []*conn
	var parties []uint16
	if full {
		for _, sm := range s.members {
			targets = append(targets, sm.conn)
			parties = append(parties, sm.party)
		}
	}
	r.lock.Unlock()

	if full {
		ready := client.SessionReadyEvent{
			GroupID:   s.groupID.String(),
			SessionID: params.SessionID,
			Parties:   parties,
		}
		for _, t := range targets {
			t.notify(client.EventSessionReady, ready)
		}
	}
	return client.SessionSignupResponse{PartyNumber: m.party}, nil
}

func (r *Relay) sessionLogin(c *conn, req jrpc.Request) (interface{}, *jrpc.RPCError) {
	var params client.SessionLoginParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, &jrpc.RPCError{Code: -32602, Message: "Invalid params"}
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	s, ok := r.sessions[params.SessionID]
	if !ok {
		return nil, &jrpc.RPCError{Code: -32602, Message: "unknown session"}
	}
	for _, m := range s.members {
		if m.conn == c {
			return client.SessionLoginResponse{PartyNumber: m.party}, nil
		}
	}
	return nil, &jrpc.RPCError{Code: -32602, Message: "not signed up"}
}

func (r *Relay) handleNotification(c *conn, req jrpc.Request) {
	if req.Method != protocol.MessageMethod {
		logging.Debugf("relaytest: dropping %v notification", req.Method)
		return
	}
	var env protocol.SessionEnvelope
	if err := req.UnmarshalParams(&env); err != nil {
		logging.Debugf("relaytest: dropping unparsable envelope: %v", err)
		return
	}
	logging.WithField("envelope", common.Stringify(env)).Debug("relaytest: routing session message")
	r.lock.Lock()
	s, ok := r.sessions[env.SessionID.String()]
	var targets []*conn
	if ok {
		for _, m := range s.members {
			if m.party == env.Sender {
				continue
			}
			if env.Message.Receiver != nil && *env.Message.Receiver != m.party {
				continue
			}
			targets = append(targets, m.conn)
		}
	}
	r.lock.Unlock()

	for _, t := range targets {
		t.notify(protocol.MessageMethod, env)
	}
}
