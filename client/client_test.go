package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/client"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/config"
	"github.com/torusresearch/tss-relay-client/relaytest"
	"github.com/torusresearch/tss-relay-client/simengine"
)

func newParty(t *testing.T, relay *relaytest.Relay) *client.Client {
	t.Helper()
	cfg := config.Config{RequestTimeoutMS: 2000, NotificationBufferSize: 64}
	c := client.NewWithTransport(cfg, simengine.New(), relay.Connect())
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("close: %v", err)
		}
	})
	return c
}

type seat struct {
	c     *client.Client
	party uint16
}

// signupAll claims seats in declaration order so every client keeps the
// same party number across the keygen and signing sessions.
func signupAll(t *testing.T, parties []*client.Client, groupID, sessionID string) []seat {
	t.Helper()
	seats := make([]seat, len(parties))
	for i, c := range parties {
		n, err := c.SessionSignup(groupID, sessionID)
		require.NoError(t, err)
		require.Equal(t, uint16(i+1), n)
		seats[i] = seat{c: c, party: n}
	}
	return seats
}

func runKeygens(t *testing.T, seats []seat, groupID, sessionID string, parties, threshold uint16) []*client.KeygenResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results := make([]*client.KeygenResult, len(seats))
	errs := make([]error, len(seats))
	var wg sync.WaitGroup
	for i := range seats {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = seats[i].c.Keygen(ctx, groupID, sessionID, seats[i].party, parties, threshold)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "party %v", seats[i].party)
	}
	return results
}

func runSigns(t *testing.T, seats []seat, groupID, sessionID string, signerSet []uint16, shares []*client.KeygenResult, message []byte) []*client.Signature {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sigs := make([]*client.Signature, len(seats))
	errs := make([]error, len(seats))
	var wg sync.WaitGroup
	for i := range seats {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sigs[i], errs[i] = seats[i].c.Sign(ctx, groupID, sessionID, seats[i].party, signerSet, shares[i], message)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "party %v", seats[i].party)
	}
	return sigs
}

func TestTwoPartyKeygen(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	first := newParty(t, relay)
	second := newParty(t, relay)

	g, err := first.GroupCreate(2, 1)
	require.NoError(t, err)
	_, err = second.GroupJoin(g.ID)
	require.NoError(t, err)

	s, err := first.SessionCreate(g.ID, common.SessionKindKeygen, nil)
	require.NoError(t, err)
	seats := signupAll(t, []*client.Client{first, second}, g.ID, s.ID)

	results := runKeygens(t, seats, g.ID, s.ID, 2, 1)
	require.NotEmpty(t, results[0].PublicKey)
	assert.Equal(t, results[0].PublicKey, results[1].PublicKey)
	assert.NotEqual(t, string(results[0].Share), string(results[1].Share))
}

func TestThreePartyKeygenThenSign(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	parties := []*client.Client{newParty(t, relay), newParty(t, relay), newParty(t, relay)}

	g, err := parties[0].GroupCreate(3, 2)
	require.NoError(t, err)
	for _, p := range parties[1:] {
		_, err := p.GroupJoin(g.ID)
		require.NoError(t, err)
	}

	keygenSession, err := parties[0].SessionCreate(g.ID, common.SessionKindKeygen, nil)
	require.NoError(t, err)
	seats := signupAll(t, parties, g.ID, keygenSession.ID)
	results := runKeygens(t, seats, g.ID, keygenSession.ID, 3, 2)
	for _, r := range results[1:] {
		require.Equal(t, results[0].PublicKey, r.PublicKey)
	}

	message := []byte("pay bob 10")
	signSession, err := parties[0].SessionCreate(g.ID, common.SessionKindSign, bijson.RawMessage(`"pay bob 10"`))
	require.NoError(t, err)
	seats = signupAll(t, parties, g.ID, signSession.ID)

	// the first party hands its share in explicitly, the rest fall back
	// to the per-group cache
	shares := []*client.KeygenResult{results[0], nil, nil}
	sigs := runSigns(t, seats, g.ID, signSession.ID, []uint16{1, 2, 3}, shares, message)
	require.NotEmpty(t, sigs[0].S)
	for _, sig := range sigs[1:] {
		assert.Equal(t, sigs[0], sig)
	}
}

func TestStaggeredKeygenStarts(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	eager := newParty(t, relay)
	tardy := newParty(t, relay)

	g, err := eager.GroupCreate(2, 1)
	require.NoError(t, err)
	_, err = tardy.GroupJoin(g.ID)
	require.NoError(t, err)
	s, err := eager.SessionCreate(g.ID, common.SessionKindKeygen, nil)
	require.NoError(t, err)
	seats := signupAll(t, []*client.Client{eager, tardy}, g.ID, s.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var eagerResult *client.KeygenResult
	var eagerErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		eagerResult, eagerErr = eager.Keygen(ctx, g.ID, s.ID, seats[0].party, 2, 1)
	}()

	// the eager party's first round lands before anyone listens here
	time.Sleep(300 * time.Millisecond)
	tardyResult, err := tardy.Keygen(ctx, g.ID, s.ID, seats[1].party, 2, 1)
	require.NoError(t, err)
	<-done
	require.NoError(t, eagerErr)
	assert.Equal(t, eagerResult.PublicKey, tardyResult.PublicKey)
}

func TestSessionEventCallbacks(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	creator := newParty(t, relay)
	observer := newParty(t, relay)

	created := make(chan client.SessionCreatedEvent, 1)
	cancelCreated := observer.OnSessionCreated(func(ev client.SessionCreatedEvent) {
		select {
		case created <- ev:
		default:
		}
	})
	defer cancelCreated()
	ready := make(chan client.SessionReadyEvent, 1)
	cancelReady := observer.OnSessionReady(func(ev client.SessionReadyEvent) {
		select {
		case ready <- ev:
		default:
		}
	})
	defer cancelReady()

	g, err := creator.GroupCreate(2, 1)
	require.NoError(t, err)
	_, err = observer.GroupJoin(g.ID)
	require.NoError(t, err)
	s, err := creator.SessionCreate(g.ID, common.SessionKindKeygen, nil)
	require.NoError(t, err)

	select {
	case ev := <-created:
		assert.Equal(t, s.ID, ev.Session.ID)
		assert.Equal(t, common.SessionKindKeygen, ev.Session.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no session_created event")
	}

	signupAll(t, []*client.Client{creator, observer}, g.ID, s.ID)
	select {
	case ev := <-ready:
		assert.Equal(t, s.ID, ev.SessionID)
		assert.Equal(t, []uint16{1, 2}, ev.Parties)
	case <-time.After(2 * time.Second):
		t.Fatal("no session_ready event")
	}
}

func TestSignWithoutCachedShare(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	party := newParty(t, relay)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := party.Sign(ctx, uuid.New().String(), uuid.New().String(), 1, []uint16{1, 2}, nil, []byte("m"))
	require.True(t, errors.Is(err, client.ErrNoShare))
}

func TestLocalShareAfterKeygen(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	first := newParty(t, relay)
	second := newParty(t, relay)

	g, err := first.GroupCreate(2, 1)
	require.NoError(t, err)
	_, err = second.GroupJoin(g.ID)
	require.NoError(t, err)
	s, err := first.SessionCreate(g.ID, common.SessionKindKeygen, nil)
	require.NoError(t, err)
	seats := signupAll(t, []*client.Client{first, second}, g.ID, s.ID)
	results := runKeygens(t, seats, g.ID, s.ID, 2, 1)

	cached, err := first.LocalShare(g.ID)
	require.NoError(t, err)
	assert.Equal(t, results[0], cached)

	_, err = first.LocalShare(uuid.New().String())
	require.True(t, errors.Is(err, client.ErrNoShare))
}
