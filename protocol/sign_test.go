package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/torusresearch/bijson"
)

type fakeSigner struct {
	mu         sync.Mutex
	own        bijson.RawMessage
	sig        bijson.RawMessage
	combineErr error
	got        []bijson.RawMessage
}

func (f *fakeSigner) Partial() (bijson.RawMessage, error) {
	return f.own, nil
}

func (f *fakeSigner) Combine(partials []bijson.RawMessage) (bijson.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append([]bijson.RawMessage(nil), partials...)
	if f.combineErr != nil {
		return nil, f.combineErr
	}
	return f.sig, nil
}

func (f *fakeSigner) combined() []bijson.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

type fakeEngine struct {
	mu          sync.Mutex
	validateErr error
	keygen      *fakeMachine
	offline     *fakeMachine
	signer      *fakeSigner
	keygenCalls int
	signerCalls int
	gotMessage  []byte
	gotOffline  interface{}
	gotShare    bijson.RawMessage
}

func (f *fakeEngine) Validate(parties, threshold uint16) error {
	return f.validateErr
}

func (f *fakeEngine) Keygen(party, threshold, parties uint16) (StateMachine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keygenCalls++
	return f.keygen, nil
}

func (f *fakeEngine) Offline(party uint16, parties []uint16, share bijson.RawMessage) (StateMachine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotShare = share
	return f.offline, nil
}

func (f *fakeEngine) Signer(message []byte, offline interface{}) (Signer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signerCalls++
	f.gotMessage = message
	f.gotOffline = offline
	return f.signer, nil
}

func TestSignHappyPath(t *testing.T) {
	m, _ := newMuxRig(t)
	ident := newIdent(1)
	parties := []uint16{1, 2, 3}

	// peer partials already arrived, plus a surplus duplicate that must
	// never reach the combiner
	require.NoError(t, m.partials.Publish(makeEnv(ident, 2, nil, PhasePartial, `"partial-2"`)))
	require.NoError(t, m.partials.Publish(makeEnv(ident, 3, nil, PhasePartial, `"partial-3"`)))
	require.NoError(t, m.partials.Publish(makeEnv(ident, 2, nil, PhasePartial, `"surplus"`)))

	eng := &fakeEngine{
		offline: &fakeMachine{result: "offline-state"},
		signer:  &fakeSigner{own: bijson.RawMessage(`"partial-1"`), sig: bijson.RawMessage(`{"r":"aa","s":"bb","recid":0}`)},
	}
	out := &captureNotifier{}

	sig, err := Sign(context.Background(), Deps{Engine: eng, Mux: m, Out: out}, ident, parties, bijson.RawMessage(`"share"`), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, `{"r":"aa","s":"bb","recid":0}`, string(sig))

	combined := eng.signer.combined()
	require.Len(t, combined, 2)
	assert.Equal(t, `"partial-2"`, string(combined[0]))
	assert.Equal(t, `"partial-3"`, string(combined[1]))

	sent := out.envelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, PhasePartial, sent[0].Phase)
	assert.Equal(t, ident.Party, sent[0].Sender)
	assert.Nil(t, sent[0].Message.Receiver)
	assert.Equal(t, `"partial-1"`, string(sent[0].Message.Body))

	assert.Equal(t, `"share"`, string(eng.gotShare))
	assert.Equal(t, []byte("hello"), eng.gotMessage)
	assert.Equal(t, "offline-state", eng.gotOffline)
}

func TestSignWaitsForAllPartials(t *testing.T) {
	m, _ := newMuxRig(t)
	ident := newIdent(1)

	// only one of the two expected peers contributed
	require.NoError(t, m.partials.Publish(makeEnv(ident, 2, nil, PhasePartial, `"partial-2"`)))

	eng := &fakeEngine{
		offline: &fakeMachine{result: "offline-state"},
		signer:  &fakeSigner{own: bijson.RawMessage(`"partial-1"`)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := Sign(ctx, Deps{Engine: eng, Mux: m, Out: &captureNotifier{}}, ident, []uint16{1, 2, 3}, nil, []byte("hello"))
	require.Error(t, err)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, PhasePartial, execErr.Phase)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Nil(t, eng.signer.combined())
}

func TestSignIgnoresForeignPartials(t *testing.T) {
	m, _ := newMuxRig(t)
	ident := newIdent(1)

	foreign := makeEnv(ident, 2, nil, PhasePartial, `"foreign"`)
	foreign.SessionID = newIdent(1).SessionID
	require.NoError(t, m.partials.Publish(foreign))
	require.NoError(t, m.partials.Publish(makeEnv(ident, 2, nil, PhasePartial, `"partial-2"`)))

	eng := &fakeEngine{
		offline: &fakeMachine{result: "offline-state"},
		signer:  &fakeSigner{own: bijson.RawMessage(`"partial-1"`), sig: bijson.RawMessage(`"sig"`)},
	}

	sig, err := Sign(context.Background(), Deps{Engine: eng, Mux: m, Out: &captureNotifier{}}, ident, []uint16{1, 2}, nil, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, `"sig"`, string(sig))

	combined := eng.signer.combined()
	require.Len(t, combined, 1)
	assert.Equal(t, `"partial-2"`, string(combined[0]))
}

func TestSignCombineFailure(t *testing.T) {
	m, _ := newMuxRig(t)
	ident := newIdent(1)

	require.NoError(t, m.partials.Publish(makeEnv(ident, 2, nil, PhasePartial, `"partial-2"`)))

	combineErr := errors.New("partial does not verify")
	eng := &fakeEngine{
		offline: &fakeMachine{result: "offline-state"},
		signer:  &fakeSigner{own: bijson.RawMessage(`"partial-1"`), combineErr: combineErr},
	}

	_, err := Sign(context.Background(), Deps{Engine: eng, Mux: m, Out: &captureNotifier{}}, ident, []uint16{1, 2}, nil, []byte("hello"))
	require.Error(t, err)

	var comErr *CombinationError
	require.True(t, errors.As(err, &comErr))
	assert.True(t, errors.Is(err, combineErr))
}

func TestSignOfflineFailure(t *testing.T) {
	m, _ := newMuxRig(t)
	ident := newIdent(1)

	require.NoError(t, m.offline.Publish(makeEnv(ident, 2, nil, PhaseOffline, `"round"`)))

	eng := &fakeEngine{
		offline: &fakeMachine{need: 1, failWith: errors.New("bad round")},
		signer:  &fakeSigner{},
	}

	_, err := Sign(context.Background(), Deps{Engine: eng, Mux: m, Out: &captureNotifier{}}, ident, []uint16{1, 2}, nil, []byte("hello"))
	require.Error(t, err)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, PhaseOffline, execErr.Phase)
	assert.Equal(t, 0, eng.signerCalls)
}

func TestSignRejectsShortPartyList(t *testing.T) {
	m, _ := newMuxRig(t)

	_, err := Sign(context.Background(), Deps{Engine: &fakeEngine{}, Mux: m, Out: &captureNotifier{}}, newIdent(1), []uint16{1}, nil, []byte("hello"))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestKeygenHappyPath(t *testing.T) {
	m, _ := newMuxRig(t)
	ident := newIdent(1)

	require.NoError(t, m.rounds.Publish(makeEnv(ident, 2, nil, PhaseKeygen, `"commitment"`)))

	eng := &fakeEngine{keygen: &fakeMachine{need: 1, result: "keygen-output"}}
	result, err := Keygen(context.Background(), Deps{Engine: eng, Mux: m, Out: &captureNotifier{}}, ident, Params{Parties: 2, Threshold: 1})
	require.NoError(t, err)
	assert.Equal(t, "keygen-output", result)
	assert.Equal(t, 1, eng.keygenCalls)
}

func TestKeygenRejectsBadParams(t *testing.T) {
	m, _ := newMuxRig(t)

	eng := &fakeEngine{keygen: &fakeMachine{}}
	_, err := Keygen(context.Background(), Deps{Engine: eng, Mux: m, Out: &captureNotifier{}}, newIdent(1), Params{Parties: 2, Threshold: 2})
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 0, eng.keygenCalls)
}

func TestKeygenEngineRejects(t *testing.T) {
	m, _ := newMuxRig(t)

	validateErr := errors.New("scheme cannot do 5 of 2")
	eng := &fakeEngine{validateErr: validateErr, keygen: &fakeMachine{}}
	_, err := Keygen(context.Background(), Deps{Engine: eng, Mux: m, Out: &captureNotifier{}}, newIdent(1), Params{Parties: 5, Threshold: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, validateErr))
	assert.Equal(t, 0, eng.keygenCalls)
}
