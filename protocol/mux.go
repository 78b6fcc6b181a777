package protocol

import (
	"context"
	"errors"
	"sync"

	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/eventbus"
	"github.com/torusresearch/tss-relay-client/jrpc"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

// Mux fans the relay's session_message stream out into one replay-backed
// feed per phase. Messages that arrive before a phase has a consumer are
// parked and handed over, in arrival order, when the consumer subscribes.
// The three feeds never block each other.
type Mux struct {
	stream    *jrpc.Stream[SessionEnvelope]
	rounds    *eventbus.Replay[SessionEnvelope]
	offline   *eventbus.Replay[SessionEnvelope]
	partials  *eventbus.Replay[SessionEnvelope]
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewMux subscribes to the client's session_message notifications and
// starts routing.
func NewMux(c *jrpc.Client) *Mux {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mux{
		stream:   jrpc.Subscribe[SessionEnvelope](c, MessageMethod),
		rounds:   eventbus.NewReplay[SessionEnvelope](eventbus.DefaultCapacity),
		offline:  eventbus.NewReplay[SessionEnvelope](eventbus.DefaultCapacity),
		partials: eventbus.NewReplay[SessionEnvelope](eventbus.DefaultCapacity),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go m.route(ctx)
	return m
}

// Rounds returns a fresh feed of keygen round messages, backlog first.
// One active consumer per phase at a time.
func (m *Mux) Rounds() *eventbus.Subscription[SessionEnvelope] {
	return m.rounds.Subscribe()
}

// Offline returns a fresh feed of offline-stage messages, backlog first.
func (m *Mux) Offline() *eventbus.Subscription[SessionEnvelope] {
	return m.offline.Subscribe()
}

// Partials returns a fresh feed of partial-signature messages, backlog
// first.
func (m *Mux) Partials() *eventbus.Subscription[SessionEnvelope] {
	return m.partials.Subscribe()
}

// Close stops routing and tears down the three feeds. Parked messages are
// dropped.
func (m *Mux) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.stream.Cancel()
		<-m.done
		m.rounds.Close()
		m.offline.Close()
		m.partials.Close()
	})
}

func (m *Mux) route(ctx context.Context) {
	defer close(m.done)
	for {
		env, err := m.stream.Next(ctx)
		if err != nil {
			var lagErr *eventbus.LagError
			var decodeErr *jrpc.DecodeError
			switch {
			case errors.As(err, &lagErr):
				logging.WithField("missed", lagErr.Missed).Warning("session message stream lagged")
				continue
			case errors.Is(err, jrpc.ErrNoParams), errors.As(err, &decodeErr):
				telemetry.IncrementCounter(common.TelemetryConstants.Mux.DecodeFailureCounter, common.TelemetryConstants.Mux.Prefix)
				logging.Debugf("dropping undecodable session message: %v", err)
				continue
			default:
				return
			}
		}
		m.dispatch(env)
	}
}

func (m *Mux) dispatch(env SessionEnvelope) {
	var err error
	switch env.Phase {
	case PhaseKeygen:
		telemetry.IncrementCounter(common.TelemetryConstants.Mux.RoundMessageCounter, common.TelemetryConstants.Mux.Prefix)
		err = m.rounds.Publish(env)
	case PhaseOffline:
		telemetry.IncrementCounter(common.TelemetryConstants.Mux.OfflineMessageCounter, common.TelemetryConstants.Mux.Prefix)
		err = m.offline.Publish(env)
	case PhasePartial:
		telemetry.IncrementCounter(common.TelemetryConstants.Mux.PartialMessageCounter, common.TelemetryConstants.Mux.Prefix)
		err = m.partials.Publish(env)
	default:
		telemetry.IncrementCounter(common.TelemetryConstants.Mux.UnknownPhaseCounter, common.TelemetryConstants.Mux.Prefix)
		logging.WithFields(logging.Fields{
			"phase":   env.Phase,
			"session": env.SessionID,
		}).Debug("dropping message with unknown phase")
		return
	}
	if err != nil {
		logging.Debugf("dropping %v message, feed closed", env.Phase)
	}
}
