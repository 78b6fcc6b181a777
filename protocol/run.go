package protocol

import (
	"context"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/eventbus"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

const (
	// States - phase runner
	SPNotStarted = "not_started"
	SPRunning    = "running"
	SPCompleted  = "completed"
	SPFailed     = "failed"

	// Events - phase runner
	EPStart    = "start"
	EPComplete = "complete"
	EPFail     = "fail"
)

func newPhaseState(phase string, runID uuid.UUID) *fsm.FSM {
	return fsm.NewFSM(
		SPNotStarted,
		fsm.Events{
			{Name: EPStart, Src: []string{SPNotStarted}, Dst: SPRunning},
			{Name: EPComplete, Src: []string{SPRunning}, Dst: SPCompleted},
			{Name: EPFail, Src: []string{SPNotStarted, SPRunning}, Dst: SPFailed},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logging.WithFields(logging.Fields{
					"phase": phase,
					"run":   runID,
				}).Debugf("state transition from %v to %v", e.Src, e.Dst)
			},
		},
	)
}

func transition(state *fsm.FSM, event string) {
	if err := state.Event(event); err != nil {
		logging.Errorf("could not fire %v: %v", event, err)
	}
}

// Run drives one phase machine to completion: drain its initial outgoing
// messages, then alternate between applying the next accepted inbound
// envelope and draining whatever the machine produced, until the machine
// reports it is finished. Inbound traffic is filtered to ident; outbound
// messages leave as session-tagged envelopes through out. The only
// deadline is the caller's ctx.
func Run(ctx context.Context, phase string, ident Identity, machine StateMachine, in *eventbus.Subscription[SessionEnvelope], out Notifier) (interface{}, error) {
	state := newPhaseState(phase, uuid.New())
	transition(state, EPStart)
	telemetry.IncrementCounter(common.TelemetryConstants.Protocol.PhaseStartedCounter, common.TelemetryConstants.Protocol.Prefix)

	fail := func(err error) (interface{}, error) {
		transition(state, EPFail)
		telemetry.IncrementCounter(common.TelemetryConstants.Protocol.PhaseFailedCounter, common.TelemetryConstants.Protocol.Prefix)
		return nil, &ExecutionError{Phase: phase, Err: err}
	}

	if err := emit(phase, ident, machine, out); err != nil {
		return fail(err)
	}
	for !machine.Finished() {
		env, err := in.Next(ctx)
		if err != nil {
			return fail(err)
		}
		if !ident.Accepts(env) {
			telemetry.IncrementCounter(common.TelemetryConstants.Mux.FilteredMessageCounter, common.TelemetryConstants.Mux.Prefix)
			continue
		}
		telemetry.IncrementCounter(common.TelemetryConstants.Protocol.MessageInCounter, common.TelemetryConstants.Protocol.Prefix)
		if err := machine.HandleIncoming(env.Message); err != nil {
			return fail(err)
		}
		if err := emit(phase, ident, machine, out); err != nil {
			return fail(err)
		}
	}

	result, err := machine.Result()
	if err != nil {
		return fail(err)
	}
	transition(state, EPComplete)
	telemetry.IncrementCounter(common.TelemetryConstants.Protocol.PhaseCompletedCounter, common.TelemetryConstants.Protocol.Prefix)
	return result, nil
}

// emit wraps and sends everything the machine has produced, in order.
func emit(phase string, ident Identity, machine StateMachine, out Notifier) error {
	for _, msg := range machine.Outgoing() {
		env := SessionEnvelope{
			GroupID:   ident.GroupID,
			SessionID: ident.SessionID,
			Sender:    ident.Party,
			Phase:     phase,
			Message:   msg,
		}
		if err := out.Notify(MessageMethod, env); err != nil {
			return err
		}
		telemetry.IncrementCounter(common.TelemetryConstants.Protocol.MessageOutCounter, common.TelemetryConstants.Protocol.Prefix)
	}
	return nil
}
