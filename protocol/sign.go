package protocol

import (
	"context"
	"fmt"

	"github.com/torusresearch/bijson"
	"github.com/torusresearch/tss-relay-client/common"
	"github.com/torusresearch/tss-relay-client/eventbus"
	"github.com/torusresearch/tss-relay-client/telemetry"
)

// Sign produces a threshold signature over message. The offline
// precomputation phase is round-driven like keygen; the online step is
// manual: broadcast this party's partial signature, collect exactly one
// partial from every other declared participant, combine. Surplus
// partials past the expected count are never consumed. Combination
// failure is terminal.
func Sign(ctx context.Context, deps Deps, ident Identity, parties []uint16, share bijson.RawMessage, message []byte) (bijson.RawMessage, error) {
	if len(parties) < 2 {
		return nil, &ConfigError{Reason: fmt.Sprintf("signer list has %v parties, need at least 2", len(parties))}
	}

	offlineMachine, err := deps.Engine.Offline(ident.Party, parties, share)
	if err != nil {
		return nil, fmt.Errorf("could not construct offline phase: %w", err)
	}
	offlineIn := deps.Mux.Offline()
	offlineResult, err := Run(ctx, PhaseOffline, ident, offlineMachine, offlineIn, deps.Out)
	offlineIn.Cancel()
	if err != nil {
		return nil, err
	}

	signer, err := deps.Engine.Signer(message, offlineResult)
	if err != nil {
		return nil, fmt.Errorf("could not construct signer: %w", err)
	}

	// subscribed before our own partial goes out, so peer partials racing
	// the broadcast are never missed
	partials := deps.Mux.Partials()
	defer partials.Cancel()

	own, err := signer.Partial()
	if err != nil {
		return nil, &ExecutionError{Phase: PhasePartial, Err: err}
	}
	env := SessionEnvelope{
		GroupID:   ident.GroupID,
		SessionID: ident.SessionID,
		Sender:    ident.Party,
		Phase:     PhasePartial,
		Message:   RoundMsg{Sender: ident.Party, Body: own},
	}
	if err := deps.Out.Notify(MessageMethod, env); err != nil {
		return nil, &ExecutionError{Phase: PhasePartial, Err: err}
	}
	telemetry.IncrementCounter(common.TelemetryConstants.Protocol.MessageOutCounter, common.TelemetryConstants.Protocol.Prefix)

	collected, err := collectPartials(ctx, partials, ident, len(parties)-1)
	if err != nil {
		return nil, err
	}

	telemetry.IncrementCounter(common.TelemetryConstants.Protocol.CombineCounter, common.TelemetryConstants.Protocol.Prefix)
	sig, err := signer.Combine(collected)
	if err != nil {
		return nil, &CombinationError{Err: err}
	}
	return sig, nil
}

// collectPartials blocks until exactly want accepted partial-signature
// envelopes arrived. Collection is count-based; duplicates from one
// sender are not collapsed. No deadline of its own, ctx bounds the wait.
func collectPartials(ctx context.Context, in *eventbus.Subscription[SessionEnvelope], ident Identity, want int) ([]bijson.RawMessage, error) {
	collected := make([]bijson.RawMessage, 0, want)
	for len(collected) < want {
		env, err := in.Next(ctx)
		if err != nil {
			return nil, &ExecutionError{Phase: PhasePartial, Err: err}
		}
		if !ident.Accepts(env) {
			telemetry.IncrementCounter(common.TelemetryConstants.Mux.FilteredMessageCounter, common.TelemetryConstants.Mux.Prefix)
			continue
		}
		collected = append(collected, env.Message.Body)
		telemetry.IncrementCounter(common.TelemetryConstants.Protocol.PartialCollectedCounter, common.TelemetryConstants.Protocol.Prefix)
	}
	return collected, nil
}
