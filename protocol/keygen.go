package protocol

import (
	"context"
	"fmt"
)

// Deps bundles the collaborators a protocol run needs.
type Deps struct {
	Engine Engine
	Mux    *Mux
	Out    Notifier
}

// Keygen runs the single-phase key-generation protocol for one party and
// returns the engine's keygen output (local share plus aggregate public
// key). Parameters are rejected before any message leaves.
func Keygen(ctx context.Context, deps Deps, ident Identity, params Params) (interface{}, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := deps.Engine.Validate(params.Parties, params.Threshold); err != nil {
		return nil, err
	}
	machine, err := deps.Engine.Keygen(ident.Party, params.Threshold, params.Parties)
	if err != nil {
		return nil, fmt.Errorf("could not construct keygen phase: %w", err)
	}
	in := deps.Mux.Rounds()
	defer in.Cancel()
	return Run(ctx, PhaseKeygen, ident, machine, in, deps.Out)
}
