package reconcile

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidTransition = errors.New("invalid-phase-transition")

// Phase is where the local player stands in the room's session.
type Phase int8

const (
	PhaseDisconnected Phase = iota - 1
	PhaseInitializing
	PhaseAwaitingPeers
	// PhaseSyncing: every peer is identified, the initial broadcast is pending.
	PhaseSyncing
	PhasePlaying
	// PhaseConsensusBroken: a peer signed a different state for the turn we
	// computed. Only an on-chain settlement gets the room out of it.
	PhaseConsensusBroken
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseInitializing:
		return "initializing"
	case PhaseAwaitingPeers:
		return "awaiting-peers"
	case PhaseSyncing:
		return "syncing"
	case PhasePlaying:
		return "playing"
	case PhaseConsensusBroken:
		return "consensus-broken"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// Exchanging reports whether checkpoints are accepted from peers.
func (p Phase) Exchanging() bool {
	return p >= PhaseSyncing
}

var transitions = map[Phase][]Phase{
	PhaseDisconnected:    {PhaseInitializing},
	PhaseInitializing:    {PhaseAwaitingPeers, PhasePlaying, PhaseFinished},
	PhaseAwaitingPeers:   {PhaseSyncing, PhaseFinished},
	PhaseSyncing:         {PhasePlaying, PhaseAwaitingPeers, PhaseConsensusBroken, PhaseFinished},
	PhasePlaying:         {PhaseAwaitingPeers, PhaseConsensusBroken, PhaseFinished},
	PhaseConsensusBroken: {PhasePlaying, PhaseAwaitingPeers, PhaseFinished},
	PhaseFinished:        {},
}

// CanTransition reports whether from may move to to. Every phase may drop
// to PhaseDisconnected.
func CanTransition(from, to Phase) bool {
	if to == PhaseDisconnected {
		return from != PhaseDisconnected
	}
	return slices.Contains(transitions[from], to)
}

func (r *Reconciler) transition(to Phase) error {
	if r.phase == to {
		return nil
	}
	if !CanTransition(r.phase, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.phase, to)
	}
	r.logger.Debug().Stringer("from", r.phase).Stringer("to", to).Msg("phase")
	r.phase = to
	return nil
}
