// Package game replicates the contract's turn transition off-chain.
//
// AdvanceTurn must stay bit-for-bit identical to the chain: two honest peers
// that start from the same confirmed checkpoint have to arrive at the same
// checkpoint hash.
package game

import (
	"context"
	"fmt"
	"time"

	"sectf/domain"
	"sectf/drng"
)

const (
	SpawnRate                = 5
	MaxPassengersPerElevator = 4
	MaxWaitingPassengers     = 100
	MaxFloorQueue            = 8
	SoftDeadline             = 1000
	HardDeadline             = 1200
	MinSpeed                 = 10
	MaxSpeed                 = 100
	SpeedUpStep              = 10
	FloorHeight              = 100
	InitialBalance           = 1000
	InitialSpeed             = 20
)

type Engine struct {
	decisions       DecisionProvider
	pricer          ActionPricer
	decisionTimeout time.Duration
}

// NewEngine builds an engine. A zero decisionTimeout leaves the deadline to
// the caller's context.
func NewEngine(decisions DecisionProvider, pricer ActionPricer, decisionTimeout time.Duration) *Engine {
	if pricer == nil {
		pricer = BidCurve{}
	}
	return &Engine{decisions: decisions, pricer: pricer, decisionTimeout: decisionTimeout}
}

// AdvanceTurn computes the state that follows state. On error the returned
// state is the untouched input and the turn may be retried.
func (en *Engine) AdvanceTurn(ctx context.Context, state domain.GameState, room domain.RoomConfig) (domain.GameState, error) {
	if state.Status != domain.StatusReady {
		return state, ErrNotPlayable
	}
	if err := Validate(state, room); err != nil {
		return state, fmt.Errorf("%w: %w", ErrNotPlayable, err)
	}

	next := state.Clone()
	players := int(room.NumberOfPlayers)

	buttons := floorButtons(state.Turn, state.FloorPassengers)
	top := topScoreElevators(state.Elevators)
	current := state.CurrentPlayer()

	random, seed := drng.Next(state.RandomSeed)
	next.RandomSeed = seed

	if spawn, start, target := newPassenger(random, room.Floors, state.WaitingPassengers); spawn {
		next.FloorPassengers[start] = append(next.FloorPassengers[start], target)
		buttons[start] = upgradeButton(buttons[start], start, target)
		next.WaitingPassengers++
	}

	decision, err := en.decide(ctx, DecisionRequest{
		PlayerIndex:       current,
		Room:              room,
		TopScoreElevators: top,
		Turn:              state.Turn,
		ActionsSold:       state.ActionsSold,
		Elevators:         elevatorViews(state.Elevators, current),
		FloorButtons:      buttons,
	})
	if err != nil {
		return state, err
	}

	if decision.Action.Amount > 0 {
		if err := en.applyAction(ctx, &next, current, decision.Action); err != nil {
			return state, err
		}
	}
	// The provider decided on the state before this turn; the state machine
	// steps on what it decided.
	applyDecision(&next.Elevators[current], decision)

	if stepElevator(&next, room, current) {
		top = topScoreElevators(next.Elevators)
	}

	finished := false
	if next.Elevators[current].Score == room.ScoreToWin {
		next.Status = domain.StatusFinishedWithWinner
		finished = true
	} else if state.Turn > SoftDeadline && players > 1 && len(top) == 1 {
		next.Status = domain.StatusFinishedWithWinner
		finished = true
	}

	if !finished {
		if int(state.Turn)%players == 0 {
			next.Indices = rotation(random, players)
		}
		if state.Turn > HardDeadline {
			next.Status = domain.StatusFinishedWithoutWinner
		}
	}

	next.Turn++
	return next, nil
}

// Play advances up to turns turns and stops early on a terminal state.
func (en *Engine) Play(ctx context.Context, state domain.GameState, room domain.RoomConfig, turns int) (domain.GameState, int, error) {
	played := 0
	for played < turns && !state.Status.Terminal() {
		next, err := en.AdvanceTurn(ctx, state, room)
		if err != nil {
			return state, played, err
		}
		state = next
		played++
	}
	return state, played, nil
}

func (en *Engine) decide(ctx context.Context, req DecisionRequest) (ElevatorDecision, error) {
	if en.decisions == nil {
		return ElevatorDecision{}, fmt.Errorf("%w: no decision provider", ErrDecisionFailed)
	}
	if en.decisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, en.decisionTimeout)
		defer cancel()
	}
	decision, err := en.decisions.PlayTurnOffChain(ctx, req)
	if err != nil {
		return ElevatorDecision{}, fmt.Errorf("%w: %w", ErrDecisionFailed, err)
	}
	if decision.Light > domain.LightDown {
		return ElevatorDecision{}, fmt.Errorf("%w: light %d out of range", ErrDecisionFailed, decision.Light)
	}
	return decision, nil
}

func applyDecision(e *domain.ElevatorState, d ElevatorDecision) {
	e.Light = d.Light
	e.Data = d.Data
	if d.ReplaceFloorQueue {
		queue := d.FloorQueue
		if len(queue) > MaxFloorQueue {
			queue = queue[:MaxFloorQueue]
		}
		e.FloorQueue = append(make([]uint8, 0, len(queue)), queue...)
		return
	}
	for _, f := range d.FloorQueue {
		if len(e.FloorQueue) >= MaxFloorQueue {
			break
		}
		e.FloorQueue = append(e.FloorQueue, f)
	}
}

// rotation is a cyclic permutation starting at random mod players.
func rotation(random uint64, players int) []uint8 {
	indices := make([]uint8, players)
	next := int(random % uint64(players))
	for i := range indices {
		indices[i] = uint8(next)
		next = (next + 1) % players
	}
	return indices
}

// Validate checks the structural invariants the transition relies on.
func Validate(state domain.GameState, room domain.RoomConfig) error {
	players := int(room.NumberOfPlayers)
	switch {
	case players == 0 || room.Floors == 0:
		return fmt.Errorf("%w: empty room", ErrInvalidState)
	case len(state.Elevators) != players:
		return fmt.Errorf("%w: %d elevators for %d players", ErrInvalidState, len(state.Elevators), players)
	case len(state.Indices) != players:
		return fmt.Errorf("%w: %d indices for %d players", ErrInvalidState, len(state.Indices), players)
	case len(state.FloorPassengers) != int(room.Floors):
		return fmt.Errorf("%w: %d floor lists for %d floors", ErrInvalidState, len(state.FloorPassengers), room.Floors)
	}
	for _, idx := range state.Indices {
		if int(idx) >= players {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidState, idx)
		}
	}
	top := uint32(room.Floors-1) * FloorHeight
	for i, e := range state.Elevators {
		if e.Y > top || e.TargetFloor >= room.Floors {
			return fmt.Errorf("%w: elevator %d out of the building", ErrInvalidState, i)
		}
		if len(e.Passengers) > MaxPassengersPerElevator || len(e.FloorQueue) > MaxFloorQueue {
			return fmt.Errorf("%w: elevator %d over capacity", ErrInvalidState, i)
		}
	}
	return nil
}
