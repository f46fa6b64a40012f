package game

import (
	"context"
	"fmt"
	"math"

	"sectf/domain"
)

// ActionPricer quotes the cost of buying amount units of an action.
type ActionPricer interface {
	ActionCost(ctx context.Context, turn uint16, sold uint32, kind domain.ActionKind, amount uint32) (uint32, error)
}

// BidCurve prices each unit at its base price plus half the base price for
// every unit sold ahead of schedule. The schedule releases one unit of each
// action every ScheduleTurns turns.
type BidCurve struct{}

const (
	ScheduleTurns  = 10
	maxQuotedUnits = 1000
)

var basePrices = [domain.NumActions]uint64{
	domain.ActionSpeedUp:  20,
	domain.ActionSlowDown: 40,
}

func (BidCurve) ActionCost(_ context.Context, turn uint16, sold uint32, kind domain.ActionKind, amount uint32) (uint32, error) {
	if int(kind) >= domain.NumActions {
		return 0, fmt.Errorf("unknown action %d", kind)
	}
	if amount > maxQuotedUnits {
		return math.MaxUint32, nil
	}
	base := basePrices[kind]
	scheduled := int64(turn) / ScheduleTurns
	var total uint64
	for i := uint32(0); i < amount; i++ {
		ahead := max(int64(sold)+int64(i)-scheduled, 0)
		total += base + base*uint64(ahead)/2
	}
	if total > math.MaxUint32 {
		return math.MaxUint32, nil
	}
	return uint32(total), nil
}

// applyAction buys and applies an action. Unknown kinds, bad targets and
// insufficient balance are silent no-ops, as on chain.
func (en *Engine) applyAction(ctx context.Context, state *domain.GameState, current uint8, a Action) error {
	if int(a.Kind) >= domain.NumActions {
		return nil
	}
	if a.Kind == domain.ActionSlowDown && int(a.Target) >= len(state.Elevators) {
		return nil
	}

	cost, err := en.pricer.ActionCost(ctx, state.Turn, state.ActionsSold[a.Kind], a.Kind, a.Amount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPricingFailed, err)
	}

	me := &state.Elevators[current]
	if me.Balance < cost {
		return nil
	}
	me.Balance -= cost
	state.ActionsSold[a.Kind] += a.Amount

	switch a.Kind {
	case domain.ActionSpeedUp:
		boost := uint64(a.Amount) * SpeedUpStep
		me.Speed = clampSpeed(uint64(me.Speed) + boost)
	case domain.ActionSlowDown:
		target := &state.Elevators[a.Target]
		shift := min(a.Amount, 63)
		target.Speed = clampSpeed(uint64(target.Speed) >> shift)
	}
	return nil
}

func clampSpeed(speed uint64) uint8 {
	return uint8(min(max(speed, MinSpeed), MaxSpeed))
}
