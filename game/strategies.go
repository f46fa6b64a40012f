package game

import (
	"context"

	"sectf/domain"
)

// IdleStrategy never moves; it keeps the elevator light off and its queue
// untouched.
type IdleStrategy struct{}

func (IdleStrategy) PlayTurnOffChain(context.Context, DecisionRequest) (ElevatorDecision, error) {
	return ElevatorDecision{}, nil
}

// SweepStrategy delivers carried passengers first and otherwise heads for
// the nearest floor with a lit button. It buys a speed-up whenever it trails
// the leaders and can afford one.
type SweepStrategy struct {
	Pricer ActionPricer
}

func (s SweepStrategy) PlayTurnOffChain(ctx context.Context, req DecisionRequest) (ElevatorDecision, error) {
	me := req.Elevators[req.PlayerIndex]
	floor := uint8(me.Y / FloorHeight)

	var d ElevatorDecision
	d.Data = me.Data
	d.ReplaceFloorQueue = true

	if len(me.Passengers) > 0 {
		dest := me.Passengers[0]
		d.FloorQueue = []uint8{dest}
		d.Light = direction(floor, dest)
	} else if target, ok := nearestCall(floor, req.FloorButtons); ok {
		d.FloorQueue = []uint8{target}
		if target == floor {
			d.Light = domain.LightOff
		}
	} else {
		d.FloorQueue = []uint8{}
	}

	if s.Pricer != nil && !leading(req) && me.Speed < MaxSpeed {
		cost, err := s.Pricer.ActionCost(ctx, req.Turn, req.ActionsSold[domain.ActionSpeedUp], domain.ActionSpeedUp, 1)
		if err != nil {
			return ElevatorDecision{}, err
		}
		if cost <= me.Balance/4 {
			d.Action = Action{Kind: domain.ActionSpeedUp, Amount: 1}
		}
	}
	return d, nil
}

func direction(from, to uint8) domain.Light {
	switch {
	case to > from:
		return domain.LightUp
	case to < from:
		return domain.LightDown
	}
	return domain.LightOff
}

func nearestCall(floor uint8, buttons []domain.FloorButton) (uint8, bool) {
	best, found := 0, false
	for f, b := range buttons {
		if b == domain.ButtonOff {
			continue
		}
		if !found || absDiff(f, int(floor)) < absDiff(best, int(floor)) {
			best, found = f, true
		}
	}
	return uint8(best), found
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func leading(req DecisionRequest) bool {
	for _, i := range req.TopScoreElevators {
		if i == req.PlayerIndex {
			return true
		}
	}
	return false
}
