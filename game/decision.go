package game

import (
	"context"
	"fmt"

	"sectf/domain"
)

// ElevatorView is what a strategy sees of one elevator. Only the elevator
// playing the turn is fully visible.
type ElevatorView struct {
	Status      domain.ElevatorStatus
	Light       domain.Light
	Score       uint16
	TargetFloor uint8
	FloorQueue  []uint8
	Passengers  []uint8
	Balance     uint32
	Speed       uint8
	Y           uint32
	Data        [32]byte
}

type DecisionRequest struct {
	PlayerIndex       uint8
	Room              domain.RoomConfig
	TopScoreElevators []uint8
	Turn              uint16
	ActionsSold       [domain.NumActions]uint32
	Elevators         []ElevatorView
	FloorButtons      []domain.FloorButton
}

type Action struct {
	Kind   domain.ActionKind
	Amount uint32
	Target uint8
}

type ElevatorDecision struct {
	Light             domain.Light
	Data              [32]byte
	ReplaceFloorQueue bool
	FloorQueue        []uint8
	Action            Action
}

// DecisionProvider is an elevator strategy, polled once per turn for the
// elevator that plays it.
type DecisionProvider interface {
	PlayTurnOffChain(ctx context.Context, req DecisionRequest) (ElevatorDecision, error)
}

// StrategySet routes each request to the provider registered for the playing
// elevator.
type StrategySet []DecisionProvider

func (ss StrategySet) PlayTurnOffChain(ctx context.Context, req DecisionRequest) (ElevatorDecision, error) {
	if int(req.PlayerIndex) >= len(ss) || ss[req.PlayerIndex] == nil {
		return ElevatorDecision{}, fmt.Errorf("no strategy for elevator %d", req.PlayerIndex)
	}
	return ss[req.PlayerIndex].PlayTurnOffChain(ctx, req)
}

func elevatorViews(elevators []domain.ElevatorState, current uint8) []ElevatorView {
	views := make([]ElevatorView, len(elevators))
	for i, e := range elevators {
		if i == int(current) {
			e = e.Clone()
			views[i] = ElevatorView{
				Status:      e.Status,
				Light:       e.Light,
				Score:       e.Score,
				TargetFloor: e.TargetFloor,
				FloorQueue:  e.FloorQueue,
				Passengers:  e.Passengers,
				Balance:     e.Balance,
				Speed:       e.Speed,
				Y:           e.Y,
				Data:        e.Data,
			}
			continue
		}
		views[i] = ElevatorView{
			Status:     domain.ElevatorUndefined,
			Light:      e.Light,
			Score:      e.Score,
			FloorQueue: []uint8{},
			Passengers: []uint8{},
			Balance:    e.Balance,
			Speed:      e.Speed,
			Y:          e.Y,
		}
	}
	return views
}
