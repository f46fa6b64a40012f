package game

import (
	"context"

	"sectf/domain"

	"github.com/stretchr/testify/mock"
)

type MockDecisionProvider struct {
	mock.Mock
}

func (m *MockDecisionProvider) PlayTurnOffChain(ctx context.Context, req DecisionRequest) (ElevatorDecision, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ElevatorDecision), args.Error(1)
}

type MockPricer struct {
	mock.Mock
}

func (m *MockPricer) ActionCost(ctx context.Context, turn uint16, sold uint32, kind domain.ActionKind, amount uint32) (uint32, error) {
	args := m.Called(ctx, turn, sold, kind, amount)
	return args.Get(0).(uint32), args.Error(1)
}

// fixedDecision answers every turn with the same decision.
type fixedDecision ElevatorDecision

func (f fixedDecision) PlayTurnOffChain(context.Context, DecisionRequest) (ElevatorDecision, error) {
	d := ElevatorDecision(f)
	d.FloorQueue = append([]uint8(nil), d.FloorQueue...)
	return d, nil
}

func testRoom(players, floors uint8, scoreToWin uint16) domain.RoomConfig {
	return domain.RoomConfig{NumberOfPlayers: players, Floors: floors, ScoreToWin: scoreToWin}
}
