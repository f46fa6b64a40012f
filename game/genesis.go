package game

import (
	"sectf/domain"
	"sectf/drng"
)

// NewGame is the state a room enters when its last player joins: turn 1,
// identity turn order, every elevator idle on the ground floor.
func NewGame(seed uint64, room domain.RoomConfig) domain.GameState {
	players := int(room.NumberOfPlayers)
	state := domain.GameState{
		Turn:            1,
		Status:          domain.StatusReady,
		Indices:         make([]uint8, players),
		RandomSeed:      drng.Seed(seed),
		Elevators:       make([]domain.ElevatorState, players),
		FloorPassengers: make([][]uint8, room.Floors),
	}
	for i := range players {
		state.Indices[i] = uint8(i)
		e := domain.ElevatorState{
			Balance:    InitialBalance,
			Speed:      InitialSpeed,
			FloorQueue: []uint8{},
			Passengers: []uint8{},
		}
		if i < len(room.Players) {
			e.Owner = room.Players[i]
		}
		state.Elevators[i] = e
	}
	for f := range state.FloorPassengers {
		state.FloorPassengers[f] = []uint8{}
	}
	return state
}
