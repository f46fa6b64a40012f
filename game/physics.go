package game

import (
	"slices"

	"sectf/domain"
)

// stepElevator runs one turn of the elevator state machine for the playing
// elevator. It reports whether the elevator scored.
func stepElevator(state *domain.GameState, room domain.RoomConfig, current uint8) bool {
	e := &state.Elevators[current]
	target := uint32(e.TargetFloor) * FloorHeight

	switch e.Status {
	case domain.ElevatorIdle, domain.ElevatorWaiting:
		floor := e.CurrentFloor()

		if i := slices.Index(e.Passengers, floor); i >= 0 {
			e.Passengers = slices.Delete(e.Passengers, i, i+1)
			e.Score++
			return true
		}

		if len(e.Passengers) < MaxPassengersPerElevator {
			waiting := state.FloorPassengers[floor]
			for i, dest := range waiting {
				if !accepts(e.Light, floor, dest) {
					continue
				}
				e.Passengers = append(e.Passengers, dest)
				state.FloorPassengers[floor] = slices.Delete(waiting, i, i+1)
				state.WaitingPassengers--
				return false
			}
		}

		// Entries outside the building are dropped like the current floor;
		// a decision can queue any uint8.
		for len(e.FloorQueue) > 0 {
			next := e.FloorQueue[0]
			e.FloorQueue = slices.Delete(e.FloorQueue, 0, 1)
			if next != floor && next < room.Floors {
				e.TargetFloor = next
				e.Status = domain.ElevatorClosing
				return false
			}
		}
		e.Status = domain.ElevatorIdle

	case domain.ElevatorGoingUp:
		e.Y += uint32(e.Speed)
		if e.Y >= target {
			e.Y = target
			e.Status = domain.ElevatorOpening
		}

	case domain.ElevatorGoingDown:
		if e.Y > uint32(e.Speed) {
			e.Y -= uint32(e.Speed)
		} else {
			e.Y = 0
		}
		if e.Y <= target {
			e.Y = target
			e.Status = domain.ElevatorOpening
		}

	case domain.ElevatorOpening:
		e.Status = domain.ElevatorWaiting

	case domain.ElevatorClosing:
		switch floor := e.CurrentFloor(); {
		case floor < e.TargetFloor:
			e.Status = domain.ElevatorGoingUp
		case floor > e.TargetFloor:
			e.Status = domain.ElevatorGoingDown
		default:
			e.Status = domain.ElevatorOpening
		}
	}
	return false
}
