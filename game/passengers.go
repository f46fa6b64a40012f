package game

import "sectf/domain"

func buttonFor(floor uint8, destinations []uint8) domain.FloorButton {
	button := domain.ButtonOff
	for _, dest := range destinations {
		if button == domain.ButtonOff {
			if dest > floor {
				button = domain.ButtonUp
			} else {
				button = domain.ButtonDown
			}
		} else if (dest > floor && button == domain.ButtonDown) || (dest < floor && button == domain.ButtonUp) {
			return domain.ButtonBoth
		}
	}
	return button
}

// floorButtons is empty on the first turn, when no passenger can be waiting.
func floorButtons(turn uint16, floorPassengers [][]uint8) []domain.FloorButton {
	buttons := make([]domain.FloorButton, len(floorPassengers))
	if turn <= 1 {
		return buttons
	}
	for f, destinations := range floorPassengers {
		buttons[f] = buttonFor(uint8(f), destinations)
	}
	return buttons
}

// upgradeButton never downgrades: Off becomes a direction, a conflicting
// direction becomes Both.
func upgradeButton(button domain.FloorButton, start, target uint8) domain.FloorButton {
	switch {
	case button == domain.ButtonOff && start < target:
		return domain.ButtonUp
	case button == domain.ButtonOff:
		return domain.ButtonDown
	case button == domain.ButtonBoth:
		return button
	case (target > start && button == domain.ButtonDown) || (target < start && button == domain.ButtonUp):
		return domain.ButtonBoth
	}
	return button
}

// newPassenger consumes the turn's random value byte by byte. When the value
// runs out before start and target differ, nobody spawns; the chain does the
// same and the bias has to be kept for hashes to agree.
func newPassenger(random uint64, floors uint8, waiting uint16) (bool, uint8, uint8) {
	if waiting >= MaxWaitingPassengers || random%SpawnRate != 0 {
		return false, 0, 0
	}
	f := uint64(floors)
	random >>= 8
	start := random % f
	target := start
	for start == target {
		random >>= 8
		target = random % f
		if random == 0 {
			return false, 0, 0
		}
	}
	return true, uint8(start), uint8(target)
}

func topScoreElevators(elevators []domain.ElevatorState) []uint8 {
	if len(elevators) == 0 {
		return []uint8{}
	}
	best := elevators[0].Score
	for _, e := range elevators[1:] {
		best = max(best, e.Score)
	}
	top := make([]uint8, 0, len(elevators))
	for i, e := range elevators {
		if e.Score == best {
			top = append(top, uint8(i))
		}
	}
	return top
}

func accepts(light domain.Light, floor, dest uint8) bool {
	switch light {
	case domain.LightUp:
		return dest > floor
	case domain.LightDown:
		return dest < floor
	}
	return true
}
