package game

import (
	"testing"

	"sectf/domain"

	"github.com/stretchr/testify/assert"
)

func TestStepElevator(t *testing.T) {
	t.Parallel()
	room := testRoom(1, 5, 10)

	type testCase struct {
		name       string
		elevator   domain.ElevatorState
		floor      map[uint8][]uint8
		expected   domain.ElevatorState
		scored     bool
		waitingOut uint16
	}

	tests := []testCase{
		{
			name:     "passenger exits first",
			elevator: domain.ElevatorState{Status: domain.ElevatorWaiting, Y: 200, Passengers: []uint8{4, 2, 2}, FloorQueue: []uint8{3}},
			floor:    map[uint8][]uint8{2: {0}},
			expected: domain.ElevatorState{Status: domain.ElevatorWaiting, Y: 200, Score: 1, Passengers: []uint8{4, 2}, FloorQueue: []uint8{3}},
			scored:   true,
		},
		{
			name:     "boards a passenger going the lit way",
			elevator: domain.ElevatorState{Status: domain.ElevatorIdle, Y: 200, Light: domain.LightUp, Passengers: []uint8{}},
			floor:    map[uint8][]uint8{2: {0, 4}},
			expected: domain.ElevatorState{Status: domain.ElevatorIdle, Y: 200, Light: domain.LightUp, Passengers: []uint8{4}},
		},
		{
			name:     "full elevator does not board",
			elevator: domain.ElevatorState{Status: domain.ElevatorIdle, Y: 0, Passengers: []uint8{1, 1, 2, 3}, FloorQueue: []uint8{1}},
			floor:    map[uint8][]uint8{0: {4}},
			expected: domain.ElevatorState{Status: domain.ElevatorClosing, Y: 0, TargetFloor: 1, Passengers: []uint8{1, 1, 2, 3}, FloorQueue: []uint8{}},
		},
		{
			name:     "queue skips the current floor",
			elevator: domain.ElevatorState{Status: domain.ElevatorWaiting, Y: 100, FloorQueue: []uint8{1, 1, 3, 0}},
			expected: domain.ElevatorState{Status: domain.ElevatorClosing, Y: 100, TargetFloor: 3, FloorQueue: []uint8{0}},
		},
		{
			name:     "queue skips floors outside the building",
			elevator: domain.ElevatorState{Status: domain.ElevatorIdle, Y: 0, FloorQueue: []uint8{5, 200, 2, 4}},
			expected: domain.ElevatorState{Status: domain.ElevatorClosing, Y: 0, TargetFloor: 2, FloorQueue: []uint8{4}},
		},
		{
			name:     "exhausted queue goes idle",
			elevator: domain.ElevatorState{Status: domain.ElevatorWaiting, Y: 100, FloorQueue: []uint8{1, 9}},
			expected: domain.ElevatorState{Status: domain.ElevatorIdle, Y: 100, FloorQueue: []uint8{}},
		},
		{
			name:     "going up moves by speed",
			elevator: domain.ElevatorState{Status: domain.ElevatorGoingUp, Y: 100, Speed: 30, TargetFloor: 3},
			expected: domain.ElevatorState{Status: domain.ElevatorGoingUp, Y: 130, Speed: 30, TargetFloor: 3},
		},
		{
			name:     "going up clamps to the target",
			elevator: domain.ElevatorState{Status: domain.ElevatorGoingUp, Y: 280, Speed: 30, TargetFloor: 3},
			expected: domain.ElevatorState{Status: domain.ElevatorOpening, Y: 300, Speed: 30, TargetFloor: 3},
		},
		{
			name:     "going down never underflows",
			elevator: domain.ElevatorState{Status: domain.ElevatorGoingDown, Y: 20, Speed: 50, TargetFloor: 0},
			expected: domain.ElevatorState{Status: domain.ElevatorOpening, Y: 0, Speed: 50, TargetFloor: 0},
		},
		{
			name:     "going down clamps to the target",
			elevator: domain.ElevatorState{Status: domain.ElevatorGoingDown, Y: 230, Speed: 40, TargetFloor: 2},
			expected: domain.ElevatorState{Status: domain.ElevatorOpening, Y: 200, Speed: 40, TargetFloor: 2},
		},
		{
			name:     "opening always waits",
			elevator: domain.ElevatorState{Status: domain.ElevatorOpening, Y: 200},
			expected: domain.ElevatorState{Status: domain.ElevatorWaiting, Y: 200},
		},
		{
			name:     "closing heads up",
			elevator: domain.ElevatorState{Status: domain.ElevatorClosing, Y: 100, TargetFloor: 4},
			expected: domain.ElevatorState{Status: domain.ElevatorGoingUp, Y: 100, TargetFloor: 4},
		},
		{
			name:     "closing heads down",
			elevator: domain.ElevatorState{Status: domain.ElevatorClosing, Y: 300, TargetFloor: 0},
			expected: domain.ElevatorState{Status: domain.ElevatorGoingDown, Y: 300, TargetFloor: 0},
		},
		{
			name:     "closing on the target floor reopens",
			elevator: domain.ElevatorState{Status: domain.ElevatorClosing, Y: 300, TargetFloor: 3},
			expected: domain.ElevatorState{Status: domain.ElevatorOpening, Y: 300, TargetFloor: 3},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			state := NewGame(1, room)
			state.Elevators[0] = tc.elevator
			for f, dests := range tc.floor {
				state.FloorPassengers[f] = dests
				state.WaitingPassengers += uint16(len(dests))
			}
			waitingBefore := state.WaitingPassengers

			scored := stepElevator(&state, room, 0)

			assert.Equal(t, tc.scored, scored)
			got := state.Elevators[0]
			assert.Equal(t, tc.expected.Status, got.Status)
			assert.Equal(t, tc.expected.Y, got.Y)
			assert.Equal(t, tc.expected.TargetFloor, got.TargetFloor)
			assert.Equal(t, tc.expected.Score, got.Score)
			assert.ElementsMatch(t, tc.expected.Passengers, got.Passengers)
			assert.ElementsMatch(t, tc.expected.FloorQueue, got.FloorQueue)

			boarded := len(got.Passengers) - len(tc.elevator.Passengers)
			if boarded > 0 {
				assert.Equal(t, waitingBefore-uint16(boarded), state.WaitingPassengers)
			} else {
				assert.Equal(t, waitingBefore, state.WaitingPassengers)
			}
		})
	}
}

func TestFloorButtons(t *testing.T) {
	t.Parallel()
	fp := [][]uint8{{2, 3}, {0, 2, 0}, {}, {1}}

	assert.Equal(t, []domain.FloorButton{0, 0, 0, 0}, floorButtons(1, fp))
	assert.Equal(t, []domain.FloorButton{
		domain.ButtonUp,
		domain.ButtonBoth,
		domain.ButtonOff,
		domain.ButtonDown,
	}, floorButtons(2, fp))
}

func TestUpgradeButton(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.ButtonUp, upgradeButton(domain.ButtonOff, 1, 3))
	assert.Equal(t, domain.ButtonDown, upgradeButton(domain.ButtonOff, 3, 1))
	assert.Equal(t, domain.ButtonBoth, upgradeButton(domain.ButtonUp, 3, 1))
	assert.Equal(t, domain.ButtonUp, upgradeButton(domain.ButtonUp, 1, 2))
	assert.Equal(t, domain.ButtonBoth, upgradeButton(domain.ButtonBoth, 1, 2))
}

func TestNewPassenger(t *testing.T) {
	t.Parallel()

	t.Run("gated by spawn rate", func(t *testing.T) {
		t.Parallel()
		spawn, _, _ := newPassenger(6, 5, 0)
		assert.False(t, spawn)
	})

	t.Run("gated by waiting cap", func(t *testing.T) {
		t.Parallel()
		spawn, _, _ := newPassenger(0x0302_0000, 5, MaxWaitingPassengers)
		assert.False(t, spawn)
	})

	t.Run("picks start and target from successive bytes", func(t *testing.T) {
		t.Parallel()
		// 0x030200 is a multiple of 5; the next two bytes pick floor 0 then 3.
		spawn, start, target := newPassenger(0x030200, 10, 0)
		assert.True(t, spawn)
		assert.Equal(t, uint8(0), start)
		assert.Equal(t, uint8(3), target)
	})

	t.Run("exhausted randomness spawns nobody", func(t *testing.T) {
		t.Parallel()
		// After one shift the value is 5 (start 0 of 5 floors); the next
		// shift reaches zero before target can differ.
		spawn, _, _ := newPassenger(0x0500, 5, 0)
		assert.False(t, spawn)
	})
}
