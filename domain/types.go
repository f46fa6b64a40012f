package domain

import (
	"slices"

	"sectf/drng"

	"github.com/ethereum/go-ethereum/common"
)

type GameStatus uint8

const (
	StatusIdle GameStatus = iota
	StatusCreated
	StatusReady
	StatusFinishedWithWinner
	StatusFinishedWithoutWinner
	StatusCancelled
	StatusTimeout
)

// Terminal reports whether no further turns may be played.
func (s GameStatus) Terminal() bool { return s >= StatusFinishedWithWinner }

func (s GameStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCreated:
		return "created"
	case StatusReady:
		return "ready"
	case StatusFinishedWithWinner:
		return "finished-with-winner"
	case StatusFinishedWithoutWinner:
		return "finished-without-winner"
	case StatusCancelled:
		return "cancelled"
	case StatusTimeout:
		return "timeout"
	}
	return "unknown"
}

type ElevatorStatus uint8

const (
	ElevatorIdle ElevatorStatus = iota
	ElevatorGoingUp
	ElevatorGoingDown
	ElevatorOpening
	ElevatorClosing
	ElevatorWaiting
	ElevatorUndefined
)

type Light uint8

const (
	LightOff Light = iota
	LightUp
	LightDown
)

type FloorButton uint8

const (
	ButtonOff FloorButton = iota
	ButtonUp
	ButtonDown
	ButtonBoth
)

type ActionKind uint8

const (
	ActionSpeedUp ActionKind = iota
	ActionSlowDown

	NumActions = 2
)

// RoomConfig is fixed once the room becomes Ready.
type RoomConfig struct {
	NumberOfPlayers    uint8
	Floors             uint8
	ScoreToWin         uint16
	OffchainPublicKeys []common.Address
	Players            []common.Address
	ElevatorEndpoints  []common.Address
}

// PlayerIndex returns the index of addr among the room players, or -1.
func (rc RoomConfig) PlayerIndex(addr common.Address) int {
	return slices.Index(rc.Players, addr)
}

type ElevatorState struct {
	Owner       common.Address
	Score       uint16
	Balance     uint32
	Status      ElevatorStatus
	TargetFloor uint8
	Speed       uint8
	Light       Light
	Data        [32]byte
	Y           uint32
	FloorQueue  []uint8
	Passengers  []uint8
}

// CurrentFloor is only meaningful while the elevator is stopped.
func (e ElevatorState) CurrentFloor() uint8 { return uint8(e.Y / 100) }

func (e ElevatorState) Clone() ElevatorState {
	e.FloorQueue = slices.Clone(e.FloorQueue)
	e.Passengers = slices.Clone(e.Passengers)
	return e
}

type GameState struct {
	Turn              uint16
	Status            GameStatus
	Indices           []uint8
	RandomSeed        drng.State
	WaitingPassengers uint16
	ActionsSold       [NumActions]uint32
	Elevators         []ElevatorState
	FloorPassengers   [][]uint8
}

// Clone returns a deep copy; the engine never mutates its input.
func (gs GameState) Clone() GameState {
	out := gs
	out.Indices = slices.Clone(gs.Indices)
	out.Elevators = make([]ElevatorState, len(gs.Elevators))
	for i, e := range gs.Elevators {
		out.Elevators[i] = e.Clone()
	}
	out.FloorPassengers = make([][]uint8, len(gs.FloorPassengers))
	for i, f := range gs.FloorPassengers {
		out.FloorPassengers[i] = slices.Clone(f)
	}
	return out
}

// CurrentPlayer is the index of the elevator that plays gs.Turn.
func (gs GameState) CurrentPlayer() uint8 {
	n := len(gs.Indices)
	if n == 0 || gs.Turn == 0 {
		return 0
	}
	return gs.Indices[(int(gs.Turn)-1)%n]
}

// Ranking lists player indices by descending score, ties by index.
func (gs GameState) Ranking() []int {
	out := make([]int, len(gs.Elevators))
	for i := range out {
		out[i] = i
	}
	slices.SortStableFunc(out, func(a, b int) int {
		return int(gs.Elevators[b].Score) - int(gs.Elevators[a].Score)
	})
	return out
}
