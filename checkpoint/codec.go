// Package checkpoint holds the canonical encoding of a game state and the
// signed snapshots peers exchange.
//
// The encoding is the ABI encoding of a single tuple, so the chain can hash a
// checkpoint with keccak256(abi.encode(...)) and arrive at the same bytes.
package checkpoint

import (
	"errors"
	"fmt"
	"math/big"

	"sectf/domain"
	"sectf/drng"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SchemaVersion identifies the tuple layout below. Bump it on any change.
const SchemaVersion = 1

var (
	ErrHashMismatch     = errors.New("checkpoint-hash-mismatch")
	ErrInvalidSignature = errors.New("checkpoint-invalid-signature")
	ErrMalformed        = errors.New("checkpoint-malformed")
)

type encElevator struct {
	Owner       common.Address
	Status      uint8
	Light       uint8
	Score       uint16
	TargetFloor uint8
	FloorQueue  []uint8
	Passengers  []uint8
	Balance     uint32
	Speed       uint8
	Y           uint32
	Data        [32]byte
}

type encFloor struct {
	Passengers []uint8
}

var stateArguments = mustArguments()

func mustArguments() abi.Arguments {
	mk := func(t string, components []abi.ArgumentMarshaling) abi.Type {
		typ, err := abi.NewType(t, "", components)
		if err != nil {
			panic(err)
		}
		return typ
	}
	elevator := []abi.ArgumentMarshaling{
		{Name: "owner", Type: "address"},
		{Name: "status", Type: "uint8"},
		{Name: "light", Type: "uint8"},
		{Name: "score", Type: "uint16"},
		{Name: "targetFloor", Type: "uint8"},
		{Name: "floorQueue", Type: "uint8[]"},
		{Name: "passengers", Type: "uint8[]"},
		{Name: "balance", Type: "uint32"},
		{Name: "speed", Type: "uint8"},
		{Name: "y", Type: "uint32"},
		{Name: "data", Type: "bytes32"},
	}
	floor := []abi.ArgumentMarshaling{
		{Name: "passengers", Type: "uint8[]"},
	}
	return abi.Arguments{
		{Name: "roomId", Type: mk("uint256", nil)},
		{Name: "turn", Type: mk("uint16", nil)},
		{Name: "status", Type: mk("uint8", nil)},
		{Name: "indices", Type: mk("uint8[]", nil)},
		{Name: "randomSeed", Type: mk("uint64[2]", nil)},
		{Name: "actionsSold", Type: mk("uint256[2]", nil)},
		{Name: "waitingPassengers", Type: mk("uint16", nil)},
		{Name: "elevators", Type: mk("tuple[]", elevator)},
		{Name: "floorPassengers", Type: mk("tuple[]", floor)},
	}
}

// Encode produces the canonical bytes of state in room roomID.
func Encode(roomID *big.Int, state domain.GameState) ([]byte, error) {
	if roomID == nil || roomID.Sign() < 0 {
		return nil, fmt.Errorf("%w: room id", ErrMalformed)
	}
	elevators := make([]encElevator, len(state.Elevators))
	for i, e := range state.Elevators {
		elevators[i] = encElevator{
			Owner:       e.Owner,
			Status:      uint8(e.Status),
			Light:       uint8(e.Light),
			Score:       e.Score,
			TargetFloor: e.TargetFloor,
			FloorQueue:  nonNil(e.FloorQueue),
			Passengers:  nonNil(e.Passengers),
			Balance:     e.Balance,
			Speed:       e.Speed,
			Y:           e.Y,
			Data:        e.Data,
		}
	}
	floors := make([]encFloor, len(state.FloorPassengers))
	for i, f := range state.FloorPassengers {
		floors[i] = encFloor{Passengers: nonNil(f)}
	}
	var sold [domain.NumActions]*big.Int
	for i, n := range state.ActionsSold {
		sold[i] = new(big.Int).SetUint64(uint64(n))
	}

	out, err := stateArguments.Pack(
		roomID,
		state.Turn,
		uint8(state.Status),
		nonNil(state.Indices),
		[2]uint64(state.RandomSeed),
		sold,
		state.WaitingPassengers,
		elevators,
		floors,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return out, nil
}

// Decode is the inverse of Encode. Empty lists decode as empty, never nil.
func Decode(data []byte) (*big.Int, domain.GameState, error) {
	values, err := stateArguments.Unpack(data)
	if err != nil {
		return nil, domain.GameState{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(values) != len(stateArguments) {
		return nil, domain.GameState{}, fmt.Errorf("%w: %d values", ErrMalformed, len(values))
	}

	roomID := values[0].(*big.Int)
	sold := values[5].([2]*big.Int)
	elevators := *abi.ConvertType(values[7], new([]encElevator)).(*[]encElevator)
	floors := *abi.ConvertType(values[8], new([]encFloor)).(*[]encFloor)

	state := domain.GameState{
		Turn:              values[1].(uint16),
		Status:            domain.GameStatus(values[2].(uint8)),
		Indices:           nonNil(values[3].([]uint8)),
		RandomSeed:        drng.State(values[4].([2]uint64)),
		WaitingPassengers: values[6].(uint16),
		Elevators:         make([]domain.ElevatorState, len(elevators)),
		FloorPassengers:   make([][]uint8, len(floors)),
	}
	for i, n := range sold {
		if !n.IsUint64() || n.Uint64() > uint64(^uint32(0)) {
			return nil, domain.GameState{}, fmt.Errorf("%w: actions sold overflow", ErrMalformed)
		}
		state.ActionsSold[i] = uint32(n.Uint64())
	}
	for i, e := range elevators {
		state.Elevators[i] = domain.ElevatorState{
			Owner:       e.Owner,
			Score:       e.Score,
			Balance:     e.Balance,
			Status:      domain.ElevatorStatus(e.Status),
			TargetFloor: e.TargetFloor,
			Speed:       e.Speed,
			Light:       domain.Light(e.Light),
			Data:        e.Data,
			Y:           e.Y,
			FloorQueue:  nonNil(e.FloorQueue),
			Passengers:  nonNil(e.Passengers),
		}
	}
	for i, f := range floors {
		state.FloorPassengers[i] = nonNil(f.Passengers)
	}
	return roomID, state, nil
}

// Hash is keccak256 of the canonical bytes.
func Hash(encoded []byte) common.Hash {
	return crypto.Keccak256Hash(encoded)
}

func HashState(roomID *big.Int, state domain.GameState) (common.Hash, error) {
	encoded, err := Encode(roomID, state)
	if err != nil {
		return common.Hash{}, err
	}
	return Hash(encoded), nil
}

func nonNil(s []uint8) []uint8 {
	if s == nil {
		return []uint8{}
	}
	return s
}
