package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const elevatorTuple = `{"name":"elevators","type":"tuple[]","components":[
	{"name":"owner","type":"address"},
	{"name":"status","type":"uint8"},
	{"name":"light","type":"uint8"},
	{"name":"score","type":"uint16"},
	{"name":"targetFloor","type":"uint8"},
	{"name":"floorQueue","type":"uint8[]"},
	{"name":"passengers","type":"uint8[]"},
	{"name":"balance","type":"uint32"},
	{"name":"speed","type":"uint8"},
	{"name":"y","type":"uint32"},
	{"name":"data","type":"bytes32"}]}`

const floorTuple = `{"name":"floorPassengers","type":"tuple[]","components":[
	{"name":"passengers","type":"uint8[]"}]}`

const gameABI = `[
{"type":"function","name":"getGameState","stateMutability":"view",
 "inputs":[{"name":"roomId","type":"uint256"}],
 "outputs":[
	{"name":"meta","type":"tuple","components":[
		{"name":"numberOfPlayers","type":"uint8"},
		{"name":"floors","type":"uint8"},
		{"name":"scoreToWin","type":"uint16"},
		{"name":"offchainPublicKeys","type":"address[]"},
		{"name":"players","type":"address[]"},
		{"name":"elevators","type":"address[]"},
		{"name":"turn","type":"uint16"},
		{"name":"status","type":"uint8"},
		{"name":"indices","type":"uint8[]"},
		{"name":"randomSeed","type":"uint64[2]"},
		{"name":"waitingPassengers","type":"uint16"},
		{"name":"actionsSold","type":"uint32[2]"}]},
	` + elevatorTuple + `,
	` + floorTuple + `]},
{"type":"function","name":"play","stateMutability":"nonpayable",
 "inputs":[{"name":"roomId","type":"uint256"},{"name":"turns","type":"uint16"}],"outputs":[]},
{"type":"function","name":"loadCheckpoint","stateMutability":"nonpayable",
 "inputs":[
	{"name":"roomId","type":"uint256"},
	{"name":"turn","type":"uint16"},
	{"name":"status","type":"uint8"},
	{"name":"indices","type":"uint8[]"},
	{"name":"randomSeed","type":"uint64[2]"},
	{"name":"actionsSold","type":"uint32[2]"},
	{"name":"waitingPassengers","type":"uint16"},
	` + elevatorTuple + `,
	` + floorTuple + `,
	{"name":"signatures","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"getActionCost","stateMutability":"view",
 "inputs":[
	{"name":"turn","type":"uint16"},
	{"name":"sold","type":"uint32"},
	{"name":"kind","type":"uint8"},
	{"name":"amount","type":"uint32"}],
 "outputs":[{"name":"cost","type":"uint32"}]},
{"type":"function","name":"createGameRoom","stateMutability":"nonpayable",
 "inputs":[
	{"name":"players","type":"uint8"},
	{"name":"floors","type":"uint8"},
	{"name":"scoreToWin","type":"uint16"},
	{"name":"offchainPublicKey","type":"address"},
	{"name":"elevator","type":"address"}],"outputs":[]},
{"type":"function","name":"joinGameRoom","stateMutability":"nonpayable",
 "inputs":[
	{"name":"roomId","type":"uint256"},
	{"name":"offchainPublicKey","type":"address"},
	{"name":"elevator","type":"address"}],"outputs":[]},
{"type":"function","name":"exitGameRoom","stateMutability":"nonpayable",
 "inputs":[{"name":"roomId","type":"uint256"}],"outputs":[]},
{"type":"event","name":"RoomCreated","anonymous":false,
 "inputs":[{"name":"roomId","type":"uint256","indexed":true},{"name":"creator","type":"address","indexed":true}]},
{"type":"event","name":"RoomUpdated","anonymous":false,
 "inputs":[{"name":"roomId","type":"uint256","indexed":true},{"name":"turn","type":"uint16","indexed":false}]}
]`

const elevatorABI = `[
{"type":"function","name":"playTurnOffChain","stateMutability":"view",
 "inputs":[
	{"name":"playerIndex","type":"uint8"},
	{"name":"room","type":"tuple","components":[
		{"name":"numberOfPlayers","type":"uint8"},
		{"name":"floors","type":"uint8"},
		{"name":"scoreToWin","type":"uint16"}]},
	{"name":"topScoreElevators","type":"uint8[]"},
	{"name":"turn","type":"uint16"},
	{"name":"actionsSold","type":"uint32[2]"},
	{"name":"elevators","type":"tuple[]","components":[
		{"name":"status","type":"uint8"},
		{"name":"light","type":"uint8"},
		{"name":"score","type":"uint16"},
		{"name":"targetFloor","type":"uint8"},
		{"name":"floorQueue","type":"uint8[]"},
		{"name":"passengers","type":"uint8[]"},
		{"name":"balance","type":"uint32"},
		{"name":"speed","type":"uint8"},
		{"name":"y","type":"uint32"},
		{"name":"data","type":"bytes32"}]},
	{"name":"floorButtons","type":"uint8[]"}],
 "outputs":[
	{"name":"update","type":"tuple","components":[
		{"name":"light","type":"uint8"},
		{"name":"data","type":"bytes32"},
		{"name":"replaceFloorQueue","type":"bool"},
		{"name":"floorQueue","type":"uint8[]"},
		{"name":"action","type":"tuple","components":[
			{"name":"kind","type":"uint8"},
			{"name":"amount","type":"uint32"},
			{"name":"target","type":"uint8"}]}]}]}
]`

var (
	parsedGameABI     = mustParse(gameABI)
	parsedElevatorABI = mustParse(elevatorABI)
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

type chainMeta struct {
	NumberOfPlayers    uint8
	Floors             uint8
	ScoreToWin         uint16
	OffchainPublicKeys []common.Address
	Players            []common.Address
	Elevators          []common.Address
	Turn               uint16
	Status             uint8
	Indices            []uint8
	RandomSeed         [2]uint64
	WaitingPassengers  uint16
	ActionsSold        [2]uint32
}

type chainElevator struct {
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

type chainFloor struct {
	Passengers []uint8
}

type chainRoom struct {
	NumberOfPlayers uint8
	Floors          uint8
	ScoreToWin      uint16
}

type chainElevatorView struct {
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

type chainAction struct {
	Kind   uint8
	Amount uint32
	Target uint8
}

type chainUpdate struct {
	Light             uint8
	Data              [32]byte
	ReplaceFloorQueue bool
	FloorQueue        []uint8
	Action            chainAction
}
