package chain

import (
	"context"
	"fmt"

	"sectf/domain"
	"sectf/game"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ElevatorContracts asks each room's deployed elevator contracts for their
// decision with an eth_call, sent from the game contract as the chain does.
type ElevatorContracts struct {
	caller bind.ContractCaller
	game   common.Address
}

func NewElevatorContracts(caller bind.ContractCaller, gameContract common.Address) *ElevatorContracts {
	return &ElevatorContracts{caller: caller, game: gameContract}
}

func (ec *ElevatorContracts) PlayTurnOffChain(ctx context.Context, req game.DecisionRequest) (game.ElevatorDecision, error) {
	if int(req.PlayerIndex) >= len(req.Room.ElevatorEndpoints) {
		return game.ElevatorDecision{}, fmt.Errorf("no elevator endpoint for player %d", req.PlayerIndex)
	}
	endpoint := req.Room.ElevatorEndpoints[req.PlayerIndex]
	bound := bind.NewBoundContract(endpoint, parsedElevatorABI, ec.caller, nil, nil)

	var out []interface{}
	err := bound.Call(&bind.CallOpts{Context: ctx, From: ec.game}, &out, "playTurnOffChain", decisionArgs(req)...)
	if err != nil {
		return game.ElevatorDecision{}, err
	}
	if len(out) != 1 {
		return game.ElevatorDecision{}, fmt.Errorf("playTurnOffChain returned %d values", len(out))
	}
	update := *abi.ConvertType(out[0], new(chainUpdate)).(*chainUpdate)
	return decisionFromABI(update), nil
}

func decisionArgs(req game.DecisionRequest) []interface{} {
	views := make([]chainElevatorView, len(req.Elevators))
	for i, v := range req.Elevators {
		views[i] = chainElevatorView{
			Status:      uint8(v.Status),
			Light:       uint8(v.Light),
			Score:       v.Score,
			TargetFloor: v.TargetFloor,
			FloorQueue:  orEmpty(v.FloorQueue),
			Passengers:  orEmpty(v.Passengers),
			Balance:     v.Balance,
			Speed:       v.Speed,
			Y:           v.Y,
			Data:        v.Data,
		}
	}
	buttons := make([]uint8, len(req.FloorButtons))
	for i, b := range req.FloorButtons {
		buttons[i] = uint8(b)
	}
	return []interface{}{
		req.PlayerIndex,
		chainRoom{
			NumberOfPlayers: req.Room.NumberOfPlayers,
			Floors:          req.Room.Floors,
			ScoreToWin:      req.Room.ScoreToWin,
		},
		orEmpty(req.TopScoreElevators),
		req.Turn,
		req.ActionsSold,
		views,
		buttons,
	}
}

func decisionFromABI(u chainUpdate) game.ElevatorDecision {
	return game.ElevatorDecision{
		Light:             domain.Light(u.Light),
		Data:              u.Data,
		ReplaceFloorQueue: u.ReplaceFloorQueue,
		FloorQueue:        u.FloorQueue,
		Action: game.Action{
			Kind:   domain.ActionKind(u.Action.Kind),
			Amount: u.Action.Amount,
			Target: u.Action.Target,
		},
	}
}
