// Package chain talks to the game contract, the ground truth every off-chain
// checkpoint is reconciled against.
package chain

import (
	"context"
	"errors"
	"math/big"

	"sectf/checkpoint"
	"sectf/domain"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrRoomNotFound  = errors.New("room-not-found")
	ErrRoomFull      = errors.New("room-full")
	ErrAlreadyJoined = errors.New("already-joined")
	ErrRoomStarted   = errors.New("room-already-started")
	ErrTxReverted    = errors.New("transaction-reverted")
	ErrStaleTurn     = errors.New("checkpoint-not-newer")
)

// TxHandle is a submitted transaction.
type TxHandle interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. A reverted transaction
	// returns ErrTxReverted.
	Wait(ctx context.Context) error
}

// Oracle is the subset of the contract the reconciliation protocol needs.
type Oracle interface {
	GetGameState(ctx context.Context, roomID *big.Int) (domain.RoomConfig, domain.GameState, error)
	Play(ctx context.Context, roomID *big.Int, turns uint16) (TxHandle, error)
	LoadCheckpoint(ctx context.Context, roomID *big.Int, cp checkpoint.Checkpoint) (TxHandle, error)
	GetActionCost(ctx context.Context, turn uint16, sold uint32, kind domain.ActionKind, amount uint32) (uint32, error)
}

// Notifier is implemented by oracles that can push room updates. The
// returned channel carries the new turn and is closed by cancel.
type Notifier interface {
	Subscribe(roomID *big.Int) (updates <-chan uint16, cancel func())
}

// Lifecycle covers room creation and membership.
type Lifecycle interface {
	CreateGameRoom(ctx context.Context, creator common.Address, players, floors uint8, scoreToWin uint16, offchainKey, elevator common.Address) (*big.Int, error)
	JoinGameRoom(ctx context.Context, roomID *big.Int, player, offchainKey, elevator common.Address) error
	ExitGameRoom(ctx context.Context, roomID *big.Int, player common.Address) error
}

// Pricer adapts an Oracle to game.ActionPricer.
type Pricer struct {
	Oracle Oracle
}

func (p Pricer) ActionCost(ctx context.Context, turn uint16, sold uint32, kind domain.ActionKind, amount uint32) (uint32, error) {
	return p.Oracle.GetActionCost(ctx, turn, sold, kind, amount)
}
