package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"sectf/checkpoint"
	"sectf/domain"
	"sectf/drng"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Contract is the game contract deployed on an EVM chain.
type Contract struct {
	address  common.Address
	client   *ethclient.Client
	bound    *bind.BoundContract
	transact *bind.TransactOpts
	logger   zerolog.Logger
}

// DialContract connects to rpcURL. Transactions are signed with key; a nil
// key gives a read-only contract.
func DialContract(ctx context.Context, rpcURL string, address common.Address, key *ecdsa.PrivateKey, logger zerolog.Logger) (*Contract, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c := &Contract{
		address: address,
		client:  client,
		bound:   bind.NewBoundContract(address, parsedGameABI, client, client, client),
		logger:  logger,
	}
	if key != nil {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
		c.transact, err = bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			client.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Contract) Close() {
	c.client.Close()
}

// Elevators calls the room's elevator contracts over the same connection.
func (c *Contract) Elevators() *ElevatorContracts {
	return NewElevatorContracts(c.client, c.address)
}

func (c *Contract) GetGameState(ctx context.Context, roomID *big.Int) (domain.RoomConfig, domain.GameState, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getGameState", roomID); err != nil {
		return domain.RoomConfig{}, domain.GameState{}, err
	}
	return gameStateFromABI(out)
}

func gameStateFromABI(out []interface{}) (domain.RoomConfig, domain.GameState, error) {
	if len(out) != 3 {
		return domain.RoomConfig{}, domain.GameState{}, fmt.Errorf("getGameState returned %d values", len(out))
	}
	meta := *abi.ConvertType(out[0], new(chainMeta)).(*chainMeta)
	elevators := *abi.ConvertType(out[1], new([]chainElevator)).(*[]chainElevator)
	floors := *abi.ConvertType(out[2], new([]chainFloor)).(*[]chainFloor)

	if meta.NumberOfPlayers == 0 {
		return domain.RoomConfig{}, domain.GameState{}, ErrRoomNotFound
	}

	config := domain.RoomConfig{
		NumberOfPlayers:    meta.NumberOfPlayers,
		Floors:             meta.Floors,
		ScoreToWin:         meta.ScoreToWin,
		OffchainPublicKeys: meta.OffchainPublicKeys,
		Players:            meta.Players,
		ElevatorEndpoints:  meta.Elevators,
	}
	state := domain.GameState{
		Turn:              meta.Turn,
		Status:            domain.GameStatus(meta.Status),
		Indices:           meta.Indices,
		RandomSeed:        drng.State(meta.RandomSeed),
		WaitingPassengers: meta.WaitingPassengers,
		ActionsSold:       meta.ActionsSold,
		Elevators:         make([]domain.ElevatorState, len(elevators)),
		FloorPassengers:   make([][]uint8, len(floors)),
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
			FloorQueue:  e.FloorQueue,
			Passengers:  e.Passengers,
		}
	}
	for i, f := range floors {
		state.FloorPassengers[i] = f.Passengers
	}
	return config, state, nil
}

func (c *Contract) Play(ctx context.Context, roomID *big.Int, turns uint16) (TxHandle, error) {
	return c.send(ctx, "play", roomID, turns)
}

func (c *Contract) LoadCheckpoint(ctx context.Context, roomID *big.Int, cp checkpoint.Checkpoint) (TxHandle, error) {
	if !cp.FullySigned() {
		return nil, checkpoint.ErrInvalidSignature
	}
	return c.send(ctx, "loadCheckpoint", loadCheckpointArgs(roomID, cp)...)
}

func loadCheckpointArgs(roomID *big.Int, cp checkpoint.Checkpoint) []interface{} {
	s := cp.Data
	elevators := make([]chainElevator, len(s.Elevators))
	for i, e := range s.Elevators {
		elevators[i] = chainElevator{
			Owner:       e.Owner,
			Status:      uint8(e.Status),
			Light:       uint8(e.Light),
			Score:       e.Score,
			TargetFloor: e.TargetFloor,
			FloorQueue:  orEmpty(e.FloorQueue),
			Passengers:  orEmpty(e.Passengers),
			Balance:     e.Balance,
			Speed:       e.Speed,
			Y:           e.Y,
			Data:        e.Data,
		}
	}
	floors := make([]chainFloor, len(s.FloorPassengers))
	for i, f := range s.FloorPassengers {
		floors[i] = chainFloor{Passengers: orEmpty(f)}
	}
	return []interface{}{
		roomID,
		s.Turn,
		uint8(s.Status),
		orEmpty(s.Indices),
		[2]uint64(s.RandomSeed),
		s.ActionsSold,
		s.WaitingPassengers,
		elevators,
		floors,
		cp.Signatures,
	}
}

func (c *Contract) GetActionCost(ctx context.Context, turn uint16, sold uint32, kind domain.ActionKind, amount uint32) (uint32, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getActionCost", turn, sold, uint8(kind), amount); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint32)).(*uint32), nil
}

func (c *Contract) CreateGameRoom(ctx context.Context, _ common.Address, players, floors uint8, scoreToWin uint16, offchainKey, elevator common.Address) (*big.Int, error) {
	tx, err := c.transactRaw(ctx, "createGameRoom", players, floors, scoreToWin, offchainKey, elevator)
	if err != nil {
		return nil, err
	}
	receipt, err := tx.receipt(ctx)
	if err != nil {
		return nil, err
	}
	created := parsedGameABI.Events["RoomCreated"].ID
	for _, l := range receipt.Logs {
		if len(l.Topics) > 1 && l.Topics[0] == created && l.Address == c.address {
			return new(big.Int).SetBytes(l.Topics[1].Bytes()), nil
		}
	}
	return nil, fmt.Errorf("%w: no RoomCreated event", ErrTxReverted)
}

func (c *Contract) JoinGameRoom(ctx context.Context, roomID *big.Int, _, offchainKey, elevator common.Address) error {
	tx, err := c.transactRaw(ctx, "joinGameRoom", roomID, offchainKey, elevator)
	if err != nil {
		return err
	}
	return tx.Wait(ctx)
}

func (c *Contract) ExitGameRoom(ctx context.Context, roomID *big.Int, _ common.Address) error {
	tx, err := c.transactRaw(ctx, "exitGameRoom", roomID)
	if err != nil {
		return err
	}
	return tx.Wait(ctx)
}

var ErrReadOnly = errors.New("contract-read-only")

func (c *Contract) send(ctx context.Context, method string, params ...interface{}) (TxHandle, error) {
	tx, err := c.transactRaw(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *Contract) transactRaw(ctx context.Context, method string, params ...interface{}) (*evmTx, error) {
	if c.transact == nil {
		return nil, ErrReadOnly
	}
	opts := *c.transact
	opts.Context = ctx
	tx, err := c.bound.Transact(&opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	c.logger.Info().Str("method", method).Str("tx", tx.Hash().Hex()).Msg("transaction sent")
	return &evmTx{tx: tx, client: c.client}, nil
}

type evmTx struct {
	tx     *types.Transaction
	client *ethclient.Client
}

func (t *evmTx) Hash() common.Hash { return t.tx.Hash() }

func (t *evmTx) Wait(ctx context.Context) error {
	_, err := t.receipt(ctx)
	return err
}

func (t *evmTx) receipt(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.client, t.tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrTxReverted, t.tx.Hash().Hex())
	}
	return receipt, nil
}

func orEmpty(s []uint8) []uint8 {
	if s == nil {
		return []uint8{}
	}
	return s
}

var _ Oracle = (*Contract)(nil)
var _ Lifecycle = (*Contract)(nil)
