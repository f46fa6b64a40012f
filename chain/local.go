package chain

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"sectf/checkpoint"
	"sectf/domain"
	"sectf/game"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Local is an in-process stand-in for the game contract. It runs the same
// engine the players run and checks loadCheckpoint signatures the way the
// contract does.
type Local struct {
	mu          sync.Mutex
	rooms       map[string]*localRoom
	nextRoom    int64
	nonce       uint64
	elevators   map[common.Address]game.DecisionProvider
	pricer      game.ActionPricer
	logger      zerolog.Logger
	subscribers map[string][]chan uint16
}

type localRoom struct {
	config domain.RoomConfig
	state  domain.GameState
}

func NewLocal(logger zerolog.Logger) *Local {
	return &Local{
		rooms:       make(map[string]*localRoom),
		nextRoom:    1,
		elevators:   make(map[common.Address]game.DecisionProvider),
		pricer:      game.BidCurve{},
		logger:      logger,
		subscribers: make(map[string][]chan uint16),
	}
}

// RegisterElevator deploys a strategy at addr.
func (l *Local) RegisterElevator(addr common.Address, provider game.DecisionProvider) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.elevators[addr] = provider
}

// Elevators resolves the endpoints of a room to the registered strategies.
func (l *Local) Elevators(room domain.RoomConfig) game.StrategySet {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := make(game.StrategySet, len(room.ElevatorEndpoints))
	for i, addr := range room.ElevatorEndpoints {
		set[i] = l.elevators[addr]
	}
	return set
}

// PlayTurnOffChain lets players of a local room compute turns against the
// same strategies the simulated chain uses.
func (l *Local) PlayTurnOffChain(ctx context.Context, req game.DecisionRequest) (game.ElevatorDecision, error) {
	return l.Elevators(req.Room).PlayTurnOffChain(ctx, req)
}

func (l *Local) CreateGameRoom(ctx context.Context, creator common.Address, players, floors uint8, scoreToWin uint16, offchainKey, elevator common.Address) (*big.Int, error) {
	if players == 0 || floors < 2 || scoreToWin == 0 {
		return nil, domain.ErrRoomInvalid
	}
	l.mu.Lock()
	id := big.NewInt(l.nextRoom)
	l.nextRoom++
	l.rooms[id.String()] = &localRoom{
		config: domain.RoomConfig{NumberOfPlayers: players, Floors: floors, ScoreToWin: scoreToWin},
		state:  domain.GameState{Status: domain.StatusCreated},
	}
	l.mu.Unlock()

	if err := l.JoinGameRoom(ctx, id, creator, offchainKey, elevator); err != nil {
		return nil, err
	}
	return id, nil
}

func (l *Local) JoinGameRoom(_ context.Context, roomID *big.Int, player, offchainKey, elevator common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[roomID.String()]
	if !ok {
		return ErrRoomNotFound
	}
	if room.state.Status != domain.StatusCreated {
		return ErrRoomStarted
	}
	if room.config.PlayerIndex(player) >= 0 {
		return ErrAlreadyJoined
	}
	if len(room.config.Players) >= int(room.config.NumberOfPlayers) {
		return ErrRoomFull
	}
	room.config.Players = append(room.config.Players, player)
	room.config.OffchainPublicKeys = append(room.config.OffchainPublicKeys, offchainKey)
	room.config.ElevatorEndpoints = append(room.config.ElevatorEndpoints, elevator)

	if len(room.config.Players) == int(room.config.NumberOfPlayers) {
		room.state = game.NewGame(roomID.Uint64(), room.config)
		l.logger.Info().Str("room", roomID.String()).Msg("room ready")
		l.notify(roomID, room.state.Turn)
	}
	return nil
}

func (l *Local) ExitGameRoom(_ context.Context, roomID *big.Int, player common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[roomID.String()]
	if !ok {
		return ErrRoomNotFound
	}
	i := room.config.PlayerIndex(player)
	if i < 0 {
		return domain.ErrNotInRoom
	}
	switch room.state.Status {
	case domain.StatusCreated:
		room.config.Players = slices.Delete(room.config.Players, i, i+1)
		room.config.OffchainPublicKeys = slices.Delete(room.config.OffchainPublicKeys, i, i+1)
		room.config.ElevatorEndpoints = slices.Delete(room.config.ElevatorEndpoints, i, i+1)
		if len(room.config.Players) == 0 {
			room.state.Status = domain.StatusCancelled
		}
	case domain.StatusReady:
		room.state.Status = domain.StatusCancelled
		l.notify(roomID, room.state.Turn)
	default:
		return game.ErrNotPlayable
	}
	return nil
}

func (l *Local) GetGameState(ctx context.Context, roomID *big.Int) (domain.RoomConfig, domain.GameState, error) {
	if err := ctx.Err(); err != nil {
		return domain.RoomConfig{}, domain.GameState{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	room, ok := l.rooms[roomID.String()]
	if !ok {
		return domain.RoomConfig{}, domain.GameState{}, ErrRoomNotFound
	}
	return cloneConfig(room.config), room.state.Clone(), nil
}

// Play advances the room by up to turns turns. A failing elevator reverts
// the whole transaction.
func (l *Local) Play(ctx context.Context, roomID *big.Int, turns uint16) (TxHandle, error) {
	config, state, err := l.GetGameState(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if state.Status != domain.StatusReady {
		return l.tx(fmt.Errorf("%w: %w", ErrTxReverted, game.ErrNotPlayable)), nil
	}

	engine := game.NewEngine(l.Elevators(config), l.pricer, 0)
	next, played, err := engine.Play(ctx, state, config, int(turns))
	if err != nil {
		return l.tx(fmt.Errorf("%w: %w", ErrTxReverted, err)), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	room := l.rooms[roomID.String()]
	if room.state.Turn != state.Turn || room.state.Status != state.Status {
		return l.txLocked(fmt.Errorf("%w: room moved during play", ErrTxReverted)), nil
	}
	room.state = next
	l.logger.Debug().Str("room", roomID.String()).Int("played", played).Uint16("turn", next.Turn).Msg("played on chain")
	l.notify(roomID, next.Turn)
	return l.txLocked(nil), nil
}

// LoadCheckpoint replaces the room state with a checkpoint signed by every
// registered off-chain key.
func (l *Local) LoadCheckpoint(ctx context.Context, roomID *big.Int, cp checkpoint.Checkpoint) (TxHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[roomID.String()]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.state.Status != domain.StatusReady {
		return l.txLocked(fmt.Errorf("%w: %w", ErrTxReverted, game.ErrNotPlayable)), nil
	}
	if cp.Data.Turn <= room.state.Turn {
		return l.txLocked(fmt.Errorf("%w: %w", ErrTxReverted, ErrStaleTurn)), nil
	}
	if err := cp.VerifyHash(roomID); err != nil {
		return l.txLocked(fmt.Errorf("%w: %w", ErrTxReverted, err)), nil
	}
	if !cp.FullySigned() {
		return l.txLocked(fmt.Errorf("%w: %w", ErrTxReverted, checkpoint.ErrInvalidSignature)), nil
	}
	if _, err := cp.ValidSigners(room.config.OffchainPublicKeys); err != nil {
		return l.txLocked(fmt.Errorf("%w: %w", ErrTxReverted, err)), nil
	}
	if err := game.Validate(cp.Data, room.config); err != nil {
		return l.txLocked(fmt.Errorf("%w: %w", ErrTxReverted, err)), nil
	}

	room.state = cp.Data.Clone()
	l.logger.Info().Str("room", roomID.String()).Uint16("turn", cp.Data.Turn).Msg("checkpoint loaded on chain")
	l.notify(roomID, room.state.Turn)
	return l.txLocked(nil), nil
}

func (l *Local) GetActionCost(ctx context.Context, turn uint16, sold uint32, kind domain.ActionKind, amount uint32) (uint32, error) {
	return l.pricer.ActionCost(ctx, turn, sold, kind, amount)
}

func (l *Local) Subscribe(roomID *big.Int) (<-chan uint16, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan uint16, 16)
	key := roomID.String()
	l.subscribers[key] = append(l.subscribers[key], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			subs := l.subscribers[key]
			if i := slices.Index(subs, ch); i >= 0 {
				l.subscribers[key] = slices.Delete(subs, i, i+1)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// notify drops updates for subscribers that are not keeping up; they will
// catch up on the next one.
func (l *Local) notify(roomID *big.Int, turn uint16) {
	for _, ch := range l.subscribers[roomID.String()] {
		select {
		case ch <- turn:
		default:
		}
	}
}

func (l *Local) tx(err error) TxHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.txLocked(err)
}

func (l *Local) txLocked(err error) TxHandle {
	l.nonce++
	hash := ethcrypto.Keccak256Hash(big.NewInt(int64(l.nonce)).Bytes())
	if err != nil {
		l.logger.Warn().Err(err).Str("tx", hash.Hex()).Msg("transaction reverted")
	}
	return localTx{hash: hash, err: err}
}

type localTx struct {
	hash common.Hash
	err  error
}

func (tx localTx) Hash() common.Hash { return tx.hash }

func (tx localTx) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.err
}

func cloneConfig(c domain.RoomConfig) domain.RoomConfig {
	c.Players = slices.Clone(c.Players)
	c.OffchainPublicKeys = slices.Clone(c.OffchainPublicKeys)
	c.ElevatorEndpoints = slices.Clone(c.ElevatorEndpoints)
	return c
}

var _ Oracle = (*Local)(nil)
var _ Notifier = (*Local)(nil)
var _ Lifecycle = (*Local)(nil)
