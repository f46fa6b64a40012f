// Package reconcile keeps one player's view of a room's state channel in
// agreement with the other players and with the chain.
//
// A Reconciler is not safe for concurrent use. The session actor owns it and
// calls every method, scheduled callbacks included, from its own goroutine.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"sectf/checkpoint"
	"sectf/crypto"
	"sectf/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const (
	InitialBroadcastDelay = time.Second
	FullRequestDebounce   = time.Second
)

var (
	ErrNoCheckpoint    = errors.New("no-checkpoint")
	ErrConsensusBroken = errors.New("consensus-broken")
	ErrRoomNotStarted  = errors.New("room-not-started")
	ErrNothingToPush   = errors.New("nothing-to-push")
	ErrWrongPhase      = errors.New("operation-not-allowed-in-phase")

	// ErrProtocolViolation marks messages that are dropped without touching
	// any state.
	ErrProtocolViolation = errors.New("protocol-violation")
	ErrNotSignedBySender = errors.New("not-signed-by-sender")
)

type StateReader interface {
	GetGameState(ctx context.Context, roomID *big.Int) (domain.RoomConfig, domain.GameState, error)
}

type Store interface {
	Keys(ctx context.Context) (*crypto.OffchainKey, bool, error)
	Load(ctx context.Context, keys []common.Address) (*checkpoint.Checkpoint, error)
	Save(ctx context.Context, cp checkpoint.Checkpoint) error
}

type Advancer interface {
	AdvanceTurn(ctx context.Context, state domain.GameState, room domain.RoomConfig) (domain.GameState, error)
}

// Outbox broadcasts to every identified peer. Delivery is best effort.
type Outbox interface {
	SendCheckpoint(cp checkpoint.Checkpoint)
	RequestFull()
	SendTurnMode(on bool)
}

type Scheduler interface {
	// After runs fn on the owner's goroutine once d has elapsed.
	After(d time.Duration, fn func())
}

type Reconciler struct {
	roomID    *big.Int
	player    common.Address
	chain     StateReader
	store     Store
	engine    Advancer
	outbox    Outbox
	scheduler Scheduler
	logger    zerolog.Logger

	phase      Phase
	key        *crypto.OffchainKey
	room       domain.RoomConfig
	index      int
	last       *checkpoint.Checkpoint
	temp       *checkpoint.Checkpoint
	chainTurn  uint16
	turnModes  []bool
	peersReady bool

	fullRequestPending bool
}

func New(roomID *big.Int, player common.Address, chain StateReader, store Store, engine Advancer, outbox Outbox, scheduler Scheduler, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		roomID:    new(big.Int).Set(roomID),
		player:    player,
		chain:     chain,
		store:     store,
		engine:    engine,
		outbox:    outbox,
		scheduler: scheduler,
		logger:    logger.With().Str("room", roomID.String()).Logger(),
		phase:     PhaseDisconnected,
		index:     -1,
	}
}

func (r *Reconciler) Phase() Phase { return r.phase }

func (r *Reconciler) RoomID() *big.Int { return new(big.Int).Set(r.roomID) }

func (r *Reconciler) Player() common.Address { return r.player }

// Key is the player's off-chain key, nil before Start.
func (r *Reconciler) Key() *crypto.OffchainKey { return r.key }

func (r *Reconciler) Room() domain.RoomConfig { return r.room }

func (r *Reconciler) PlayerIndex() int { return r.index }

func (r *Reconciler) players() int { return int(r.room.NumberOfPlayers) }

func (r *Reconciler) started() bool { return r.phase > PhaseInitializing }

func (r *Reconciler) connected() bool {
	return r.phase == PhaseSyncing || r.phase == PhasePlaying
}

func (r *Reconciler) myTurn(cp *checkpoint.Checkpoint) bool {
	return cp != nil && int(cp.Data.CurrentPlayer()) == r.index
}

// Start loads the player's key and stored checkpoint, reconciles it with the
// chain and waits for peers. A room registering another off-chain key for
// the player fails with domain.ErrLostKeys.
func (r *Reconciler) Start(ctx context.Context) error {
	if err := r.transition(PhaseInitializing); err != nil {
		return err
	}
	if err := r.start(ctx); err != nil {
		r.disconnect()
		return err
	}
	return nil
}

func (r *Reconciler) start(ctx context.Context) error {
	key, created, err := r.store.Keys(ctx)
	if err != nil {
		return err
	}
	room, state, err := r.chain.GetGameState(ctx, r.roomID)
	if err != nil {
		return err
	}
	index := room.PlayerIndex(r.player)
	if index < 0 {
		return domain.ErrNotInRoom
	}
	if state.Status < domain.StatusReady {
		return ErrRoomNotStarted
	}
	if index >= len(room.OffchainPublicKeys) || room.OffchainPublicKeys[index] != key.Address() {
		if created {
			return fmt.Errorf("%w: no key was stored for this room", domain.ErrLostKeys)
		}
		return fmt.Errorf("%w: stored key %s is not registered for player %d", domain.ErrLostKeys, key.Address().Hex(), index)
	}

	r.key = key
	r.room = room
	r.index = index
	r.temp = nil
	r.turnModes = make([]bool, room.NumberOfPlayers)
	r.peersReady = false

	r.last, err = r.store.Load(ctx, room.OffchainPublicKeys)
	if err != nil {
		return err
	}
	if r.last != nil {
		r.logger.Info().Uint16("turn", r.last.Turn()).Msg("found stored checkpoint")
	}
	if err := r.adoptChainState(ctx, state); err != nil {
		return err
	}
	if r.phase == PhaseFinished {
		return nil
	}
	if r.players() == 1 {
		return r.transition(PhasePlaying)
	}
	return r.transition(PhaseAwaitingPeers)
}

// Stop leaves the room. The last confirmed checkpoint stays in the store.
func (r *Reconciler) Stop() {
	if r.phase != PhaseDisconnected {
		r.disconnect()
	}
}

func (r *Reconciler) disconnect() {
	if err := r.transition(PhaseDisconnected); err != nil {
		r.logger.Error().Err(err).Msg("disconnect")
	}
	r.temp = nil
	r.peersReady = false
	clear(r.turnModes)
}

func (r *Reconciler) resumePhase() Phase {
	if r.players() == 1 || r.peersReady {
		return PhasePlaying
	}
	return PhaseAwaitingPeers
}

func (r *Reconciler) finish(status domain.GameStatus) {
	if r.phase == PhaseFinished {
		return
	}
	clear(r.turnModes)
	if err := r.transition(PhaseFinished); err != nil {
		r.logger.Error().Err(err).Msg("finish")
		return
	}
	r.logger.Info().Stringer("status", status).Ints("ranking", r.ranking()).Msg("game finished")
}

func (r *Reconciler) ranking() []int {
	if r.last == nil {
		return nil
	}
	return r.last.Data.Ranking()
}

// RefreshFromChain reads the room from the chain and adopts it when it is
// ahead of the last confirmed checkpoint. A failed read changes nothing.
func (r *Reconciler) RefreshFromChain(ctx context.Context) error {
	if !r.started() {
		return fmt.Errorf("%w: refresh while %s", ErrWrongPhase, r.phase)
	}
	_, state, err := r.chain.GetGameState(ctx, r.roomID)
	if err != nil {
		return fmt.Errorf("refresh room %s: %w", r.roomID, err)
	}
	return r.adoptChainState(ctx, state)
}

// adoptChainState replaces the last confirmed checkpoint with the chain's
// state when the chain is ahead, or at the same turn with different data or
// only off-chain signatures.
func (r *Reconciler) adoptChainState(ctx context.Context, state domain.GameState) error {
	r.chainTurn = state.Turn
	cp, err := checkpoint.New(r.roomID, state, r.players(), true)
	if err != nil {
		return err
	}
	if r.last == nil || r.last.Turn() < cp.Turn() || (r.last.Turn() == cp.Turn() && (!r.last.OnChain || r.last.Hash != cp.Hash)) {
		if err := r.store.Save(ctx, cp); err != nil {
			return err
		}
		r.logger.Info().Uint16("turn", cp.Turn()).Stringer("status", state.Status).Msg("adopted chain state")
		r.last = &cp
		r.temp = nil
		if r.phase == PhaseConsensusBroken {
			if err := r.transition(r.resumePhase()); err != nil {
				return err
			}
		}
		if r.connected() && r.players() > 1 {
			r.outbox.SendCheckpoint(cp.Clone())
		}
	}
	if state.Status.Terminal() {
		r.finish(state.Status)
	}
	return nil
}

// HandleCheckpoint applies a checkpoint received from player from.
//
// Messages failing validation return an error wrapping ErrProtocolViolation
// and leave every piece of state untouched. A peer signing a different
// state for the turn we computed returns ErrConsensusBroken.
func (r *Reconciler) HandleCheckpoint(ctx context.Context, from int, cp checkpoint.Checkpoint) error {
	if !r.phase.Exchanging() {
		return fmt.Errorf("%w: checkpoint while %s", ErrWrongPhase, r.phase)
	}
	if from < 0 || from >= r.players() || from == r.index {
		return fmt.Errorf("%w: unknown sender %d", ErrProtocolViolation, from)
	}
	if r.last == nil && r.temp == nil {
		r.disconnect()
		return ErrNoCheckpoint
	}
	if err := cp.VerifyHash(r.roomID); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if cp.OnChain {
		return r.handleOnChain(ctx, cp)
	}

	signers, err := cp.ValidSigners(r.room.OffchainPublicKeys)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if !slices.Contains(signers, from) {
		return fmt.Errorf("%w: %w: player %d", ErrProtocolViolation, ErrNotSignedBySender, from)
	}
	r.logger.Debug().Int("from", from).Uint16("turn", cp.Turn()).Int("signatures", len(signers)).Msg("checkpoint received")

	if len(signers) < r.players() {
		return r.handlePartial(ctx, cp)
	}
	return r.handleFull(ctx, cp)
}

// handleOnChain refetches the chain when a peer claims it moved past us.
func (r *Reconciler) handleOnChain(ctx context.Context, cp checkpoint.Checkpoint) error {
	if cp.Turn() < r.latestTurn() {
		return nil
	}
	if err := r.RefreshFromChain(ctx); err != nil {
		return err
	}
	if r.last == nil || r.last.Turn() < cp.Turn() {
		r.outbox.RequestFull()
	}
	return nil
}

func (r *Reconciler) handlePartial(ctx context.Context, cp checkpoint.Checkpoint) error {
	turn := cp.Turn()
	switch {
	case (r.temp != nil && turn == r.temp.Turn()) || (r.last != nil && turn == r.last.Turn()+1):
		if r.temp == nil || (r.last != nil && r.temp.Turn() <= r.last.Turn()) {
			if err := r.createTemp(ctx, false); err != nil {
				return err
			}
		}
		if r.temp == nil {
			return nil
		}
		if cp.Hash != r.temp.Hash {
			return r.breakConsensus(cp)
		}
		return r.addSignatures(ctx, cp)

	case r.last != nil && turn == r.last.Turn():
		r.outbox.SendCheckpoint(r.last.Clone())

	case (r.temp != nil && turn > r.temp.Turn()) || (r.last != nil && turn > r.last.Turn()):
		if err := r.RefreshFromChain(ctx); err != nil {
			return err
		}
		switch {
		case r.temp == nil:
			r.outbox.RequestFull()
		case turn == r.temp.Turn() && cp.Hash == r.temp.Hash:
			return r.addSignatures(ctx, cp)
		case turn < r.temp.Turn():
			r.outbox.SendCheckpoint(r.temp.Clone())
		case turn > r.temp.Turn():
			r.outbox.RequestFull()
		}

	default:
		if r.last != nil {
			r.outbox.SendCheckpoint(r.last.Clone())
		}
	}
	return nil
}

func (r *Reconciler) handleFull(ctx context.Context, cp checkpoint.Checkpoint) error {
	newer := r.last == nil ||
		(r.temp != nil && cp.Turn() >= r.temp.Turn()) ||
		cp.Turn() > r.last.Turn()
	if !newer {
		return nil
	}
	return r.confirm(ctx, cp)
}

func (r *Reconciler) breakConsensus(cp checkpoint.Checkpoint) error {
	r.logger.Error().
		Uint16("turn", cp.Turn()).
		Stringer("local", r.temp.Hash).
		Stringer("remote", cp.Hash).
		Msg("consensus broken, settle on chain")
	if r.phase != PhaseFinished {
		if err := r.transition(PhaseConsensusBroken); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: turn %d", ErrConsensusBroken, cp.Turn())
}

func (r *Reconciler) addSignatures(ctx context.Context, cp checkpoint.Checkpoint) error {
	added, err := r.temp.MergeSignatures(cp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if added == 0 {
		return nil
	}
	r.outbox.SendCheckpoint(r.temp.Clone())
	if r.temp.FullySigned() {
		return r.confirm(ctx, *r.temp)
	}
	return nil
}

// confirm persists cp as the last confirmed checkpoint. Nothing changes in
// memory when the store refuses it.
func (r *Reconciler) confirm(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := r.store.Save(ctx, cp); err != nil {
		return err
	}
	confirmed := cp.Clone()
	r.last = &confirmed
	if r.temp != nil && r.temp.Turn() <= confirmed.Turn() {
		r.temp = nil
	}
	r.logger.Debug().Uint16("turn", confirmed.Turn()).Stringer("hash", confirmed.Hash).Msg("checkpoint confirmed")

	if r.phase == PhaseConsensusBroken {
		if err := r.transition(r.resumePhase()); err != nil {
			return err
		}
	}
	if confirmed.Data.Status.Terminal() {
		r.finish(confirmed.Data.Status)
	}
	return nil
}

// createTemp computes the turn after the last confirmed checkpoint and signs
// it. With a single player the result is confirmed on the spot.
func (r *Reconciler) createTemp(ctx context.Context, announce bool) error {
	if r.last == nil {
		return ErrNoCheckpoint
	}
	next, err := r.engine.AdvanceTurn(ctx, r.last.Data, r.room)
	if err != nil {
		return err
	}
	cp, err := checkpoint.New(r.roomID, next, r.players(), false)
	if err != nil {
		return err
	}
	if err := cp.Sign(r.index, r.key); err != nil {
		return err
	}
	if r.players() == 1 {
		return r.confirm(ctx, cp)
	}
	r.temp = &cp
	if announce {
		r.outbox.SendCheckpoint(cp.Clone())
	}
	return nil
}

func (r *Reconciler) latestTurn() uint16 {
	if r.temp != nil {
		return r.temp.Turn()
	}
	if r.last != nil {
		return r.last.Turn()
	}
	return 0
}

// Tick is the auto-play step. When it is the local player's turn it
// computes the next checkpoint, or re-announces the pending one.
func (r *Reconciler) Tick(ctx context.Context) error {
	if r.phase != PhasePlaying || !r.turnModes[r.index] {
		return nil
	}
	switch {
	case r.temp == nil && r.last != nil:
		if !r.myTurn(r.last) {
			return nil
		}
		return r.createTemp(ctx, true)
	case r.temp != nil && r.players() > 1 && r.myTurn(r.last):
		r.outbox.SendCheckpoint(r.temp.Clone())
	}
	return nil
}

// HandleFullRequest answers a peer asking for our checkpoints. Requests
// arriving within FullRequestDebounce of each other share one answer.
func (r *Reconciler) HandleFullRequest() {
	if !r.started() || r.fullRequestPending {
		return
	}
	r.fullRequestPending = true
	r.scheduler.After(FullRequestDebounce, r.answerFullRequest)
}

func (r *Reconciler) answerFullRequest() {
	r.fullRequestPending = false
	if !r.started() {
		return
	}
	if r.last != nil {
		r.outbox.SendCheckpoint(r.last.Clone())
	}
	if r.temp != nil {
		r.outbox.SendCheckpoint(r.temp.Clone())
	}
}

func (r *Reconciler) HandleTurnMode(from int, on bool) error {
	if !r.connected() {
		return fmt.Errorf("%w: turn mode while %s", ErrWrongPhase, r.phase)
	}
	if from < 0 || from >= len(r.turnModes) {
		return fmt.Errorf("%w: unknown sender %d", ErrProtocolViolation, from)
	}
	r.turnModes[from] = on
	r.logger.Info().Int("player", from).Bool("autoplay", on).Msg("turn mode")
	return nil
}

// ToggleAutoplay flips the local turn mode and announces it.
func (r *Reconciler) ToggleAutoplay() (bool, error) {
	if !r.connected() {
		return false, fmt.Errorf("%w: autoplay while %s", ErrWrongPhase, r.phase)
	}
	on := !r.turnModes[r.index]
	r.turnModes[r.index] = on
	if r.players() > 1 {
		r.outbox.SendTurnMode(on)
	}
	return on, nil
}

// PeersReady is called once every other player passed the handshake. The
// first broadcast waits InitialBroadcastDelay so peers can finish their own
// handshakes.
func (r *Reconciler) PeersReady() error {
	r.peersReady = true
	if r.phase != PhaseAwaitingPeers {
		return nil
	}
	if err := r.transition(PhaseSyncing); err != nil {
		return err
	}
	r.scheduler.After(InitialBroadcastDelay, r.initialBroadcast)
	return nil
}

func (r *Reconciler) initialBroadcast() {
	if r.phase != PhaseSyncing {
		return
	}
	cp := r.temp
	if cp == nil {
		cp = r.last
	}
	if cp == nil {
		r.logger.Error().Err(ErrNoCheckpoint).Msg("initial broadcast")
		r.disconnect()
		return
	}
	r.outbox.SendCheckpoint(cp.Clone())
	if err := r.transition(PhasePlaying); err != nil {
		r.logger.Error().Err(err).Msg("initial broadcast")
	}
}

// PeerLeft resets every turn mode and waits for the room to fill again.
func (r *Reconciler) PeerLeft() error {
	r.peersReady = false
	clear(r.turnModes)
	if r.connected() {
		return r.transition(PhaseAwaitingPeers)
	}
	return nil
}

// PushCandidate returns the confirmed checkpoint to submit through
// loadCheckpoint, or ErrNothingToPush when the chain already has it.
func (r *Reconciler) PushCandidate() (checkpoint.Checkpoint, error) {
	if r.last == nil {
		return checkpoint.Checkpoint{}, ErrNoCheckpoint
	}
	if r.last.OnChain || r.chainTurn >= r.last.Turn() {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: chain at turn %d", ErrNothingToPush, r.chainTurn)
	}
	return r.last.Clone(), nil
}

type Status struct {
	Phase       Phase
	PlayerIndex int
	Room        domain.RoomConfig
	ChainTurn   uint16
	Last        *checkpoint.Checkpoint
	Temp        *checkpoint.Checkpoint
	TurnModes   []bool
	Ranking     []int
}

func (r *Reconciler) Status() Status {
	st := Status{
		Phase:       r.phase,
		PlayerIndex: r.index,
		Room:        r.room,
		ChainTurn:   r.chainTurn,
		TurnModes:   append([]bool(nil), r.turnModes...),
		Ranking:     r.ranking(),
	}
	if r.last != nil {
		last := r.last.Clone()
		st.Last = &last
	}
	if r.temp != nil {
		temp := r.temp.Clone()
		st.Temp = &temp
	}
	return st
}
