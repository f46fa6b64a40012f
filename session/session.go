// Package session runs one player's side of a room: the handshake with the
// other players, the peer table and the reconciliation loop. Everything that
// touches the room state goes through the Session actor.
package session

import (
	"context"
	"errors"
	"math/big"
	"time"

	"sectf/chain"
	"sectf/checkpoint"
	"sectf/crypto"
	"sectf/reconcile"
	"sectf/wire"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// HandshakeWindow bounds the clock skew accepted on an id message.
	HandshakeWindow         = 10 * time.Second
	DefaultAutoplayInterval = 500 * time.Millisecond
	DefaultPollInterval     = 5 * time.Second

	DefaultPeerRate  rate.Limit = 20
	DefaultPeerBurst            = 40
)

var (
	ErrNotRunning = errors.New("session-not-running")
	ErrNoTurns    = errors.New("no-turns-requested")
)

// Transport carries frames to every other peer of the room.
type Transport interface {
	Broadcast(data []byte) error
}

type Config struct {
	RoomID           *big.Int
	Player           common.Address
	AutoplayInterval time.Duration
	PollInterval     time.Duration
	// PeerRate and PeerBurst bound the frames accepted from one peer.
	PeerRate  rate.Limit
	PeerBurst int
}

type Status struct {
	reconcile.Status
	PeersOnline []bool
}

type peer struct {
	id      string
	index   int
	limiter *rate.Limiter
}

func (s *Session) newPeer(id string) *peer {
	return &peer{id: id, index: -1, limiter: rate.NewLimiter(s.cfg.PeerRate, s.cfg.PeerBurst)}
}

type frame struct {
	peerID string
	data   []byte
}

type toggleReply struct {
	on  bool
	err error
}

type chainOp struct {
	push  bool
	turns uint16
	reply chan error
}

type txResult struct {
	op  chainOp
	err error
}

type Session struct {
	cfg       Config
	rec       *reconcile.Reconciler
	oracle    chain.Oracle
	tickers   TickerCreator
	logger    zerolog.Logger
	now       func() time.Time
	transport Transport

	peers map[string]*peer

	frames     chan frame
	joins      chan string
	leaves     chan string
	timers     chan func()
	statusReqs chan chan Status
	toggleReqs chan chan toggleReply
	chainReqs  chan chainOp
	txResults  chan txResult
	done       chan struct{}
}

func New(cfg Config, oracle chain.Oracle, store reconcile.Store, engine reconcile.Advancer, tickers TickerCreator, logger zerolog.Logger) *Session {
	if cfg.AutoplayInterval <= 0 {
		cfg.AutoplayInterval = DefaultAutoplayInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PeerRate <= 0 {
		cfg.PeerRate = DefaultPeerRate
	}
	if cfg.PeerBurst <= 0 {
		cfg.PeerBurst = DefaultPeerBurst
	}
	s := &Session{
		cfg:        cfg,
		oracle:     oracle,
		tickers:    tickers,
		logger:     logger.With().Str("room", cfg.RoomID.String()).Str("player", cfg.Player.Hex()).Logger(),
		now:        time.Now,
		peers:      make(map[string]*peer),
		frames:     make(chan frame, 256),
		joins:      make(chan string, 16),
		leaves:     make(chan string, 16),
		timers:     make(chan func(), 16),
		statusReqs: make(chan chan Status),
		toggleReqs: make(chan chan toggleReply),
		chainReqs:  make(chan chainOp),
		txResults:  make(chan txResult, 4),
		done:       make(chan struct{}),
	}
	s.rec = reconcile.New(cfg.RoomID, cfg.Player, oracle, store, engine, outbox{s}, actorScheduler{s}, logger)
	return s
}

// PeerJoined, PeerLeft and Receive are called by the transport.

func (s *Session) PeerJoined(peerID string) {
	select {
	case s.joins <- peerID:
	case <-s.done:
	}
}

func (s *Session) PeerLeft(peerID string) {
	select {
	case s.leaves <- peerID:
	case <-s.done:
	}
}

func (s *Session) Receive(peerID string, data []byte) {
	select {
	case s.frames <- frame{peerID: peerID, data: data}:
	case <-s.done:
	}
}

// Run starts the reconciler and serves events until ctx is cancelled. It
// returns early only when the session cannot start.
func (s *Session) Run(ctx context.Context, transport Transport) error {
	defer close(s.done)
	s.transport = transport

	if err := s.rec.Start(ctx); err != nil {
		s.logger.Error().Err(err).Msg("could not start session")
		return err
	}
	s.logger.Info().Int("index", s.rec.PlayerIndex()).Stringer("phase", s.rec.Phase()).Msg("session started")

	var updates <-chan uint16
	if notifier, ok := s.oracle.(chain.Notifier); ok {
		ch, cancel := notifier.Subscribe(s.cfg.RoomID)
		defer cancel()
		updates = ch
	}
	autoplay, stopAutoplay := s.tickers.Create(s.cfg.AutoplayInterval)
	defer stopAutoplay()
	poll, stopPoll := s.tickers.Create(s.cfg.PollInterval)
	defer stopPoll()

	s.announce()

	for {
		select {
		case <-ctx.Done():
			s.rec.Stop()
			s.logger.Info().Msg("session stopped")
			return nil

		case f := <-s.frames:
			s.handleFrame(ctx, f)

		case id := <-s.joins:
			s.handleJoin(id)

		case id := <-s.leaves:
			s.handleLeave(id)

		case fn := <-s.timers:
			fn()

		case <-autoplay:
			s.report("autoplay", s.rec.Tick(ctx))

		case <-poll:
			s.report("poll chain", s.rec.RefreshFromChain(ctx))

		case turn, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.logger.Debug().Uint16("turn", turn).Msg("room updated on chain")
			s.report("chain update", s.rec.RefreshFromChain(ctx))

		case reply := <-s.statusReqs:
			reply <- s.status()

		case reply := <-s.toggleReqs:
			on, err := s.rec.ToggleAutoplay()
			reply <- toggleReply{on: on, err: err}

		case op := <-s.chainReqs:
			s.startChainOp(ctx, op)

		case res := <-s.txResults:
			s.finishChainOp(ctx, res)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, f frame) {
	p, ok := s.peers[f.peerID]
	if !ok {
		p = s.newPeer(f.peerID)
		s.peers[f.peerID] = p
	}
	if !p.limiter.Allow() {
		s.logger.Debug().Str("peer", p.id).Msg("rate limited, frame dropped")
		return
	}
	msg, err := wire.Decode(f.data)
	if err != nil {
		s.logger.Warn().Err(err).Str("peer", p.id).Msg("undecodable frame")
		return
	}

	if msg.Kind == wire.KindID {
		s.handleID(p, msg.Identity)
		return
	}
	if p.index < 0 {
		s.logger.Debug().Str("peer", p.id).Stringer("kind", msg.Kind).Msg("message from unidentified peer")
		return
	}
	switch msg.Kind {
	case wire.KindCheckpoint:
		if msg.RoomID.Cmp(s.cfg.RoomID) != 0 {
			s.logger.Warn().Int("from", p.index).Str("roomInMessage", msg.RoomID.String()).Msg("checkpoint for another room")
			return
		}
		s.report("checkpoint", s.rec.HandleCheckpoint(ctx, p.index, msg.Checkpoint))
	case wire.KindFullRequest:
		s.rec.HandleFullRequest()
	case wire.KindTurnMode:
		s.report("turn mode", s.rec.HandleTurnMode(p.index, msg.TurnMode))
	}
}

// handleID runs the handshake: a fresh timestamp, a registered player and
// a signature from that player's off-chain key.
func (s *Session) handleID(p *peer, id wire.Identity) {
	if s.rec.Phase() != reconcile.PhaseAwaitingPeers || p.index >= 0 {
		return
	}
	log := s.logger.With().Str("peer", p.id).Str("address", id.Address.Hex()).Logger()

	age := s.now().Sub(time.UnixMilli(id.TimestampMs))
	if age.Abs() >= HandshakeWindow {
		log.Warn().Dur("age", age).Msg("id rejected, timestamp too old")
		return
	}
	room := s.rec.Room()
	index := room.PlayerIndex(id.Address)
	if index < 0 || index == s.rec.PlayerIndex() {
		log.Warn().Msg("id rejected, address has not joined the room")
		return
	}
	if !crypto.Verify(crypto.HandshakeDigest(id.Address, id.TimestampMs), id.Signature, room.OffchainPublicKeys[index]) {
		log.Warn().Msg("id rejected, signature could not be verified")
		return
	}

	for _, other := range s.peers {
		if other.index == index {
			other.index = -1
		}
	}
	p.index = index
	log.Info().Int("player", index).Msg("player joined the game")

	s.announce()
	if s.identified() == int(room.NumberOfPlayers)-1 {
		s.report("peers ready", s.rec.PeersReady())
	}
}

func (s *Session) handleJoin(peerID string) {
	if _, ok := s.peers[peerID]; !ok {
		s.peers[peerID] = s.newPeer(peerID)
	}
	s.announce()
}

func (s *Session) handleLeave(peerID string) {
	p, ok := s.peers[peerID]
	if !ok {
		return
	}
	delete(s.peers, peerID)
	if p.index < 0 {
		return
	}
	s.logger.Info().Int("player", p.index).Str("peer", peerID).Msg("player left the game")
	s.report("peer left", s.rec.PeerLeft())
}

func (s *Session) identified() int {
	n := 0
	for _, p := range s.peers {
		if p.index >= 0 {
			n++
		}
	}
	return n
}

// announce broadcasts our id while peers are still being identified.
func (s *Session) announce() {
	if s.rec.Phase() != reconcile.PhaseAwaitingPeers {
		return
	}
	ts := s.now().UnixMilli()
	sig, err := s.rec.Key().Sign(crypto.HandshakeDigest(s.cfg.Player, ts))
	if err != nil {
		s.logger.Error().Err(err).Msg("sign id")
		return
	}
	s.broadcast(wire.IDMessage(wire.Identity{Address: s.cfg.Player, TimestampMs: ts, Signature: sig}))
}

func (s *Session) broadcast(m wire.Message) {
	data, err := wire.Encode(m)
	if err != nil {
		s.logger.Error().Err(err).Stringer("kind", m.Kind).Msg("encode message")
		return
	}
	if err := s.transport.Broadcast(data); err != nil {
		s.logger.Warn().Err(err).Stringer("kind", m.Kind).Msg("broadcast failed")
	}
}

func (s *Session) status() Status {
	st := Status{Status: s.rec.Status()}
	st.PeersOnline = make([]bool, st.Room.NumberOfPlayers)
	if i := s.rec.PlayerIndex(); i >= 0 && i < len(st.PeersOnline) {
		st.PeersOnline[i] = true
	}
	for _, p := range s.peers {
		if p.index >= 0 && p.index < len(st.PeersOnline) {
			st.PeersOnline[p.index] = true
		}
	}
	return st
}

func (s *Session) report(what string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrProtocolViolation):
		s.logger.Warn().Err(err).Msg(what)
	case errors.Is(err, reconcile.ErrConsensusBroken):
		s.logger.Error().Err(err).Msg(what)
	case errors.Is(err, reconcile.ErrWrongPhase):
		s.logger.Debug().Err(err).Msg(what)
	default:
		s.logger.Error().Err(err).Msg(what)
	}
}

type outbox struct {
	s *Session
}

func (o outbox) SendCheckpoint(cp checkpoint.Checkpoint) {
	o.s.broadcast(wire.CheckpointMessage(o.s.cfg.RoomID, cp))
}

func (o outbox) RequestFull() {
	o.s.broadcast(wire.FullRequestMessage())
}

func (o outbox) SendTurnMode(on bool) {
	o.s.broadcast(wire.TurnModeMessage(on))
}
