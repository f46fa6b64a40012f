package main

import (
	"context"
	"fmt"
	"math/big"

	"sectf/chain"
	"sectf/config"
	"sectf/crypto"
	"sectf/game"
	"sectf/migrations"
	"sectf/reconcile"
	"sectf/session"
	"sectf/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Room created for a node without a chain endpoint.
const (
	localFloors     = 8
	localScoreToWin = 100
)

var localElevator = common.HexToAddress("0x00000000000000000000000000000000000000e1")

type node struct {
	roomID  *big.Int
	player  common.Address
	oracle  chain.Oracle
	store   *storage.CheckpointStore
	engine  *game.Engine
	closers []func()
}

var (
	_ reconcile.Store    = (*storage.CheckpointStore)(nil)
	_ reconcile.Advancer = (*game.Engine)(nil)
)

func (n *node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
}

func (n *node) sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		RoomID:           n.roomID,
		Player:           n.player,
		AutoplayInterval: cfg.AutoplayInterval,
		PollInterval:     cfg.PollInterval,
	}
}

// argon2Params applies the configured costs over the default lengths.
func argon2Params(cfg config.Config) crypto.Argon2idParams {
	params := crypto.DefaultArgon2idParams
	params.Iterations = cfg.Argon2Iterations
	params.MemoryKiB = cfg.Argon2MemoryKiB
	params.Parallelism = cfg.Argon2Parallelism
	return params
}

func openRecords(ctx context.Context, cfg config.Config, logger zerolog.Logger) (storage.RecordStore, func(), error) {
	if cfg.PostgresURL == "" {
		logger.Warn().Msg("POSTGRES_URL not set, keys and checkpoints are kept in memory")
		return storage.NewMemoryStore(), func() {}, nil
	}
	if err := migrations.Migrate(cfg.PostgresURL); err != nil {
		return nil, nil, err
	}
	pgRepo, err := storage.NewPostgresRepo(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	return pgRepo, pgRepo.Close, nil
}

func openNode(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*node, error) {
	records, closeRecords, err := openRecords(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	n := &node{closers: []func(){closeRecords}}

	if cfg.Local() {
		err = n.openLocal(ctx, cfg, records, logger)
	} else {
		err = n.openContract(ctx, cfg, records, logger)
	}
	if err != nil {
		n.close()
		return nil, err
	}
	return n, nil
}

// openLocal simulates the chain and creates a single-player room for the
// node.
func (n *node) openLocal(ctx context.Context, cfg config.Config, records storage.RecordStore, logger zerolog.Logger) error {
	local := chain.NewLocal(logger)
	local.RegisterElevator(localElevator, game.SweepStrategy{Pricer: game.BidCurve{}})

	n.player = cfg.PlayerAddress
	if n.player == (common.Address{}) {
		n.player = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	}
	key, err := crypto.GenerateOffchainKey()
	if err != nil {
		return err
	}
	n.roomID, err = local.CreateGameRoom(ctx, n.player, 1, localFloors, localScoreToWin, key.Address(), localElevator)
	if err != nil {
		return fmt.Errorf("create local room: %w", err)
	}
	n.store = storage.NewCheckpointStore(records, cfg.ContractAddress, n.player, n.roomID)
	if err := n.store.PutKeys(ctx, key); err != nil {
		return err
	}
	n.oracle = local
	n.engine = game.NewEngine(local, chain.Pricer{Oracle: local}, cfg.DecisionTimeout)
	logger.Info().Str("room", n.roomID.String()).Msg("local room created")
	return nil
}

func (n *node) openContract(ctx context.Context, cfg config.Config, records storage.RecordStore, logger zerolog.Logger) error {
	contract, err := chain.DialContract(ctx, cfg.ChainRPCURL, cfg.ContractAddress, cfg.PlayerKey, logger)
	if err != nil {
		return err
	}
	n.closers = append(n.closers, contract.Close)

	n.player = cfg.PlayerAddress
	n.roomID = cfg.RoomID
	n.store = storage.NewCheckpointStore(records, cfg.ContractAddress, n.player, n.roomID)
	key, created, err := n.store.Keys(ctx)
	if err != nil {
		return err
	}
	if created {
		logger.Warn().Str("offchainAddress", key.Address().Hex()).Msg("new off-chain key, register it when joining the room")
	}
	n.oracle = contract
	n.engine = game.NewEngine(contract.Elevators(), chain.Pricer{Oracle: contract}, cfg.DecisionTimeout)
	return nil
}
