package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"sectf/checkpoint"
	"sectf/crypto"
	"sectf/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

var ErrCorruptCheckpoint = errors.New("corrupt-stored-checkpoint")

// ErrNotConfirmed is returned when saving a checkpoint that is neither on
// chain nor fully signed. Partial checkpoints live in memory only.
var ErrNotConfirmed = errors.New("checkpoint-not-confirmed")

// CheckpointStore is the slot of one player in one room.
type CheckpointStore struct {
	records RecordStore
	key     common.Hash
	roomID  *big.Int
}

func NewCheckpointStore(records RecordStore, contract, player common.Address, roomID *big.Int) *CheckpointStore {
	return &CheckpointStore{
		records: records,
		key:     crypto.StoreKey(contract, player, roomID),
		roomID:  new(big.Int).Set(roomID),
	}
}

// Keys returns the player's off-chain key for the room, creating and
// persisting one on first use.
func (cs *CheckpointStore) Keys(ctx context.Context) (*crypto.OffchainKey, bool, error) {
	record, err := cs.records.Get(ctx, cs.key)
	switch {
	case err == nil:
		key, err := crypto.OffchainKeyFromHex(record.OffchainPrivateKey)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrCorruptCheckpoint, err)
		}
		return key, false, nil
	case !errors.Is(err, domain.ErrRecordNotFound):
		return nil, false, err
	}

	key, err := crypto.GenerateOffchainKey()
	if err != nil {
		return nil, false, err
	}
	record = Record{
		OffchainPrivateKey: key.Hex(),
		OffchainPublicKey:  key.PublicKeyHex(),
		OffchainAddress:    key.Address(),
	}
	if err := cs.records.Put(ctx, cs.key, record); err != nil {
		return nil, false, err
	}
	log.Info().Str("room", cs.roomID.String()).Str("offchainAddress", key.Address().Hex()).Msg("generated off-chain key")
	return key, true, nil
}

// PutKeys stores key as the player's off-chain key for the room. It fails
// with domain.ErrLostKeys when a different key is already stored.
func (cs *CheckpointStore) PutKeys(ctx context.Context, key *crypto.OffchainKey) error {
	record, err := cs.records.Get(ctx, cs.key)
	switch {
	case err == nil:
		if record.OffchainAddress != key.Address() {
			return domain.ErrLostKeys
		}
		return nil
	case !errors.Is(err, domain.ErrRecordNotFound):
		return err
	}
	return cs.records.Put(ctx, cs.key, Record{
		OffchainPrivateKey: key.Hex(),
		OffchainPublicKey:  key.PublicKeyHex(),
		OffchainAddress:    key.Address(),
	})
}

// Load returns the stored confirmed checkpoint, or nil when there is none or
// the stored one fails validation against keys. Invalid checkpoints are
// deleted.
func (cs *CheckpointStore) Load(ctx context.Context, keys []common.Address) (*checkpoint.Checkpoint, error) {
	record, err := cs.records.Get(ctx, cs.key)
	if err != nil {
		return nil, err
	}
	if record.Checkpoint == nil {
		return nil, nil
	}

	cp, err := cs.validate(record.Checkpoint, keys)
	if err != nil {
		log.Warn().Err(err).Str("room", cs.roomID.String()).Uint16("turn", record.CheckpointTurn).Msg("discarding stored checkpoint")
		if err := cs.records.DeleteCheckpoint(ctx, cs.key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &cp, nil
}

func (cs *CheckpointStore) validate(raw []byte, keys []common.Address) (checkpoint.Checkpoint, error) {
	roomID, cp, err := checkpoint.Unmarshal(raw)
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: %w", ErrCorruptCheckpoint, err)
	}
	if roomID.Cmp(cs.roomID) != 0 {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: stored for room %s", ErrCorruptCheckpoint, roomID)
	}
	// The envelope hash covers the stored bytes; only a canonical encoding
	// of the decoded state may be resumed.
	if err := cp.VerifyHash(cs.roomID); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: %w", ErrCorruptCheckpoint, err)
	}
	if cp.OnChain {
		return cp, nil
	}
	if len(cp.Signatures) != len(keys) || !cp.FullySigned() {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: not fully signed", ErrCorruptCheckpoint)
	}
	if _, err := cp.ValidSigners(keys); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: %w", ErrCorruptCheckpoint, err)
	}
	return cp, nil
}

// Save replaces the stored checkpoint with cp.
func (cs *CheckpointStore) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if !cp.OnChain && !cp.FullySigned() {
		return ErrNotConfirmed
	}
	raw, err := checkpoint.Marshal(nil, cs.roomID, cp)
	if err != nil {
		return err
	}
	record, err := cs.records.Get(ctx, cs.key)
	if err != nil {
		return err
	}
	record.Checkpoint = raw
	record.CheckpointTurn = cp.Turn()
	return cs.records.Put(ctx, cs.key, record)
}

func (cs *CheckpointStore) DeleteCheckpoint(ctx context.Context) error {
	return cs.records.DeleteCheckpoint(ctx, cs.key)
}
