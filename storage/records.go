// Package storage persists the per-room record of a player: its off-chain
// key pair and the last confirmed checkpoint.
package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Record is one player's state in one room. Checkpoint holds a checkpoint
// envelope and is nil until the first confirmed checkpoint has been saved.
type Record struct {
	OffchainPrivateKey string
	OffchainPublicKey  string
	OffchainAddress    common.Address
	Checkpoint         []byte
	CheckpointTurn     uint16
}

// RecordStore is keyed by crypto.StoreKey.
type RecordStore interface {
	Get(ctx context.Context, key common.Hash) (Record, error)
	Put(ctx context.Context, key common.Hash, record Record) error
	DeleteCheckpoint(ctx context.Context, key common.Hash) error
}

var _ RecordStore = (*PostgresRepo)(nil)
var _ RecordStore = (*MemoryStore)(nil)
