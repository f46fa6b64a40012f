package storage

import (
	"bytes"
	"context"
	"sync"

	"sectf/domain"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore keeps records for the lifetime of the process. It backs
// sessions started without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[common.Hash]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[common.Hash]Record)}
}

func (ms *MemoryStore) Get(ctx context.Context, key common.Hash) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	record, ok := ms.records[key]
	if !ok {
		return Record{}, domain.ErrRecordNotFound
	}
	record.Checkpoint = bytes.Clone(record.Checkpoint)
	return record, nil
}

func (ms *MemoryStore) Put(ctx context.Context, key common.Hash, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	record.Checkpoint = bytes.Clone(record.Checkpoint)
	ms.records[key] = record
	return nil
}

func (ms *MemoryStore) DeleteCheckpoint(ctx context.Context, key common.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	record, ok := ms.records[key]
	if !ok {
		return domain.ErrRecordNotFound
	}
	record.Checkpoint = nil
	record.CheckpointTurn = 0
	ms.records[key] = record
	return nil
}
