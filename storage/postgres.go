package storage

import (
	"context"
	"errors"
	"fmt"

	"sectf/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func (pgr *PostgresRepo) Get(ctx context.Context, key common.Hash) (Record, error) {
	var (
		record  Record
		address []byte
		turn    *int32
	)

	row := pgr.pool.QueryRow(ctx,
		`SELECT offchain_private_key, offchain_public_key, offchain_address, checkpoint, checkpoint_turn
		 FROM room_records WHERE store_key = $1`, key.Bytes())

	err := row.Scan(&record.OffchainPrivateKey, &record.OffchainPublicKey, &address, &record.Checkpoint, &turn)
	if err != nil {
		return Record{}, classify(err, domain.ErrRecordNotFound)
	}

	record.OffchainAddress = common.BytesToAddress(address)
	if turn != nil {
		record.CheckpointTurn = uint16(*turn)
	}
	return record, nil
}

func (pgr *PostgresRepo) Put(ctx context.Context, key common.Hash, record Record) error {
	var turn *int32
	if record.Checkpoint != nil {
		t := int32(record.CheckpointTurn)
		turn = &t
	}

	_, err := pgr.pool.Exec(ctx,
		`INSERT INTO room_records(store_key, offchain_private_key, offchain_public_key, offchain_address, checkpoint, checkpoint_turn)
		 VALUES($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (store_key) DO UPDATE SET
		   offchain_private_key = EXCLUDED.offchain_private_key,
		   offchain_public_key = EXCLUDED.offchain_public_key,
		   offchain_address = EXCLUDED.offchain_address,
		   checkpoint = EXCLUDED.checkpoint,
		   checkpoint_turn = EXCLUDED.checkpoint_turn,
		   updated_at = now()`,
		key.Bytes(), record.OffchainPrivateKey, record.OffchainPublicKey, record.OffchainAddress.Bytes(), record.Checkpoint, turn)
	if err != nil {
		return classify(err, nil)
	}
	return nil
}

func (pgr *PostgresRepo) DeleteCheckpoint(ctx context.Context, key common.Hash) error {
	tag, err := pgr.pool.Exec(ctx,
		`UPDATE room_records SET checkpoint = NULL, checkpoint_turn = NULL, updated_at = now() WHERE store_key = $1`,
		key.Bytes())
	if err != nil {
		return classify(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func classify(err error, notFound error) error {
	switch {
	case notFound != nil && errors.Is(err, pgx.ErrNoRows):
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
}
