package storage_test

import (
	"context"
	"math/big"
	"testing"

	"sectf/checkpoint"
	"sectf/crypto"
	"sectf/domain"
	"sectf/game"
	"sectf/storage"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	contract = common.HexToAddress("0xc0ffee")
	player   = common.HexToAddress("0xa11ce")
	roomID   = big.NewInt(17)
)

type fixture struct {
	keys      []*crypto.OffchainKey
	addresses []common.Address
	state     domain.GameState
}

func newFixture(t *testing.T, players int) fixture {
	t.Helper()
	var f fixture
	for range players {
		key, err := crypto.GenerateOffchainKey()
		require.NoError(t, err)
		f.keys = append(f.keys, key)
		f.addresses = append(f.addresses, key.Address())
	}
	room := domain.RoomConfig{NumberOfPlayers: uint8(players), Floors: 5, ScoreToWin: 10}
	f.state = game.NewGame(3, room)
	return f
}

func (f fixture) signed(t *testing.T, signers ...int) checkpoint.Checkpoint {
	t.Helper()
	cp, err := checkpoint.New(roomID, f.state, len(f.keys), false)
	require.NoError(t, err)
	for _, i := range signers {
		require.NoError(t, cp.Sign(i, f.keys[i]))
	}
	return cp
}

func TestKeysCreatedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewCheckpointStore(storage.NewMemoryStore(), contract, player, roomID)

	first, created, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Address(), second.Address())
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 2)
	store := storage.NewCheckpointStore(storage.NewMemoryStore(), contract, player, roomID)
	_, _, err := store.Keys(ctx)
	require.NoError(t, err)

	loaded, err := store.Load(ctx, f.addresses)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.ErrorIs(t, store.Save(ctx, f.signed(t, 0)), storage.ErrNotConfirmed)

	cp := f.signed(t, 0, 1)
	require.NoError(t, store.Save(ctx, cp))

	loaded, err = store.Load(ctx, f.addresses)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cp.Hash, loaded.Hash)
	assert.Equal(t, cp.Signatures, loaded.Signatures)
}

func TestLoadDiscardsInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 2)
	records := storage.NewMemoryStore()
	store := storage.NewCheckpointStore(records, contract, player, roomID)
	_, _, err := store.Keys(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, f.signed(t, 0, 1)))

	// The room now reports a different key for player 1.
	stranger, err := crypto.GenerateOffchainKey()
	require.NoError(t, err)
	keys := []common.Address{f.addresses[0], stranger.Address()}

	loaded, err := store.Load(ctx, keys)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	record, err := records.Get(ctx, crypto.StoreKey(contract, player, roomID))
	require.NoError(t, err)
	assert.Nil(t, record.Checkpoint, "invalid checkpoint is deleted")
	assert.NotEmpty(t, record.OffchainPrivateKey, "keys survive")
}

func TestLoadDiscardsCorruptBytes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 2)
	records := storage.NewMemoryStore()
	key := crypto.StoreKey(contract, player, roomID)
	require.NoError(t, records.Put(ctx, key, storage.Record{OffchainPrivateKey: f.keys[0].Hex(), Checkpoint: []byte{1, 2, 3}}))

	store := storage.NewCheckpointStore(records, contract, player, roomID)
	loaded, err := store.Load(ctx, f.addresses)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadDiscardsNonCanonicalEncoding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 2)

	encoded, err := checkpoint.Encode(roomID, f.state)
	require.NoError(t, err)
	// Dirty a high byte of the uint8 status word.
	encoded[2*32] = 1
	hash := ethcrypto.Keccak256Hash(encoded)

	var raw []byte
	raw = protowire.AppendTag(raw, 1, protowire.BytesType)
	raw = protowire.AppendBytes(raw, encoded)
	raw = protowire.AppendTag(raw, 2, protowire.BytesType)
	raw = protowire.AppendBytes(raw, hash.Bytes())
	raw = protowire.AppendTag(raw, 4, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 1)
	raw = protowire.AppendTag(raw, 5, protowire.VarintType)
	raw = protowire.AppendVarint(raw, checkpoint.SchemaVersion)
	raw = protowire.AppendTag(raw, 6, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 2)

	records := storage.NewMemoryStore()
	key := crypto.StoreKey(contract, player, roomID)
	require.NoError(t, records.Put(ctx, key, storage.Record{OffchainPrivateKey: f.keys[0].Hex(), Checkpoint: raw}))

	store := storage.NewCheckpointStore(records, contract, player, roomID)
	loaded, err := store.Load(ctx, f.addresses)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	record, err := records.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, record.Checkpoint)
}

func TestLoadAcceptsOnChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 3)
	store := storage.NewCheckpointStore(storage.NewMemoryStore(), contract, player, roomID)
	_, _, err := store.Keys(ctx)
	require.NoError(t, err)

	cp, err := checkpoint.New(roomID, f.state, 3, true)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, f.addresses)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.OnChain)
}

func TestCheckpointsScopedPerRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 2)
	records := storage.NewMemoryStore()

	here := storage.NewCheckpointStore(records, contract, player, roomID)
	elsewhere := storage.NewCheckpointStore(records, contract, player, big.NewInt(18))
	_, _, err := here.Keys(ctx)
	require.NoError(t, err)
	_, _, err = elsewhere.Keys(ctx)
	require.NoError(t, err)

	require.NoError(t, here.Save(ctx, f.signed(t, 0, 1)))
	loaded, err := elsewhere.Load(ctx, f.addresses)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreNotFound(t *testing.T) {
	t.Parallel()
	records := storage.NewMemoryStore()
	_, err := records.Get(context.Background(), common.Hash{1})
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.ErrorIs(t, records.DeleteCheckpoint(context.Background(), common.Hash{1}), domain.ErrRecordNotFound)
}
