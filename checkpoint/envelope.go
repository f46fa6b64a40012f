package checkpoint

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of a checkpoint on the wire and on disk.
//
//	message Checkpoint {
//	  bytes encoded = 1;
//	  bytes hash = 2;
//	  repeated Signature signatures = 3;
//	  bool on_chain = 4;
//	  uint32 schema = 5;
//	  uint32 players = 6;
//	}
//	message Signature { uint32 index = 1; bytes signature = 2; }
const (
	fieldEncoded    protowire.Number = 1
	fieldHash       protowire.Number = 2
	fieldSignature  protowire.Number = 3
	fieldOnChain    protowire.Number = 4
	fieldSchema     protowire.Number = 5
	fieldPlayers    protowire.Number = 6
	fieldSigIndex   protowire.Number = 1
	fieldSigPayload protowire.Number = 2
)

// Marshal appends the envelope of c to b.
func Marshal(b []byte, roomID *big.Int, c Checkpoint) ([]byte, error) {
	encoded, err := Encode(roomID, c.Data)
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, fieldEncoded, protowire.BytesType)
	b = protowire.AppendBytes(b, encoded)
	b = protowire.AppendTag(b, fieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, c.Hash.Bytes())
	for i, sig := range c.Signatures {
		if sig == nil {
			continue
		}
		var entry []byte
		entry = protowire.AppendTag(entry, fieldSigIndex, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(i))
		entry = protowire.AppendTag(entry, fieldSigPayload, protowire.BytesType)
		entry = protowire.AppendBytes(entry, sig)
		b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	if c.OnChain {
		b = protowire.AppendTag(b, fieldOnChain, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	b = protowire.AppendTag(b, fieldSchema, protowire.VarintType)
	b = protowire.AppendVarint(b, SchemaVersion)
	b = protowire.AppendTag(b, fieldPlayers, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(c.Signatures)))
	return b, nil
}

// Unmarshal parses an envelope and checks that the declared hash is the hash
// of the carried state. Signatures are not verified here.
func Unmarshal(b []byte) (*big.Int, Checkpoint, error) {
	var (
		c       Checkpoint
		encoded []byte
		hash    []byte
		players uint64
		schema  uint64
		sigs    = map[uint64][]byte{}
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, Checkpoint{}, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldEncoded && typ == protowire.BytesType:
			encoded, n = protowire.ConsumeBytes(b)
		case num == fieldHash && typ == protowire.BytesType:
			hash, n = protowire.ConsumeBytes(b)
		case num == fieldSignature && typ == protowire.BytesType:
			var entry []byte
			entry, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				index, sig, err := unmarshalSignature(entry)
				if err != nil {
					return nil, Checkpoint{}, err
				}
				sigs[index] = sig
			}
		case num == fieldOnChain && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			c.OnChain = v != 0
		case num == fieldSchema && typ == protowire.VarintType:
			schema, n = protowire.ConsumeVarint(b)
		case num == fieldPlayers && typ == protowire.VarintType:
			players, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, Checkpoint{}, malformed(protowire.ParseError(n))
		}
		b = b[n:]
	}

	if schema != SchemaVersion {
		return nil, Checkpoint{}, fmt.Errorf("%w: schema %d", ErrMalformed, schema)
	}
	if len(hash) != common.HashLength {
		return nil, Checkpoint{}, fmt.Errorf("%w: hash length %d", ErrMalformed, len(hash))
	}
	if players == 0 || players > 255 {
		return nil, Checkpoint{}, fmt.Errorf("%w: %d players", ErrMalformed, players)
	}
	roomID, state, err := Decode(encoded)
	if err != nil {
		return nil, Checkpoint{}, err
	}
	c.Data = state
	c.Hash = common.BytesToHash(hash)
	if Hash(encoded) != c.Hash {
		return nil, Checkpoint{}, fmt.Errorf("%w: turn %d", ErrHashMismatch, state.Turn)
	}
	c.Signatures = make([][]byte, players)
	for index, sig := range sigs {
		if index >= players {
			return nil, Checkpoint{}, fmt.Errorf("%w: signature slot %d", ErrMalformed, index)
		}
		c.Signatures[index] = sig
	}
	return roomID, c, nil
}

func unmarshalSignature(b []byte) (uint64, []byte, error) {
	var (
		index uint64
		sig   []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldSigIndex && typ == protowire.VarintType:
			index, n = protowire.ConsumeVarint(b)
		case num == fieldSigPayload && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(b)
			sig = append([]byte(nil), raw...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return 0, nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]
	}
	if len(sig) == 0 {
		return 0, nil, fmt.Errorf("%w: empty signature", ErrMalformed)
	}
	return index, sig, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}
