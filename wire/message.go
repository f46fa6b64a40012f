// Package wire encodes the messages players exchange over the room
// transport.
//
//	message Message {
//	  uint32 kind = 1;
//	  Identity id = 2;
//	  Checkpoint checkpoint = 3; // checkpoint envelope
//	  bool turn_mode = 4;
//	}
//	message Identity { bytes address = 1; int64 timestamp_ms = 2; bytes signature = 3; }
package wire

import (
	"errors"
	"fmt"
	"math/big"

	"sectf/checkpoint"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformed = errors.New("malformed-message")

type Kind uint8

const (
	KindUnknown Kind = iota
	KindID
	KindCheckpoint
	KindFullRequest
	KindTurnMode
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindCheckpoint:
		return "sync_checkpoint"
	case KindFullRequest:
		return "sync_checkpoint_full_request"
	case KindTurnMode:
		return "sync_turn_mode"
	}
	return "unknown"
}

const (
	fieldKind       protowire.Number = 1
	fieldIdentity   protowire.Number = 2
	fieldCheckpoint protowire.Number = 3
	fieldTurnMode   protowire.Number = 4

	fieldIDAddress   protowire.Number = 1
	fieldIDTimestamp protowire.Number = 2
	fieldIDSignature protowire.Number = 3
)

// Identity is the handshake a peer sends to prove which player it is.
type Identity struct {
	Address     common.Address
	TimestampMs int64
	Signature   []byte
}

type Message struct {
	Kind       Kind
	Identity   Identity
	RoomID     *big.Int
	Checkpoint checkpoint.Checkpoint
	TurnMode   bool
}

func IDMessage(id Identity) Message {
	return Message{Kind: KindID, Identity: id}
}

func CheckpointMessage(roomID *big.Int, cp checkpoint.Checkpoint) Message {
	return Message{Kind: KindCheckpoint, RoomID: roomID, Checkpoint: cp}
}

func FullRequestMessage() Message {
	return Message{Kind: KindFullRequest}
}

func TurnModeMessage(on bool) Message {
	return Message{Kind: KindTurnMode, TurnMode: on}
}

func Encode(m Message) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))

	switch m.Kind {
	case KindID:
		var id []byte
		id = protowire.AppendTag(id, fieldIDAddress, protowire.BytesType)
		id = protowire.AppendBytes(id, m.Identity.Address.Bytes())
		id = protowire.AppendTag(id, fieldIDTimestamp, protowire.VarintType)
		id = protowire.AppendVarint(id, uint64(m.Identity.TimestampMs))
		id = protowire.AppendTag(id, fieldIDSignature, protowire.BytesType)
		id = protowire.AppendBytes(id, m.Identity.Signature)
		b = protowire.AppendTag(b, fieldIdentity, protowire.BytesType)
		b = protowire.AppendBytes(b, id)
	case KindCheckpoint:
		if m.RoomID == nil {
			return nil, fmt.Errorf("%w: checkpoint without room", ErrMalformed)
		}
		envelope, err := checkpoint.Marshal(nil, m.RoomID, m.Checkpoint)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldCheckpoint, protowire.BytesType)
		b = protowire.AppendBytes(b, envelope)
	case KindTurnMode:
		b = protowire.AppendTag(b, fieldTurnMode, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(m.TurnMode))
	case KindFullRequest:
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrMalformed, m.Kind)
	}
	return b, nil
}

// Decode parses a message. Checkpoints come back with their hash checked
// against their data; signatures are left to the receiver.
func Decode(b []byte) (Message, error) {
	var (
		m        Message
		identity []byte
		envelope []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, malformed(protowire.ParseError(n))
			}
			m.Kind = Kind(v)
			b = b[n:]
		case num == fieldTurnMode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, malformed(protowire.ParseError(n))
			}
			m.TurnMode = protowire.DecodeBool(v)
			b = b[n:]
		case num == fieldIdentity && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, malformed(protowire.ParseError(n))
			}
			identity = v
			b = b[n:]
		case num == fieldCheckpoint && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, malformed(protowire.ParseError(n))
			}
			envelope = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch m.Kind {
	case KindID:
		id, err := decodeIdentity(identity)
		if err != nil {
			return Message{}, err
		}
		m.Identity = id
	case KindCheckpoint:
		if envelope == nil {
			return Message{}, fmt.Errorf("%w: checkpoint message without checkpoint", ErrMalformed)
		}
		roomID, cp, err := checkpoint.Unmarshal(envelope)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		m.RoomID, m.Checkpoint = roomID, cp
	case KindFullRequest, KindTurnMode:
	default:
		return Message{}, fmt.Errorf("%w: kind %d", ErrMalformed, m.Kind)
	}
	return m, nil
}

func decodeIdentity(b []byte) (Identity, error) {
	var (
		id      Identity
		address []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Identity{}, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldIDAddress && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Identity{}, malformed(protowire.ParseError(n))
			}
			address = v
			b = b[n:]
		case num == fieldIDTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Identity{}, malformed(protowire.ParseError(n))
			}
			id.TimestampMs = int64(v)
			b = b[n:]
		case num == fieldIDSignature && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Identity{}, malformed(protowire.ParseError(n))
			}
			id.Signature = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Identity{}, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if len(address) != common.AddressLength {
		return Identity{}, fmt.Errorf("%w: address of %d bytes", ErrMalformed, len(address))
	}
	id.Address = common.BytesToAddress(address)
	return id, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}
