// Package relay carries room traffic between player nodes over websockets.
// A Hub fans frames out to every other member of a room and tells members
// when peers come and go; a Client is one node's end of that link.
//
//	message Frame {
//	  uint32 kind = 1;
//	  string peer = 2; // sender or subject, set by the hub
//	  bytes data = 3;
//	}
package relay

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrBadFrame = errors.New("bad-relay-frame")

type FrameKind uint8

const (
	FrameData FrameKind = iota + 1
	FrameJoin
	FrameLeave
)

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameJoin:
		return "join"
	case FrameLeave:
		return "leave"
	}
	return "unknown"
}

const (
	fieldFrameKind protowire.Number = 1
	fieldFramePeer protowire.Number = 2
	fieldFrameData protowire.Number = 3
)

type Frame struct {
	Kind FrameKind
	Peer string
	Data []byte
}

func EncodeFrame(f Frame) []byte {
	b := make([]byte, 0, len(f.Data)+len(f.Peer)+8)
	b = protowire.AppendTag(b, fieldFrameKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	if f.Peer != "" {
		b = protowire.AppendTag(b, fieldFramePeer, protowire.BytesType)
		b = protowire.AppendString(b, f.Peer)
	}
	if len(f.Data) > 0 {
		b = protowire.AppendTag(b, fieldFrameData, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Data)
	}
	return b
}

func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldFrameKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, protowire.ParseError(n))
			}
			f.Kind = FrameKind(v)
			b = b[n:]
		case num == fieldFramePeer && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, protowire.ParseError(n))
			}
			f.Peer = v
			b = b[n:]
		case num == fieldFrameData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, protowire.ParseError(n))
			}
			f.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if f.Kind < FrameData || f.Kind > FrameLeave {
		return Frame{}, fmt.Errorf("%w: kind %d", ErrBadFrame, f.Kind)
	}
	return f, nil
}
