package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrDial         = errors.New("relay-dial-failed")
	ErrClosed       = errors.New("relay-closed")
	ErrBackpressure = errors.New("relay-send-buffer-full")
	ErrDisconnected = errors.New("relay-disconnected")
)

// Handler receives what the hub reports about the other members of the
// room.
type Handler interface {
	PeerJoined(peerID string)
	PeerLeft(peerID string)
	Receive(peerID string, data []byte)
}

type Client struct {
	conn   Conn
	logger zerolog.Logger
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func Dial(ctx context.Context, url string, header http.Header, logger zerolog.Logger) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDial, err)
	}
	return NewClient(NewWebsocketConn(ws), logger), nil
}

func NewClient(conn Conn, logger zerolog.Logger) *Client {
	return &Client{
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Broadcast queues data for every other member of the room.
func (c *Client) Broadcast(data []byte) error {
	frame := EncodeFrame(Frame{Kind: FrameData, Data: data})
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

// Run pumps frames to h until ctx is cancelled or the connection drops.
func (c *Client) Run(ctx context.Context, h Handler) error {
	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.close("shutting-down")
		case <-c.done:
		}
	}()

	for {
		data, err := c.conn.Read()
		if err != nil {
			c.close("")
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		f, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("undecodable relay frame")
			continue
		}
		switch f.Kind {
		case FrameJoin:
			h.PeerJoined(f.Peer)
		case FrameLeave:
			h.PeerLeft(f.Peer)
		case FrameData:
			h.Receive(f.Peer, f.Data)
		}
	}
}

func (c *Client) close(reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(reason)
	})
}

func (c *Client) writePump() {
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	for {
		select {
		case data := <-c.send:
			if err := c.conn.Write(data); err != nil {
				c.logger.Warn().Err(err).Msg("relay write failed")
				c.close("")
				return
			}
		case <-pings.C:
			if err := c.conn.Ping(); err != nil {
				c.close("")
				return
			}
		case <-c.done:
			return
		}
	}
}
