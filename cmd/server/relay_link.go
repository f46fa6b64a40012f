package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sectf/relay"

	"github.com/rs/zerolog"
)

const redialDelay = 2 * time.Second

type noTransport struct{}

func (noTransport) Broadcast([]byte) error { return nil }

// relayLink keeps the node connected to the room relay. Peers seen on a
// dropped connection are reported as gone before redialing.
type relayLink struct {
	url     string
	header  http.Header
	handler relay.Handler
	logger  zerolog.Logger

	mu     sync.Mutex
	client *relay.Client
	peers  map[string]struct{}
}

func newRelayLink(url, origin string, handler relay.Handler, logger zerolog.Logger) *relayLink {
	header := http.Header{}
	header.Set("Origin", origin)
	return &relayLink{
		url:     url,
		header:  header,
		handler: handler,
		logger:  logger.With().Str("relay", url).Logger(),
		peers:   make(map[string]struct{}),
	}
}

func (l *relayLink) Broadcast(data []byte) error {
	l.mu.Lock()
	c := l.client
	l.mu.Unlock()
	if c == nil {
		return relay.ErrClosed
	}
	return c.Broadcast(data)
}

func (l *relayLink) run(ctx context.Context) {
	for ctx.Err() == nil {
		c, err := relay.Dial(ctx, l.url, l.header, l.logger)
		if err != nil {
			l.logger.Warn().Err(err).Msg("relay unreachable")
		} else {
			l.setClient(c)
			l.logger.Info().Msg("relay connected")
			if err := c.Run(ctx, l); err != nil {
				l.logger.Warn().Err(err).Msg("relay connection lost")
			}
			l.setClient(nil)
			l.dropPeers()
		}
		select {
		case <-ctx.Done():
		case <-time.After(redialDelay):
		}
	}
}

func (l *relayLink) setClient(c *relay.Client) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.client = c
}

func (l *relayLink) dropPeers() {
	l.mu.Lock()
	gone := make([]string, 0, len(l.peers))
	for id := range l.peers {
		gone = append(gone, id)
	}
	clear(l.peers)
	l.mu.Unlock()
	for _, id := range gone {
		l.handler.PeerLeft(id)
	}
}

func (l *relayLink) PeerJoined(peerID string) {
	l.mu.Lock()
	l.peers[peerID] = struct{}{}
	l.mu.Unlock()
	l.handler.PeerJoined(peerID)
}

func (l *relayLink) PeerLeft(peerID string) {
	l.mu.Lock()
	delete(l.peers, peerID)
	l.mu.Unlock()
	l.handler.PeerLeft(peerID)
}

func (l *relayLink) Receive(peerID string, data []byte) {
	l.handler.Receive(peerID, data)
}
