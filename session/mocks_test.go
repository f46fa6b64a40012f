package session

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"sectf/wire"

	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu     sync.Mutex
	frames [][]byte
}

func (rt *recordingTransport) Broadcast(data []byte) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.frames = append(rt.frames, bytes.Clone(data))
	return nil
}

func (rt *recordingTransport) messages(t *testing.T) []wire.Message {
	t.Helper()
	rt.mu.Lock()
	defer rt.mu.Unlock()
	msgs := make([]wire.Message, 0, len(rt.frames))
	for _, f := range rt.frames {
		m, err := wire.Decode(f)
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	return msgs
}

// manualTickers hands out unbuffered channels so a test tick is only
// accepted once the actor picks it up.
type manualTickers struct {
	mu    sync.Mutex
	chans map[time.Duration]chan time.Time
}

func newManualTickers() *manualTickers {
	return &manualTickers{chans: make(map[time.Duration]chan time.Time)}
}

func (mt *manualTickers) ch(d time.Duration) chan time.Time {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	c, ok := mt.chans[d]
	if !ok {
		c = make(chan time.Time)
		mt.chans[d] = c
	}
	return c
}

func (mt *manualTickers) Create(d time.Duration) (<-chan time.Time, func()) {
	return mt.ch(d), func() {}
}

func (mt *manualTickers) tick(d time.Duration) bool {
	select {
	case mt.ch(d) <- time.Now():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

// memNetwork delivers every broadcast to the other members in order.
type memNetwork struct {
	mu      sync.Mutex
	members map[string]*Session
}

func newMemNetwork() *memNetwork {
	return &memNetwork{members: make(map[string]*Session)}
}

func (n *memNetwork) join(id string, s *Session) Transport {
	n.mu.Lock()
	others := make(map[string]*Session, len(n.members))
	for oid, o := range n.members {
		others[oid] = o
	}
	n.members[id] = s
	n.mu.Unlock()

	for oid, o := range others {
		o.PeerJoined(id)
		s.PeerJoined(oid)
	}
	return memTransport{n: n, id: id}
}

func (n *memNetwork) leave(id string) {
	n.mu.Lock()
	delete(n.members, id)
	others := make([]*Session, 0, len(n.members))
	for _, o := range n.members {
		others = append(others, o)
	}
	n.mu.Unlock()

	for _, o := range others {
		o.PeerLeft(id)
	}
}

type memTransport struct {
	n  *memNetwork
	id string
}

func (mt memTransport) Broadcast(data []byte) error {
	mt.n.mu.Lock()
	if _, ok := mt.n.members[mt.id]; !ok {
		mt.n.mu.Unlock()
		return nil
	}
	others := make([]*Session, 0, len(mt.n.members))
	for oid, o := range mt.n.members {
		if oid != mt.id {
			others = append(others, o)
		}
	}
	mt.n.mu.Unlock()

	for _, o := range others {
		o.Receive(mt.id, bytes.Clone(data))
	}
	return nil
}
