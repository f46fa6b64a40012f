package relay

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pipeConn struct {
	reads  chan []byte
	writes chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		reads:  make(chan []byte, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (pc *pipeConn) Read() ([]byte, error) {
	select {
	case b := <-pc.reads:
		return b, nil
	case <-pc.closed:
		return nil, io.EOF
	}
}

func (pc *pipeConn) Write(data []byte) error {
	select {
	case <-pc.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case pc.writes <- bytes.Clone(data):
		return nil
	case <-pc.closed:
		return io.ErrClosedPipe
	}
}

func (pc *pipeConn) Ping() error { return nil }

func (pc *pipeConn) Close(string) {
	pc.once.Do(func() { close(pc.closed) })
}

func (pc *pipeConn) isClosed() bool {
	select {
	case <-pc.closed:
		return true
	default:
		return false
	}
}

func (pc *pipeConn) next(t *testing.T) Frame {
	t.Helper()
	select {
	case b := <-pc.writes:
		f, err := DecodeFrame(b)
		require.NoError(t, err)
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame written")
		return Frame{}
	}
}

func (pc *pipeConn) quiet(t *testing.T) {
	t.Helper()
	select {
	case b := <-pc.writes:
		f, _ := DecodeFrame(b)
		t.Fatalf("unexpected %s frame from %q", f.Kind, f.Peer)
	case <-time.After(50 * time.Millisecond):
	}
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("peer-%d", s.n)
}

type received struct {
	peer string
	data string
}

type recordingHandler struct {
	mu       sync.Mutex
	joined   []string
	left     []string
	received []received
}

func (rh *recordingHandler) PeerJoined(peerID string) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.joined = append(rh.joined, peerID)
}

func (rh *recordingHandler) PeerLeft(peerID string) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.left = append(rh.left, peerID)
}

func (rh *recordingHandler) Receive(peerID string, data []byte) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.received = append(rh.received, received{peer: peerID, data: string(data)})
}

func (rh *recordingHandler) snapshot() (joined, left []string, msgs []received) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return append([]string(nil), rh.joined...), append([]string(nil), rh.left...), append([]received(nil), rh.received...)
}
