package reconcile

import (
	"context"
	"math/big"
	"time"

	"sectf/checkpoint"
	"sectf/domain"

	"github.com/stretchr/testify/mock"
)

// --- StateReader ---

type MockStateReader struct {
	mock.Mock
}

func (m *MockStateReader) GetGameState(ctx context.Context, roomID *big.Int) (domain.RoomConfig, domain.GameState, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(domain.RoomConfig), args.Get(1).(domain.GameState), args.Error(2)
}

// --- Outbox ---

type messageKind int

const (
	sentCheckpoint messageKind = iota
	sentFullRequest
	sentTurnMode
)

type sentMessage struct {
	kind messageKind
	cp   checkpoint.Checkpoint
	on   bool
}

type recordingOutbox struct {
	sent []sentMessage
}

func (o *recordingOutbox) SendCheckpoint(cp checkpoint.Checkpoint) {
	o.sent = append(o.sent, sentMessage{kind: sentCheckpoint, cp: cp})
}

func (o *recordingOutbox) RequestFull() {
	o.sent = append(o.sent, sentMessage{kind: sentFullRequest})
}

func (o *recordingOutbox) SendTurnMode(on bool) {
	o.sent = append(o.sent, sentMessage{kind: sentTurnMode, on: on})
}

func (o *recordingOutbox) take() []sentMessage {
	out := o.sent
	o.sent = nil
	return out
}

// --- Scheduler ---

type scheduled struct {
	after time.Duration
	fn    func()
}

type manualScheduler struct {
	pending []scheduled
}

func (s *manualScheduler) After(d time.Duration, fn func()) {
	s.pending = append(s.pending, scheduled{after: d, fn: fn})
}

func (s *manualScheduler) runAll() {
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		p.fn()
	}
}
