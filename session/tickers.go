package session

import "time"

type TickerCreator interface {
	Create(d time.Duration) (ticks <-chan time.Time, stop func())
}

type tickerGen struct{}

func NewTickerGen() TickerCreator {
	return tickerGen{}
}

func (tickerGen) Create(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// actorScheduler delivers delayed callbacks through the actor's inbox.
type actorScheduler struct {
	s *Session
}

func (as actorScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case as.s.timers <- fn:
		case <-as.s.done:
		}
	})
}
