package session

import (
	"context"
	"fmt"

	"sectf/chain"
	"sectf/reconcile"
)

func (s *Session) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case s.statusReqs <- reply:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.done:
		return Status{}, ErrNotRunning
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.done:
		return Status{}, ErrNotRunning
	}
}

// ToggleAutoplay flips the local turn mode and returns the new one.
func (s *Session) ToggleAutoplay(ctx context.Context) (bool, error) {
	reply := make(chan toggleReply, 1)
	select {
	case s.toggleReqs <- reply:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.done:
		return false, ErrNotRunning
	}
	select {
	case r := <-reply:
		return r.on, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.done:
		return false, ErrNotRunning
	}
}

// PushCheckpoint submits the last confirmed checkpoint through
// loadCheckpoint and refreshes from chain once it is mined.
func (s *Session) PushCheckpoint(ctx context.Context) error {
	return s.chainOp(ctx, chainOp{push: true})
}

// PlayOnChain asks the contract to play up to turns turns.
func (s *Session) PlayOnChain(ctx context.Context, turns uint16) error {
	if turns == 0 {
		return ErrNoTurns
	}
	return s.chainOp(ctx, chainOp{turns: turns})
}

func (s *Session) chainOp(ctx context.Context, op chainOp) error {
	op.reply = make(chan error, 1)
	select {
	case s.chainReqs <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrNotRunning
	}
	select {
	case err := <-op.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrNotRunning
	}
}

// startChainOp submits the transaction off the actor goroutine; the result
// comes back through txResults.
func (s *Session) startChainOp(ctx context.Context, op chainOp) {
	if s.rec.Phase() < reconcile.PhaseAwaitingPeers {
		op.reply <- fmt.Errorf("%w: chain call while %s", reconcile.ErrWrongPhase, s.rec.Phase())
		return
	}
	roomID := s.rec.RoomID()
	var submit func(context.Context) (chain.TxHandle, error)
	if op.push {
		cp, err := s.rec.PushCandidate()
		if err != nil {
			op.reply <- err
			return
		}
		s.logger.Info().Uint16("turn", cp.Turn()).Msg("pushing checkpoint on chain")
		submit = func(ctx context.Context) (chain.TxHandle, error) {
			return s.oracle.LoadCheckpoint(ctx, roomID, cp)
		}
	} else {
		s.logger.Info().Uint16("turns", op.turns).Msg("playing on chain")
		submit = func(ctx context.Context) (chain.TxHandle, error) {
			return s.oracle.Play(ctx, roomID, op.turns)
		}
	}

	go func() {
		tx, err := submit(ctx)
		if err == nil {
			s.logger.Debug().Stringer("tx", tx.Hash()).Msg("transaction sent")
			err = tx.Wait(ctx)
		}
		select {
		case s.txResults <- txResult{op: op, err: err}:
		case <-s.done:
			op.reply <- ErrNotRunning
		}
	}()
}

// finishChainOp refreshes from chain after a mined transaction. A failed
// transaction leaves the local state as it was.
func (s *Session) finishChainOp(ctx context.Context, res txResult) {
	if res.err != nil {
		s.logger.Warn().Err(res.err).Bool("push", res.op.push).Msg("chain transaction failed")
		res.op.reply <- res.err
		return
	}
	res.op.reply <- s.rec.RefreshFromChain(ctx)
}
