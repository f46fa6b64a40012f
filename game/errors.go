package game

import "errors"

var (
	ErrNotPlayable    = errors.New("room-not-playable")
	ErrDecisionFailed = errors.New("decision-failed")
	ErrPricingFailed  = errors.New("action-pricing-failed")
	ErrInvalidState   = errors.New("invalid-game-state")
)
