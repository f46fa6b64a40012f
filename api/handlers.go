// Package api is the operator's HTTP control surface of a player node.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sectf/chain"
	"sectf/reconcile"
	"sectf/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var (
	ErrNothingToPushStr     = "nothing-to-push"
	ErrNoConfirmedStateStr  = "no-confirmed-checkpoint"
	ErrWrongPhaseStr        = "not-allowed-in-phase"
	ErrTransactionFailedStr = "transaction-failed"
	ErrSessionNotRunningStr = "session-not-running"
	ErrServerTimeoutStr     = "server-timeout"
	ErrInvalidRequestFormat = "bad-request-format"
	ErrUnknownStr           = "unknown-error"
)

// Node is what the handlers need from the session.
type Node interface {
	Status(ctx context.Context) (session.Status, error)
	ToggleAutoplay(ctx context.Context) (bool, error)
	PushCheckpoint(ctx context.Context) error
	PlayOnChain(ctx context.Context, turns uint16) error
}

type nodeHandler struct {
	node      Node
	room      string
	txTimeout time.Duration
	logger    zerolog.Logger
}

// NewNodeHandler bounds chain operations by txTimeout.
func NewNodeHandler(node Node, room string, txTimeout time.Duration, logger zerolog.Logger) *nodeHandler {
	return &nodeHandler{node: node, room: room, txTimeout: txTimeout, logger: logger}
}

func (h *nodeHandler) Register(group *gin.RouterGroup) {
	group.GET("/status", h.StatusHandler)
	group.POST("/autoplay", h.ToggleAutoplayHandler)
	group.POST("/push", h.PushCheckpointHandler)
	group.POST("/play", h.PlayOnChainHandler)
}

type checkpointView struct {
	Turn       uint16 `json:"turn"`
	Hash       string `json:"hash"`
	OnChain    bool   `json:"onChain"`
	Signatures int    `json:"signatures"`
}

type rankView struct {
	Player  string `json:"player"`
	Score   uint16 `json:"score"`
	Balance uint32 `json:"balance"`
}

type statusView struct {
	Room        string          `json:"room"`
	Phase       string          `json:"phase"`
	PlayerIndex int             `json:"playerIndex"`
	GameStatus  string          `json:"gameStatus,omitempty"`
	ChainTurn   uint16          `json:"chainTurn"`
	Last        *checkpointView `json:"last,omitempty"`
	Temp        *checkpointView `json:"temp,omitempty"`
	TurnModes   []bool          `json:"turnModes"`
	PeersOnline []bool          `json:"peersOnline"`
	Ranking     []rankView      `json:"ranking,omitempty"`
}

func newStatusView(room string, st session.Status) statusView {
	v := statusView{
		Room:        room,
		Phase:       st.Phase.String(),
		PlayerIndex: st.PlayerIndex,
		ChainTurn:   st.ChainTurn,
		TurnModes:   st.TurnModes,
		PeersOnline: st.PeersOnline,
	}
	if st.Temp != nil {
		v.Temp = &checkpointView{Turn: st.Temp.Turn(), Hash: st.Temp.Hash.Hex(), Signatures: st.Temp.SignatureCount()}
	}
	if st.Last == nil {
		return v
	}
	v.Last = &checkpointView{Turn: st.Last.Turn(), Hash: st.Last.Hash.Hex(), OnChain: st.Last.OnChain, Signatures: st.Last.SignatureCount()}
	v.GameStatus = st.Last.Data.Status.String()
	for _, i := range st.Ranking {
		if i >= len(st.Last.Data.Elevators) {
			continue
		}
		e := st.Last.Data.Elevators[i]
		rank := rankView{Score: e.Score, Balance: e.Balance}
		if i < len(st.Room.Players) {
			rank.Player = st.Room.Players[i].Hex()
		}
		v.Ranking = append(v.Ranking, rank)
	}
	return v
}

func (h *nodeHandler) StatusHandler(ctx *gin.Context) {
	st, err := h.node.Status(ctx.Request.Context())
	if err != nil {
		h.fail(ctx, "status", err)
		return
	}
	ctx.JSON(http.StatusOK, newStatusView(h.room, st))
}

func (h *nodeHandler) ToggleAutoplayHandler(ctx *gin.Context) {
	on, err := h.node.ToggleAutoplay(ctx.Request.Context())
	if err != nil {
		h.fail(ctx, "toggle autoplay", err)
		return
	}
	h.logger.Info().Bool("autoplay", on).Msg("autoplay toggled by operator")
	ctx.JSON(http.StatusOK, gin.H{"autoplay": on})
}

func (h *nodeHandler) PushCheckpointHandler(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), h.txTimeout)
	defer cancel()
	if err := h.node.PushCheckpoint(reqCtx); err != nil {
		h.fail(ctx, "push checkpoint", err)
		return
	}
	ctx.Status(http.StatusOK)
}

func (h *nodeHandler) PlayOnChainHandler(ctx *gin.Context) {
	var req struct {
		Turns uint16 `json:"turns" binding:"required,min=1"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormat)
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), h.txTimeout)
	defer cancel()
	if err := h.node.PlayOnChain(reqCtx, req.Turns); err != nil {
		h.fail(ctx, "play on chain", err)
		return
	}
	ctx.Status(http.StatusOK)
}

func (h *nodeHandler) fail(ctx *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, reconcile.ErrNothingToPush):
		ctx.String(http.StatusConflict, ErrNothingToPushStr)
	case errors.Is(err, reconcile.ErrNoCheckpoint):
		ctx.String(http.StatusConflict, ErrNoConfirmedStateStr)
	case errors.Is(err, reconcile.ErrWrongPhase):
		ctx.String(http.StatusConflict, ErrWrongPhaseStr)
	case errors.Is(err, session.ErrNoTurns):
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormat)
	case errors.Is(err, chain.ErrTxReverted):
		h.logger.Warn().Err(err).Msg(what)
		ctx.String(http.StatusBadGateway, ErrTransactionFailedStr)
	case errors.Is(err, session.ErrNotRunning):
		ctx.String(http.StatusServiceUnavailable, ErrSessionNotRunningStr)
	case errors.Is(err, context.DeadlineExceeded):
		ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)
	case errors.Is(err, context.Canceled):
		ctx.Status(499)
	default:
		h.logger.Error().Err(err).Msg(what)
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
	}
}
