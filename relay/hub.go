package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	memberRate  rate.Limit = 100
	memberBurst            = 200
)

type IDGenerator interface {
	Generate() string
}

type uuidGen struct{}

func NewUUIDGen() IDGenerator {
	return uuidGen{}
}

func (uuidGen) Generate() string {
	return uuid.NewString()
}

type member struct {
	id      string
	room    string
	conn    Conn
	send    chan []byte
	ping    chan struct{}
	limiter *rate.Limiter
}

// inbound carries a member's frames and, last, its departure so the two
// stay ordered.
type inbound struct {
	from  *member
	data  []byte
	leave bool
}

type membersReq struct {
	room  string
	reply chan []string
}

// Hub owns every room's member table. Members only talk to it through
// channels.
type Hub struct {
	logger   zerolog.Logger
	ids      IDGenerator
	upgrader websocket.Upgrader

	rooms map[string]map[string]*member

	registers   chan *member
	inbound     chan inbound
	membersReqs chan membersReq
	done        chan struct{}
}

func NewHub(ids IDGenerator, logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger,
		ids:    ids,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are filtered by the server middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms:       make(map[string]map[string]*member),
		registers:   make(chan *member),
		inbound:     make(chan inbound, 256),
		membersReqs: make(chan membersReq),
		done:        make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context, started chan<- struct{}) {
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	defer close(h.done)
	close(started)

	for {
		select {
		case <-ctx.Done():
			for _, members := range h.rooms {
				for _, m := range members {
					close(m.send)
				}
			}
			h.rooms = nil
			return

		case m := <-h.registers:
			h.handleRegister(m)

		case in := <-h.inbound:
			if in.leave {
				h.handleUnregister(in.from)
				continue
			}
			h.handleInbound(in)

		case req := <-h.membersReqs:
			ids := make([]string, 0, len(h.rooms[req.room]))
			for id := range h.rooms[req.room] {
				ids = append(ids, id)
			}
			req.reply <- ids

		case <-pings.C:
			for _, members := range h.rooms {
				for _, m := range members {
					select {
					case m.ping <- struct{}{}:
					default:
					}
				}
			}
		}
	}
}

// Members lists the connection ids currently in room.
func (h *Hub) Members(ctx context.Context, room string) []string {
	reply := make(chan []string, 1)
	select {
	case h.membersReqs <- membersReq{room: room, reply: reply}:
	case <-ctx.Done():
		return nil
	case <-h.done:
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-ctx.Done():
		return nil
	}
}

// Handler upgrades the request and relays for room :room until the
// connection drops.
func (h *Hub) Handler(ctx *gin.Context) {
	room := ctx.Param("room")
	if room == "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing-room"})
		return
	}
	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("websocket upgrade failed")
		return
	}
	h.Serve(room, NewWebsocketConn(conn))
}

// Serve registers conn in room and blocks on its read pump.
func (h *Hub) Serve(room string, conn Conn) {
	m := &member{
		id:      h.ids.Generate(),
		room:    room,
		conn:    conn,
		send:    make(chan []byte, 256),
		ping:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(memberRate, memberBurst),
	}
	select {
	case h.registers <- m:
	case <-h.done:
		conn.Close("relay-closed")
		return
	}
	go m.writePump()
	h.readPump(m)

	select {
	case h.inbound <- inbound{from: m, leave: true}:
	case <-h.done:
	}
}

func (h *Hub) readPump(m *member) {
	for {
		data, err := m.conn.Read()
		if err != nil {
			return
		}
		f, err := DecodeFrame(data)
		if err != nil || f.Kind != FrameData {
			h.logger.Debug().Err(err).Str("peer", m.id).Msg("dropping frame")
			continue
		}
		if !m.limiter.Allow() {
			continue
		}
		select {
		case h.inbound <- inbound{from: m, data: f.Data}:
		case <-h.done:
			return
		}
	}
}

func (m *member) writePump() {
	defer m.conn.Close("")
	for {
		select {
		case data, ok := <-m.send:
			if !ok {
				return
			}
			if err := m.conn.Write(data); err != nil {
				return
			}
		case <-m.ping:
			if err := m.conn.Ping(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleRegister(m *member) {
	members, ok := h.rooms[m.room]
	if !ok {
		members = make(map[string]*member)
		h.rooms[m.room] = members
	}
	joined := EncodeFrame(Frame{Kind: FrameJoin, Peer: m.id})
	for _, other := range members {
		h.enqueue(other, joined)
		h.enqueue(m, EncodeFrame(Frame{Kind: FrameJoin, Peer: other.id}))
	}
	members[m.id] = m
	h.logger.Info().Str("room", m.room).Str("peer", m.id).Int("members", len(members)).Msg("peer joined relay")
}

func (h *Hub) handleUnregister(m *member) {
	members := h.rooms[m.room]
	if members[m.id] != m {
		return
	}
	delete(members, m.id)
	close(m.send)
	left := EncodeFrame(Frame{Kind: FrameLeave, Peer: m.id})
	for _, other := range members {
		h.enqueue(other, left)
	}
	if len(members) == 0 {
		delete(h.rooms, m.room)
	}
	h.logger.Info().Str("room", m.room).Str("peer", m.id).Msg("peer left relay")
}

func (h *Hub) handleInbound(in inbound) {
	members := h.rooms[in.from.room]
	if members[in.from.id] != in.from {
		return
	}
	out := EncodeFrame(Frame{Kind: FrameData, Peer: in.from.id, Data: in.data})
	for id, other := range members {
		if id != in.from.id {
			h.enqueue(other, out)
		}
	}
}

// enqueue drops frames for members that are not keeping up.
func (h *Hub) enqueue(m *member, data []byte) {
	select {
	case m.send <- data:
	default:
		h.logger.Warn().Str("room", m.room).Str("peer", m.id).Msg("member send buffer full, frame dropped")
	}
}
