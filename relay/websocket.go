package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = time.Minute
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Conn is the part of a websocket the hub and the client use. Only one
// goroutine may call Write at a time.
type Conn interface {
	Write(data []byte) error
	Ping() error
	Read() ([]byte, error)
	Close(reason string)
}

type websocketConn struct {
	socket *websocket.Conn
}

func (wc *websocketConn) Write(data []byte) error {
	wc.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.socket.WriteMessage(websocket.BinaryMessage, data)
}

func (wc *websocketConn) Ping() error {
	return wc.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (wc *websocketConn) Read() ([]byte, error) {
	_, p, err := wc.socket.ReadMessage()
	return p, err
}

func (wc *websocketConn) Close(reason string) {
	wc.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(writeWait))
	wc.socket.Close()
}

func NewWebsocketConn(conn *websocket.Conn) Conn {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &websocketConn{conn}
}
