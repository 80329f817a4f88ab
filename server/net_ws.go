package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait / 2
	readLimit  = 1 << 20 // 1MB
)

type frame struct {
	kind int
	data []byte
}

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	send   chan frame
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan frame, 64),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(kind int, b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame{kind: kind, data: b}:
		return true
	default:
		// 为了实时性，丢弃新消息（防止阻塞 Tick）
		return false
	}
}

// Close 关闭发送队列，写协程写完剩余消息后关闭连接
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，解码信封后投递到房间
func (c *ClientConn) readPump(room *Room, client *Client) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在 Tick 线程中移除该连接
	defer room.RequestLeave(client)
	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Warnw("websocket read failed", "room", room.ID, "client", client.ID, "err", err)
			}
			return
		}
		env, err := client.Codec.DecodeEnvelope(payload)
		if err != nil {
			Log.Debugw("malformed frame dropped", "room", room.ID, "client", client.ID, "err", err)
			room.metrics.IncMalformed()
			continue
		}
		room.OnMessage(client, env)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?room=room-1&name=alice&codec=msgpack
func HandleWS(m *RoomManager, defaultRoom string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		roomID := q.Get("room")
		if roomID == "" {
			roomID = defaultRoom
		}
		codec, err := CodecByName(q.Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}

		room := m.GetOrCreateRoom(roomID)
		conn := NewClientConn(ws)
		client := NewClient(q.Get("name"), codec, conn)
		Log.Infow("client connected", "room", roomID, "client", client.ID, "remote", r.RemoteAddr, "codec", codec.Name())
		room.RequestJoin(client)

		go conn.writePump()
		go conn.readPump(room, client)
	}
}
