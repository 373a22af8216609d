package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/temsim/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
	maxMessageSize = 1 << 16
)

// Client is one websocket participant bound to a role in a room.
type Client struct {
	srv  *Server
	conn *websocket.Conn
	room *room.Room
	role room.Role
	name string

	send        chan ServerEvent
	done        chan struct{}
	closeOnce   sync.Once
	closed      atomic.Bool
	unsubscribe func()
}

func newClient(srv *Server, conn *websocket.Conn, rm *room.Room, role room.Role, name string) *Client {
	return &Client{
		srv:         srv,
		conn:        conn,
		room:        rm,
		role:        role,
		name:        name,
		send:        make(chan ServerEvent, sendBufferSize),
		done:        make(chan struct{}),
		unsubscribe: func() {},
	}
}

// Publish implements room.Broadcaster.
func (c *Client) Publish(s room.Snapshot) {
	c.push(ServerEvent{Type: EventSnapshot, Room: s.Room, Snapshot: &s})
}

// Notify implements room.Broadcaster. Rejections go only to the sender.
func (c *Client) Notify(n room.Notice) {
	if n.Kind == room.NoticeRejected && n.Name != c.name {
		return
	}
	c.push(ServerEvent{Type: EventNotice, Room: n.Room, Notice: &n})
}

func (c *Client) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("room", c.room.ID()).Str("user", c.name).Msg("[transport] read message")
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
			c.push(ServerEvent{Type: EventError, Room: c.room.ID(), Code: room.CodeInvalidAction, Reason: "malformed message"})
			continue
		}
		if msg.Type == room.ActionJoin {
			c.push(ServerEvent{Type: EventError, Room: c.room.ID(), Action: msg.Type, Code: room.CodeInvalidAction, Reason: "already joined"})
			continue
		}
		err = c.srv.do(c.room, msg.Action(c.role, c.name))
		res := resultOf(err)
		ev := ServerEvent{Type: EventAck, Room: c.room.ID(), Action: msg.Type, Code: res.Code, Reason: res.Reason}
		if !res.OK {
			ev.Type = EventError
		}
		c.push(ev)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("user", c.name).Msg("[transport] write json")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.room.Done():
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"), time.Now().Add(writeWait))
			return
		case <-c.done:
			return
		}
	}
}

// flush writes whatever is still queued, typically the final snapshot.
func (c *Client) flush() {
	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

// push never blocks: when the buffer is full the oldest event is dropped.
func (c *Client) push(ev ServerEvent) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- ev:
		return
	default:
	}
	select {
	case <-c.send:
		c.srv.metrics.SnapshotDropped()
	default:
	}
	select {
	case c.send <- ev:
	default:
		c.srv.metrics.SnapshotDropped()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.unsubscribe()
		close(c.done)
		_ = c.conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), c.srv.actionTimeout)
		defer cancel()
		if err := c.room.Do(ctx, room.Leave(c.role, c.name)); err != nil {
			log.Debug().Err(err).Str("room", c.room.ID()).Str("user", c.name).Msg("[transport] leave on disconnect")
		}
	})
}
