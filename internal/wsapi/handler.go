package wsapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/0x00K1/arcp/internal/notify"
	"github.com/0x00K1/arcp/internal/publicapi"
	"github.com/0x00K1/arcp/internal/registry"
)

const (
	writeWait       = 10 * time.Second
	maxMessageSize  = 4096
	sendBufferSize  = 32
	statsPushPeriod = 15 * time.Second
)

// upgrader performs the HTTP -> WebSocket protocol upgrade. CheckOrigin
// always returns true, per the teacher's hub: origin validation belongs
// to the reverse proxy in front of this service, not the application.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Mount registers the single streaming endpoint. Unlike authapi/agentsapi,
// this route carries no bearer-token middleware: spec.md §6 lists
// /public/ws among the unauthenticated public surface.
func (s *Service) Mount(r chi.Router) {
	r.Get("/public/ws", s.HandleWS)
}

// client is one connected WebSocket peer, modeled on arkeep's
// websocket.Client split between a read pump (detects disconnection,
// answers request-response frames) and a write pump (serializes outgoing
// frames and bus-sourced pushes onto the single writable connection).
//
// send is never closed: pushLoop and writePump both run independently of
// readPump, and closing a channel that other goroutines still send on
// races with those sends. Shutdown is instead signaled through done,
// which every producer/consumer selects on before it exits.
type client struct {
	svc  *Service
	conn *websocket.Conn
	send chan Frame
	done chan struct{}

	closeOnce sync.Once
}

// closeDone signals every pump to stop. Safe to call more than once or
// from more than one goroutine.
func (c *client) closeDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

// HandleWS upgrades the connection, sends the welcome frame, subscribes
// to the notification bus, and blocks until the peer disconnects or the
// idle timeout elapses without a pong.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws: upgrade failed", "error", err)
		return
	}

	c := &client{svc: s, conn: conn, send: make(chan Frame, sendBufferSize), done: make(chan struct{})}
	sub := s.bus.Subscribe(notify.TopicAgent, notify.TopicMetrics)
	defer s.bus.Unsubscribe(sub)

	go c.pushLoop(sub)
	go c.writePump()
	c.readPump()
}

// pushLoop forwards bus events as agents_update frames and, independently,
// emits a stats_update frame every statsPushPeriod. It exits when the
// subscriber's channel is closed by Unsubscribe or readPump signals done.
func (c *client) pushLoop(sub *notify.Subscriber) {
	ticker := time.NewTicker(statsPushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			c.pushAgentsUpdate(evt)
		case <-ticker.C:
			c.pushStats()
		}
	}
}

func (c *client) pushAgentsUpdate(evt notify.Event) {
	agents := c.svc.manager.List(registry.Filter{})
	frame := Frame{
		Type: FrameAgentsUpdate,
		Data: map[string]any{
			"event":    evt.Kind,
			"agent_id": evt.AgentID,
			"agents":   publicapi.RedactAll(agents, c.svc.manager.HeartbeatTimeout()),
		},
	}
	c.enqueue(frame)
}

func (c *client) pushStats() {
	all := c.svc.manager.List(registry.Filter{})
	heartbeatTimeout := c.svc.manager.HeartbeatTimeout()
	now := time.Now()

	alive, dead := 0, 0
	for _, info := range all {
		if info.ComputedStatus(now, heartbeatTimeout) == registry.StatusAlive {
			alive++
		} else {
			dead++
		}
	}
	c.enqueue(Frame{
		Type: FrameStatsUpdate,
		Data: map[string]any{
			"total_agents": len(all),
			"alive_agents": alive,
			"dead_agents":  dead,
		},
	})
}

func (c *client) enqueue(f Frame) {
	select {
	case <-c.done:
		// connection is shutting down; send is never closed, but there
		// is no longer a writer draining it.
	case c.send <- f:
	default:
		// slow consumer: drop this push rather than block the bus.
	}
}

// readPump reads inbound frames (ping, get_discovery) and answers them
// synchronously by queuing a response frame onto send. The protocol is
// otherwise server-push, so any other frame type is ignored.
func (c *client) readPump() {
	defer func() {
		c.closeDone()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.svc.timeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.svc.timeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.svc.logger.Warn("ws: unexpected close", "error", err)
			}
			return
		}

		var in Frame
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}
		c.handleFrame(in)
	}
}

func (c *client) handleFrame(in Frame) {
	switch in.Type {
	case FramePing:
		c.enqueue(Frame{Type: FramePong})
	case FrameGetDiscovery:
		c.handleGetDiscovery(in)
	}
}

func (c *client) handleGetDiscovery(in Frame) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}

	filter := registry.Filter{AgentType: in.AgentType, Status: registry.StatusAlive}
	all := c.svc.manager.List(filter)
	total := len(all)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	views := publicapi.RedactAll(all[start:end], c.svc.manager.HeartbeatTimeout())
	c.enqueue(Frame{
		Type: FrameDiscoveryData,
		Data: discoveryData{
			Agents: views,
			Pagination: discoveryPagination{
				Page:       page,
				PageSize:   pageSize,
				Total:      total,
				TotalPages: totalPages,
			},
		},
	})
}

// writePump is the sole goroutine writing to conn, per gorilla/websocket's
// single-writer requirement. It also emits ticker-driven ping control
// frames so readPump can detect a stale connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.svc.timeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	welcome := Frame{Type: FrameWelcome, Data: welcomeData{
		Service: "arcp",
		Message: "connected to the agent registry event stream",
	}}
	if err := c.writeFrame(welcome); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			if err := c.writeFrame(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) writeFrame(f Frame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}
