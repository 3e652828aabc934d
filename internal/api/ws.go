package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"navtrack/internal/metrics"
	"navtrack/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is the tagged envelope for every inbound and outbound frame.
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub tracks connected observers and fans broadcast events out to them.
// Position broadcasts pass through a per-vehicle throttle; everything else
// is forwarded unconditionally.
type Hub struct {
	mu       sync.Mutex
	conns    map[*wsConn]struct{}
	throttle *Throttle

	pingInterval time.Duration
	pongWait     time.Duration
	inbound      rate.Limit
	burst        int
}

type wsConn struct {
	conn *websocket.Conn
	send chan wsMessage
}

func NewHub(throttle *Throttle, pingInterval, pongWait time.Duration, inboundPerSec, inboundBurst int) *Hub {
	if throttle == nil {
		throttle = NewThrottle(0, 0)
	}
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	if pongWait <= 0 {
		pongWait = 3 * pingInterval
	}
	if inboundPerSec <= 0 {
		inboundPerSec = 20
	}
	if inboundBurst <= 0 {
		inboundBurst = inboundPerSec * 2
	}
	return &Hub{
		conns:        map[*wsConn]struct{}{},
		throttle:     throttle,
		pingInterval: pingInterval,
		pongWait:     pongWait,
		inbound:      rate.Limit(inboundPerSec),
		burst:        inboundBurst,
	}
}

// Broadcast sends an event to every connected client. Slow clients are
// skipped rather than blocked on.
func (h *Hub) Broadcast(typ string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	msg := wsMessage{Type: typ, Payload: payload}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) add(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.ObserverConnections.Inc()
}

func (h *Hub) remove(c *wsConn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
	h.mu.Unlock()
	metrics.ObserverConnections.Dec()
}

// WSHandler handles /ws: bidirectional realtime channel. Inbound frames
// carry position reports and hazard/obstacle reports; outbound frames carry
// position, route.updated, route and alert broadcasts.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn, send: make(chan wsMessage, 32)}
	s.Hub.add(c)
	defer func() {
		s.Hub.remove(c)
		_ = conn.Close()
	}()

	// Write pump with keepalive pings.
	go func() {
		ticker := time.NewTicker(s.Hub.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-c.send:
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(s.Hub.pongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(s.Hub.pongWait)); return nil })

	// Per-vehicle broker subscriptions opened by this connection. The
	// bridge goroutines must fully drain before Hub.remove closes c.send,
	// so teardown unsubscribes first and then waits on them.
	sess := &wsSession{c: c, subs: map[string]chan Event{}}
	defer func() {
		for vid, ch := range sess.subs {
			s.Broker.Unsubscribe(vid, ch)
		}
		sess.bridges.Wait()
	}()

	limiter := rate.NewLimiter(s.Hub.inbound, s.Hub.burst)
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if !limiter.Allow() {
			continue
		}
		if err := s.routeMessage(r.Context(), sess, msg); err != nil {
			body, _ := json.Marshal(map[string]string{"message": err.Error()})
			select {
			case c.send <- wsMessage{Type: "error", Payload: body}:
			default:
			}
		}
	}
}

// wsSession is the per-connection state of the message router: the broker
// subscriptions opened over this connection and the bridge goroutines
// feeding them into the send channel.
type wsSession struct {
	c       *wsConn
	subs    map[string]chan Event
	bridges sync.WaitGroup
}

// routeMessage dispatches one inbound frame by its type tag.
func (s *Server) routeMessage(ctx context.Context, sess *wsSession, msg wsMessage) error {
	switch msg.Type {
	case "position":
		var rep model.PositionReport
		if err := json.Unmarshal(msg.Payload, &rep); err != nil {
			return err
		}
		v, err := s.Engine.HandlePosition(ctx, rep)
		if err != nil {
			return err
		}
		s.broadcastPosition(v)
		return nil
	case "hazard", "obstacle":
		var rep model.HazardReport
		if err := json.Unmarshal(msg.Payload, &rep); err != nil {
			return err
		}
		if rep.Kind == "" {
			rep.Kind = msg.Type
		}
		_, _, err := s.Engine.HandleHazard(ctx, rep)
		return err
	case "subscribe":
		var req struct {
			VehicleID string `json:"vehicleId"`
		}
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		if req.VehicleID == "" {
			return fmt.Errorf("vehicleId required")
		}
		if _, ok := sess.subs[req.VehicleID]; ok {
			return nil
		}
		ch := s.Broker.Subscribe(req.VehicleID)
		sess.subs[req.VehicleID] = ch
		sess.bridges.Add(1)
		go func() {
			defer sess.bridges.Done()
			for evt := range ch {
				payload, err := json.Marshal(evt.Data)
				if err != nil {
					continue
				}
				select {
				case sess.c.send <- wsMessage{Type: evt.Type, Payload: payload}:
				default:
				}
			}
		}()
		return nil
	default:
		log.Printf("ws: unknown message type %q", msg.Type)
		return nil
	}
}
