package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketmelee.ai/internal/animation"
	"marketmelee.ai/internal/protocol"
)

// Server is the renderer feed. Renderers connect, send HELLO, and then receive
// ANIMATION messages for the tokens they asked for.
type Server struct {
	log *log.Logger

	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]*subscriber

	dropped atomic.Uint64

	// A renderer that does not answer a ping within pongWait is disconnected.
	pingEvery time.Duration
	pongWait  time.Duration
}

type subscriber struct {
	id     string
	name   string
	tokens map[string]struct{} // empty: all
	out    chan []byte
}

func (s *subscriber) wants(token string) bool {
	if len(s.tokens) == 0 {
		return true
	}
	_, ok := s.tokens[token]
	return ok
}

var _ animation.Sink = (*Server)(nil)

func NewServer(logger *log.Logger) *Server {
	return &Server{
		log:  logger,
		subs: map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		pingEvery: 30 * time.Second,
		pongWait:  60 * time.Second,
	}
}

// Subscribers reports connected renderers.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped reports messages skipped because a renderer's queue was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Deliver fans req out to every interested renderer without blocking on any of them.
func (s *Server) Deliver(ctx context.Context, req animation.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(protocol.AnimationMsg{
		Type:            protocol.TypeAnimation,
		ProtocolVersion: protocol.Version,
		Token:           req.Token,
		Move:            req.Move.String(),
		Revision:        req.Revision,
		TS:              req.At.UnixMilli(),
	})
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !sub.wants(req.Token) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := s.handshake(conn)
		if sub == nil {
			return
		}
		s.register(sub)
		defer s.unregister(sub)
		if s.log != nil {
			s.log.Printf("renderer connected: session=%s name=%s tokens=%d", sub.id, sub.name, len(sub.tokens))
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. It also owns the keepalive pings.
		go func() {
			ping := time.NewTicker(s.pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: renderers send nothing after HELLO. Reading processes
		// their pongs and is how we notice the peer going away.
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		}
		if s.log != nil {
			s.log.Printf("renderer disconnected: session=%s", sub.id)
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *subscriber {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	env, err := protocol.Peek(msg)
	if err != nil || !env.Is(protocol.TypeHello) {
		closeWith(conn, "expected HELLO")
		return nil
	}
	if err := protocol.Validate(protocol.SchemaHello, msg); err != nil {
		closeWith(conn, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 64
	}
	if maxQ > 1024 {
		maxQ = 1024
	}
	sub := &subscriber{
		id:     uuid.NewString(),
		name:   hello.RendererName,
		tokens: map[string]struct{}{},
		out:    make(chan []byte, maxQ),
	}
	for _, t := range hello.Tokens {
		sub.tokens[t] = struct{}{}
	}

	if err := writeJSON(conn, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sub.id,
	}); err != nil {
		return nil
	}
	return sub
}

func (s *Server) register(sub *subscriber) {
	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()
}

func (s *Server) unregister(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub.id)
	s.mu.Unlock()
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
