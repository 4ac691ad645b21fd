package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"polyterrain.ai/internal/protocol"
	"polyterrain.ai/internal/terrain/colorscale"
	"polyterrain.ai/internal/terrain/noise"
	"polyterrain.ai/internal/tiles"
)

// MaxChunksPerSubscribe bounds the coordinates of one SUBSCRIBE message.
const MaxChunksPerSubscribe = 256

// pendingSubscribes bounds the SUBSCRIBE messages queued behind the one in progress.
const pendingSubscribes = 8

type Server struct {
	svc *tiles.Service
	log *log.Logger

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func NewServer(svc *tiles.Service, logger *log.Logger) *Server {
	s := &Server{
		svc: svc,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// Clients is the number of connected streams.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// session is the state fixed by the first SUBSCRIBE.
type session struct {
	gen  *tiles.Generator
	pal  *colorscale.Scale
	reqs chan []noise.Chunk
	out  chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, first := s.handshake(conn)
		if sess == nil {
			return
		}
		s.clients.Add(1)
		defer s.clients.Add(-1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(2)

		// Writer goroutine.
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Producer: generates requested chunks in order.
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case chunks := <-sess.reqs:
					for _, c := range chunks {
						if !s.produce(ctx, sess, c) {
							return
						}
					}
				}
			}
		}()

		sess.reqs <- first

		// Reader loop: later SUBSCRIBE messages append chunks.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeSubscribe {
				s.send(ctx, sess, protocol.NewError(protocol.ErrProtoBadRequest, "expected SUBSCRIBE"))
				continue
			}
			var sub protocol.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil || sub.ProtocolVersion != protocol.Version {
				s.send(ctx, sess, protocol.NewError(protocol.ErrProtoBadRequest, "bad SUBSCRIBE"))
				continue
			}
			if sub.Generator != "" && sub.Generator != sess.gen.Spec.ID {
				s.send(ctx, sess, protocol.NewError(protocol.ErrBadRequest, "generator is fixed by the first SUBSCRIBE"))
				continue
			}
			chunks, code, reason := checkChunks(sub.Chunks)
			if code != "" {
				s.send(ctx, sess, protocol.NewError(code, reason))
				continue
			}
			select {
			case sess.reqs <- chunks:
			default:
				s.send(ctx, sess, protocol.NewError(protocol.ErrRateLimit, "too many pending SUBSCRIBE messages"))
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait so neither goroutine outlives conn.
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*session, []noise.Chunk) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		closeConn(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
		return nil, nil
	}
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		closeConn(conn, websocket.ClosePolicyViolation, "bad SUBSCRIBE")
		return nil, nil
	}
	if sub.ProtocolVersion != protocol.Version {
		closeConn(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return nil, nil
	}

	reject := func(code, reason string) {
		_ = writeJSON(conn, protocol.NewError(code, reason))
		closeConn(conn, websocket.ClosePolicyViolation, reason)
	}
	g, err := s.svc.Generator(sub.Generator)
	if err != nil {
		reject(protocol.ErrNotFound, err.Error())
		return nil, nil
	}
	var pal *colorscale.Scale
	if sub.IncludeBands {
		pal = g.Palette
		if sub.Palette != "" {
			if pal, err = s.svc.Palette(sub.Palette); err != nil {
				reject(protocol.ErrNotFound, err.Error())
				return nil, nil
			}
		}
	}
	chunks, code, reason := checkChunks(sub.Chunks)
	if code != "" {
		reject(code, reason)
		return nil, nil
	}

	if err := writeJSON(conn, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Generator:       g.Ref(),
	}); err != nil {
		return nil, nil
	}
	return &session{
		gen:  g,
		pal:  pal,
		reqs: make(chan []noise.Chunk, pendingSubscribes),
		out:  make(chan []byte, 16),
	}, chunks
}

func checkChunks(coords [][2]int) ([]noise.Chunk, string, string) {
	if len(coords) == 0 {
		return nil, protocol.ErrBadRequest, "chunks must not be empty"
	}
	if len(coords) > MaxChunksPerSubscribe {
		return nil, protocol.ErrRateLimit, fmt.Sprintf("at most %d chunks per SUBSCRIBE", MaxChunksPerSubscribe)
	}
	out := make([]noise.Chunk, len(coords))
	for i, c := range coords {
		out[i] = noise.Chunk{X: c[0], Y: c[1]}
	}
	return out, "", ""
}

// produce generates one chunk and queues it; false once the stream is gone.
func (s *Server) produce(ctx context.Context, sess *session, c noise.Chunk) bool {
	res, err := s.svc.Chunk(ctx, sess.gen.Spec.ID, c)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		if s.log != nil {
			s.log.Printf("ws chunk %d,%d: %v", c.X, c.Y, err)
		}
		return s.send(ctx, sess, protocol.NewError(protocol.ErrInternal, err.Error()))
	}
	return s.send(ctx, sess, tiles.ChunkMessage(res, true, sess.pal))
}

func (s *Server) send(ctx context.Context, sess *session, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return true
	}
	select {
	case sess.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
