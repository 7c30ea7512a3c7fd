// Package ws is the observer transport: a websocket endpoint speaking the
// HELLO/WELCOME/CMD/RESULT/EVENT protocol. Each connection gets a reader
// loop feeding the world inbox and a writer goroutine draining a per-session
// buffered channel; slow sessions lose messages rather than stall the loop.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"realmstate.ai/internal/protocol"
	"realmstate.ai/internal/sim/world"
)

const sessionQueue = 256

type Server struct {
	world *world.World
	log   *log.Logger

	// Compiled cmd.schema.json; nil skips boundary validation.
	cmdSchema *jsonschema.Schema

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// LoadCmdSchema compiles the narrative command schema used to screen the
// free-form terms/metadata bags before they reach the engine.
func (s *Server) LoadCmdSchema(path string) error {
	sch, err := jsonschema.Compile(path)
	if err != nil {
		return err
	}
	s.cmdSchema = sch
	return nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeCmd {
				continue
			}
			var cmd protocol.CmdMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			if cmd.ProtocolVersion != "" && cmd.ProtocolVersion != protocol.Version {
				continue
			}
			if rejected := s.screenCmd(out, msg, cmd.ID); rejected {
				continue
			}
			s.world.Inbox() <- world.CmdEnvelope{SessionID: sessionID, Cmd: cmd}
		}

		// Cleanup.
		s.world.Leave() <- sessionID
	}
}

// screenCmd validates the raw command against the compiled schema. Failures
// answer with a RESULT directly; the world never sees the message.
func (s *Server) screenCmd(out chan []byte, raw []byte, ref string) (rejected bool) {
	if s.cmdSchema == nil {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	if err := s.cmdSchema.Validate(v); err != nil {
		res := protocol.ResultMsg{
			Type:    protocol.TypeResult,
			Ref:     ref,
			OK:      false,
			Code:    protocol.ErrProtoBadRequest,
			Message: "command failed schema validation",
		}
		if b, merr := json.Marshal(res); merr == nil {
			select {
			case out <- b:
			default:
			}
		}
		return true
	}
	return false
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ObserverName == "" {
		hello.ObserverName = "observer"
	}

	sessionID = uuid.NewString()
	out = make(chan []byte, sessionQueue)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		SessionID: sessionID,
		Name:      hello.ObserverName,
		Narrative: hello.Narrative,
		Out:       out,
		Resp:      respCh,
	}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}

	if s.log != nil {
		s.log.Printf("observer %s joined as %s (narrative=%v)", hello.ObserverName, sessionID, hello.Narrative)
	}
	return sessionID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
