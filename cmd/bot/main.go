// Command bot is a scripted narrative driver for soak testing: it joins a
// world as a narrative observer and periodically nudges tension between two
// random factions, declaring war or making peace when the dice say so.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"realmstate.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "envoy-bot", "observer name")
		seed     = flag.Int64("seed", 0, "rng seed (0 = time-based)")
		interval = flag.Duration("interval", 5*time.Second, "delay between commands")
		factions = flag.Int("factions", 4, "faction id range to target (FAC000001..FAC%06d)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ObserverName:    *name,
		Narrative:       true,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	msgs := make(chan []byte, 16)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var cmdSeq int
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Printf("connection closed")
				return
			}
			handleMsg(logger, msg)
		case <-ticker.C:
			cmdSeq++
			if err := conn.WriteJSON(nextCmd(rng, cmdSeq, *factions)); err != nil {
				logger.Printf("send CMD: %v", err)
				return
			}
		}
	}
}

func handleMsg(logger *log.Logger, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		logger.Printf("WELCOME session=%s world=%s tick=%d factions=%d",
			w.SessionID, w.WorldID, w.Tick, w.WorldParams.Factions)

	case protocol.TypeResult:
		var r protocol.ResultMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return
		}
		if !r.OK {
			logger.Printf("RESULT ref=%s code=%s msg=%s", r.Ref, r.Code, r.Message)
		}

	case protocol.TypeEvent:
		var e protocol.EventMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return
		}
		switch e.Event["type"] {
		case protocol.EvWarDeclared, protocol.EvSchism, protocol.EvWarResolved:
			b, _ := json.Marshal(e.Event)
			logger.Printf("EVENT %s", b)
		}
	}
}

func nextCmd(rng *rand.Rand, seq, factions int) protocol.CmdMsg {
	a := rng.Intn(factions) + 1
	b := rng.Intn(factions) + 1
	for b == a {
		b = rng.Intn(factions) + 1
	}

	cmd := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("bot_%d", seq),
		FactionID:       fmt.Sprintf("FAC%06d", a),
		OtherFactionID:  fmt.Sprintf("FAC%06d", b),
	}

	switch roll := rng.Intn(10); {
	case roll < 6:
		cmd.Op = protocol.OpUpdateTension
		cmd.Delta = float64(rng.Intn(41) - 20)
		cmd.Reason = "border skirmish"
	case roll < 8:
		cmd.Op = protocol.OpDeclareWar
		cmd.Reason = "escalation drill"
	default:
		cmd.Op = protocol.OpMakePeace
		cmd.Reason = "war weariness"
	}
	return cmd
}
