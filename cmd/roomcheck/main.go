package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-rooms/internal/wsclient"
	"github.com/park285/cheese-rooms/pkg/protocol"
)

func main() {
	var (
		wsURL     = flag.String("ws", envOr("ROOMCHECK_WS_URL", "ws://localhost:3001/ws"), "room server websocket URL")
		statusURL = flag.String("status", envOr("ROOMCHECK_STATUS_URL", ""), "optional /status URL to query first")
		name      = flag.String("name", "probe", "player name")
		create    = flag.Bool("create", false, "create a room after connecting")
		join      = flag.String("join", "", "room code to join after connecting")
		watch     = flag.Duration("watch", 10*time.Second, "how long to print events")
	)
	flag.Parse()

	if *statusURL != "" {
		checkStatus(*statusURL)
	}

	ws := wsclient.New(*wsURL)
	ws.OnStateChange(func(state wsclient.State) {
		log.Printf("WS state: %s", state)
	})
	ws.OnEvent(func(ev protocol.Envelope) {
		fmt.Printf("WS event=%s data=%s\n", ev.Event, strings.TrimSpace(string(ev.Data)))
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ws.Connect(cctx); err != nil {
		log.Fatalf("WS connect error: %v", err)
	}

	switch {
	case *create:
		if err := ws.Send(cctx, protocol.EventCreateRoom, protocol.CreateRoom{PlayerName: *name}); err != nil {
			log.Printf("create_room error: %v", err)
		}
	case *join != "":
		code := strings.ToUpper(strings.TrimSpace(*join))
		if err := ws.Send(cctx, protocol.EventJoinRoom, protocol.JoinRoom{RoomCode: code, PlayerName: *name}); err != nil {
			log.Printf("join_room error: %v", err)
		}
	}

	// Observe until the window closes or we are interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	t := time.NewTimer(*watch)
	select {
	case <-t.C:
	case <-sigCh:
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = ws.Close(closeCtx)
}

func checkStatus(url string) {
	status, body, err := fasthttp.GetTimeout(nil, url, 5*time.Second)
	if err != nil {
		log.Printf("/status error: %v", err)
		return
	}
	log.Printf("/status %d: %s", status, strings.TrimSpace(string(body)))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
