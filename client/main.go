package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type inbound struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// send formats and sends an action frame to the server.
func send(c *websocket.Conn, action string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.WriteJSON(inbound{Action: action, Data: raw})
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	token := flag.String("token", "", "jwt for the test user")
	roomID := flag.String("room", "", "room to subscribe to on start")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + *token}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- %s", message)
		}
	}()

	if *roomID != "" {
		if err := send(c, "subscribe-room", map[string]string{"room_id": *roomID}); err != nil {
			log.Fatalf("Subscribe failed: %v", err)
		}
	}

	// Stdin loop: "<action> <json>" per line, e.g.
	//   join-game {"session_id":"..."}
	//   update-score {"session_id":"...","delta":5}
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			action, payload, _ := strings.Cut(line, " ")
			if payload == "" {
				payload = "{}"
			}
			if err := c.WriteJSON(inbound{Action: action, Data: json.RawMessage(payload)}); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupted, closing connection")
		err := c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Close error:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
