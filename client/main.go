// Command client is a line-oriented test client for the draw server.
//
//	create <id> <name> [password]   create a room (private when a password is given)
//	join <id> [password]
//	leave
//	start
//	draw <x> <y>                    strokeStart then strokeEnd at a point
//	clear
//	anything else                   sent as chat or guess
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/drawserver/network"
)

// writeMu serializes writers; the heartbeat ticker and stdin loop share c.
var writeMu sync.Mutex

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, payload interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func command(c *websocket.Conn, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "create":
		req := network.CreateRoomRequest{ID: arg(1), Name: arg(2), Password: arg(3)}
		if req.Password != "" {
			req.Visibility = "private"
		}
		return send(c, network.MsgTypeCreateRoom, req)
	case "join":
		return send(c, network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: arg(1), Password: arg(2)})
	case "leave":
		return send(c, network.MsgTypeLeaveRoom, nil)
	case "start":
		return send(c, network.MsgTypeStartGame, nil)
	case "draw":
		x, errX := strconv.ParseFloat(arg(1), 64)
		y, errY := strconv.ParseFloat(arg(2), 64)
		if errX != nil || errY != nil {
			log.Println("usage: draw <x> <y>")
			return nil
		}
		if err := send(c, network.MsgTypeStrokeStart, network.StrokeStart{X: &x, Y: &y, Color: "#000000", Thickness: 4}); err != nil {
			return err
		}
		return send(c, network.MsgTypeStrokeEnd, nil)
	case "clear":
		return send(c, network.MsgTypeClearCanvas, nil)
	}
	return send(c, network.MsgTypeChatOrGuess, network.ChatRequest{Text: line})
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	userID := flag.String("user", "player1", "user id to identify as")
	name := flag.String("name", "", "display name")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
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
			packet, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
		}
	}()

	if err := send(c, network.MsgTypeIdentify, network.IdentifyRequest{UserID: *userID, DisplayName: *name}); err != nil {
		log.Println("Write error:", err)
		return
	}

	// Keep the read deadline on the server side from expiring.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				send(c, network.MsgTypeHeartbeat, nil)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	log.Println("Client started. Type create/join/leave/start/draw/clear or chat.")
	for {
		select {
		case <-done:
			return
		case line := <-lines:
			if err := command(c, strings.TrimSpace(line)); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			writeMu.Lock()
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
