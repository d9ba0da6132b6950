// Interactive chat client for manual testing. Authenticate first via
// /api/login, then pass the token and a conversation id:
//
//	go run ./scripts/ws_chat -addr ws://localhost:8080 -token <jwt> -conversation <uuid>
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/talkwire/talkwire-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080", "server base address")
	token := flag.String("token", "", "JWT from /api/login")
	conversation := flag.String("conversation", "", "conversation id to join")
	flag.Parse()

	if *token == "" || *conversation == "" {
		return errors.New("both -token and -conversation are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	url := fmt.Sprintf("%s/ws/conversations/%s?token=%s", *addr, *conversation, *token)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to conversation %s\n", *conversation)
	fmt.Println("Type messages and press Enter to send. /typing toggles an indicator. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		kind, _ := frame["type"].(string)
		switch kind {
		case proto.OutboundTypeConnectionEstablished:
			// Already announced on connect.
		case proto.OutboundTypeMessage:
			msg, ok := frame["message"].(map[string]any)
			if !ok {
				continue
			}
			fmt.Printf("%s: %s\n", msg["sender_name"], msg["content"])
		case proto.OutboundTypeTyping:
			if typing, _ := frame["is_typing"].(bool); typing {
				fmt.Printf("%s is typing...\n", frame["user_name"])
			}
		case proto.OutboundTypeError:
			fmt.Printf("server error: %s\n", frame["message"])
		default:
			fmt.Printf("frame=%v\n", frame)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	typing := false
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if text == "/typing" {
				typing = !typing
				if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeTyping, IsTyping: typing}); err != nil {
					log.Printf("send error: %v", err)
					return
				}
				continue
			}

			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMessage, Content: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
