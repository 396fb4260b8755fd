// Command chat is a minimal terminal client for chatd: it opens the
// real-time channel, prints incoming events and sends stdin lines to
// one peer.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/nexthire/chatd/clients/go/chatd"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "chatd base URL")
	token := flag.String("token", os.Getenv("CHATD_TOKEN"), "bearer token")
	peerStr := flag.String("peer", "", "peer user UUID")
	flag.Parse()

	if *token == "" || *peerStr == "" {
		fmt.Fprintln(os.Stderr, "Usage: chat -token <bearer> -peer <user-uuid> [-url <base>]")
		os.Exit(1)
	}

	peer, err := uuid.Parse(*peerStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid peer UUID: %v\n", err)
		os.Exit(1)
	}

	client := chatd.NewClient(*baseURL, *token)
	conn, err := client.Connect(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	go func() {
		for ev := range conn.Events {
			printEvent(ev)
		}
		fmt.Println("* disconnected")
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := conn.Send(peer, line, "text"); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			return
		}
	}
}

func printEvent(ev chatd.Event) {
	switch ev.Type {
	case "new_message", "message_sent":
		var msg chatd.Message
		if err := json.Unmarshal(ev.Payload, &msg); err == nil {
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04:05"), msg.SenderID, msg.Content)
			return
		}
	case "message_error":
		var payload struct {
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err == nil {
			fmt.Printf("! %s\n", payload.Reason)
			return
		}
	case "user_online", "user_offline", "user_typing", "user_stopped_typing":
		var payload struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err == nil {
			fmt.Printf("* %s %s\n", payload.UserID, strings.ReplaceAll(ev.Type, "_", " "))
			return
		}
	}
	fmt.Printf("* %s\n", ev.Type)
}
