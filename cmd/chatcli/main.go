// Command chatcli is a terminal client for the relay. It joins one
// conversation at a time and prints whatever the relay sends.
package main

import (
	"bufio"
	"context"
	"dealchat/backend/internal/client"
	"dealchat/backend/internal/logging"
	"dealchat/backend/internal/models"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const help = `Commands:
  /join <peer>               open the conversation with peer
  /leave                     leave the current conversation
  /typing                    send a keystroke without a message
  /call <status> [seconds]   send a call status (calling, ringing, answered, ended, idle)
  /history                   print the current conversation
  /quit                      exit
Anything else is sent as a message to the current conversation.`

func main() {
	addr := pflag.String("addr", "ws://localhost:8080/ws", "relay websocket address")
	user := pflag.StringP("user", "u", "", "user id to connect as")
	token := pflag.String("token", "", "relay token, if the relay requires one")
	lang := pflag.String("lang", "en", "language of error messages")
	peer := pflag.String("peer", "", "join the conversation with this peer on start")
	verbose := pflag.BoolP("verbose", "v", false, "log debug output")
	pflag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logging.Setup(level, true)

	if *user == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c, err := client.Dial(ctx, *user, client.Options{URL: *addr, Token: *token, Lang: *lang})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer c.Close()

	if err := c.Announce(); err != nil {
		log.Fatal().Err(err).Msg("failed to announce")
	}
	fmt.Printf("Connected to %s as %s.\n%s\n\n", *addr, c.User, help)

	go printUpdates(c)

	room := ""
	if *peer != "" {
		room = join(c, *peer)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		case <-c.Done():
			fmt.Println("Connection closed by relay")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			if input == "/quit" {
				fmt.Println("Bye!")
				return
			}
			room = handle(c, room, input)
		}
	}
}

// handle runs one input line and returns the room that is current afterwards.
func handle(c *client.Client, room, input string) string {
	if !strings.HasPrefix(input, "/") {
		if room == "" {
			fmt.Println("Join a conversation first: /join <peer>")
			return room
		}
		if _, err := c.Send(room, input); err != nil {
			fmt.Printf("Send error: %v\n", err)
		}
		return room
	}

	fields := strings.Fields(input)
	switch fields[0] {
	case "/join":
		if len(fields) != 2 {
			fmt.Println("Usage: /join <peer>")
			return room
		}
		if room != "" {
			_ = c.Leave(room)
		}
		return join(c, fields[1])
	case "/leave":
		if room == "" {
			return room
		}
		if err := c.Leave(room); err != nil {
			fmt.Printf("Leave error: %v\n", err)
		}
		fmt.Printf("Left %s\n", room)
		return ""
	case "/typing":
		if err := c.Typing(room); err != nil {
			fmt.Printf("Typing error: %v\n", err)
		}
	case "/call":
		if len(fields) < 2 {
			fmt.Println("Usage: /call <status> [seconds]")
			return room
		}
		var duration *int
		if len(fields) > 2 {
			secs, err := strconv.Atoi(fields[2])
			if err != nil || secs < 0 {
				fmt.Println("Duration must be a number of seconds")
				return room
			}
			duration = &secs
		}
		if err := c.SendCallStatus(room, models.CallStatus(fields[1]), duration, ""); err != nil {
			fmt.Printf("Call error: %v\n", err)
		}
	case "/history":
		conv := c.Conversation(room)
		if conv == nil {
			fmt.Println("No conversation open")
			return room
		}
		for _, m := range conv.Messages() {
			printMessage(m)
		}
	default:
		fmt.Println(help)
	}
	return room
}

func join(c *client.Client, peer string) string {
	conv, err := c.Join(peer)
	if err != nil {
		fmt.Printf("Join error: %v\n", err)
		return ""
	}
	fmt.Printf("Joined %s with %s\n", conv.RoomID, conv.Peer)
	return conv.RoomID
}

func printUpdates(c *client.Client) {
	for u := range c.Updates() {
		if u.Err != nil {
			fmt.Printf("! %s: %s\n", u.Err.Code, u.Err.Message)
			continue
		}
		switch u.Event {
		case models.EventChatMessage:
			var m models.ChatMessage
			if err := json.Unmarshal(u.Data, &m); err == nil {
				printMessage(m)
			}
		case models.EventChatHistory:
			var msgs []models.ChatMessage
			if err := json.Unmarshal(u.Data, &msgs); err == nil {
				fmt.Printf("-- %d earlier messages --\n", len(msgs))
				for _, m := range msgs {
					printMessage(m)
				}
			}
		case models.EventUserStatus:
			var s models.UserStatus
			if err := json.Unmarshal(u.Data, &s); err == nil && s.UserID != c.User {
				fmt.Printf("* %s is %s\n", s.UserID, s.Status)
			}
		case models.EventTyping:
			var t models.TypingEvent
			if err := json.Unmarshal(u.Data, &t); err == nil && t.Typing {
				fmt.Printf("* %s is typing...\n", t.UserID)
			}
		case models.EventVideoCallStatus:
			var s models.CallStatusEvent
			if err := json.Unmarshal(u.Data, &s); err == nil {
				line := fmt.Sprintf("* call %s by %s", s.Status, s.Sender)
				if s.ListingTitle != "" {
					line += " about " + s.ListingTitle
				}
				fmt.Println(line)
			}
		default:
			log.Debug().Str("module", "chatcli").Str("event", u.Event).Str("room_id", u.Room).Msg("update")
		}
	}
}

func printMessage(m models.ChatMessage) {
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format(time.TimeOnly), m.Sender, m.Body)
}
