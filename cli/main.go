// Package main provides a simple CLI client for the gigchat WebSocket endpoints.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Message types
const (
	TypeAuth               = "auth"
	TypeAuthSuccess        = "auth_success"
	TypeJoinConversation   = "join_conversation"
	TypeConversationJoined = "conversation_joined"
	TypeMessage            = "message"
	TypeTyping             = "typing"
	TypeStopTyping         = "stop_typing"
	TypeReply              = "reply"
	TypeError              = "error"
)

// OutgoingMessage is the union of frames the CLI sends.
type OutgoingMessage struct {
	Type           string `json:"type"`
	UserID         int64  `json:"userId,omitempty"`
	ConversationID int64  `json:"conversationId,omitempty"`
	Message        string `json:"message,omitempty"`
	History        []Turn `json:"history,omitempty"`
}

// Turn is one support exchange kept for context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IncomingMessage holds the fields the CLI prints.
type IncomingMessage struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
	UserRole       string `json:"userRole"`
	SenderID       int64  `json:"senderId"`
	SenderRole     string `json:"senderRole"`
	Source         string `json:"source"`
	NeedsHuman     bool   `json:"needsHuman"`
	User           *struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"user"`
	Messages []struct {
		SenderID   int64  `json:"senderId"`
		SenderRole string `json:"senderRole"`
		Message    string `json:"message"`
	} `json:"messages"`
}

// Client represents a WebSocket client.
type Client struct {
	conn    *websocket.Conn
	support bool
	writeMu sync.Mutex
	done    chan struct{}
	replies chan IncomingMessage
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string, support bool) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn:    conn,
		support: support,
		done:    make(chan struct{}),
		replies: make(chan IncomingMessage, 16),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// Send writes one frame.
func (c *Client) Send(msg OutgoingMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// ReadMessages reads and prints messages from the server.
func (c *Client) ReadMessages() {
	defer close(c.replies)
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}

			var msg IncomingMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("Unmarshal error: %v", err)
				continue
			}
			printMessage(msg)
			if c.support && (msg.Type == TypeReply || msg.Type == TypeError) {
				c.replies <- msg
			}
		}
	}
}

func printMessage(msg IncomingMessage) {
	switch msg.Type {
	case TypeAuthSuccess:
		fmt.Printf("\n[auth] signed in as %s (#%d, %s)\n", msg.User.Name, msg.User.ID, msg.User.Role)
	case TypeConversationJoined:
		fmt.Printf("\n[joined] conversation %d, %d earlier messages\n", msg.ConversationID, len(msg.Messages))
		for _, m := range msg.Messages {
			fmt.Printf("  %s:%d> %s\n", m.SenderRole, m.SenderID, m.Message)
		}
	case TypeMessage:
		fmt.Printf("\n%s:%d> %s\n", msg.SenderRole, msg.SenderID, msg.Message)
	case TypeReply:
		fmt.Printf("\n[support/%s] %s\n", msg.Source, msg.Message)
		if msg.NeedsHuman {
			fmt.Printf("[support] handed off to staff, conversation %d\n", msg.ConversationID)
		}
	case TypeError:
		fmt.Printf("\n[error] %s\n", msg.Message)
	default:
		fmt.Printf("\n[%s] user %d (%s) in conversation %d\n", msg.Type, msg.UserID, msg.UserRole, msg.ConversationID)
	}
}

func main() {
	addr := flag.String("addr", "ws://localhost:8090", "Server base address")
	userID := flag.Int64("user", 1, "User ID to authenticate as")
	conversationID := flag.Int64("conversation", 1, "Conversation ID to join")
	supportMode := flag.Bool("support", false, "Talk to the support responder instead of a conversation")
	flag.Parse()

	log.SetFlags(log.Ltime)

	path := "/ws"
	if *supportMode {
		path = "/ws/support"
	}
	url := strings.TrimSuffix(*addr, "/") + path
	fmt.Printf("Connecting to %s...\n", url)

	client, err := NewClient(url, *supportMode)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	// Start reading messages in background
	go client.ReadMessages()

	if !*supportMode {
		if err := client.Send(OutgoingMessage{Type: TypeAuth, UserID: *userID}); err != nil {
			log.Fatalf("Auth failed: %v", err)
		}
		if err := client.Send(OutgoingMessage{Type: TypeJoinConversation, ConversationID: *conversationID}); err != nil {
			log.Fatalf("Join failed: %v", err)
		}
	}

	fmt.Println("\nType a message and press Enter to send.")
	fmt.Println("Commands: /typing, /stop, /join <id>, /quit")

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		client.Close()
		os.Exit(0)
	}()

	// Read user input
	scanner := bufio.NewScanner(os.Stdin)
	var history []Turn

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if *supportMode && strings.HasPrefix(input, "/") && input != "/quit" {
			fmt.Println("only /quit is available in support mode")
			continue
		}

		var msg OutgoingMessage
		switch {
		case input == "/quit":
			fmt.Println("Bye!")
			return
		case input == "/typing":
			msg = OutgoingMessage{Type: TypeTyping}
		case input == "/stop":
			msg = OutgoingMessage{Type: TypeStopTyping}
		case strings.HasPrefix(input, "/join "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(input, "/join ")), 10, 64)
			if err != nil {
				fmt.Println("usage: /join <conversation id>")
				continue
			}
			msg = OutgoingMessage{Type: TypeJoinConversation, ConversationID: id}
		case *supportMode:
			msg = OutgoingMessage{Type: TypeMessage, Message: input, UserID: *userID, History: history}
		default:
			msg = OutgoingMessage{Type: TypeMessage, Message: input}
		}

		if err := client.Send(msg); err != nil {
			log.Printf("Send error: %v", err)
			continue
		}

		if *supportMode && msg.Type == TypeMessage {
			reply, ok := <-client.replies
			if !ok {
				return
			}
			if reply.Type == TypeError {
				continue
			}
			history = append(history, Turn{Role: "user", Content: input}, Turn{Role: "assistant", Content: reply.Message})
		}
	}
}
