package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/mudgate/mudgate/internal/gateway"
	"github.com/mudgate/mudgate/internal/logutil"
)

// Dispatcher is the shared message dispatcher, set from main before the
// server starts.
var Dispatcher *gateway.Dispatcher

// Chat is the process-wide hub of open webchat connections. It is the
// dispatcher's Sender: session output is addressed to an identity, and
// the hub resolves that to whichever websocket the identity has open.
var Chat = newChatHub()

type chatHub struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func newChatHub() *chatHub {
	return &chatHub{conns: make(map[string]*websocket.Conn)}
}

func (h *chatHub) register(ident string, c *websocket.Conn) {
	h.mu.Lock()
	prev := h.conns[ident]
	h.conns[ident] = c
	h.mu.Unlock()
	if prev != nil {
		prev.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
}

func (h *chatHub) unregister(ident string, c *websocket.Conn) {
	h.mu.Lock()
	if h.conns[ident] == c {
		delete(h.conns, ident)
	}
	h.mu.Unlock()
}

// Send delivers one outbound chat message to the identity's open
// websocket, if any.
func (h *chatHub) Send(ident, text string) error {
	h.mu.Lock()
	c := h.conns[ident]
	h.mu.Unlock()
	if c == nil {
		return fmt.Errorf("no open webchat connection for identity")
	}

	payload, err := json.Marshal(map[string]string{"type": "message", "content": text})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, payload)
}

type chatFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// WebChat upgrades to a websocket and feeds each inbound chat frame to
// the dispatcher. One connection per identity; a newer connection for
// the same identity replaces the older one.
func WebChat(w http.ResponseWriter, r *http.Request) {
	ident := r.URL.Query().Get("identity")
	if ident == "" {
		http.Error(w, "identity query parameter required", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[webchat] Failed to accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	Chat.register(ident, conn)
	defer Chat.unregister(ident, conn)
	log.Printf("[webchat] identity %s connected", logutil.Sanitize(ident))

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Printf("[webchat] identity %s disconnected: %v", logutil.Sanitize(ident), err)
			return
		}

		var frame chatFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "chat" {
			continue
		}

		Dispatcher.HandleMessage(ctx, gateway.Message{
			Identity:    ident,
			DisplayName: name,
			Text:        frame.Content,
			Channel:     gateway.ChannelDirect,
		})
	}
}
