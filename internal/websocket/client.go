package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"ripple-chat/internal/engine"
	"ripple-chat/internal/engine/actors"
	"ripple-chat/internal/models"
	"ripple-chat/internal/session"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Time allowed to queue an outbound payload before the connection is
	// considered too slow.
	pushWait = 1 * time.Second

	// Outbound buffer per connection.
	sendBufferSize = 64
)

// Client is one admitted websocket connection. It satisfies the registry's
// Connection interface, so delivery actors push to it without knowing
// anything about websockets.
type Client struct {
	UserID   uuid.UUID
	Username string

	Conn *websocket.Conn
	Send chan []byte

	engine    *engine.Engine
	gate      *session.Gate
	admission *session.Admission

	quit      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, eng *engine.Engine, gate *session.Gate, userID uuid.UUID, username string) *Client {
	return &Client{
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, sendBufferSize),
		engine:   eng,
		gate:     gate,
		quit:     make(chan struct{}),
	}
}

// Bind attaches the gate's admission. Must happen before the pumps start.
func (c *Client) Bind(admission *session.Admission) {
	c.admission = admission
}

// Push queues a payload for the write pump. It fails when the connection is
// closed or the buffer stays full past the push window.
func (c *Client) Push(payload []byte) error {
	select {
	case c.Send <- payload:
		return nil
	case <-c.quit:
		return errors.New("connection closed")
	case <-time.After(pushWait):
		return errors.New("send buffer full")
	}
}

// Close tears down the transport. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.Conn.Close()
	})
}

// inboundFrame is the client-to-server protocol. The type field selects the
// operation; the rest of the fields are per-type.
type inboundFrame struct {
	Type        string               `json:"type"`
	Content     string               `json:"content,omitempty"`
	ContentType models.MessageType   `json:"contentType,omitempty"`
	ReplyToID   *int64               `json:"replyToId,omitempty"`
	MessageID   int64                `json:"messageId,omitempty"`
	Status      models.MessageStatus `json:"status,omitempty"`
	IsTyping    bool                 `json:"isTyping,omitempty"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReadPump pumps frames from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.gate.Release(c.admission)
		c.Close()
		log.Printf("WebSocket Client ReadPump stopped for User %s", c.UserID)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for User %s: %v", c.UserID, err)
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.pushError(utils.ErrInvalidInput, "malformed frame")
			continue
		}
		c.handleFrame(&frame)
	}
}

func (c *Client) handleFrame(frame *inboundFrame) {
	switch frame.Type {
	case actors.EventMessage:
		result, err := c.engine.SubmitMessage(&actors.SubmitMessageMsg{
			ConversationID: c.admission.Scope,
			SenderID:       c.UserID,
			Content:        frame.Content,
			ContentType:    frame.ContentType,
			ReplyToID:      frame.ReplyToID,
		})
		if err != nil {
			c.pushAppError(err)
			return
		}
		// The sender's ack is a direct push of the stored record, not a
		// fan-out copy.
		payload, _ := json.Marshal(&actors.MessageEvent{
			Type:           actors.EventMessage,
			ConversationID: c.admission.Scope,
			Message:        result,
		})
		if err := c.Push(payload); err != nil {
			log.Printf("WebSocket: failed to ack message for User %s: %v", c.UserID, err)
		}

	case actors.EventTyping:
		c.engine.Typing(&actors.TypingMsg{
			ConversationID: c.admission.Scope,
			UserID:         c.UserID,
			Username:       c.Username,
			IsTyping:       frame.IsTyping,
		})

	case actors.EventStatusUpdate:
		err := c.engine.UpdateStatus(&actors.UpdateStatusMsg{
			ConversationID: c.admission.Scope,
			MessageID:      frame.MessageID,
			RecipientID:    c.UserID,
			Status:         frame.Status,
		})
		if err != nil {
			c.pushAppError(err)
		}

	default:
		c.pushError(utils.ErrInvalidInput, "unknown frame type")
	}
}

func (c *Client) pushAppError(err error) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		c.pushError(appErr.Code, appErr.Message)
		return
	}
	c.pushError(utils.ErrDatabase, "internal error")
}

func (c *Client) pushError(code, message string) {
	payload, _ := json.Marshal(&errorEvent{Type: "error", Code: code, Message: message})
	if err := c.Push(payload); err != nil {
		log.Printf("WebSocket: failed to push error to User %s: %v", c.UserID, err)
	}
}

// WritePump pumps queued payloads to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		log.Printf("WebSocket Client WritePump stopped for User %s", c.UserID)
	}()
	for {
		select {
		case payload := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				log.Printf("WebSocket write error (NextWriter) for User %s: %v", c.UserID, err)
				return
			}
			w.Write(payload)

			// Add queued payloads to the current websocket message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				log.Printf("WebSocket write error (Close) for User %s: %v", c.UserID, err)
				return
			}
		case <-c.quit:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket write error (Ping) for User %s: %v", c.UserID, err)
				return
			}
		}
	}
}
