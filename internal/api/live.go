package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"gwi.com/firechat/internal/core"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames; anything larger is a protocol error.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Tokens, not cookies, authenticate the upgrade
	},
}

type messagesFrame struct {
	Type     string                `json:"type"`
	Loading  bool                  `json:"loading"`
	Messages []core.DisplayMessage `json:"messages"`
}

type recipientFrame struct {
	Type      string         `json:"type"`
	Recipient core.Recipient `json:"recipient"`
}

type conversationsFrame struct {
	Type          string                     `json:"type"`
	Conversations []core.ConversationSummary `json:"conversations"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// liveConn owns one upgraded connection. Only the handler goroutine writes;
// the read pump just services control frames and notices disconnects.
type liveConn struct {
	conn *websocket.Conn
	done chan struct{}
}

func newLiveConn(conn *websocket.Conn, cancel context.CancelFunc) *liveConn {
	lc := &liveConn{conn: conn, done: make(chan struct{})}
	go lc.readPump(cancel)
	return lc
}

func (lc *liveConn) readPump(cancel context.CancelFunc) {
	defer close(lc.done)
	defer cancel()
	lc.conn.SetReadLimit(maxMessageSize)
	lc.conn.SetReadDeadline(time.Now().Add(pongWait))
	lc.conn.SetPongHandler(func(string) error { lc.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := lc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("Live connection read error")
			}
			return
		}
	}
}

func (lc *liveConn) send(v any) error {
	lc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return lc.conn.WriteJSON(v)
}

func (lc *liveConn) ping() error {
	lc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return lc.conn.WriteMessage(websocket.PingMessage, nil)
}

// close sends a close frame, then waits for the read pump to exit.
func (lc *liveConn) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	lc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	lc.conn.Close()
	<-lc.done
}

// ConversationLiveHandler streams one conversation: the prefetched messages
// first, then the live feed and the recipient's profile. Both live queries are
// released when the client disconnects.
func (h *APIHandler) ConversationLiveHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	user := currentUser(r)

	details, err := h.chatService.OpenConversation(r.Context(), conversationID, user)
	if err != nil {
		writeError(w, r, err, "open conversation")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user", user).Msg("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	lc := newLiveConn(conn, cancel)

	view := core.NewFeedView(details.Messages)
	messages := h.chatService.WatchMessages(ctx, conversationID)
	defer messages.Close()
	recipient := h.chatService.WatchRecipient(ctx, details.Conversation.Users, user)
	defer recipient.Close()

	log.Debug().Str("user", user).Str("conversation", conversationID).Msg("Live conversation opened")

	if err := lc.send(messagesFrame{Type: "messages", Loading: view.Loading(), Messages: view.Messages()}); err != nil {
		lc.close(websocket.CloseInternalServerErr, "")
		return
	}
	if err := lc.send(recipientFrame{Type: "recipient", Recipient: details.Recipient}); err != nil {
		lc.close(websocket.CloseInternalServerErr, "")
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			lc.close(websocket.CloseNormalClosure, "")
			log.Debug().Str("user", user).Str("conversation", conversationID).Msg("Live conversation closed")
			return

		case update, ok := <-messages.Updates():
			if !ok {
				h.endLive(lc, r, messages.Err())
				return
			}
			view.Apply(update)
			err = lc.send(messagesFrame{Type: "messages", Loading: view.Loading(), Messages: view.Messages()})

		case rcpt, ok := <-recipient.Updates():
			if !ok {
				h.endLive(lc, r, recipient.Err())
				return
			}
			if rcpt.Loading {
				continue // The prefetched recipient is already on screen
			}
			err = lc.send(recipientFrame{Type: "recipient", Recipient: rcpt})

		case <-ticker.C:
			err = lc.ping()
		}

		if err != nil {
			log.Debug().Err(err).Str("user", user).Msg("Live conversation write failed")
			cancel()
			lc.close(websocket.CloseGoingAway, "")
			return
		}
	}
}

// ConversationsLiveHandler streams the caller's conversation list.
func (h *APIHandler) ConversationsLiveHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user", user).Msg("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	lc := newLiveConn(conn, cancel)

	conversations := h.chatService.WatchConversations(ctx, user)
	defer conversations.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			lc.close(websocket.CloseNormalClosure, "")
			return

		case list, ok := <-conversations.Updates():
			if !ok {
				h.endLive(lc, r, conversations.Err())
				return
			}
			err = lc.send(conversationsFrame{Type: "conversations", Conversations: list})

		case <-ticker.C:
			err = lc.ping()
		}

		if err != nil {
			cancel()
			lc.close(websocket.CloseGoingAway, "")
			return
		}
	}
}

// endLive reports a failed live query to the client and hangs up. The
// failure is not retried; the client reconnects if it wants to.
func (h *APIHandler) endLive(lc *liveConn, r *http.Request, err error) {
	if err == nil {
		lc.close(websocket.CloseNormalClosure, "")
		return
	}
	log.Error().Err(err).Str("user", currentUser(r)).Str("path", r.URL.Path).Msg("Live query failed")
	lc.send(errorFrame{Type: "error", Error: "live query failed"})
	lc.close(websocket.CloseInternalServerErr, "live query failed")
}
