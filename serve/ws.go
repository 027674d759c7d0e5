package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	chatWSWriteWait = 10 * time.Second
	chatWSPongWait  = 60 * time.Second
	chatWSPingEvery = (chatWSPongWait * 9) / 10
	// chatWSMaxQueued is the number of turns waiting behind the one being
	// answered. Further turns are refused with an error message.
	chatWSMaxQueued = 8
)

var chatWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// chatWSInbound is a chat turn sent by the client.
type chatWSInbound struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	History json.RawMessage `json:"history,omitempty"`
}

// chatWSOutbound is one of "delta", "done" or "error".
type chatWSOutbound struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleChatWS relays chat answers over a websocket. Turns are answered in
// the order they arrive; each ends with a done or error message.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := chatWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(chatWSPongWait)); err != nil {
		slog.Warn("chat ws set read deadline failed", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(chatWSPongWait))
	})

	writeCh := make(chan chatWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(chatWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	turns := make(chan chatWSInbound, chatWSMaxQueued)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case in := <-turns:
				s.answerWS(ctx, in, writeCh)
			}
		}
	}()

	for {
		var in chatWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("chat ws closed", "error", err)
			}
			break
		}
		// The reader never blocks on a busy turn queue; it must keep
		// handling pongs.
		select {
		case turns <- in:
		default:
			select {
			case writeCh <- chatWSOutbound{Type: "error", Message: "too many pending chat messages"}:
			default:
				slog.Warn("chat ws backlog full, dropping message")
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	cancel()
	<-writerDone
}

func (s *Server) answerWS(ctx context.Context, in chatWSInbound, writeCh chan<- chatWSOutbound) {
	push := func(out chatWSOutbound) error {
		select {
		case writeCh <- out:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if in.Type != "" && in.Type != "chat" {
		push(chatWSOutbound{Type: "error", Message: "unknown message type: " + in.Type})
		return
	}
	var message string
	if err := json.Unmarshal(in.Message, &message); err != nil || message == "" {
		push(chatWSOutbound{Type: "error", Message: "Message is required and must be a string"})
		return
	}

	err := s.chat().Stream(ctx, message, in.History, func(delta string) error {
		return push(chatWSOutbound{Type: "delta", Text: delta})
	})
	if err != nil {
		slog.Error("chat error", "error", err)
		push(chatWSOutbound{Type: "error", Message: err.Error()})
		return
	}
	push(chatWSOutbound{Type: "done"})
}
