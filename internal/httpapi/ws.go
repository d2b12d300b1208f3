package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/solace/internal/protocol"
	"github.com/ent0n29/solace/internal/turn"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if s.turns == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "turn service not configured")
		return
	}
	actorID := strings.TrimSpace(r.URL.Query().Get("actor_id"))
	if actorID == "" {
		actorID = turn.AnonymousActor
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.logger.With(zap.String("actor_id", actorID), zap.String("session_id", sessionID))
	log.Debug("chat socket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.UserMessage, 32)
	outbound := make(chan any, 64)

	// Turns for one socket run strictly in order so replies line up with messages.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(outbound)
		for msg := range inbound {
			if ctx.Err() != nil {
				continue
			}
			sid := sessionID
			if strings.TrimSpace(msg.SessionID) != "" {
				sid = strings.TrimSpace(msg.SessionID)
			}
			res, err := s.turns.HandleTurn(ctx, actorID, sid, msg.Text)
			var frame any
			switch {
			case errors.Is(err, turn.ErrInvalidInput):
				frame = protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sid,
					Code:      "invalid_input",
					Source:    "turn",
					Detail:    "message must not be empty",
				}
			case err != nil:
				frame = protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sid,
					Code:      "internal",
					Source:    "turn",
					Retryable: true,
					Detail:    "turn failed",
				}
			default:
				frame = protocol.AssistantReply{
					Type:           protocol.TypeAssistantReply,
					SessionID:      res.SessionID,
					Text:           res.Reply,
					RiskLevel:      res.RiskLevel.String(),
					AlertTriggered: res.AlertTriggered,
				}
			}
			select {
			case <-ctx.Done():
			case outbound <- frame:
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("chat socket write failed", zap.Error(err))
				cancel()
				_ = conn.Close()
				for range outbound {
				}
				return
			}
		}
	}()

	send := func(frame any) {
		select {
		case outbound <- frame:
		default:
			log.Warn("chat socket outbound queue full, dropping frame")
		}
	}

	send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "session_ready",
	})

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		switch m := parsed.(type) {
		case protocol.UserMessage:
			select {
			case <-ctx.Done():
				break readLoop
			case inbound <- m:
			}
		case protocol.ClientControl:
			if m.Action == "end_session" {
				break readLoop
			}
		}
	}

	close(inbound)
	<-runDone
	<-writerDone
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	log.Debug("chat socket closed")
}
