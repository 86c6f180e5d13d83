// cmd/botserver/server.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"shopbot-core/internal/channel"
	"shopbot-core/internal/common/errors"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/engine"
	"shopbot-core/internal/models"
	"shopbot-core/pkg/registry"
)

// apiServer is the HTTP face of the conversation engine: one generic
// turn endpoint for the widget and a webhook for messenger.
type apiServer struct {
	engine      *engine.Engine
	validator   *registry.Validator
	sender      *channel.GraphSender
	verifyToken string
	logger      logger.Logger
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/turns", s.handleTurn)
	mux.HandleFunc("GET /webhooks/messenger", s.handleMessengerVerify)
	mux.HandleFunc("POST /webhooks/messenger/{merchantID}", s.handleMessengerEvent)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleHealth)
	return mux
}

type turnRequest struct {
	MerchantID string `json:"merchantId"`
	Channel    string `json:"channel"`
	SessionID  string `json:"sessionId"`
	Message    string `json:"message"`
}

type turnResponse struct {
	Text     string                 `json:"text"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	Intent   string                 `json:"intent,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *apiServer) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}

	out, err := s.engine.ProcessTurn(r.Context(), req.MerchantID, models.Channel(req.Channel), req.SessionID, req.Message)
	if err != nil {
		std := errors.AsStandard(err)
		writeError(w, statusFor(std), string(std.Code), std.Message)
		return
	}

	if s.validator != nil && out.Response.Intent != "" {
		if err := s.validator.ValidateResponse(out.Response.Intent, out.Response); err != nil {
			// Contract drift is a bug to fix, not a reason to drop the
			// shopper's reply.
			s.logger.WithError(err).Error("response failed schema validation", map[string]interface{}{
				"intent": out.Response.Intent,
			})
		}
	}

	writeJSON(w, http.StatusOK, turnResponse{
		Text:     out.Rendered.Text,
		Payload:  out.Rendered.Payload,
		Intent:   out.Response.Intent,
		Metadata: out.Response.Metadata,
	})
}

// handleMessengerVerify answers the subscription handshake.
func (s *apiServer) handleMessengerVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

type messengerEvent struct {
	Entry []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// handleMessengerEvent processes inbound messages and replies through
// the send API. Always acks 200: the platform retries non-2xx deliveries
// and a poison event would loop forever.
func (s *apiServer) handleMessengerEvent(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("merchantID")

	var event messengerEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.logger.WithError(err).Warn("malformed webhook event", nil)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range event.Entry {
		for _, msg := range entry.Messaging {
			if msg.Sender.ID == "" || msg.Message.Text == "" {
				continue
			}
			s.processMessengerTurn(r.Context(), merchantID, msg.Sender.ID, msg.Message.Text)
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("EVENT_RECEIVED"))
}

func (s *apiServer) processMessengerTurn(ctx context.Context, merchantID, senderID, text string) {
	out, err := s.engine.ProcessTurn(ctx, merchantID, models.ChannelMessenger, senderID, text)
	if err != nil {
		s.logger.WithError(err).Error("messenger turn failed", map[string]interface{}{
			"merchantId": merchantID,
		})
		return
	}
	if suppressed, _ := out.Response.Metadata["suppressed"].(bool); suppressed {
		return
	}
	if s.sender != nil {
		if err := s.sender.SendText(ctx, senderID, out.Rendered.Text); err != nil {
			s.logger.WithError(err).Error("messenger reply failed", map[string]interface{}{
				"merchantId": merchantID,
			})
		}
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func statusFor(std *errors.StandardError) int {
	switch std.Code {
	case errors.ErrCodeMerchantNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidSession, errors.ErrCodeEmptyMessage:
		return http.StatusBadRequest
	default:
		if std.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
