package chat

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the WhatsApp webhook over HTTP: the GET verification
// handshake Meta performs at subscription time, and POST message
// deliveries.
type Handler struct {
	svc         *Service
	verifyToken string
	logger      *zap.Logger
}

func NewHandler(svc *Service, verifyToken string, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, verifyToken: verifyToken, logger: logger}
}

// Verify answers the subscription handshake: echo hub.challenge only
// when the mode is "subscribe" and the token matches. An unconfigured
// token never matches, so a half-configured deployment stays closed.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}

	h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// Receive processes a message delivery. Every extracted message gets a
// reply in the response body; an envelope with no readable messages is
// still acknowledged so the sender does not redeliver it.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("webhook payload undecodable", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	replies := make([]Reply, 0)
	for _, msg := range payload.Messages() {
		replies = append(replies, h.svc.HandleMessage(r.Context(), msg))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"replies": replies,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
