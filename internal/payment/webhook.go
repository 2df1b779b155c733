package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// SignatureHeader содержит подпись тела вебхука.
const SignatureHeader = "X-Signature"

// Типы событий, присылаемых шлюзом.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventCheckoutFailed    = "checkout.session.failed"
)

// ErrInvalidSignature возвращается, если подпись вебхука не совпала.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event описывает событие платёжного шлюза.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Sign вычисляет HMAC-SHA256 подпись тела в hex.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверяет подпись тела вебхука.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(Sign(secret, body)), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseEvent проверяет подпись и разбирает событие.
func ParseEvent(secret string, body []byte, signature string) (*Event, error) {
	if err := VerifySignature(secret, body, signature); err != nil {
		return nil, err
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" || ev.SessionID == "" {
		return nil, errors.New("event without type or session id")
	}
	return &ev, nil
}
