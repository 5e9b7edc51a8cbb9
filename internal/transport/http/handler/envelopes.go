package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-notify-engine/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorEnvelope carries a failure. Details is a field map for validation errors and a
// short description otherwise; raw internal error text only appears in development.
type ErrorEnvelope struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// CronEnvelope is the trigger endpoint's success response.
type CronEnvelope struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Report    *domain.DispatchReport `json:"report,omitempty"`
}

type SuccessEnvelope struct {
	Success bool `json:"success"`
}

type TokenEnvelope struct {
	Success bool   `json:"success"`
	TokenID string `json:"tokenId"`
}

type TokenListEnvelope struct {
	Tokens []domain.PushToken `json:"tokens"`
}

// NotificationIDsEnvelope answers trial scheduling and admin creation.
type NotificationIDsEnvelope struct {
	Success         bool    `json:"success"`
	NotificationIDs []int64 `json:"notificationIds"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorEnvelope{Error: msg})
}

// decode reads a JSON body into dst and rejects unknown fields.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
