package handler

import (
	"net/http"

	"github.com/go-notify-engine/internal/application/pushtoken"
	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/transport/http/middleware"
)

// PushTokenHandler handles push token registration endpoints.
type PushTokenHandler struct {
	svc   pushtoken.Service
	debug bool
}

func NewPushTokenHandler(svc pushtoken.Service, debug bool) *PushTokenHandler {
	return &PushTokenHandler{svc: svc, debug: debug}
}

func (h *PushTokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RegisterTokenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tokenID, err := h.svc.Register(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, TokenEnvelope{Success: true, TokenID: tokenID})
}

func (h *PushTokenHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.DeactivateTokenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Deactivate(r.Context(), claims.UserID, req); err != nil {
		httpError(w, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true})
}

func (h *PushTokenHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tokens, err := h.svc.List(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	if tokens == nil {
		tokens = []domain.PushToken{}
	}
	writeJSON(w, http.StatusOK, TokenListEnvelope{Tokens: tokens})
}
