package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/go-notify-engine/internal/application/notification"
	"github.com/go-notify-engine/internal/domain"
	"github.com/go-notify-engine/internal/transport/http/middleware"
)

// NotificationHandler serves the recipient inbox and the admin producer and history endpoints.
type NotificationHandler struct {
	svc     notification.Service
	history notification.HistoryService
	debug   bool
}

func NewNotificationHandler(svc notification.Service, history notification.HistoryService, debug bool) *NotificationHandler {
	return &NotificationHandler{svc: svc, history: history, debug: debug}
}

func (h *NotificationHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, err := intParam(r, "limit", notification.DefaultInboxLimit)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	inbox, err := h.svc.Inbox(r.Context(), claims.UserID, limit)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.receipt(w, r, h.svc.MarkRead)
}

func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.receipt(w, r, h.svc.Dismiss)
}

func (h *NotificationHandler) receipt(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, userID string, id int64) error) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, domain.NewValidationError("id", "must be a positive integer"), h.debug)
		return
	}
	if err := apply(r.Context(), claims.UserID, id); err != nil {
		httpError(w, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true})
}

// Create is the admin producer endpoint.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	writeJSON(w, http.StatusCreated, NotificationIDsEnvelope{Success: true, NotificationIDs: ids})
}

// History lists grouped notification history. Access is checked again by the service.
func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	pageSize, err := intParam(r, "pageSize", notification.DefaultPageSize)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	result, err := h.history.List(r.Context(), domain.Caller{UserID: claims.UserID, Role: claims.Role}, page, pageSize)
	if err != nil {
		httpError(w, err, h.debug)
		return
	}
	if result.Notifications == nil {
		result.Notifications = []domain.NotificationGroup{}
	}
	writeJSON(w, http.StatusOK, result)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return n, nil
}
