package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-notify-engine/internal/domain"
)

type mockTokenSvc struct{ mock.Mock }

func (m *mockTokenSvc) Register(ctx context.Context, userID string, req domain.RegisterTokenRequest) (string, error) {
	args := m.Called(ctx, userID, req)
	return args.String(0), args.Error(1)
}

func (m *mockTokenSvc) Deactivate(ctx context.Context, userID string, req domain.DeactivateTokenRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}

func (m *mockTokenSvc) List(ctx context.Context, userID string) ([]domain.PushToken, error) {
	args := m.Called(ctx, userID)
	tokens, _ := args.Get(0).([]domain.PushToken)
	return tokens, args.Error(1)
}

func TestRegisterToken_NoSession(t *testing.T) {
	h := NewPushTokenHandler(&mockTokenSvc{}, false)
	rr := httptest.NewRecorder()
	h.Register(rr, httptest.NewRequest(http.MethodPost, "/v1/push-tokens", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegisterToken_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockTokenSvc{}
	svc.On("Register", mock.Anything, "u1", domain.RegisterTokenRequest{Token: "abc", Platform: domain.PlatformAndroid}).
		Return("ptk_1", nil)
	h := NewPushTokenHandler(svc, false)

	r := bearerReq(t, p, http.MethodPost, "/v1/push-tokens", "u1", "user", []byte(`{"token":"abc","platform":"android"}`))
	rr := httptest.NewRecorder()
	serveAuthed(p, h.Register, rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp TokenEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ptk_1", resp.TokenID)
	svc.AssertExpectations(t)
}

func TestRegisterToken_ValidationDetails(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockTokenSvc{}
	svc.On("Register", mock.Anything, "u1", mock.Anything).
		Return("", &domain.ValidationError{Fields: map[string]string{"token": "is required"}})
	h := NewPushTokenHandler(svc, false)

	r := bearerReq(t, p, http.MethodPost, "/v1/push-tokens", "u1", "user", []byte(`{"token":""}`))
	rr := httptest.NewRecorder()
	serveAuthed(p, h.Register, rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "is required", resp.Details["token"])
}

func TestRegisterToken_MalformedBody(t *testing.T) {
	p := newTestJWTProvider(t)
	h := NewPushTokenHandler(&mockTokenSvc{}, false)
	r := bearerReq(t, p, http.MethodPost, "/v1/push-tokens", "u1", "user", []byte(`{"token":`))
	rr := httptest.NewRecorder()
	serveAuthed(p, h.Register, rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegisterToken_StorageErrorHidesDetail(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockTokenSvc{}
	svc.On("Register", mock.Anything, "u1", mock.Anything).
		Return("", domain.NewStorageError("register push token", assert.AnError))
	h := NewPushTokenHandler(svc, false)

	r := bearerReq(t, p, http.MethodPost, "/v1/push-tokens", "u1", "user", []byte(`{"token":"abc"}`))
	rr := httptest.NewRecorder()
	serveAuthed(p, h.Register, rr, r)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
}

func TestDeactivateToken(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockTokenSvc{}
	svc.On("Deactivate", mock.Anything, "u1", domain.DeactivateTokenRequest{Token: "abc"}).Return(nil)
	h := NewPushTokenHandler(svc, false)

	r := bearerReq(t, p, http.MethodDelete, "/v1/push-tokens", "u1", "user", []byte(`{"token":"abc"}`))
	rr := httptest.NewRecorder()
	serveAuthed(p, h.Deactivate, rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	svc.AssertExpectations(t)
}

func TestListTokens_EmptyIsArray(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockTokenSvc{}
	svc.On("List", mock.Anything, "u1").Return(nil, nil)
	h := NewPushTokenHandler(svc, false)

	r := bearerReq(t, p, http.MethodGet, "/v1/push-tokens", "u1", "user", nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, h.List, rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"tokens":[]}`, rr.Body.String())
}
