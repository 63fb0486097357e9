package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/lorrc/coaching-realtime/internal/adapters/primary/http"
	mw "github.com/lorrc/coaching-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/coaching-realtime/internal/auth"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/mocks"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/core/services"
)

const testSecret = "router-test-secret-0123456789"

type testServer struct {
	router   chi.Router
	gateway  *mocks.MockRealtimeGateway
	webhooks *mocks.MockWebhookService
	tokens   *auth.TokenManager
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts ...func(*httpAdapter.RouterConfig)) *testServer {
	t.Helper()

	s := &testServer{
		gateway:  mocks.NewMockRealtimeGateway(),
		webhooks: mocks.NewMockWebhookService(),
		tokens:   auth.NewTokenManager(testSecret, time.Hour),
	}

	cfg := httpAdapter.RouterConfig{
		Gateway:  s.gateway,
		Webhooks: s.webhooks,
		Tokens:   s.tokens,
		Logger:   testLogger(),
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s.router = httpAdapter.NewRouter(cfg)

	t.Cleanup(func() {
		s.gateway.AssertExpectations(t)
		s.webhooks.AssertExpectations(t)
	})
	return s
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := s.tokens.GenerateToken(userID, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message"`
}

// Health

type failingDB struct{}

func (failingDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_InMemoryStoreIsReady(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[httpAdapter.HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "in-memory endpoint store", resp.Checks["database"].Message)
	assert.NotEmpty(t, rec.Header().Get(mw.RequestIDHeader))
}

func TestHealth_DatabaseDown(t *testing.T) {
	s := newTestServer(t, func(cfg *httpAdapter.RouterConfig) {
		cfg.DB = failingDB{}
	})

	rec := s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decode[httpAdapter.HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["database"].Message)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// Presence and typing

func TestPresence_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/status/heartbeat", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/status/heartbeat", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.gateway.AssertNotCalled(t, "Heartbeat", mock.Anything)
}

func TestPresence_Heartbeat(t *testing.T) {
	s := newTestServer(t)
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.gateway.On("Heartbeat", "client-1").Return(domain.PresenceStatus{
		UserID: "client-1", Online: true, LastSeenAt: &seen,
	})

	rec := s.do(t, http.MethodPost, "/api/v1/status/heartbeat", s.token(t, "client-1", auth.RoleClient), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[envelope[domain.PresenceStatus]](t, rec)
	assert.Equal(t, "client-1", resp.Data.UserID)
	assert.True(t, resp.Data.Online)
	require.NotNil(t, resp.Data.LastSeenAt)
	assert.True(t, seen.Equal(*resp.Data.LastSeenAt))
}

func TestPresence_StatusAndOnline(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "coach-1", auth.RoleCoach)

	s.gateway.On("Status", "client-9").Return(domain.PresenceStatus{UserID: "client-9"})
	s.gateway.On("OnlineUsers").Return(nil).Once()

	rec := s.do(t, http.MethodGet, "/api/v1/status/client-9", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[envelope[domain.PresenceStatus]](t, rec).Data.Online)

	rec = s.do(t, http.MethodGet, "/api/v1/status/online", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[httpAdapter.ListResponse[string]](t, rec)
	assert.Equal(t, []string{}, list.Data)
	assert.Zero(t, list.Count)
}

func TestTyping(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		setup      func(gw *mocks.MockRealtimeGateway)
		wantStatus int
		wantCode   string
	}{
		{
			name: "start typing",
			body: map[string]any{"targetUserId": "coach-1", "isTyping": true},
			setup: func(gw *mocks.MockRealtimeGateway) {
				gw.On("SetTyping", "client-1", "coach-1", true).Return(nil)
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name: "stop typing",
			body: map[string]any{"targetUserId": "coach-1", "isTyping": false},
			setup: func(gw *mocks.MockRealtimeGateway) {
				gw.On("SetTyping", "client-1", "coach-1", false).Return(nil)
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "missing isTyping",
			body:       map[string]any{"targetUserId": "coach-1"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown field",
			body:       map[string]any{"targetUserId": "coach-1", "isTyping": true, "extra": 1},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name: "typing to self",
			body: map[string]any{"targetUserId": "client-1", "isTyping": true},
			setup: func(gw *mocks.MockRealtimeGateway) {
				gw.On("SetTyping", "client-1", "client-1", true).Return(apperrors.ErrTypingToSelf)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			if tt.setup != nil {
				tt.setup(s.gateway)
			}

			rec := s.do(t, http.MethodPost, "/api/v1/typing", s.token(t, "client-1", auth.RoleClient), tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCode != "" {
				resp := decode[httpAdapter.ErrorResponse](t, rec)
				assert.Equal(t, tt.wantCode, resp.Code)
			}
		})
	}
}

func TestTyping_ListWhoIsTypingToMe(t *testing.T) {
	s := newTestServer(t)
	s.gateway.On("TypingTo", "coach-1").Return([]string{"client-1", "client-2"})

	rec := s.do(t, http.MethodGet, "/api/v1/typing", s.token(t, "coach-1", auth.RoleCoach), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[httpAdapter.ListResponse[string]](t, rec)
	assert.Equal(t, []string{"client-1", "client-2"}, list.Data)
	assert.Equal(t, 2, list.Count)
}

// Domain event ingress

func validMessage() map[string]any {
	return map[string]any{
		"id":          "msg-1",
		"senderId":    "client-1",
		"recipientId": "coach-1",
		"body":        "Had oats for breakfast",
		"sentAt":      "2026-03-01T08:00:00Z",
	}
}

func TestMessages(t *testing.T) {
	t.Run("sender publishes", func(t *testing.T) {
		s := newTestServer(t)
		s.gateway.On("MessageSent", mock.MatchedBy(func(m domain.Message) bool {
			return m.ID == "msg-1" && m.SenderID == "client-1" && m.RecipientID == "coach-1"
		})).Return(nil)

		rec := s.do(t, http.MethodPost, "/api/v1/messages", s.token(t, "client-1", auth.RoleClient), validMessage())
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, "message event published", decode[envelope[any]](t, rec).Message)
	})

	t.Run("impersonation forbidden", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/messages", s.token(t, "coach-1", auth.RoleCoach), validMessage())
		assert.Equal(t, http.StatusForbidden, rec.Code)
		s.gateway.AssertNotCalled(t, "MessageSent", mock.Anything)
	})

	t.Run("admin may publish for anyone", func(t *testing.T) {
		s := newTestServer(t)
		s.gateway.On("MessageSent", mock.Anything).Return(nil)

		rec := s.do(t, http.MethodPost, "/api/v1/messages", s.token(t, "ops", auth.RoleAdmin), validMessage())
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("missing recipient", func(t *testing.T) {
		s := newTestServer(t)
		msg := validMessage()
		delete(msg, "recipientId")

		rec := s.do(t, http.MethodPost, "/api/v1/messages", s.token(t, "client-1", auth.RoleClient), msg)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := decode[httpAdapter.ValidationErrorResponse](t, rec)
		assert.Contains(t, resp.Fields, "recipientId")
	})

	t.Run("empty body", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/messages", s.token(t, "client-1", auth.RoleClient), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func validAppointment() map[string]any {
	return map[string]any{
		"id":       "appt-1",
		"clientId": "client-1",
		"coachId":  "coach-1",
		"status":   "SCHEDULED",
		"startsAt": "2026-03-02T09:00:00Z",
		"endsAt":   "2026-03-02T09:30:00Z",
	}
}

func TestAppointments(t *testing.T) {
	t.Run("participant publishes each action", func(t *testing.T) {
		actions := map[string]domain.EventType{
			"created":   domain.EventAppointmentCreated,
			"updated":   domain.EventAppointmentUpdated,
			"cancelled": domain.EventAppointmentCancelled,
		}
		for action, eventType := range actions {
			s := newTestServer(t)
			s.gateway.On("AppointmentChanged", eventType, mock.MatchedBy(func(a domain.Appointment) bool {
				return a.ID == "appt-1"
			})).Return(nil)

			rec := s.do(t, http.MethodPost, "/api/v1/appointments/"+action, s.token(t, "coach-1", auth.RoleCoach), validAppointment())
			assert.Equal(t, http.StatusAccepted, rec.Code, action)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/appointments/rescheduled", s.token(t, "coach-1", auth.RoleCoach), validAppointment())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("outsider forbidden", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/appointments/created", s.token(t, "coach-2", auth.RoleCoach), validAppointment())
		assert.Equal(t, http.StatusForbidden, rec.Code)
		s.gateway.AssertNotCalled(t, "AppointmentChanged", mock.Anything, mock.Anything)
	})

	t.Run("ends before it starts", func(t *testing.T) {
		s := newTestServer(t)
		appt := validAppointment()
		appt["endsAt"] = "2026-03-02T08:00:00Z"

		rec := s.do(t, http.MethodPost, "/api/v1/appointments/updated", s.token(t, "coach-1", auth.RoleCoach), appt)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

// Broadcast and notifications

func TestBroadcast(t *testing.T) {
	t.Run("admin only", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/broadcast", s.token(t, "coach-1", auth.RoleCoach), map[string]any{"title": "hi"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("defaults to announcement", func(t *testing.T) {
		s := newTestServer(t)
		s.gateway.On("Broadcast", domain.EventAnnouncement, domain.NotificationPayload{
			Title: "Maintenance", Body: "Back at noon",
		}).Return()

		rec := s.do(t, http.MethodPost, "/api/v1/broadcast", s.token(t, "ops", auth.RoleAdmin), map[string]any{
			"title": "Maintenance", "body": "Back at noon",
		})
		assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	})

	t.Run("explicit notification type", func(t *testing.T) {
		s := newTestServer(t)
		s.gateway.On("Broadcast", domain.EventNotification, mock.Anything).Return()

		rec := s.do(t, http.MethodPost, "/api/v1/broadcast", s.token(t, "ops", auth.RoleAdmin), map[string]any{
			"title": "New recipes", "type": "notification",
		})
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("rejects control event types", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/broadcast", s.token(t, "ops", auth.RoleAdmin), map[string]any{
			"title": "x", "type": "user_online",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		s.gateway.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	})

	t.Run("rate limited per user", func(t *testing.T) {
		limiter := mw.NewUserRateLimiter(mw.BroadcastRateLimiterConfig(0.001, 1))
		t.Cleanup(limiter.Stop)

		s := newTestServer(t, func(cfg *httpAdapter.RouterConfig) {
			cfg.BroadcastLimiter = limiter
		})
		s.gateway.On("Broadcast", domain.EventAnnouncement, mock.Anything).Return().Twice()
		body := map[string]any{"title": "Once"}

		rec := s.do(t, http.MethodPost, "/api/v1/broadcast", s.token(t, "ops", auth.RoleAdmin), body)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/v1/broadcast", s.token(t, "ops", auth.RoleAdmin), body)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/v1/broadcast", s.token(t, "ops-2", auth.RoleAdmin), body)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		s.gateway.AssertNumberOfCalls(t, "Broadcast", 2)
	})
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	s.gateway.On("Notify", "client-1", domain.EventNotification, domain.NotificationPayload{
		Title: "Meal plan updated", Link: "https://app.example.com/plans/1",
	}).Return()

	rec := s.do(t, http.MethodPost, "/api/v1/notifications", s.token(t, "ops", auth.RoleAdmin), map[string]any{
		"userId": "client-1", "title": "Meal plan updated", "link": "https://app.example.com/plans/1",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/notifications", s.token(t, "ops", auth.RoleAdmin), map[string]any{
		"title": "No target",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// Webhooks

func sampleEndpoint() *domain.WebhookEndpoint {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.WebhookEndpoint{
		ID:        "ep-1",
		URL:       "https://hooks.example.com/coaching",
		Secret:    "0123456789abcdef-secret",
		Events:    []domain.WebhookEventType{domain.WebhookMessageSent},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWebhooks_AdminOnly(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/webhooks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/webhooks", s.token(t, "coach-1", auth.RoleCoach), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhooks_Register(t *testing.T) {
	s := newTestServer(t)
	ep := sampleEndpoint()
	s.webhooks.On("RegisterEndpoint", mock.Anything, ports.RegisterWebhookParams{
		URL:    ep.URL,
		Secret: ep.Secret,
		Events: ep.Events,
	}).Return(ep, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks", s.token(t, "ops", auth.RoleAdmin), map[string]any{
		"url":    " " + ep.URL + " ",
		"secret": ep.Secret,
		"events": []string{"message.sent"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), ep.Secret)

	resp := decode[envelope[httpAdapter.WebhookEndpointDTO]](t, rec)
	assert.Equal(t, "ep-1", resp.Data.ID)
	assert.Equal(t, []string{"message.sent"}, resp.Data.Events)
	assert.True(t, resp.Data.IsActive)
}

func TestWebhooks_RegisterValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks", s.token(t, "ops", auth.RoleAdmin), map[string]any{
		"url":    "ftp://hooks.example.com",
		"secret": "short",
		"events": []string{"message.deleted"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decode[httpAdapter.ValidationErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "url")
	assert.Contains(t, resp.Fields, "secret")
	assert.Contains(t, resp.Fields, "events")
}

func TestWebhooks_ListGetDelete(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "ops", auth.RoleAdmin)
	ep := sampleEndpoint()

	s.webhooks.On("ListEndpoints").Return([]*domain.WebhookEndpoint{ep})
	s.webhooks.On("GetEndpoint", "ep-1").Return(ep, nil)
	s.webhooks.On("GetEndpoint", "missing").Return(nil, apperrors.ErrEndpointNotFound)
	s.webhooks.On("UnregisterEndpoint", mock.Anything, "ep-1").Return(nil)

	rec := s.do(t, http.MethodGet, "/api/v1/webhooks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[httpAdapter.ListResponse[httpAdapter.WebhookEndpointDTO]](t, rec).Count)
	assert.NotContains(t, rec.Body.String(), ep.Secret)

	rec = s.do(t, http.MethodGet, "/api/v1/webhooks/ep-1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/webhooks/missing", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ENDPOINT_NOT_FOUND", decode[httpAdapter.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/webhooks/ep-1", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWebhooks_SuspendAndReactivate(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "ops", auth.RoleAdmin)
	ep := sampleEndpoint()
	ep.IsActive = false

	s.webhooks.On("SuspendEndpoint", mock.Anything, "ep-1").Return(nil).Once()
	s.webhooks.On("SuspendEndpoint", mock.Anything, "ep-1").Return(apperrors.ErrEndpointSuspended).Once()
	s.webhooks.On("ReactivateEndpoint", mock.Anything, "ep-1").Return(nil)
	s.webhooks.On("GetEndpoint", "ep-1").Return(ep, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/ep-1/suspend", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "suspended", decode[envelope[httpAdapter.WebhookEndpointDTO]](t, rec).Data.Status)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/ep-1/suspend", token, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ENDPOINT_SUSPENDED", decode[httpAdapter.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/ep-1/reactivate", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhooks_SendTest(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "ops", auth.RoleAdmin)

	s.webhooks.On("SendTest", mock.Anything, "ep-1", domain.WebhookEventType("")).
		Return(ports.DeliveryResult{StatusCode: 200, Success: true, DurationMs: 12}, nil)
	s.webhooks.On("SendTest", mock.Anything, "ep-1", domain.WebhookAppointmentCreated).
		Return(ports.DeliveryResult{StatusCode: 500, Error: "HTTP 500"}, nil)
	s.webhooks.On("SendTest", mock.Anything, "missing", mock.Anything).
		Return(ports.DeliveryResult{}, apperrors.ErrEndpointNotFound)

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/ep-1/test", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[envelope[ports.DeliveryResult]](t, rec).Data.Success)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/ep-1/test", token, map[string]any{"type": "appointment.created"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[envelope[ports.DeliveryResult]](t, rec).Data
	assert.False(t, result.Success)
	assert.Equal(t, 500, result.StatusCode)

	rec = s.do(t, http.MethodPost, "/api/v1/webhooks/missing/test", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhooks_VerifyIsPublic(t *testing.T) {
	s := newTestServer(t)
	body := `{"id":"evt_1","type":"message.sent"}`
	secret := "0123456789abcdef"

	signRec := s.do(t, http.MethodPost, "/api/v1/webhooks/verify", "", map[string]any{
		"body": body, "signature": services.Sign([]byte(body), secret), "secret": secret,
	})
	require.Equal(t, http.StatusOK, signRec.Code, signRec.Body.String())
	assert.True(t, decode[envelope[map[string]bool]](t, signRec).Data["valid"])

	rec := s.do(t, http.MethodPost, "/api/v1/webhooks/verify", "", map[string]any{
		"body": body + " ", "signature": services.Sign([]byte(body), secret), "secret": secret,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SIGNATURE_MISMATCH", decode[httpAdapter.ErrorResponse](t, rec).Code)
}
