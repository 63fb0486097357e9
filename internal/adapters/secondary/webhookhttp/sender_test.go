package webhookhttp_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lorrc/coaching-realtime/internal/adapters/secondary/webhookhttp"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSender() *webhookhttp.Sender {
	return webhookhttp.NewSender(nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSender_Success(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	body := []byte(`{"id":"evt-1","type":"message.sent","data":{},"timestamp":1,"source":"test"}`)
	result, err := newSender().Send(context.Background(), ports.DeliveryRequest{
		URL:       srv.URL,
		Body:      body,
		Signature: "abc123",
		EventType: domain.WebhookMessageSent,
		EventID:   "evt-1",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusAccepted, result.StatusCode)
	assert.Equal(t, body, gotBody)
	assert.Equal(t, "abc123", gotHeaders.Get(webhookhttp.HeaderSignature))
	assert.Equal(t, "message.sent", gotHeaders.Get(webhookhttp.HeaderEvent))
	assert.Equal(t, "evt-1", gotHeaders.Get(webhookhttp.HeaderID))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
}

func TestSender_Non2xxIsFailure(t *testing.T) {
	for _, status := range []int{http.StatusMovedPermanently, http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if status == http.StatusMovedPermanently {
				// A redirect to a 404 still ends non-2xx.
				http.Redirect(w, r, "/missing", status)
				return
			}
			w.WriteHeader(status)
		}))

		result, err := newSender().Send(context.Background(), ports.DeliveryRequest{URL: srv.URL, Body: []byte("{}")})
		srv.Close()

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrDeliveryFailure)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	}
}

func TestSender_TimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := newSender().Send(ctx, ports.DeliveryRequest{URL: srv.URL, Body: []byte("{}")})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDeliveryFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, result.Success)
}

func TestSender_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newSender().Send(context.Background(), ports.DeliveryRequest{URL: url, Body: []byte("{}")})
	assert.ErrorIs(t, err, apperrors.ErrDeliveryFailure)
}
