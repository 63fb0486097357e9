package webhookhttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-ID"

	// maxDrainBytes bounds how much of a response body is read before closing.
	maxDrainBytes = 64 << 10
)

// Sender is a secondary adapter that POSTs signed webhook bodies.
// It implements the ports.WebhookSender interface.
type Sender struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

var _ ports.WebhookSender = (*Sender)(nil)

// NewSender creates a sender. Deadlines come from the context passed to
// Send, so the client needs no timeout of its own. A nil client uses a
// fresh http.Client.
func NewSender(client *http.Client, userAgent string, logger *slog.Logger) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = "coaching-realtime-webhooks"
	}
	return &Sender{
		client:    client,
		userAgent: userAgent,
		logger:    logger.With("component", "webhook_sender"),
	}
}

// Send performs one delivery attempt. Any 2xx response is success; other
// statuses and transport errors come back as *errors.DeliveryError.
func (s *Sender) Send(ctx context.Context, req ports.DeliveryRequest) (ports.DeliveryResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return ports.DeliveryResult{Error: err.Error()}, &apperrors.DeliveryError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", s.userAgent)
	httpReq.Header.Set(HeaderSignature, req.Signature)
	httpReq.Header.Set(HeaderEvent, string(req.EventType))
	httpReq.Header.Set(HeaderID, req.EventID)

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ports.DeliveryResult{DurationMs: elapsed, Error: err.Error()}, &apperrors.DeliveryError{Cause: err}
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	result := ports.DeliveryResult{
		StatusCode: resp.StatusCode,
		DurationMs: elapsed,
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if !result.Success {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result, &apperrors.DeliveryError{StatusCode: resp.StatusCode}
	}

	s.logger.Debug("webhook delivered",
		"url", req.URL, "event_id", req.EventID, "status", resp.StatusCode, "duration_ms", elapsed)
	return result, nil
}
