package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/metrics"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// WebhookConfig holds delivery and retry settings
type WebhookConfig struct {
	Timeout     time.Duration // Per-attempt deadline
	MaxFailures int           // Consecutive failures before suspension
	BackoffUnit time.Duration // Retry delay is BackoffUnit * 2^failures
	Source      string        // Source tag stamped on test events
	Now         func() time.Time
	Sleep       SleepFunc
}

// DefaultWebhookConfig returns the recommended delivery settings
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:     10 * time.Second,
		MaxFailures: 5,
		BackoffUnit: time.Second,
		Source:      "coaching-app",
	}
}

// WebhookBackoff returns the delay before retrying after the given number of
// consecutive failures.
func WebhookBackoff(unit time.Duration, failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	if failures > 30 {
		failures = 30
	}
	return unit * time.Duration(int64(1)<<failures)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// endpointState pairs an endpoint with the context its retries run under.
// Cancelling it aborts any backoff or in-flight attempt for the endpoint.
type endpointState struct {
	endpoint *domain.WebhookEndpoint
	ctx      context.Context
	cancel   context.CancelFunc
}

type deliveryTarget struct {
	state  *endpointState
	ctx    context.Context
	id     string
	url    string
	secret string
}

// WebhookDispatcher delivers signed events to external endpoints. Each
// (event, endpoint) pair runs in its own goroutine and retries sequentially
// until success or suspension.
type WebhookDispatcher struct {
	mu        sync.RWMutex
	endpoints map[string]*endpointState
	closed    bool

	repo    ports.WebhookEndpointRepository
	sender  ports.WebhookSender
	cfg     WebhookConfig
	now     func() time.Time
	sleep   SleepFunc
	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ ports.WebhookService = (*WebhookDispatcher)(nil)

// NewWebhookDispatcher creates a dispatcher. Call Load to restore persisted
// endpoints and Shutdown to stop pending retries.
func NewWebhookDispatcher(
	repo ports.WebhookEndpointRepository,
	sender ports.WebhookSender,
	cfg WebhookConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *WebhookDispatcher {
	defaults := DefaultWebhookConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaults.MaxFailures
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = defaults.BackoffUnit
	}
	if cfg.Source == "" {
		cfg.Source = defaults.Source
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	rootCtx, stop := context.WithCancel(context.Background())
	return &WebhookDispatcher{
		endpoints: make(map[string]*endpointState),
		repo:      repo,
		sender:    sender,
		cfg:       cfg,
		now:       now,
		sleep:     sleep,
		rootCtx:   rootCtx,
		stop:      stop,
		metrics:   m,
		logger:    logger.With("component", "webhook_dispatcher"),
	}
}

// Load replaces the in-memory endpoint set with the repository contents.
func (d *WebhookDispatcher) Load(ctx context.Context) error {
	endpoints, err := d.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load webhook endpoints: %w", err)
	}

	d.mu.Lock()
	for _, st := range d.endpoints {
		st.cancel()
	}
	d.endpoints = make(map[string]*endpointState, len(endpoints))
	for _, ep := range endpoints {
		d.endpoints[ep.ID] = d.newStateLocked(ep)
	}
	d.mu.Unlock()

	d.refreshGauges()
	d.logger.Info("webhook endpoints loaded", "count", len(endpoints))
	return nil
}

func (d *WebhookDispatcher) newStateLocked(ep *domain.WebhookEndpoint) *endpointState {
	ctx, cancel := context.WithCancel(d.rootCtx)
	return &endpointState{endpoint: ep, ctx: ctx, cancel: cancel}
}

// RegisterEndpoint validates, persists and activates a new endpoint.
func (d *WebhookDispatcher) RegisterEndpoint(ctx context.Context, params ports.RegisterWebhookParams) (*domain.WebhookEndpoint, error) {
	ep, err := domain.NewWebhookEndpoint(domain.WebhookEndpointParams{
		URL:    params.URL,
		Secret: params.Secret,
		Events: params.Events,
	}, d.now())
	if err != nil {
		return nil, err
	}

	if err := d.repo.Create(ctx, ep); err != nil {
		return nil, fmt.Errorf("failed to persist webhook endpoint: %w", err)
	}

	d.mu.Lock()
	d.endpoints[ep.ID] = d.newStateLocked(ep)
	out := ep.Clone()
	d.mu.Unlock()

	d.refreshGauges()
	d.logger.Info("webhook endpoint registered", "endpoint_id", ep.ID, "url", ep.URL, "events", ep.Events)
	return out, nil
}

// UnregisterEndpoint deletes the endpoint and cancels its pending retries.
func (d *WebhookDispatcher) UnregisterEndpoint(ctx context.Context, id string) error {
	d.mu.RLock()
	_, ok := d.endpoints[id]
	d.mu.RUnlock()
	if !ok {
		return apperrors.ErrEndpointNotFound
	}

	if err := d.repo.Delete(ctx, id); err != nil && !errors.Is(err, apperrors.ErrEndpointNotFound) {
		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}

	d.mu.Lock()
	if st, ok := d.endpoints[id]; ok {
		st.cancel()
		delete(d.endpoints, id)
	}
	d.mu.Unlock()

	d.refreshGauges()
	d.logger.Info("webhook endpoint unregistered", "endpoint_id", id)
	return nil
}

// GetEndpoint returns a copy of the endpoint.
func (d *WebhookDispatcher) GetEndpoint(id string) (*domain.WebhookEndpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.endpoints[id]
	if !ok {
		return nil, apperrors.ErrEndpointNotFound
	}
	return st.endpoint.Clone(), nil
}

// ListEndpoints returns copies of all endpoints, oldest first.
func (d *WebhookDispatcher) ListEndpoints() []*domain.WebhookEndpoint {
	d.mu.RLock()
	out := make([]*domain.WebhookEndpoint, 0, len(d.endpoints))
	for _, st := range d.endpoints {
		out = append(out, st.endpoint.Clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SuspendEndpoint disables the endpoint and cancels any pending retries.
// Suspending an endpoint that is already suspended returns ErrEndpointSuspended.
func (d *WebhookDispatcher) SuspendEndpoint(ctx context.Context, id string) error {
	d.mu.Lock()
	st, ok := d.endpoints[id]
	if !ok {
		d.mu.Unlock()
		return apperrors.ErrEndpointNotFound
	}
	if !st.endpoint.IsActive {
		d.mu.Unlock()
		return apperrors.ErrEndpointSuspended
	}
	st.endpoint.IsActive = false
	st.endpoint.UpdatedAt = d.now().UTC()
	st.cancel()
	snapshot := st.endpoint.Clone()
	d.mu.Unlock()

	d.refreshGauges()
	d.logger.Info("webhook endpoint suspended manually", "endpoint_id", id)
	return d.repo.Update(ctx, snapshot)
}

// ReactivateEndpoint re-enables a suspended endpoint and resets its failure count.
func (d *WebhookDispatcher) ReactivateEndpoint(ctx context.Context, id string) error {
	d.mu.Lock()
	st, ok := d.endpoints[id]
	if !ok {
		d.mu.Unlock()
		return apperrors.ErrEndpointNotFound
	}
	st.endpoint.IsActive = true
	st.endpoint.ConsecutiveFailures = 0
	st.endpoint.LastError = ""
	st.endpoint.UpdatedAt = d.now().UTC()
	st.cancel()
	st.ctx, st.cancel = context.WithCancel(d.rootCtx)
	snapshot := st.endpoint.Clone()
	d.mu.Unlock()

	d.refreshGauges()
	d.logger.Info("webhook endpoint reactivated", "endpoint_id", id)
	return d.repo.Update(ctx, snapshot)
}

// Dispatch hands the event to every active endpoint subscribed to its type
// and returns immediately.
func (d *WebhookDispatcher) Dispatch(event domain.WebhookEvent) {
	body, err := event.Body()
	if err != nil {
		d.logger.Error("failed to encode webhook event", "event_id", event.ID(), "error", err)
		return
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	var targets []deliveryTarget
	for id, st := range d.endpoints {
		if !st.endpoint.IsActive || !st.endpoint.Subscribes(event.Type()) {
			continue
		}
		targets = append(targets, deliveryTarget{
			state:  st,
			ctx:    st.ctx,
			id:     id,
			url:    st.endpoint.URL,
			secret: st.endpoint.Secret,
		})
	}
	d.wg.Add(len(targets))
	d.mu.RUnlock()

	for _, target := range targets {
		go d.deliver(target, event, body)
	}
}

// deliver runs the retry loop for one event to one endpoint. Attempts are
// strictly sequential; the loop ends on success, suspension or cancellation.
func (d *WebhookDispatcher) deliver(target deliveryTarget, event domain.WebhookEvent, body []byte) {
	defer d.wg.Done()

	req := ports.DeliveryRequest{
		URL:       target.url,
		Body:      body,
		Signature: Sign(body, target.secret),
		EventType: event.Type(),
		EventID:   event.ID(),
	}
	logger := d.logger.With("endpoint_id", target.id, "event_id", event.ID(), "event_type", event.Type())

	for {
		if target.ctx.Err() != nil {
			return
		}

		_, err := d.attempt(target.ctx, req)
		if target.ctx.Err() != nil {
			// Suspended, unregistered or shutting down mid-attempt.
			return
		}
		if err == nil {
			d.recordSuccess(target)
			logger.Debug("webhook delivered")
			return
		}

		failures, suspended, ok := d.recordFailure(target, err)
		if !ok {
			return
		}
		if suspended {
			logger.Warn("webhook endpoint suspended after consecutive failures",
				"failures", failures, "error", err)
			return
		}

		delay := WebhookBackoff(d.cfg.BackoffUnit, failures)
		logger.Info("webhook delivery failed, retrying",
			"failures", failures, "retry_in", delay.String(), "error", err)
		if err := d.sleep(target.ctx, delay); err != nil {
			return
		}
	}
}

func (d *WebhookDispatcher) attempt(ctx context.Context, req ports.DeliveryRequest) (ports.DeliveryResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	result, err := d.sender.Send(attemptCtx, req)
	d.metrics.RecordWebhookAttempt(string(req.EventType), err == nil, time.Since(start).Seconds())
	return result, err
}

// currentLocked reports whether target still refers to the live state of its endpoint.
func (d *WebhookDispatcher) currentLocked(target deliveryTarget) bool {
	st, ok := d.endpoints[target.id]
	return ok && st == target.state && st.ctx == target.ctx && st.endpoint.IsActive
}

func (d *WebhookDispatcher) recordSuccess(target deliveryTarget) {
	d.mu.Lock()
	if !d.currentLocked(target) {
		d.mu.Unlock()
		return
	}
	ep := target.state.endpoint
	now := d.now().UTC()
	ep.ConsecutiveFailures = 0
	ep.LastDeliveryAt = &now
	ep.LastError = ""
	ep.UpdatedAt = now
	snapshot := ep.Clone()
	d.mu.Unlock()

	d.persist(snapshot)
}

func (d *WebhookDispatcher) recordFailure(target deliveryTarget, cause error) (failures int, suspended bool, ok bool) {
	d.mu.Lock()
	if !d.currentLocked(target) {
		d.mu.Unlock()
		return 0, false, false
	}
	ep := target.state.endpoint
	ep.ConsecutiveFailures++
	ep.LastError = cause.Error()
	ep.UpdatedAt = d.now().UTC()
	failures = ep.ConsecutiveFailures
	if failures >= d.cfg.MaxFailures {
		ep.IsActive = false
		target.state.cancel()
		suspended = true
	}
	snapshot := ep.Clone()
	d.mu.Unlock()

	if suspended {
		d.metrics.RecordSuspension()
		d.refreshGauges()
	}
	d.persist(snapshot)
	return failures, suspended, true
}

// persist writes delivery bookkeeping through to the repository. It runs
// outside any request context so a shutdown does not drop the final state.
func (d *WebhookDispatcher) persist(ep *domain.WebhookEndpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	if err := d.repo.Update(ctx, ep); err != nil && !errors.Is(err, apperrors.ErrEndpointNotFound) {
		d.logger.Error("failed to persist webhook endpoint state", "endpoint_id", ep.ID, "error", err)
	}
}

// SendTest performs one synchronous delivery of a synthetic event to a single
// endpoint, suspended or not. Delivery bookkeeping is left untouched; the
// outcome is only returned.
func (d *WebhookDispatcher) SendTest(ctx context.Context, id string, eventType domain.WebhookEventType) (ports.DeliveryResult, error) {
	if eventType == "" {
		eventType = domain.WebhookTest
	}
	if !eventType.IsValid() {
		return ports.DeliveryResult{}, apperrors.NewBadRequestError(apperrors.ErrUnknownEventType,
			fmt.Sprintf("Unknown event type %q", eventType))
	}

	d.mu.RLock()
	st, ok := d.endpoints[id]
	var url, secret string
	if ok {
		url, secret = st.endpoint.URL, st.endpoint.Secret
	}
	d.mu.RUnlock()
	if !ok {
		return ports.DeliveryResult{}, apperrors.ErrEndpointNotFound
	}

	now := d.now()
	event, err := domain.NewWebhookEvent(eventType, map[string]any{
		"test":       true,
		"endpointId": id,
		"message":    "This is a test delivery",
		"sentAt":     now.UTC().Format(time.RFC3339),
	}, d.cfg.Source, now)
	if err != nil {
		return ports.DeliveryResult{}, err
	}
	body, err := event.Body()
	if err != nil {
		return ports.DeliveryResult{}, err
	}

	result, err := d.attempt(ctx, ports.DeliveryRequest{
		URL:       url,
		Body:      body,
		Signature: Sign(body, secret),
		EventType: eventType,
		EventID:   event.ID(),
	})
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		d.logger.Info("webhook test delivery failed", "endpoint_id", id, "error", err)
	}
	return result, nil
}

func (d *WebhookDispatcher) refreshGauges() {
	d.mu.RLock()
	active, suspended := 0, 0
	for _, st := range d.endpoints {
		if st.endpoint.IsActive {
			active++
		} else {
			suspended++
		}
	}
	d.mu.RUnlock()
	d.metrics.SetWebhookEndpoints(active, suspended)
}

// Shutdown cancels pending retries and waits for in-flight deliveries to
// return, or for ctx to expire.
func (d *WebhookDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("webhook dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
