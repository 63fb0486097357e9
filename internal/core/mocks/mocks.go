package mocks

import (
	"context"
	"sync"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockWebhookEndpointRepository is a mock implementation of ports.WebhookEndpointRepository
type MockWebhookEndpointRepository struct {
	mock.Mock
}

func NewMockWebhookEndpointRepository() *MockWebhookEndpointRepository {
	return &MockWebhookEndpointRepository{}
}

func (m *MockWebhookEndpointRepository) Create(ctx context.Context, endpoint *domain.WebhookEndpoint) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

func (m *MockWebhookEndpointRepository) Update(ctx context.Context, endpoint *domain.WebhookEndpoint) error {
	args := m.Called(ctx, endpoint)
	return args.Error(0)
}

func (m *MockWebhookEndpointRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWebhookEndpointRepository) List(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WebhookEndpoint), args.Error(1)
}

// MockWebhookSender is a mock implementation of ports.WebhookSender
type MockWebhookSender struct {
	mock.Mock
}

func NewMockWebhookSender() *MockWebhookSender {
	return &MockWebhookSender{}
}

func (m *MockWebhookSender) Send(ctx context.Context, req ports.DeliveryRequest) (ports.DeliveryResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.DeliveryResult), args.Error(1)
}

// MockWebhookPublisher is a mock implementation of ports.WebhookPublisher
type MockWebhookPublisher struct {
	mock.Mock
}

func NewMockWebhookPublisher() *MockWebhookPublisher {
	return &MockWebhookPublisher{}
}

func (m *MockWebhookPublisher) Dispatch(event domain.WebhookEvent) {
	m.Called(event)
}

// MockWebhookService is a mock implementation of ports.WebhookService
type MockWebhookService struct {
	mock.Mock
}

func NewMockWebhookService() *MockWebhookService {
	return &MockWebhookService{}
}

func (m *MockWebhookService) Dispatch(event domain.WebhookEvent) {
	m.Called(event)
}

func (m *MockWebhookService) RegisterEndpoint(ctx context.Context, params ports.RegisterWebhookParams) (*domain.WebhookEndpoint, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookEndpoint), args.Error(1)
}

func (m *MockWebhookService) UnregisterEndpoint(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWebhookService) GetEndpoint(id string) (*domain.WebhookEndpoint, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookEndpoint), args.Error(1)
}

func (m *MockWebhookService) ListEndpoints() []*domain.WebhookEndpoint {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*domain.WebhookEndpoint)
}

func (m *MockWebhookService) SuspendEndpoint(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWebhookService) ReactivateEndpoint(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWebhookService) SendTest(ctx context.Context, id string, eventType domain.WebhookEventType) (ports.DeliveryResult, error) {
	args := m.Called(ctx, id, eventType)
	return args.Get(0).(ports.DeliveryResult), args.Error(1)
}

// MockRealtimeGateway is a mock implementation of ports.RealtimeGateway
type MockRealtimeGateway struct {
	mock.Mock
}

func NewMockRealtimeGateway() *MockRealtimeGateway {
	return &MockRealtimeGateway{}
}

func (m *MockRealtimeGateway) Connect(userID string, ch ports.Channel) (string, error) {
	args := m.Called(userID, ch)
	return args.String(0), args.Error(1)
}

func (m *MockRealtimeGateway) Disconnect(userID, connectionID string) {
	m.Called(userID, connectionID)
}

func (m *MockRealtimeGateway) Heartbeat(userID string) domain.PresenceStatus {
	args := m.Called(userID)
	return args.Get(0).(domain.PresenceStatus)
}

func (m *MockRealtimeGateway) Status(userID string) domain.PresenceStatus {
	args := m.Called(userID)
	return args.Get(0).(domain.PresenceStatus)
}

func (m *MockRealtimeGateway) OnlineUsers() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockRealtimeGateway) SetTyping(fromUserID, toUserID string, isTyping bool) error {
	args := m.Called(fromUserID, toUserID, isTyping)
	return args.Error(0)
}

func (m *MockRealtimeGateway) TypingTo(userID string) []string {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockRealtimeGateway) MessageSent(msg domain.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockRealtimeGateway) AppointmentChanged(eventType domain.EventType, appt domain.Appointment) error {
	args := m.Called(eventType, appt)
	return args.Error(0)
}

func (m *MockRealtimeGateway) Notify(userID string, eventType domain.EventType, payload any) {
	m.Called(userID, eventType, payload)
}

func (m *MockRealtimeGateway) Broadcast(eventType domain.EventType, payload any) {
	m.Called(eventType, payload)
}

// FakeChannel is an in-memory ports.Channel that records what it was sent.
type FakeChannel struct {
	mu      sync.Mutex
	events  []domain.Event
	closed  bool
	dead    bool
	sendErr error
}

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{}
}

// FailSends makes every subsequent Send return err.
func (c *FakeChannel) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Kill makes IsAlive report false without closing the channel.
func (c *FakeChannel) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = true
}

func (c *FakeChannel) Send(eventType domain.EventType, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.ErrChannelClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, domain.Event{Type: eventType, Payload: payload})
	return nil
}

func (c *FakeChannel) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.dead
}

func (c *FakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns a copy of everything sent so far.
func (c *FakeChannel) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// EventTypes returns the types of everything sent so far, in order.
func (c *FakeChannel) EventTypes() []domain.EventType {
	events := c.Events()
	types := make([]domain.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

// Count returns how many events of type t were sent.
func (c *FakeChannel) Count(t domain.EventType) int {
	n := 0
	for _, e := range c.Events() {
		if e.Type == t {
			n++
		}
	}
	return n
}
