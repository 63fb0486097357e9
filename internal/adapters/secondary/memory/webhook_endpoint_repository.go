package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

// WebhookEndpointRepository keeps endpoints in process memory. It is used when
// no database is configured; registrations do not survive a restart.
type WebhookEndpointRepository struct {
	mu        sync.RWMutex
	endpoints map[string]*domain.WebhookEndpoint
}

var _ ports.WebhookEndpointRepository = (*WebhookEndpointRepository)(nil)

func NewWebhookEndpointRepository() *WebhookEndpointRepository {
	return &WebhookEndpointRepository{endpoints: make(map[string]*domain.WebhookEndpoint)}
}

func (r *WebhookEndpointRepository) Create(_ context.Context, endpoint *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.endpoints[endpoint.ID]; exists {
		return apperrors.ErrConflict
	}
	r.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

func (r *WebhookEndpointRepository) Update(_ context.Context, endpoint *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.endpoints[endpoint.ID]; !exists {
		return apperrors.ErrEndpointNotFound
	}
	r.endpoints[endpoint.ID] = endpoint.Clone()
	return nil
}

func (r *WebhookEndpointRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.endpoints[id]; !exists {
		return apperrors.ErrEndpointNotFound
	}
	delete(r.endpoints, id)
	return nil
}

// List returns copies ordered by creation time.
func (r *WebhookEndpointRepository) List(_ context.Context) ([]*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	out := make([]*domain.WebhookEndpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
