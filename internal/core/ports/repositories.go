package ports

import (
	"context"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
)

// WebhookEndpointRepository persists webhook endpoints. The dispatcher keeps
// the authoritative copy in memory and writes through to the repository.
type WebhookEndpointRepository interface {
	Create(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	Update(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.WebhookEndpoint, error)
}
