package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

const uniqueViolation = "23505"

const endpointColumns = `id::text, url, secret, events, is_active, consecutive_failures,
	last_delivery_at, last_error, created_at, updated_at`

type WebhookEndpointRepository struct {
	pool *pgxpool.Pool
}

var _ ports.WebhookEndpointRepository = (*WebhookEndpointRepository)(nil)

func NewWebhookEndpointRepository(pool *pgxpool.Pool) *WebhookEndpointRepository {
	return &WebhookEndpointRepository{pool: pool}
}

func eventsToStrings(events []domain.WebhookEventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func scanEndpoint(row pgx.Row) (*domain.WebhookEndpoint, error) {
	var (
		ep             domain.WebhookEndpoint
		events         []string
		lastDeliveryAt *time.Time
	)
	err := row.Scan(
		&ep.ID,
		&ep.URL,
		&ep.Secret,
		&events,
		&ep.IsActive,
		&ep.ConsecutiveFailures,
		&lastDeliveryAt,
		&ep.LastError,
		&ep.CreatedAt,
		&ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ep.Events = make([]domain.WebhookEventType, len(events))
	for i, e := range events {
		ep.Events[i] = domain.WebhookEventType(e)
	}
	if lastDeliveryAt != nil {
		t := lastDeliveryAt.UTC()
		ep.LastDeliveryAt = &t
	}
	ep.CreatedAt = ep.CreatedAt.UTC()
	ep.UpdatedAt = ep.UpdatedAt.UTC()
	return &ep, nil
}

func (r *WebhookEndpointRepository) Create(ctx context.Context, ep *domain.WebhookEndpoint) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO webhook_endpoints
			(id, url, secret, events, is_active, consecutive_failures, last_delivery_at, last_error, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ep.ID, ep.URL, ep.Secret, eventsToStrings(ep.Events), ep.IsActive, ep.ConsecutiveFailures,
		ep.LastDeliveryAt, ep.LastError, ep.CreatedAt, ep.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to insert webhook endpoint: %w", err)
	}
	return nil
}

// Update stores the mutable delivery state of an endpoint.
func (r *WebhookEndpointRepository) Update(ctx context.Context, ep *domain.WebhookEndpoint) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE webhook_endpoints
		SET url = $2, events = $3, is_active = $4, consecutive_failures = $5,
			last_delivery_at = $6, last_error = $7, updated_at = $8
		WHERE id = $1::uuid`,
		ep.ID, ep.URL, eventsToStrings(ep.Events), ep.IsActive, ep.ConsecutiveFailures,
		ep.LastDeliveryAt, ep.LastError, ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEndpointNotFound
	}
	return nil
}

func (r *WebhookEndpointRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEndpointNotFound
	}
	return nil
}

// Get loads a single endpoint.
func (r *WebhookEndpointRepository) Get(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1::uuid`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to get webhook endpoint: %w", err)
	}
	return ep, nil
}

func (r *WebhookEndpointRepository) List(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*domain.WebhookEndpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webhook endpoints: %w", err)
	}
	return endpoints, nil
}
