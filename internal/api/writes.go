package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rickgao/realtime-sync/internal/mutation"
)

// ErrMissingID is returned for update and delete operations whose data
// carries no "id" field.
var ErrMissingID = errors.New("api: operation data has no id")

// Create posts data to /{entityType}.
func (c *Client) Create(ctx context.Context, entityType string, data []byte, idempotencyKey string) error {
	_, err := c.doWithRetry(ctx, request{
		method:         http.MethodPost,
		path:           "/" + url.PathEscape(entityType),
		body:           data,
		idempotencyKey: idempotencyKey,
	})
	return err
}

// Update puts data to /{entityType}/{id}.
func (c *Client) Update(ctx context.Context, entityType, id string, data []byte, idempotencyKey string) error {
	_, err := c.doWithRetry(ctx, request{
		method:         http.MethodPut,
		path:           entityPath(entityType, id),
		body:           data,
		idempotencyKey: idempotencyKey,
	})
	return err
}

// Delete removes /{entityType}/{id}. A 404 counts as success.
func (c *Client) Delete(ctx context.Context, entityType, id string, idempotencyKey string) error {
	_, err := c.doWithRetry(ctx, request{
		method:         http.MethodDelete,
		path:           entityPath(entityType, id),
		idempotencyKey: idempotencyKey,
	})

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		c.logger.Debug("delete target already gone", "entity_type", entityType, "id", id)
		return nil
	}
	return err
}

// Write applies a queued operation. It satisfies mutation.Writer.
func (c *Client) Write(ctx context.Context, op mutation.Operation) error {
	switch op.Kind {
	case mutation.KindCreate:
		return c.Create(ctx, op.EntityType, op.Data, op.ID)

	case mutation.KindUpdate, mutation.KindDelete:
		id, ok := op.EntityID()
		if !ok {
			return fmt.Errorf("%w: %s %s", ErrMissingID, op.Kind, op.EntityType)
		}
		if op.Kind == mutation.KindUpdate {
			return c.Update(ctx, op.EntityType, id, op.Data, op.ID)
		}
		return c.Delete(ctx, op.EntityType, id, op.ID)

	default:
		return fmt.Errorf("%w: %q", mutation.ErrInvalidKind, op.Kind)
	}
}

func entityPath(entityType, id string) string {
	return "/" + url.PathEscape(entityType) + "/" + url.PathEscape(id)
}
