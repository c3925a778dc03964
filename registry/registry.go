// Package registry provides typed CRUD services over the store, one per
// resource kind, plus the workflow record store. All services share one
// key discipline: optimistic create, blind spec update preserving
// status, prefix-scan list that skips malformed entries.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// core is the generic CRUD engine shared by the per-kind services.
type core[R any] struct {
	store  store.Store
	typ    resource.ResourceType
	logger *slog.Logger
}

func newCore[R any](s store.Store, typ resource.ResourceType, logger *slog.Logger) core[R] {
	if logger == nil {
		logger = slog.Default()
	}
	return core[R]{store: s, typ: typ, logger: logger}
}

func (c core[R]) create(ctx context.Context, namespace, name string, res R) (R, error) {
	var zero R
	data, err := resource.Encode(res)
	if err != nil {
		return zero, err
	}
	created, err := c.store.PutIfAbsent(ctx, resource.Key(c.typ, namespace, name), data)
	if err != nil {
		return zero, fmt.Errorf("create %s %s/%s: %w", c.typ, namespace, name, err)
	}
	if !created {
		return zero, &resource.AlreadyExistsError{Type: c.typ, Namespace: namespace, Name: name}
	}
	return res, nil
}

func (c core[R]) get(ctx context.Context, namespace, name string) (R, error) {
	var res R
	data, ok, err := c.store.Get(ctx, resource.Key(c.typ, namespace, name))
	if err != nil {
		return res, fmt.Errorf("get %s %s/%s: %w", c.typ, namespace, name, err)
	}
	if !ok {
		return res, &resource.NotFoundError{Type: c.typ, Namespace: namespace, Name: name}
	}
	if err := resource.Decode(data, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (c core[R]) list(ctx context.Context, namespace string) ([]R, error) {
	entries, err := c.store.GetPrefix(ctx, resource.KeyPrefix(c.typ, namespace))
	if err != nil {
		return nil, fmt.Errorf("list %s in %s: %w", c.typ, namespace, err)
	}
	out := make([]R, 0, len(entries))
	for _, entry := range entries {
		var res R
		if err := resource.Decode(entry.Value, &res); err != nil {
			c.logger.Warn("skipping malformed entry", "key", entry.Key, "error", err)
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// put is a blind write: last writer wins for the spec portion, and the
// informer reconverges any lost revision.
func (c core[R]) put(ctx context.Context, namespace, name string, res R) error {
	data, err := resource.Encode(res)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, resource.Key(c.typ, namespace, name), data); err != nil {
		return fmt.Errorf("put %s %s/%s: %w", c.typ, namespace, name, err)
	}
	return nil
}

func (c core[R]) delete(ctx context.Context, namespace, name string) (bool, error) {
	existed, err := c.store.Delete(ctx, resource.Key(c.typ, namespace, name))
	if err != nil {
		return false, fmt.Errorf("delete %s %s/%s: %w", c.typ, namespace, name, err)
	}
	return existed, nil
}
