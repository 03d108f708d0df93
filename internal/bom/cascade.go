package bom

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const DefaultCascadeDepth = 5

// Cascader re-syncs every BOM parent that uses a changed component. A parent
// whose stock was re-synced is itself a component for higher-level BOMs, so
// the walk continues upward until MaxDepth.
type Cascader struct {
	BOMs     BOMRepository
	Sync     InventorySync
	MaxDepth int
	Log      *zap.Logger
}

func (c *Cascader) Cascade(ctx context.Context, accountID string, ref ComponentRef) error {
	return c.CascadeAll(ctx, accountID, []ComponentRef{ref})
}

// CascadeAll syncs the parents of all refs, each parent at most once. A
// failing parent is logged and skipped; the joined failures are returned
// after every parent has been attempted.
func (c *Cascader) CascadeAll(ctx context.Context, accountID string, refs []ComponentRef) error {
	return c.CascadeExcept(ctx, accountID, refs, nil)
}

// CascadeExcept is CascadeAll for an order: the products it sold already had
// their stock moved by the platform, so they are not re-synced. Their own
// parents still are.
func (c *Cascader) CascadeExcept(ctx context.Context, accountID string, refs, sold []ComponentRef) error {
	type step struct {
		ref   ComponentRef
		depth int
	}
	maxDepth := c.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultCascadeDepth
	}

	visited := make(map[ComponentRef]bool, len(refs)+len(sold))
	queue := make([]step, 0, len(refs)+len(sold))
	for _, r := range refs {
		if !visited[r] {
			visited[r] = true
			queue = append(queue, step{ref: r})
		}
	}
	for _, r := range sold {
		if visited[r] {
			continue
		}
		visited[r] = true
		if maxDepth > 1 {
			queue = append(queue, step{ref: r, depth: 1})
		}
	}

	var errs []error
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		parents, err := c.BOMs.FindParents(ctx, accountID, cur.ref)
		if err != nil {
			c.Log.Error("cascade lookup failed", zap.String("component", cur.ref.String()), zap.Error(err))
			errs = append(errs, fmt.Errorf("find parents of %s: %w", cur.ref, err))
			continue
		}
		for _, p := range parents {
			pref := ParentRef(p.ProductID, p.VariationID)
			if visited[pref] {
				continue
			}
			visited[pref] = true

			if _, err := c.Sync.SyncEffectiveStock(ctx, accountID, p.ProductID, p.VariationID); err != nil {
				c.Log.Error("cascade sync failed",
					zap.String("account_id", accountID),
					zap.String("component", cur.ref.String()),
					zap.String("parent", pref.String()),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("sync %s: %w", pref, err))
				continue
			}
			if cur.depth+1 < maxDepth {
				queue = append(queue, step{ref: pref, depth: cur.depth + 1})
			}
		}
	}
	return errors.Join(errs...)
}
