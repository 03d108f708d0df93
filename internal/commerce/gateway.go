package commerce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
)

// CredentialSource looks up a tenant's store credentials.
type CredentialSource interface {
	Credentials(ctx context.Context, accountID string) (Credentials, error)
}

type Provider interface {
	ForAccount(ctx context.Context, accountID string) (Client, error)
}

// AccountClients builds one WooClient per account and keeps it, so the
// per-store rate limiter is shared by every worker in the process.
type AccountClients struct {
	Accounts CredentialSource
	RPS      float64
	Timeout  time.Duration

	mu      sync.Mutex
	clients map[string]Client
}

func (a *AccountClients) ForAccount(ctx context.Context, accountID string) (Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[accountID]; ok {
		return c, nil
	}
	creds, err := a.Accounts.Credentials(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("credentials for account %s: %w", accountID, err)
	}
	if a.clients == nil {
		a.clients = map[string]Client{}
	}
	c := NewWooClient(creds, a.RPS, a.Timeout)
	a.clients[accountID] = c
	return c, nil
}

// Gateway adapts the platform client to component refs, wrapping every call
// in the retry policy.
type Gateway struct {
	Clients Provider
	Policy  RetryPolicy
}

func (g *Gateway) CurrentStock(ctx context.Context, accountID string, ref bom.ComponentRef) (int, error) {
	c, err := g.Clients.ForAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	var stock int
	err = Retry(ctx, g.Policy, func(ctx context.Context) error {
		switch ref.Kind {
		case bom.KindProduct:
			p, err := c.GetProduct(ctx, ref.ProductID)
			if err != nil {
				return err
			}
			stock = p.Stock()
			return nil
		case bom.KindVariation:
			vs, err := c.GetVariations(ctx, ref.ProductID)
			if err != nil {
				return err
			}
			for _, v := range vs {
				if v.ID == ref.VariationID {
					stock = v.Stock()
					return nil
				}
			}
			return fmt.Errorf("variation %d/%d: %w", ref.ProductID, ref.VariationID, ErrNotFound)
		}
		return fmt.Errorf("component %s is not on the platform: %w", ref, ErrNotFound)
	})
	return stock, err
}

func (g *Gateway) PushStock(ctx context.Context, accountID string, ref bom.ComponentRef, stock int) error {
	c, err := g.Clients.ForAccount(ctx, accountID)
	if err != nil {
		return err
	}
	u := StockUpdate{ManageStock: true, StockQuantity: stock}
	return Retry(ctx, g.Policy, func(ctx context.Context) error {
		switch ref.Kind {
		case bom.KindProduct:
			_, err := c.UpdateProduct(ctx, ref.ProductID, u)
			return err
		case bom.KindVariation:
			_, err := c.UpdateVariation(ctx, ref.ProductID, ref.VariationID, u)
			return err
		}
		return fmt.Errorf("component %s is not on the platform: %w", ref, ErrNotFound)
	})
}
