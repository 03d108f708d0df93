package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockRepo is the local cache of platform products, variations and
// internal-only products.
type StockRepo struct{ DB *pgxpool.Pool }

func (r *StockRepo) GetComponent(ctx context.Context, accountID string, ref bom.ComponentRef) (*bom.Component, error) {
	c := bom.Component{Ref: ref}
	var err error
	switch ref.Kind {
	case bom.KindProduct:
		var typ string
		err = r.DB.QueryRow(ctx, `
			SELECT name, type, stock_quantity FROM products
			WHERE account_id = $1 AND id = $2`, accountID, ref.ProductID,
		).Scan(&c.Name, &typ, &c.Stock)
		c.Variable = typ == "variable"
	case bom.KindVariation:
		err = r.DB.QueryRow(ctx, `
			SELECT name, stock_quantity FROM product_variations
			WHERE account_id = $1 AND parent_id = $2 AND id = $3`, accountID, ref.ProductID, ref.VariationID,
		).Scan(&c.Name, &c.Stock)
	case bom.KindInternal:
		err = r.DB.QueryRow(ctx, `
			SELECT name, stock_quantity, unit_cost FROM internal_products
			WHERE account_id = $1 AND id = $2::uuid`, accountID, ref.InternalID,
		).Scan(&c.Name, &c.Stock, &c.UnitCost)
	default:
		return nil, fmt.Errorf("unknown component kind %q", ref.Kind)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bom.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *StockRepo) SetStock(ctx context.Context, accountID string, ref bom.ComponentRef, stock int) error {
	var (
		q    string
		args []any
	)
	switch ref.Kind {
	case bom.KindProduct:
		q = `UPDATE products SET stock_quantity = $3, updated_at = now() WHERE account_id = $1 AND id = $2`
		args = []any{accountID, ref.ProductID, stock}
	case bom.KindVariation:
		q = `UPDATE product_variations SET stock_quantity = $4, updated_at = now()
		     WHERE account_id = $1 AND parent_id = $2 AND id = $3`
		args = []any{accountID, ref.ProductID, ref.VariationID, stock}
	case bom.KindInternal:
		q = `UPDATE internal_products SET stock_quantity = $3, updated_at = now() WHERE account_id = $1 AND id = $2::uuid`
		args = []any{accountID, ref.InternalID, stock}
	default:
		return fmt.Errorf("unknown component kind %q", ref.Kind)
	}
	ct, err := r.DB.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%s: %w", ref, bom.ErrNotFound)
	}
	return nil
}
