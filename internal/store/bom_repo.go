package store

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BOMRepo struct{ DB *pgxpool.Pool }

func (r *BOMRepo) FindBOM(ctx context.Context, accountID string, productID, variationID int64) (*bom.BOM, error) {
	var b bom.BOM
	err := r.DB.QueryRow(ctx, `
		SELECT id::text, account_id::text, product_id, variation_id, name, is_active
		FROM boms
		WHERE account_id = $1 AND product_id = $2 AND variation_id = $3`,
		accountID, productID, variationID,
	).Scan(&b.ID, &b.AccountID, &b.ProductID, &b.VariationID, &b.Name, &b.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bom.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id::text, bom_id::text, position, component_product_id, component_variation_id,
		       internal_product_id::text, quantity, waste_factor, unit_cost, is_active
		FROM bom_items
		WHERE bom_id = $1
		ORDER BY position, id`, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it bom.Item
		if err := rows.Scan(&it.ID, &it.BOMID, &it.Position, &it.ComponentProductID, &it.ComponentVariationID,
			&it.InternalProductID, &it.Quantity, &it.WasteFactor, &it.UnitCost, &it.IsActive); err != nil {
			return nil, err
		}
		b.Items = append(b.Items, it)
	}
	return &b, rows.Err()
}

// FindParents lists active BOMs with an active item on ref. Products match on
// product id alone; variations also on variation id.
func (r *BOMRepo) FindParents(ctx context.Context, accountID string, ref bom.ComponentRef) ([]bom.Parent, error) {
	const base = `
		SELECT DISTINCT b.id::text, b.product_id, b.variation_id
		FROM bom_items bi
		JOIN boms b ON b.id = bi.bom_id
		WHERE b.account_id = $1 AND b.is_active AND bi.is_active AND `

	var (
		rows pgx.Rows
		err  error
	)
	switch ref.Kind {
	case bom.KindInternal:
		rows, err = r.DB.Query(ctx, base+`bi.internal_product_id = $2::uuid`, accountID, ref.InternalID)
	case bom.KindVariation:
		rows, err = r.DB.Query(ctx, base+`bi.component_product_id = $2 AND bi.component_variation_id = $3`,
			accountID, ref.ProductID, ref.VariationID)
	default:
		rows, err = r.DB.Query(ctx, base+`bi.component_product_id = $2`, accountID, ref.ProductID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bom.Parent
	for rows.Next() {
		var p bom.Parent
		if err := rows.Scan(&p.BOMID, &p.ProductID, &p.VariationID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
