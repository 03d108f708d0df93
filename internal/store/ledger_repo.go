package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepo is the append-only deduction ledger. Rows are never deleted;
// every status change is an update guarded by the expected prior status.
type LedgerRepo struct{ DB *pgxpool.Pool }

func (r *LedgerRepo) Append(ctx context.Context, e bom.LedgerEntry) error {
	var internalID *string
	if e.Component.Kind == bom.KindInternal {
		internalID = &e.Component.InternalID
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO bom_deduction_ledger(id, account_id, order_id, component_type, product_id, variation_id,
			internal_product_id, component_name, quantity, previous_stock, new_stock, status, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::uuid, $8, $9, $10, $11, $12, $13, $13)`,
		e.ID.String(), e.AccountID, e.OrderID, string(e.Component.Kind), e.Component.ProductID, e.Component.VariationID,
		internalID, e.ComponentName, e.Quantity, e.PreviousStock, e.NewStock, string(e.Status), e.CreatedAt,
	)
	return err
}

func (r *LedgerRepo) Transition(ctx context.Context, accountID string, orderID int64, from, to bom.LedgerStatus) (int64, error) {
	if !bom.CanTransition(from, to) {
		return 0, fmt.Errorf("%w: %s -> %s", bom.ErrInvalidTransition, from, to)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE bom_deduction_ledger SET status = $4, updated_at = now()
		WHERE account_id = $1 AND order_id = $2 AND status = $3`,
		accountID, orderID, string(from), string(to))
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *LedgerRepo) TransitionEntries(ctx context.Context, ids []uuid.UUID, from, to bom.LedgerStatus) (int64, error) {
	if !bom.CanTransition(from, to) {
		return 0, fmt.Errorf("%w: %s -> %s", bom.ErrInvalidTransition, from, to)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE bom_deduction_ledger SET status = $3, updated_at = now()
		WHERE id = ANY($1::uuid[]) AND status = $2`,
		strs, string(from), string(to))
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *LedgerRepo) FindByOrder(ctx context.Context, accountID string, orderID int64, statuses ...bom.LedgerStatus) ([]bom.LedgerEntry, error) {
	q := `
		SELECT id::text, account_id::text, order_id, component_type, product_id, variation_id,
		       internal_product_id::text, component_name, quantity, previous_stock, new_stock,
		       status, created_at, updated_at
		FROM bom_deduction_ledger
		WHERE account_id = $1 AND order_id = $2`
	args := []any{accountID, orderID}
	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		q += ` AND status = ANY($3)`
		args = append(args, ss)
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bom.LedgerEntry
	for rows.Next() {
		var (
			e          bom.LedgerEntry
			id         string
			kind       string
			status     string
			internalID *string
		)
		if err := rows.Scan(&id, &e.AccountID, &e.OrderID, &kind, &e.Component.ProductID, &e.Component.VariationID,
			&internalID, &e.ComponentName, &e.Quantity, &e.PreviousStock, &e.NewStock,
			&status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("ledger entry id %q: %w", id, err)
		}
		e.Component.Kind = bom.ComponentKind(kind)
		if internalID != nil {
			e.Component.InternalID = *internalID
		}
		e.Status = bom.LedgerStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindStaleExecuted lists orders holding EXECUTED entries untouched since olderThan.
func (r *LedgerRepo) FindStaleExecuted(ctx context.Context, olderThan time.Time, limit int) ([]bom.OrderKey, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT account_id::text, order_id
		FROM bom_deduction_ledger
		WHERE status = 'EXECUTED' AND updated_at < $1
		GROUP BY account_id, order_id
		ORDER BY min(updated_at)
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bom.OrderKey
	for rows.Next() {
		var k bom.OrderKey
		if err := rows.Scan(&k.AccountID, &k.OrderID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
