package store

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	"github.com/ariefcatur/go-bom-consumption/internal/commerce"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountRepo struct{ DB *pgxpool.Pool }

func (r *AccountRepo) Credentials(ctx context.Context, accountID string) (commerce.Credentials, error) {
	var c commerce.Credentials
	err := r.DB.QueryRow(ctx, `
		SELECT store_url, consumer_key, consumer_secret FROM accounts WHERE id = $1`, accountID,
	).Scan(&c.StoreURL, &c.ConsumerKey, &c.ConsumerSecret)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, bom.ErrNotFound
	}
	return c, err
}
