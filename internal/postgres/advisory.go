package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Advisory grants session-level advisory locks. The holding connection is
// pinned out of the pool until release, since the lock belongs to the session.
type Advisory struct{ DB *pgxpool.Pool }

func (a *Advisory) TryAdvisoryLock(ctx context.Context, key int64) (func(context.Context) error, bool, error) {
	conn, err := a.DB.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		var unlocked bool
		err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&unlocked)
		if err == nil && unlocked {
			conn.Release()
			return nil
		}
		// session state unknown: drop the connection so the lock dies with it
		raw := conn.Hijack()
		_ = raw.Close(ctx)
		if err == nil {
			err = errors.New("advisory lock was not held")
		}
		return fmt.Errorf("advisory unlock %d: %w", key, err)
	}
	return release, true, nil
}
