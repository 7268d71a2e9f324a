package credstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/taskbell/internal/apperrors"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
}

// Postgres keeps credentials of one profile in the 'credentials' table
type Postgres struct {
	DB      DBTX
	Profile string

	close func()
}

// OpenPostgres connects to the database and applies migrations
// Pass '?migrate=false' to skip migrations
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	clean, profile, params, err := splitProfile(dsn, "migrate")
	if err != nil {
		return nil, err
	}

	runMigrations := true
	if v := params.Get("migrate"); v != "" {
		runMigrations, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parse 'migrate' option: %w", err)
		}
	}

	if runMigrations {
		if err := Migrate(clean); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.New(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("cant initialize connection pool. Err: %w", err)
	}

	return &Postgres{DB: pool, Profile: profile, close: pool.Close}, nil
}

const getCredentials = `-- name: Get credentials of profile
SELECT key, value
FROM credentials
WHERE profile = $1 AND key = ANY($2)
`

func (p *Postgres) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	rows, _ := p.DB.Query(ctx, getCredentials, p.Profile, keys)

	out := make(map[string]string, len(keys))
	var key, value string
	_, err := pgx.ForEachRow(rows, []any{&key, &value}, func() error {
		out[key] = value
		return nil
	})
	if err != nil {
		return nil, dbError(err)
	}

	return out, nil
}

const setCredential = `-- name: Upsert credential
INSERT INTO credentials (profile, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (profile, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`

// Set writes all values in one transaction
// Keys are written in sorted order so concurrent writers lock rows in the same order
func (p *Postgres) Set(ctx context.Context, values map[string]string) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, k := range slices.Sorted(maps.Keys(values)) {
			batch.Queue(setCredential, p.Profile, k, values[k])
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

const deleteCredentials = `-- name: Delete credentials of profile
DELETE FROM credentials
WHERE profile = $1 AND key = ANY($2)
`

func (p *Postgres) Delete(ctx context.Context, keys ...string) error {
	_, err := p.DB.Exec(ctx, deleteCredentials, p.Profile, keys)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}

func (p *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return dbError(err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
			if err != nil {
				err = dbError(err)
			}
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return dbError(err)
	}
	return nil
}

func dbError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("db error: %w", apperrors.ErrStoreNotMigrated)
	}
	return fmt.Errorf("db error: %w", err)
}
