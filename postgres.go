package crud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// PostgresBackend implements the CRUD contract over a postgres table.
// Unlike the sqlite backend it recovers the assigned key with RETURNING and
// classifies insert failures precisely: only a unique violation becomes a
// key conflict, everything else propagates unclassified.
type PostgresBackend[K comparable] struct {
	sqlBase[K]
}

func NewPostgresBackend[K comparable, T any](db *sqlx.DB) (*PostgresBackend[K], error) {
	schema, err := ParseSchemaOf[T]()
	if err != nil {
		return nil, err
	}

	base, err := newSQLBase[K](db, schema, false)
	if err != nil {
		return nil, err
	}

	return &PostgresBackend[K]{sqlBase: base}, nil
}

func (p *PostgresBackend[K]) Create(ctx context.Context, payload Record) (Record, error) {
	columns, placeholders, args := p.insertParts(payload)

	qry := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", p.schema.Name, p.key.Field)
	if len(columns) > 0 {
		qry = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			p.schema.Name, strings.Join(columns, ","), strings.Join(placeholders, ","), p.key.Field)
	}
	qry = p.db.Rebind(qry)

	var id any
	if err := p.db.QueryRowxContext(ctx, qry, args...).Scan(&id); err != nil {
		return nil, wrapPostgresInsertError(err)
	}

	if b, ok := id.([]byte); ok {
		id = string(b)
	}

	return mergeKey(payload, p.key.Field, id), nil
}

func wrapPostgresInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w. %s", ErrKeyAlreadyExists, err.Error())
	}

	return err
}
