package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// sqlBase holds the operations the SQL backends share. Queries are built
// with explicit SQL, rebound to the driver's placeholder style, and scanned
// into plain records. Only Create and its conflict classification differ per
// dialect.
type sqlBase[K comparable] struct {
	db         *sqlx.DB
	schema     Schema
	key        KeyDef
	selectCols string
	// sqlite rejects OFFSET without LIMIT, postgres does not
	offsetNeedsLimit bool
}

func newSQLBase[K comparable](db *sqlx.DB, schema Schema, offsetNeedsLimit bool) (sqlBase[K], error) {
	key, err := schema.KeyDef()
	if err != nil {
		return sqlBase[K]{}, err
	}

	var zero K
	if err := checkKeyType(zero, key.Kind); err != nil {
		return sqlBase[K]{}, fmt.Errorf("schema %s: %w", schema.Name, err)
	}

	return sqlBase[K]{
		db:               db,
		schema:           schema,
		key:              key,
		selectCols:       strings.Join(schema.FieldNames(), ","),
		offsetNeedsLimit: offsetNeedsLimit,
	}, nil
}

func (b *sqlBase[K]) Schema() Schema {
	return b.schema
}

func (b *sqlBase[K]) List(ctx context.Context, page Pagination) ([]Record, error) {
	qry := fmt.Sprintf("SELECT %s FROM %s%s", b.selectCols, b.schema.Name, b.limitOffsetSQL(page))

	rows, err := b.db.QueryxContext(ctx, qry)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (b *sqlBase[K]) GetOne(ctx context.Context, id K) (Record, error) {
	qry := b.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", b.selectCols, b.schema.Name, b.key.Field))

	rec := Record{}
	if err := b.db.QueryRowxContext(ctx, qry, id).MapScan(rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return normalizeRecord(rec), nil
}

// Update applies the payload columns to the row identified by id and returns
// the payload merged with the key. It does not re-fetch the row, so columns
// absent from the payload are not reflected in the returned record.
func (b *sqlBase[K]) Update(ctx context.Context, id K, payload Record) (Record, error) {
	var sets []string
	var args []any
	for _, fd := range b.schema.Fields {
		if fd.Name == b.key.Field {
			continue
		}

		v, ok := payload[fd.Name]
		if !ok {
			continue
		}

		sets = append(sets, fd.Name+" = ?")
		args = append(args, v)
	}

	if len(sets) == 0 {
		if _, err := b.GetOne(ctx, id); err != nil {
			return nil, err
		}
		return mergeKey(payload, b.key.Field, id), nil
	}

	qry := b.db.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", b.schema.Name, strings.Join(sets, ", "), b.key.Field))
	args = append(args, id)

	res, err := b.db.ExecContext(ctx, qry, args...)
	if err != nil {
		return nil, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, ErrNotFound
	}

	return mergeKey(payload, b.key.Field, id), nil
}

func (b *sqlBase[K]) DeleteAll(ctx context.Context) ([]Record, error) {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM "+b.schema.Name); err != nil {
		return nil, err
	}

	return b.List(ctx, Pagination{})
}

// DeleteOne fetches the row first so it can be returned, then deletes it.
// The delete is authoritative: zero affected rows means not found even
// though the fetch just succeeded.
func (b *sqlBase[K]) DeleteOne(ctx context.Context, id K) (Record, error) {
	rec, err := b.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}

	qry := b.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", b.schema.Name, b.key.Field))

	res, err := b.db.ExecContext(ctx, qry, id)
	if err != nil {
		return nil, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, ErrNotFound
	}

	return rec, nil
}

// limitOffsetSQL renders the pagination window. A present limit is always
// emitted, so a zero limit yields LIMIT 0 and an empty result.
func (b *sqlBase[K]) limitOffsetSQL(page Pagination) string {
	qry := strings.Builder{}

	if page.Limit != nil {
		qry.WriteString(fmt.Sprintf(" LIMIT %d", *page.Limit))
	} else if page.Skip > 0 && b.offsetNeedsLimit {
		qry.WriteString(" LIMIT -1")
	}

	if page.Skip > 0 {
		qry.WriteString(fmt.Sprintf(" OFFSET %d", page.Skip))
	}

	return qry.String()
}

// insertParts collects the payload columns in schema order.
func (b *sqlBase[K]) insertParts(payload Record) (columns []string, placeholders []string, args []any) {
	for _, fd := range b.schema.Fields {
		v, ok := payload[fd.Name]
		if !ok {
			continue
		}

		columns = append(columns, fd.Name)
		placeholders = append(placeholders, "?")
		args = append(args, v)
	}

	return columns, placeholders, args
}

func scanRecords(rows *sqlx.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		rec := Record{}
		if err := rows.MapScan(rec); err != nil {
			return nil, err
		}

		recs = append(recs, normalizeRecord(rec))
	}

	return recs, rows.Err()
}

func normalizeRecord(rec Record) Record {
	for k, v := range rec {
		if b, ok := v.([]byte); ok {
			rec[k] = string(b)
		}
	}

	return rec
}
