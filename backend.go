// Package crud generates the standard six CRUD endpoints (list, get-one,
// create, update, delete-all, delete-one) over pluggable storage backends.
// A backend is built from a tagged schema struct and a database handle; the
// generator turns it into routable handlers with uniform pagination and
// error responses.
package crud

import "context"

// Record is one persisted row or document as a field-name-to-value mapping.
type Record map[string]any

// Pagination is the (skip, limit) window applied to list queries. A nil
// Limit means no limit. How a present-but-zero limit behaves is up to each
// backend; the SQL backends emit LIMIT 0 while the document backend treats
// it as unlimited.
type Pagination struct {
	Skip  int
	Limit *int
}

// Limit is a convenience for building a Pagination literal.
func Limit(n int) *int {
	return &n
}

// Backend is the six-operation contract every storage adapter implements.
// Create and Update receive payloads already validated against the create
// and update schemas; both return the resulting record including the key
// field. DeleteOne returns the record as it existed before deletion.
type Backend[K comparable] interface {
	List(ctx context.Context, page Pagination) ([]Record, error)
	GetOne(ctx context.Context, id K) (Record, error)
	Create(ctx context.Context, payload Record) (Record, error)
	Update(ctx context.Context, id K, payload Record) (Record, error)
	DeleteAll(ctx context.Context) ([]Record, error)
	DeleteOne(ctx context.Context, id K) (Record, error)
	Schema() Schema
}

func mergeKey(payload Record, keyField string, id any) Record {
	rec := make(Record, len(payload)+1)
	for k, v := range payload {
		rec[k] = v
	}

	rec[keyField] = id
	return rec
}
