package crud

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
	"gopkg.in/guregu/null.v4"
)

// SQLiteBackend implements the CRUD contract over a sqlite table with
// explicitly built queries. Assigned keys come from the rowid, so Create
// requires an integer key field.
type SQLiteBackend[K comparable] struct {
	sqlBase[K]
}

// NewSQLiteBackend derives the schema from the struct type T. When the table
// already exists, its live columns are introspected and the schema keeps
// only the fields backed by one; columns with a declared default are not
// required on create.
func NewSQLiteBackend[K comparable, T any](db *sqlx.DB) (*SQLiteBackend[K], error) {
	schema, err := ParseSchemaOf[T]()
	if err != nil {
		return nil, err
	}

	cols, err := sqliteColumns(db, schema.Name)
	if err != nil {
		return nil, err
	}

	if len(cols) > 0 {
		live := make(map[string]sqliteColumnInfo, len(cols))
		for _, col := range cols {
			live[col.Name] = col
		}

		schema.Fields = Filter(schema.Fields, func(fd FieldDef) bool {
			_, ok := live[fd.Name]
			return ok
		})

		for i, fd := range schema.Fields {
			schema.Fields[i].HasDefault = live[fd.Name].DfltValue.Valid
		}
	}

	base, err := newSQLBase[K](db, schema, true)
	if err != nil {
		return nil, err
	}

	return &SQLiteBackend[K]{sqlBase: base}, nil
}

// Create inserts the payload and returns it merged with the assigned rowid.
// Any execution error is reported as a key conflict, the way the generated
// create endpoint has always behaved; sqlite does not hand back enough to
// distinguish causes without parsing message text.
func (s *SQLiteBackend[K]) Create(ctx context.Context, payload Record) (Record, error) {
	if s.key.Kind != KeyInt {
		return nil, fmt.Errorf("sqlite create requires an integer key, %s has a %s key", s.schema.Name, s.key.Kind)
	}

	columns, placeholders, args := s.insertParts(payload)

	qry := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", s.schema.Name)
	if len(columns) > 0 {
		qry = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			s.schema.Name, strings.Join(columns, ","), strings.Join(placeholders, ","))
	}
	qry = s.db.Rebind(qry)

	res, err := s.db.ExecContext(ctx, qry, args...)
	if err != nil {
		return nil, fmt.Errorf("%w. %s", ErrKeyAlreadyExists, err.Error())
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return mergeKey(payload, s.key.Field, id), nil
}

type sqliteColumnInfo struct {
	CID       int         `db:"cid"`
	Name      string      `db:"name"`
	Type      string      `db:"type"`
	NotNull   int         `db:"notnull"`
	DfltValue null.String `db:"dflt_value"`
	Pk        int         `db:"pk"`
}

func sqliteColumns(db *sqlx.DB, table string) ([]sqliteColumnInfo, error) {
	var cols []sqliteColumnInfo
	if err := db.Select(&cols, fmt.Sprintf("PRAGMA table_info(%s)", table)); err != nil {
		return nil, err
	}

	return cols, nil
}

// SQLiteDDL renders a CREATE TABLE statement for the schema. An integer key
// column becomes INTEGER PRIMARY KEY, which sqlite auto-assigns from the
// rowid.
func (s Schema) SQLiteDDL() (string, error) {
	var cols []string
	for _, fd := range s.Fields {
		dtype := sqliteTypeFor(fd.Type)
		if dtype == "" {
			return "", fmt.Errorf("no sqlite type for Go type %s in %s", fd.Type.String(), s.Name)
		}

		col := strings.Builder{}
		col.WriteString(fmt.Sprintf("%s %s", fd.Name, dtype))

		if fd.IsKey {
			col.WriteString(" PRIMARY KEY")
		} else if !fd.AllowNull {
			col.WriteString(" NOT NULL")
		}

		cols = append(cols, col.String())
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.Name, strings.Join(cols, ", ")), nil
}

func sqliteTypeFor(t reflect.Type) string {
	if t == uuidType {
		return "TEXT"
	}

	switch t.Kind() {
	case reflect.String:
		return "TEXT"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Bool:
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	case reflect.Struct:
		switch t.Name() {
		case "Time":
			return "TIMESTAMP"
		case "NullString", "String":
			return "TEXT"
		case "NullFloat64", "Float":
			return "REAL"
		case "NullInt32", "NullInt64", "Int":
			return "INTEGER"
		default:
			return ""
		}
	default:
		return ""
	}
}
