package crud

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
)

// DBTable is embedded in a model struct to carry the table or collection
// name in its `name` tag.
type DBTable struct{}

// KeyKind is the primitive type used to parse the id path parameter.
type KeyKind int

const (
	KeyInt KeyKind = iota
	KeyString
	KeyUUID
)

func (k KeyKind) String() string {
	switch k {
	case KeyInt:
		return "int"
	case KeyString:
		return "string"
	case KeyUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// KeyDef describes the primary-key field of a schema. It is derived once per
// backend and never changes afterwards.
type KeyDef struct {
	Field string
	Kind  KeyKind
}

type FieldDef struct {
	Name       string
	Type       reflect.Type
	Size       int
	IsAuto     bool
	IsKey      bool
	AllowNull  bool
	HasDefault bool
}

// Schema is the named, ordered field set describing one logical record type.
type Schema struct {
	Name     string
	KeyField string
	Fields   []FieldDef
}

// ParseSchemaOf derives a Schema from the struct type T. Field names come
// from `db` tags, falling back to the snake-cased Go field name. An embedded
// DBTable field carries the table name in its `name` tag; without one the
// snake-cased struct name is used. When no field is tagged as key, a field
// named ID is taken as the auto-assigned key.
func ParseSchemaOf[T any]() (Schema, error) {
	var model T
	t := reflect.TypeOf(model)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return Schema{}, fmt.Errorf("schema type must be a struct, got %v", t)
	}

	var name, key string
	var fields []FieldDef
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Name == "DBTable" {
			name = field.Tag.Get("name")
			continue
		}

		if !field.IsExported() {
			continue
		}

		fname, size, isAuto, isKey, allowNull := ParseDBTag(field.Tag.Get("db"))
		if fname == "-" {
			continue
		}

		if fname == "" {
			fname = strcase.ToSnake(field.Name)
		}

		ftype := field.Type
		if ftype.Kind() == reflect.Ptr {
			ftype = ftype.Elem()
			if !isKey {
				allowNull = true
			}
		}

		if isKey {
			if key != "" {
				return Schema{}, fmt.Errorf("%s: cannot have more than 1 key", t.Name())
			}
			key = fname
		}

		fields = append(fields, FieldDef{
			Name:      fname,
			Type:      ftype,
			Size:      size,
			IsAuto:    isAuto,
			IsKey:     isKey,
			AllowNull: allowNull,
		})
	}

	if key == "" {
		for i := range fields {
			if fields[i].Name == "id" {
				fields[i].IsKey = true
				fields[i].IsAuto = true
				fields[i].AllowNull = false
				key = "id"
				break
			}
		}
	}

	if key == "" {
		return Schema{}, fmt.Errorf("%s has no key field", t.Name())
	}

	if name == "" {
		name = strcase.ToSnake(t.Name())
	}

	return Schema{Name: name, KeyField: key, Fields: fields}, nil
}

func (s Schema) FieldNames() []string {
	return Map(s.Fields, func(fd FieldDef) string {
		return fd.Name
	})
}

func (s Schema) Field(name string) (FieldDef, bool) {
	for _, fd := range s.Fields {
		if fd.Name == name {
			return fd, true
		}
	}

	return FieldDef{}, false
}

// Without returns a copy of the schema with the named field removed, field
// order preserved. Deriving a create schema from a full schema happens here,
// once, at backend construction.
func (s Schema) Without(name string) Schema {
	out := Schema{Name: s.Name, KeyField: s.KeyField}
	if s.KeyField == name {
		out.KeyField = ""
	}

	out.Fields = Filter(s.Fields, func(fd FieldDef) bool {
		return fd.Name != name
	})

	return out
}

var uuidType = reflect.TypeOf(uuid.UUID{})

func (s Schema) KeyDef() (KeyDef, error) {
	fd, ok := s.Field(s.KeyField)
	if s.KeyField == "" || !ok {
		return KeyDef{}, fmt.Errorf("schema %s has no key field", s.Name)
	}

	kind, err := resolveKeyKind(fd.Type)
	if err != nil {
		return KeyDef{}, fmt.Errorf("schema %s: %w", s.Name, err)
	}

	return KeyDef{Field: fd.Name, Kind: kind}, nil
}

func resolveKeyKind(t reflect.Type) (KeyKind, error) {
	if t == uuidType {
		return KeyUUID, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KeyInt, nil
	case reflect.String:
		return KeyString, nil
	default:
		return 0, fmt.Errorf("unsupported key type %s", t.String())
	}
}

// Conform validates a decoded JSON object against the schema and returns the
// cleaned record. Fields the schema does not know are dropped. Every field
// that is not auto-assigned, nullable, or backed by a column default must be
// present.
func (s Schema) Conform(rec Record) (Record, error) {
	return s.conform(rec, false)
}

// ConformPartial is Conform without the required-field check, for update
// payloads where any subset of fields is acceptable.
func (s Schema) ConformPartial(rec Record) (Record, error) {
	return s.conform(rec, true)
}

func (s Schema) conform(rec Record, partial bool) (Record, error) {
	out := make(Record, len(rec))
	for _, fd := range s.Fields {
		v, ok := rec[fd.Name]
		if !ok {
			if !partial && !fd.IsAuto && !fd.AllowNull && !fd.HasDefault {
				return nil, fmt.Errorf("missing required field %q", fd.Name)
			}
			continue
		}

		cv, err := coerceValue(fd, v)
		if err != nil {
			return nil, err
		}

		out[fd.Name] = cv
	}

	return out, nil
}

func coerceValue(fd FieldDef, v any) (any, error) {
	if v == nil {
		if !fd.AllowNull {
			return nil, fmt.Errorf("field %q is not nullable", fd.Name)
		}
		return nil, nil
	}

	if fd.Type == uuidType {
		switch val := v.(type) {
		case uuid.UUID:
			return val.String(), nil
		case string:
			u, err := uuid.Parse(val)
			if err != nil {
				return nil, fmt.Errorf("field %q expects a uuid: %s", fd.Name, err)
			}
			return u.String(), nil
		default:
			return nil, fmt.Errorf("field %q expects a uuid, got %T", fd.Name, v)
		}
	}

	switch fd.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch val := v.(type) {
		case int:
			return int64(val), nil
		case int64:
			return val, nil
		case float64:
			n := int64(val)
			if float64(n) != val {
				return nil, fmt.Errorf("field %q expects an integer", fd.Name)
			}
			return n, nil
		case json.Number:
			n, err := val.Int64()
			if err != nil {
				return nil, fmt.Errorf("field %q expects an integer: %s", fd.Name, err)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("field %q expects an integer, got %T", fd.Name, v)
		}
	case reflect.Float32, reflect.Float64:
		switch val := v.(type) {
		case float64:
			return val, nil
		case int:
			return float64(val), nil
		case int64:
			return float64(val), nil
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("field %q expects a number: %s", fd.Name, err)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("field %q expects a number, got %T", fd.Name, v)
		}
	case reflect.String:
		val, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %q expects a string, got %T", fd.Name, v)
		}
		return val, nil
	case reflect.Bool:
		val, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("field %q expects a boolean, got %T", fd.Name, v)
		}
		return val, nil
	default:
		return v, nil
	}
}
