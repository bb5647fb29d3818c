package crud

import "log/slog"

type Option func(o *option)

type option struct {
	prefix       string
	maxLimit     int
	updateSchema *Schema
	logger       *slog.Logger
}

// WithPrefix overrides the route prefix derived from the backend's table or
// collection name.
func WithPrefix(prefix string) Option {
	return func(o *option) {
		o.prefix = prefix
	}
}

// WithMaxLimit caps the list limit a request may ask for. It also becomes
// the default limit when the request names none.
func WithMaxLimit(n int) Option {
	return func(o *option) {
		o.maxLimit = n
	}
}

// WithUpdateSchema replaces the default update schema, which is the create
// schema with every field optional.
func WithUpdateSchema(s Schema) Option {
	return func(o *option) {
		o.updateSchema = &s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *option) {
		o.logger = logger
	}
}
