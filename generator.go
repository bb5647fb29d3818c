package crud

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Generator binds one backend to the six conventional CRUD routes:
//
//	GET    /<prefix>       list
//	GET    /<prefix>/:id   get one
//	POST   /<prefix>       create
//	PUT    /<prefix>/:id   update
//	DELETE /<prefix>       delete all
//	DELETE /<prefix>/:id   delete one
//
// The key descriptor, create schema, and pagination defaults are derived at
// construction and held immutable for the generator's lifetime.
type Generator[K comparable] struct {
	backend      Backend[K]
	schema       Schema
	createSchema Schema
	updateSchema Schema
	key          KeyDef
	prefix       string
	maxLimit     int
	logger       *slog.Logger
}

func NewGenerator[K comparable](backend Backend[K], options ...Option) (*Generator[K], error) {
	opt := &option{}
	for _, op := range options {
		op(opt)
	}

	schema := backend.Schema()
	key, err := schema.KeyDef()
	if err != nil {
		return nil, err
	}

	var zero K
	if err := checkKeyType(zero, key.Kind); err != nil {
		return nil, fmt.Errorf("schema %s: %w", schema.Name, err)
	}

	prefix := opt.prefix
	if prefix == "" {
		prefix = schema.Name
	}

	createSchema := schema.Without(key.Field)
	updateSchema := createSchema
	if opt.updateSchema != nil {
		updateSchema = *opt.updateSchema
	}

	logger := opt.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Generator[K]{
		backend:      backend,
		schema:       schema,
		createSchema: createSchema,
		updateSchema: updateSchema,
		key:          key,
		prefix:       prefix,
		maxLimit:     opt.maxLimit,
		logger:       logger,
	}, nil
}

func (g *Generator[K]) Prefix() string {
	return g.prefix
}

func (g *Generator[K]) Key() KeyDef {
	return g.key
}

func (g *Generator[K]) CreateSchema() Schema {
	return g.createSchema
}

func (g *Generator[K]) Register(r gin.IRouter) {
	grp := r.Group("/" + g.prefix)
	grp.GET("", g.list())
	grp.GET("/:id", g.getOne())
	grp.POST("", g.create())
	grp.PUT("/:id", g.update())
	grp.DELETE("", g.deleteAll())
	grp.DELETE("/:id", g.deleteOne())
}

type pageQuery struct {
	Skip  int  `form:"skip" binding:"omitempty,gte=0"`
	Limit *int `form:"limit" binding:"omitempty,gte=1"`
}

func (g *Generator[K]) list() gin.HandlerFunc {
	return func(c *gin.Context) {
		var pq pageQuery
		if err := c.ShouldBindQuery(&pq); err != nil {
			g.invalid(c, err)
			return
		}

		page := Pagination{Skip: pq.Skip, Limit: pq.Limit}
		if g.maxLimit > 0 {
			if page.Limit == nil || *page.Limit > g.maxLimit {
				page.Limit = Limit(g.maxLimit)
			}
		}

		recs, err := g.backend.List(c.Request.Context(), page)
		if err != nil {
			g.writeError(c, err)
			return
		}

		if recs == nil {
			recs = []Record{}
		}

		c.JSON(http.StatusOK, recs)
	}
}

func (g *Generator[K]) getOne() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := g.pathID(c)
		if !ok {
			return
		}

		rec, err := g.backend.GetOne(c.Request.Context(), id)
		if err != nil {
			g.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

func (g *Generator[K]) create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body Record
		if err := c.ShouldBindJSON(&body); err != nil {
			g.invalid(c, err)
			return
		}

		payload, err := g.createSchema.Conform(body)
		if err != nil {
			g.invalid(c, err)
			return
		}

		rec, err := g.backend.Create(c.Request.Context(), payload)
		if err != nil {
			g.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

func (g *Generator[K]) update() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := g.pathID(c)
		if !ok {
			return
		}

		var body Record
		if err := c.ShouldBindJSON(&body); err != nil {
			g.invalid(c, err)
			return
		}

		// the key is never updatable, regardless of the update schema
		delete(body, g.key.Field)

		payload, err := g.updateSchema.ConformPartial(body)
		if err != nil {
			g.invalid(c, err)
			return
		}

		rec, err := g.backend.Update(c.Request.Context(), id, payload)
		if err != nil {
			g.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

func (g *Generator[K]) deleteAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		recs, err := g.backend.DeleteAll(c.Request.Context())
		if err != nil {
			g.writeError(c, err)
			return
		}

		if recs == nil {
			recs = []Record{}
		}

		c.JSON(http.StatusOK, recs)
	}
}

func (g *Generator[K]) deleteOne() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := g.pathID(c)
		if !ok {
			return
		}

		rec, err := g.backend.DeleteOne(c.Request.Context(), id)
		if err != nil {
			g.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

func (g *Generator[K]) pathID(c *gin.Context) (K, bool) {
	id, err := parseKey[K](g.key.Kind, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"detail": fmt.Sprintf("invalid %s path parameter: expecting %s", g.key.Field, g.key.Kind),
		})
		return id, false
	}

	return id, true
}

// invalid answers request validation failures, before any operation runs.
func (g *Generator[K]) invalid(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": ve.Error()})
		return
	}

	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
}

// writeError maps the two classified backend errors onto their status codes.
// Everything else is unclassified and answers 500.
func (g *Generator[K]) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Item not found"})
	case errors.Is(err, ErrKeyAlreadyExists):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Key already exists"})
	default:
		g.logger.Error("crud operation failed", "prefix", g.prefix, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
	}
}

func checkKeyType[K comparable](zero K, kind KeyKind) error {
	switch any(zero).(type) {
	case int, int32, int64, uint, uint64:
		if kind != KeyInt {
			return fmt.Errorf("key type %T does not match %s key field", zero, kind)
		}
	case string:
		if kind != KeyString {
			return fmt.Errorf("key type string does not match %s key field", kind)
		}
	case uuid.UUID:
		if kind != KeyUUID {
			return fmt.Errorf("key type uuid.UUID does not match %s key field", kind)
		}
	default:
		return fmt.Errorf("unsupported key type %T", zero)
	}

	return nil
}

func parseKey[K comparable](kind KeyKind, raw string) (K, error) {
	var zero K
	var val any

	switch kind {
	case KeyInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return zero, err
		}

		switch any(zero).(type) {
		case int:
			val = int(n)
		case int32:
			val = int32(n)
		case int64:
			val = n
		case uint:
			val = uint(n)
		case uint64:
			val = uint64(n)
		}
	case KeyString:
		val = raw
	case KeyUUID:
		u, err := uuid.Parse(raw)
		if err != nil {
			return zero, err
		}
		val = u
	}

	k, ok := val.(K)
	if !ok {
		return zero, fmt.Errorf("cannot use %s value as %T key", kind, zero)
	}

	return k, nil
}
