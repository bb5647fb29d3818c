package crud

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type potato struct {
	DBTable   `name:"potatoes"`
	ID        int     `db:"id,key auto"`
	Thickness float64 `db:"thickness"`
	Mass      float64 `db:"mass"`
	Color     string  `db:"color"`
	Type      string  `db:"type"`
}

type gadget struct {
	ID   uuid.UUID `db:"id,key"`
	Name string    `db:"name"`
}

func TestParseSchemaOf(t *testing.T) {
	t.Run("tagged struct", func(t *testing.T) {
		schema, err := ParseSchemaOf[potato]()
		require.NoError(t, err)

		assert.Equal(t, "potatoes", schema.Name)
		assert.Equal(t, "id", schema.KeyField)
		assert.Equal(t, []string{"id", "thickness", "mass", "color", "type"}, schema.FieldNames())

		fd, ok := schema.Field("id")
		require.True(t, ok)
		assert.True(t, fd.IsKey)
		assert.True(t, fd.IsAuto)
	})

	t.Run("untagged id becomes auto key", func(t *testing.T) {
		type carrot struct {
			ID     int
			Length float64
		}

		schema, err := ParseSchemaOf[carrot]()
		require.NoError(t, err)

		assert.Equal(t, "carrot", schema.Name)
		assert.Equal(t, "id", schema.KeyField)

		fd, _ := schema.Field("id")
		assert.True(t, fd.IsAuto)
	})

	t.Run("pointer field allows null", func(t *testing.T) {
		type note struct {
			ID   int     `db:"id,key auto"`
			Body *string `db:"body"`
		}

		schema, err := ParseSchemaOf[note]()
		require.NoError(t, err)

		fd, _ := schema.Field("body")
		assert.True(t, fd.AllowNull)
	})

	t.Run("two keys rejected", func(t *testing.T) {
		type bad struct {
			A int `db:"a,key"`
			B int `db:"b,key"`
		}

		_, err := ParseSchemaOf[bad]()
		assert.Error(t, err)
	})

	t.Run("no key rejected", func(t *testing.T) {
		type bad struct {
			Name string `db:"name"`
		}

		_, err := ParseSchemaOf[bad]()
		assert.Error(t, err)
	})

	t.Run("non-struct rejected", func(t *testing.T) {
		_, err := ParseSchemaOf[int]()
		assert.Error(t, err)
	})
}

func TestParseDBTag(t *testing.T) {
	name, size, isAuto, isKey, allowNull := ParseDBTag("user_id,key auto size=36")
	assert.Equal(t, "user_id", name)
	assert.Equal(t, 36, size)
	assert.True(t, isAuto)
	assert.True(t, isKey)
	assert.False(t, allowNull)

	name, _, _, _, allowNull = ParseDBTag("body,allownull")
	assert.Equal(t, "body", name)
	assert.True(t, allowNull)

	name, _, isAuto, isKey, _ = ParseDBTag("color")
	assert.Equal(t, "color", name)
	assert.False(t, isAuto)
	assert.False(t, isKey)
}

func TestSchemaWithout(t *testing.T) {
	schema, err := ParseSchemaOf[potato]()
	require.NoError(t, err)

	created := schema.Without("id")
	assert.Equal(t, []string{"thickness", "mass", "color", "type"}, created.FieldNames())
	assert.Empty(t, created.KeyField)

	// the source schema is untouched
	assert.Equal(t, "id", schema.KeyField)
	assert.Len(t, schema.Fields, 5)
}

func TestSchemaKeyDef(t *testing.T) {
	t.Run("int key", func(t *testing.T) {
		schema, err := ParseSchemaOf[potato]()
		require.NoError(t, err)

		key, err := schema.KeyDef()
		require.NoError(t, err)
		assert.Equal(t, KeyDef{Field: "id", Kind: KeyInt}, key)
	})

	t.Run("uuid key", func(t *testing.T) {
		schema, err := ParseSchemaOf[gadget]()
		require.NoError(t, err)

		key, err := schema.KeyDef()
		require.NoError(t, err)
		assert.Equal(t, KeyDef{Field: "id", Kind: KeyUUID}, key)
	})

	t.Run("string key", func(t *testing.T) {
		type tag struct {
			Slug string `db:"slug,key"`
		}

		schema, err := ParseSchemaOf[tag]()
		require.NoError(t, err)

		key, err := schema.KeyDef()
		require.NoError(t, err)
		assert.Equal(t, KeyDef{Field: "slug", Kind: KeyString}, key)
	})

	t.Run("unsupported key type", func(t *testing.T) {
		type bad struct {
			Score float64 `db:"score,key"`
		}

		schema, err := ParseSchemaOf[bad]()
		require.NoError(t, err)

		_, err = schema.KeyDef()
		assert.Error(t, err)
	})
}

func TestSchemaConform(t *testing.T) {
	schema, err := ParseSchemaOf[potato]()
	require.NoError(t, err)
	created := schema.Without("id")

	t.Run("valid payload", func(t *testing.T) {
		out, err := created.Conform(Record{
			"thickness": 0.5,
			"mass":      2,
			"color":     "red",
			"type":      "russet",
		})
		require.NoError(t, err)
		assert.Equal(t, 0.5, out["thickness"])
		assert.Equal(t, float64(2), out["mass"])
		assert.Equal(t, "red", out["color"])
	})

	t.Run("unknown fields dropped", func(t *testing.T) {
		out, err := created.Conform(Record{
			"thickness": 0.5,
			"mass":      2.0,
			"color":     "red",
			"type":      "russet",
			"flavor":    "earthy",
		})
		require.NoError(t, err)
		assert.NotContains(t, out, "flavor")
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := created.Conform(Record{"thickness": 0.5})
		assert.ErrorContains(t, err, "missing required field")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := created.Conform(Record{
			"thickness": "thin",
			"mass":      2.0,
			"color":     "red",
			"type":      "russet",
		})
		assert.Error(t, err)
	})

	t.Run("fractional value for integer field", func(t *testing.T) {
		type box struct {
			ID    int `db:"id,key auto"`
			Count int `db:"count"`
		}

		schema, err := ParseSchemaOf[box]()
		require.NoError(t, err)

		_, err = schema.Without("id").Conform(Record{"count": 1.5})
		assert.Error(t, err)

		out, err := schema.Without("id").Conform(Record{"count": float64(3)})
		require.NoError(t, err)
		assert.Equal(t, int64(3), out["count"])
	})

	t.Run("null for non-nullable field", func(t *testing.T) {
		_, err := created.Conform(Record{
			"thickness": nil,
			"mass":      2.0,
			"color":     "red",
			"type":      "russet",
		})
		assert.ErrorContains(t, err, "not nullable")
	})

	t.Run("uuid values canonicalized", func(t *testing.T) {
		schema, err := ParseSchemaOf[gadget]()
		require.NoError(t, err)

		u := uuid.New()
		out, err := schema.ConformPartial(Record{"id": u})
		require.NoError(t, err)
		assert.Equal(t, u.String(), out["id"])

		_, err = schema.ConformPartial(Record{"id": "not-a-uuid"})
		assert.Error(t, err)
	})

	t.Run("partial accepts any subset", func(t *testing.T) {
		out, err := created.ConformPartial(Record{"color": "gold"})
		require.NoError(t, err)
		assert.Equal(t, Record{"color": "gold"}, out)
	})
}
