package quarry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaFieldOrderIsDeclarationOrder(t *testing.T) {
	users, _ := userMetaForTest()

	assert.Equal(t, []string{"id", "name", "team_id"}, users.FieldNames())
	assert.Equal(t, []string{"id", "name", "team_id"}, users.ColumnNames())

	fields, columns := users.InsertableFields()
	assert.Equal(t, []string{"name", "team_id"}, fields, "generated key excluded")
	assert.Equal(t, []string{"name", "team_id"}, columns)
}

func TestMetaColumnMapping(t *testing.T) {
	meta := NewMeta("articles", []*Field{
		{Name: "id", Kind: IntField, Generated: true},
		{Name: "title", Column: "headline", Kind: TextField},
	}, nil)

	col, ok := meta.Column("title")
	require.True(t, ok)
	assert.Equal(t, "headline", col)

	_, ok = meta.Column("missing")
	assert.False(t, ok)

	inst := meta.FromRow(Row{"headline": "hello", "id": int64(1), "unknown_col": "dropped"})
	assert.Equal(t, "hello", inst.Get("title"))
	assert.Nil(t, inst.Get("unknown_col"))
}

func TestDirectRelationDefaultsSourceField(t *testing.T) {
	users, _ := userMetaForTest()
	target := NewMeta("groups", []*Field{{Name: "id", Kind: IntField, Generated: true}}, []*Relation{
		{Name: "owner", Kind: DirectRelation, Target: users},
	})

	rel, ok := target.Relation("owner")
	require.True(t, ok)
	assert.Equal(t, "owner_id", rel.SourceField)
}

func TestInstanceID(t *testing.T) {
	users, _ := userMetaForTest()

	for _, raw := range []interface{}{int64(5), int(5), int32(5), uint64(5), float64(5)} {
		inst := NewInstance(users, map[string]interface{}{"id": raw})
		id, ok := inst.ID()
		require.True(t, ok, "id from %T", raw)
		assert.Equal(t, int64(5), id)
	}

	inst := NewInstance(users, nil)
	_, ok := inst.ID()
	assert.False(t, ok)

	inst.SetID(9)
	id, ok := inst.ID()
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestInstanceRelatedAndCustom(t *testing.T) {
	users, teams := userMetaForTest()
	inst := NewInstance(users, map[string]interface{}{"id": int64(1)})

	assert.Nil(t, inst.Related("team"))

	team := NewInstance(teams, map[string]interface{}{"id": int64(2)})
	inst.SetRelated("team", team)
	assert.Same(t, team, inst.Related("team"))

	assert.Nil(t, inst.Custom("rank"))
	inst.setCustom("rank", int64(3))
	assert.Equal(t, int64(3), inst.Custom("rank"))
}
