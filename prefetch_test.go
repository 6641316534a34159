package quarry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefetchDirectAttachesRelatedOrNil(t *testing.T) {
	users, _ := userMetaForTest()
	db := newFakeDB()
	db.queued = [][]Row{{
		{"id": int64(3), "name": "core"},
	}}

	instances := []*Instance{
		NewInstance(users, map[string]interface{}{"id": int64(1), "team_id": int64(3)}),
		NewInstance(users, map[string]interface{}{"id": int64(2), "team_id": int64(3)}),
		NewInstance(users, map[string]interface{}{"id": int64(4), "team_id": nil}),
		NewInstance(users, map[string]interface{}{"id": int64(5), "team_id": int64(99)}),
	}

	_, err := NewExecutor(users, db).FetchForList(context.Background(), instances, "team")
	require.NoError(t, err)

	require.Len(t, db.statements, 1, "one fetch regardless of list size")
	assert.Equal(t, `SELECT "id", "name" FROM "teams" WHERE "id" IN (?)`, db.statements[0].query)
	assert.Equal(t, []interface{}{int64(3)}, db.statements[0].args, "duplicate and null keys are not fetched")

	team, ok := instances[0].Related("team").(*Instance)
	require.True(t, ok)
	assert.Equal(t, "core", team.Get("name"))
	assert.Same(t, team, instances[1].Related("team"), "shared key gets the same object")
	assert.Nil(t, instances[2].Related("team"))
	assert.Nil(t, instances[3].Related("team"), "dangling key resolves to nil")
}

func TestPrefetchReverseGroupsChildrenByKey(t *testing.T) {
	_, teams := userMetaForTest()
	db := newFakeDB()
	db.queued = [][]Row{{
		{"id": int64(10), "name": "ada", "team_id": int64(1)},
		{"id": int64(11), "name": "bo", "team_id": int64(1)},
		{"id": int64(12), "name": "cy", "team_id": int64(2)},
	}}

	instances := []*Instance{
		NewInstance(teams, map[string]interface{}{"id": int64(1)}),
		NewInstance(teams, map[string]interface{}{"id": int64(2)}),
		NewInstance(teams, map[string]interface{}{"id": int64(3)}),
		NewInstance(teams, nil), // unpersisted, excluded from the fetch set
	}

	_, err := NewExecutor(teams, db).FetchForList(context.Background(), instances, "members")
	require.NoError(t, err)

	require.Len(t, db.statements, 1)
	assert.Equal(t, `SELECT "id", "name", "team_id" FROM "users" WHERE "team_id" IN (?, ?, ?)`, db.statements[0].query)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, db.statements[0].args)

	assert.Len(t, instances[0].Related("members"), 2)
	assert.Len(t, instances[1].Related("members"), 1)
	assert.Equal(t, []*Instance{}, instances[2].Related("members"), "parent without children gets an empty list")
	assert.Nil(t, instances[3].Related("members"), "unpersisted parent stays untouched")
}

func TestPrefetchManyToManyJoinsThroughTable(t *testing.T) {
	_, teams := userMetaForTest()
	events := eventMetaForTest(teams)
	db := newFakeDB()
	db.onQuery = func(query string, args []interface{}) ([]Row, error) {
		if strings.Contains(query, "event_teams") {
			return []Row{
				{"_backward_relation_key": int64(1), "id": int64(3), "name": "core"},
				{"_backward_relation_key": int64(1), "id": int64(4), "name": "infra"},
				{"_backward_relation_key": int64(2), "id": int64(3), "name": "core"},
			}, nil
		}
		return nil, nil
	}

	instances := []*Instance{
		NewInstance(events, map[string]interface{}{"id": int64(1)}),
		NewInstance(events, map[string]interface{}{"id": int64(2)}),
		NewInstance(events, map[string]interface{}{"id": int64(9)}),
	}

	_, err := NewExecutor(events, db).FetchForList(context.Background(), instances, "teams")
	require.NoError(t, err)

	require.Len(t, db.statements, 1)
	assert.Equal(t,
		`SELECT "through_teams"."_backward_relation_key", "teams"."id", "teams"."name"`+
			` FROM "teams" JOIN (SELECT "event_id" AS "_backward_relation_key", "team_id" AS "_forward_relation_key"`+
			` FROM "event_teams" WHERE "event_id" IN (?, ?, ?)) "through_teams"`+
			` ON "through_teams"."_forward_relation_key" = "teams"."id"`,
		db.statements[0].query)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(9)}, db.statements[0].args)

	first := instances[0].Related("teams").([]*Instance)
	require.Len(t, first, 2)
	assert.Equal(t, "core", first[0].Get("name"))
	second := instances[1].Related("teams").([]*Instance)
	require.Len(t, second, 1)
	assert.Same(t, first[0], second[0], "shared related rows deduplicate to one object")
	assert.Equal(t, []*Instance{}, instances[2].Related("teams"))
}

func TestPrefetchManyToManyAppliesRelatedFilters(t *testing.T) {
	_, teams := userMetaForTest()
	events := eventMetaForTest(teams)
	db := newFakeDB()

	ex := NewExecutor(events, db).WithPrefetchQuery("teams", NewQuery(teams).Filter("name", OpEq, "core"))
	instances := []*Instance{NewInstance(events, map[string]interface{}{"id": int64(1)})}

	_, err := ex.FetchForList(context.Background(), instances, "teams")
	require.NoError(t, err)

	require.Len(t, db.statements, 1)
	assert.Contains(t, db.statements[0].query, ` WHERE "teams"."name" = ?`)
	assert.Equal(t, []interface{}{int64(1), "core"}, db.statements[0].args)
}

func TestPrefetchNestedPathCostsOneQueryPerLevel(t *testing.T) {
	_, teams := userMetaForTest()
	events := eventMetaForTest(teams)
	db := newFakeDB()
	db.onQuery = func(query string, args []interface{}) ([]Row, error) {
		switch {
		case strings.Contains(query, "event_teams"):
			return []Row{{"_backward_relation_key": int64(1), "id": int64(3), "name": "core"}}, nil
		case strings.Contains(query, `FROM "users"`):
			return []Row{{"id": int64(10), "name": "ada", "team_id": int64(3)}}, nil
		}
		return nil, nil
	}

	instances := []*Instance{NewInstance(events, map[string]interface{}{"id": int64(1)})}
	_, err := NewExecutor(events, db).FetchForList(context.Background(), instances, "teams.members")
	require.NoError(t, err)

	require.Len(t, db.statements, 2, "one query per nesting level")
	assert.Contains(t, db.statements[1].query, `"team_id" IN (?)`)

	relatedTeams := instances[0].Related("teams").([]*Instance)
	require.Len(t, relatedTeams, 1)
	members := relatedTeams[0].Related("members").([]*Instance)
	require.Len(t, members, 1)
	assert.Equal(t, "ada", members[0].Get("name"))
}

func TestPrefetchUnknownRelationFailsBeforeQuerying(t *testing.T) {
	users, _ := userMetaForTest()
	db := newFakeDB()

	_, err := NewExecutor(users, db).FetchForList(context.Background(),
		[]*Instance{NewInstance(users, map[string]interface{}{"id": int64(1)})}, "manager")
	require.Error(t, err)
	assert.True(t, IsOperationalError(err))
	assert.Contains(t, err.Error(), "relation manager for users not found")
	assert.Zero(t, db.queryCount())
}

func TestPrefetchEmptyListIssuesNoQueries(t *testing.T) {
	users, _ := userMetaForTest()
	db := newFakeDB()

	out, err := NewExecutor(users, db).FetchForList(context.Background(), nil, "team")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, db.queryCount())
}
