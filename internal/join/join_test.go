package join

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrongate/patrongate/pkg/fieldpath"
	"github.com/patrongate/patrongate/pkg/gateway"
)

func leftCollection(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func rightEnvelope(body string) *gateway.Envelope {
	return &gateway.Envelope{StatusCode: 200, Body: []byte(body), SourcePath: "/groups"}
}

func TestApplyJoinCompleteness(t *testing.T) {
	left := leftCollection(t, `[
		{"id":"1","groupId":"g1"},
		{"id":"2","groupId":"g2"}
	]`)
	right := rightEnvelope(`{"usergroups":[{"id":"g1","group":"Staff"}],"totalRecords":1}`)

	unmatched, err := Apply(left, right, Spec{
		LeftKeyPath:          "groupId",
		RightCollectionField: "usergroups",
		RightKeyField:        "id",
		DestinationPath:      "group",
	})
	require.NoError(t, err)
	require.Equal(t, 1, unmatched)

	// Element 1 gets the group; element 2 has no group field at all.
	require.Equal(t, "Staff", fieldpath.GetString(left[0], "group.group"))
	_, present := fieldpath.Get(left[1], "group")
	require.False(t, present)
}

func TestApplySingleMatchDropsSiblings(t *testing.T) {
	left := leftCollection(t, `[{"id":"1","groupId":"g1"}]`)
	right := rightEnvelope(`{"usergroups":[
		{"id":"g1","group":"First"},
		{"id":"g1","group":"Second"}
	],"totalRecords":2}`)

	_, err := Apply(left, right, Spec{
		LeftKeyPath:          "groupId",
		RightCollectionField: "usergroups",
		RightKeyField:        "id",
		DestinationPath:      "group",
	})
	require.NoError(t, err)
	require.Equal(t, "First", fieldpath.GetString(left[0], "group.group"))
}

func TestApplyMultiAttachesAllMatches(t *testing.T) {
	left := leftCollection(t, `[{"id":"1"}]`)
	right := rightEnvelope(`{"proxiesFor":[
		{"id":"p1","userId":"1"},
		{"id":"p2","userId":"1"},
		{"id":"p3","userId":"2"}
	],"totalRecords":3}`)

	unmatched, err := Apply(left, right, Spec{
		LeftKeyPath:          "id",
		RightCollectionField: "proxiesFor",
		RightKeyField:        "userId",
		DestinationPath:      "proxiesFor",
		Multi:                true,
	})
	require.NoError(t, err)
	require.Zero(t, unmatched)

	v, ok := fieldpath.Get(left[0], "proxiesFor")
	require.True(t, ok)
	require.Len(t, v.([]any), 2)
}

func TestApplyMalformedRight(t *testing.T) {
	left := leftCollection(t, `[{"id":"1"}]`)

	t.Run("unparseable_body", func(t *testing.T) {
		_, err := Apply(left, rightEnvelope(`not json`), Spec{RightCollectionField: "x"})
		require.Error(t, err)
	})

	t.Run("missing_collection_field_leaves_all_unmatched", func(t *testing.T) {
		unmatched, err := Apply(left, rightEnvelope(`{"totalRecords":0}`), Spec{
			LeftKeyPath:          "id",
			RightCollectionField: "usergroups",
			RightKeyField:        "id",
			DestinationPath:      "group",
		})
		require.NoError(t, err)
		require.Equal(t, 1, unmatched)
	})

	t.Run("collection_field_not_an_array", func(t *testing.T) {
		_, err := Apply(left, rightEnvelope(`{"usergroups":"oops"}`), Spec{
			LeftKeyPath:          "id",
			RightCollectionField: "usergroups",
			RightKeyField:        "id",
			DestinationPath:      "group",
		})
		require.Error(t, err)
	})
}

func TestPredicate(t *testing.T) {
	t.Run("distinct_values_ored", func(t *testing.T) {
		left := leftCollection(t, `[
			{"patronGroup":"g1"},
			{"patronGroup":"g2"},
			{"patronGroup":"g1"}
		]`)
		got := Predicate(left, "patronGroup", "id")
		require.Equal(t, `id=="g1" or id=="g2"`, got)
	})

	t.Run("missing_keys_are_skipped", func(t *testing.T) {
		left := leftCollection(t, `[{"patronGroup":"g1"},{"id":"nokey"}]`)
		require.Equal(t, `id=="g1"`, Predicate(left, "patronGroup", "id"))
	})

	t.Run("empty_left_yields_empty_predicate", func(t *testing.T) {
		require.Equal(t, "", Predicate(nil, "patronGroup", "id"))
	})
}
