package agentout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenLeafKinds(t *testing.T) {
	v := Object(
		Member{Key: "text", Value: String("hello")},
		Member{Key: "count", Value: Number("42")},
		Member{Key: "active", Value: Bool(true)},
		Member{Key: "absent", Value: Null()},
	)

	segments := Flatten("agent_a", v)
	require.Len(t, segments, 3)
	assert.Equal(t, Segment{Agent: "agent_a", FieldPath: "text", Text: "hello"}, segments[0])
	assert.Equal(t, Segment{Agent: "agent_a", FieldPath: "count", Text: "42"}, segments[1])
	assert.Equal(t, Segment{Agent: "agent_a", FieldPath: "active", Text: "true"}, segments[2])
}

func TestFlattenNestedPaths(t *testing.T) {
	v := Object(
		Member{Key: "outer", Value: Object(
			Member{Key: "inner", Value: String("deep")},
		)},
		Member{Key: "items", Value: List(String("first"), String("second"))},
	)

	segments := Flatten("agent_a", v)
	require.Len(t, segments, 3)
	assert.Equal(t, "outer.inner", segments[0].FieldPath)
	assert.Equal(t, "items.0", segments[1].FieldPath)
	assert.Equal(t, "items.1", segments[2].FieldPath)
	assert.Equal(t, "second", segments[2].Text)
}

func TestFlattenScalarRootUsesAgentName(t *testing.T) {
	segments := Flatten("summary_agent", String("a bare string payload"))
	require.Len(t, segments, 1)
	assert.Equal(t, "summary_agent", segments[0].FieldPath)
}

func TestFlattenOrderIsStableAcrossDecodes(t *testing.T) {
	raw := []byte(`{"b": {"y": "2", "x": "1"}, "a": ["p", "q"]}`)
	for i := 0; i < 5; i++ {
		var v Value
		require.NoError(t, json.Unmarshal(raw, &v))
		segments := Flatten("agent_a", v)
		require.Len(t, segments, 4)
		assert.Equal(t, "b.y", segments[0].FieldPath)
		assert.Equal(t, "b.x", segments[1].FieldPath)
		assert.Equal(t, "a.0", segments[2].FieldPath)
		assert.Equal(t, "a.1", segments[3].FieldPath)
	}
}

func TestFlattenSkipsNullsInsideContainers(t *testing.T) {
	v := List(Null(), String("kept"), Null())
	segments := Flatten("agent_a", v)
	require.Len(t, segments, 1)
	assert.Equal(t, "1", segments[0].FieldPath)
	assert.Equal(t, "kept", segments[0].Text)
}
