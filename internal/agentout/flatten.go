package agentout

import (
	"strconv"
	"strings"
)

// Segment is one flattened leaf of an agent-output payload.
type Segment struct {
	Agent     string `json:"agent"`
	FieldPath string `json:"field_path"`
	Text      string `json:"text"`
}

// Flatten walks an agent payload depth-first and returns its leaves as
// (field_path, text) segments. Object keys join with ".", list elements use
// their integer position, nulls are skipped, and non-string leaves keep their
// JSON string form. An empty path falls back to the agent name.
func Flatten(agent string, v Value) []Segment {
	return flatten(agent, v, nil)
}

func flatten(agent string, v Value, path []string) []Segment {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return []Segment{{Agent: agent, FieldPath: joinPath(agent, path), Text: v.str}}
	case KindNumber:
		return []Segment{{Agent: agent, FieldPath: joinPath(agent, path), Text: v.num.String()}}
	case KindBool:
		return []Segment{{Agent: agent, FieldPath: joinPath(agent, path), Text: strconv.FormatBool(v.boolean)}}
	case KindList:
		segments := make([]Segment, 0)
		for i, item := range v.list {
			segments = append(segments, flatten(agent, item, append(path, strconv.Itoa(i)))...)
		}
		return segments
	case KindObject:
		segments := make([]Segment, 0)
		for _, m := range v.members {
			segments = append(segments, flatten(agent, m.Value, append(path, m.Key))...)
		}
		return segments
	}
	return nil
}

func joinPath(agent string, path []string) string {
	if len(path) == 0 {
		return agent
	}
	return strings.Join(path, ".")
}
