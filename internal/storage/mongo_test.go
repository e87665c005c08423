package storage

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTrackingPipeline_SingleSetStage(t *testing.T) {
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	p := trackingPipeline(day("2024-01-01"), true, now)
	require.Len(t, p, 1)
	require.Equal(t, "$set", p[0][0].Key)

	set, ok := p[0][0].Value.(bson.D)
	require.True(t, ok)
	keys := make([]string, 0, len(set))
	for _, e := range set {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"logs", "createdAt", "updatedAt"}, keys)

	raw, err := bson.Marshal(p[0])
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

// evalExpr interprets the aggregation operators trackingPipeline emits so
// its update semantics can be checked without a server.
func evalExpr(t *testing.T, expr any, doc bson.M, vars bson.M) any {
	t.Helper()
	switch e := expr.(type) {
	case string:
		switch {
		case strings.HasPrefix(e, "$$"):
			path := strings.Split(e[2:], ".")
			return lookupPath(vars[path[0]], path[1:])
		case strings.HasPrefix(e, "$"):
			return lookupPath(doc, strings.Split(e[1:], "."))
		}
		return e
	case bson.A:
		out := make([]any, len(e))
		for i, v := range e {
			out[i] = evalExpr(t, v, doc, vars)
		}
		return out
	case bson.D:
		if len(e) == 1 && strings.HasPrefix(e[0].Key, "$") {
			return evalOperator(t, e[0].Key, e[0].Value, doc, vars)
		}
		out := bson.M{}
		for _, f := range e {
			out[f.Key] = evalExpr(t, f.Value, doc, vars)
		}
		return out
	}
	return expr
}

// lookupPath resolves a dotted field path, mapping over arrays the way
// "$logs.targetCompletionAt" does.
func lookupPath(v any, path []string) any {
	if len(path) == 0 {
		return v
	}
	switch x := v.(type) {
	case bson.M:
		f, ok := x[path[0]]
		if !ok {
			return nil
		}
		return lookupPath(f, path[1:])
	case []any:
		out := []any{}
		for _, el := range x {
			if r := lookupPath(el, path); r != nil {
				out = append(out, r)
			}
		}
		return out
	}
	return nil
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func evalOperator(t *testing.T, op string, arg any, doc bson.M, vars bson.M) any {
	t.Helper()
	if op == "$map" {
		spec := evalSpec(t, arg)
		input, _ := evalExpr(t, spec["input"], doc, vars).([]any)
		out := make([]any, 0, len(input))
		for _, el := range input {
			scope := bson.M{}
			for k, v := range vars {
				scope[k] = v
			}
			scope[spec["as"].(string)] = el
			out = append(out, evalExpr(t, spec["in"], doc, scope))
		}
		return out
	}

	args, ok := arg.(bson.A)
	require.True(t, ok, "%s expects an argument array", op)
	at := func(i int) any { return evalExpr(t, args[i], doc, vars) }
	switch op {
	case "$ifNull":
		if v := at(0); v != nil {
			return v
		}
		return at(1)
	case "$cond":
		if c, _ := at(0).(bool); c {
			return at(1)
		}
		return at(2)
	case "$eq":
		return sameValue(at(0), at(1))
	case "$in":
		needle := at(0)
		hay, ok := at(1).([]any)
		require.True(t, ok, "$in expects an array")
		for _, v := range hay {
			if sameValue(needle, v) {
				return true
			}
		}
		return false
	case "$concatArrays":
		out := []any{}
		for i := range args {
			part, ok := at(i).([]any)
			require.True(t, ok, "$concatArrays expects arrays")
			out = append(out, part...)
		}
		return out
	}
	t.Fatalf("unsupported operator %s", op)
	return nil
}

func evalSpec(t *testing.T, arg any) bson.M {
	d, ok := arg.(bson.D)
	require.True(t, ok)
	m := bson.M{}
	for _, f := range d {
		m[f.Key] = f.Value
	}
	return m
}

// applyTracking runs the pipeline's $set stage against doc the way an
// upserting UpdateOne would, then decodes the result.
func applyTracking(t *testing.T, doc bson.M, day time.Time, completed bool, now time.Time) habitLogDoc {
	t.Helper()
	p := trackingPipeline(day, completed, now)
	require.Len(t, p, 1)
	set := p[0][0].Value.(bson.D)

	out := bson.M{}
	for k, v := range doc {
		out[k] = v
	}
	for _, f := range set {
		out[f.Key] = evalExpr(t, f.Value, doc, bson.M{})
	}

	raw, err := bson.Marshal(out)
	require.NoError(t, err)
	var decoded habitLogDoc
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	return decoded
}

func logDoc(day time.Time, completed bool) bson.M {
	return bson.M{"targetCompletionAt": day, "isCompleted": completed}
}

func TestTrackingPipeline_Semantics(t *testing.T) {
	created := time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

	t.Run("new document", func(t *testing.T) {
		got := applyTracking(t, bson.M{"userId": "u1", "habitId": "h1"}, day("2024-01-01"), true, now)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, []logEntryDoc{{TargetCompletionAt: day("2024-01-01"), IsCompleted: true}}, got.Logs)
		assert.True(t, got.CreatedAt.Equal(now))
		assert.True(t, got.UpdatedAt.Equal(now))
	})

	t.Run("null logs", func(t *testing.T) {
		got := applyTracking(t, bson.M{"logs": nil, "createdAt": created}, day("2024-01-01"), false, now)
		assert.Equal(t, []logEntryDoc{{TargetCompletionAt: day("2024-01-01"), IsCompleted: false}}, got.Logs)
	})

	existing := func() bson.M {
		return bson.M{
			"userId":    "u1",
			"habitId":   "h1",
			"logs":      []any{logDoc(day("2024-01-01"), true), logDoc(day("2024-01-02"), false)},
			"createdAt": created,
			"updatedAt": created,
		}
	}

	t.Run("same day replaced in place", func(t *testing.T) {
		got := applyTracking(t, existing(), day("2024-01-01"), false, now)
		assert.Equal(t, []logEntryDoc{
			{TargetCompletionAt: day("2024-01-01"), IsCompleted: false},
			{TargetCompletionAt: day("2024-01-02"), IsCompleted: false},
		}, got.Logs)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.True(t, got.UpdatedAt.Equal(now))
	})

	t.Run("new day appended", func(t *testing.T) {
		got := applyTracking(t, existing(), day("2024-01-03"), true, now)
		require.Len(t, got.Logs, 3)
		assert.Equal(t, logEntryDoc{TargetCompletionAt: day("2024-01-03"), IsCompleted: true}, got.Logs[2])
		assert.Equal(t, logEntryDoc{TargetCompletionAt: day("2024-01-01"), IsCompleted: true}, got.Logs[0])
	})
}

func TestHabitLogDoc_ToModel(t *testing.T) {
	id := primitive.NewObjectID()
	doc := habitLogDoc{
		ID:      id,
		UserID:  "u1",
		HabitID: "h1",
		Logs: []logEntryDoc{
			{TargetCompletionAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), IsCompleted: true},
		},
	}
	l := doc.toModel()
	assert.Equal(t, id.Hex(), l.ID)
	require.Len(t, l.Logs, 1)
	assert.Equal(t, internal.LogEntry{TargetCompletionAt: day("2024-01-01"), IsCompleted: true}, l.Logs[0])
}

func TestUserDoc_ToModelDropsDenormalizedName(t *testing.T) {
	doc := userDoc{
		ID:     "u1",
		Email:  "a@example.com",
		Role:   "member",
		Habits: []followDoc{{HabitID: "h1", Name: "Run", IsActive: true}, {HabitID: "h2", Name: "Read"}},
	}
	u := doc.toModel()
	assert.Equal(t, internal.RoleMember, u.Role)
	assert.Equal(t, []internal.FollowedHabit{{HabitID: "h1", IsActive: true}, {HabitID: "h2", IsActive: false}}, u.Habits)
}
