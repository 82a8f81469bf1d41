package tool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePositionalEncoding(t *testing.T) {
	params, issues := Normalize("find all TODO comments", nil)
	require.Empty(t, issues)
	require.Equal(t, "find all TODO comments", params["input"])
}

func TestNormalizeTagBlockCoercion(t *testing.T) {
	raw := `<path>/tmp/x</path><limit>10</limit><ratio>0.5</ratio><recursive>TRUE</recursive><tags>["a","b"]</tags>`
	schema := []Param{
		{Name: "path", Required: true},
		{Name: "limit"},
		{Name: "ratio"},
		{Name: "recursive"},
		{Name: "tags"},
	}
	params, issues := Normalize(raw, schema)
	require.Empty(t, issues)
	require.Equal(t, "/tmp/x", params["path"])
	require.Equal(t, int64(10), params["limit"])
	require.Equal(t, 0.5, params["ratio"])
	require.Equal(t, true, params["recursive"])
	require.Equal(t, []any{"a", "b"}, params["tags"])
}

func TestNormalizeDropsUnknownParams(t *testing.T) {
	raw := `<path>/tmp/x</path><bogus>ignored</bogus>`
	schema := []Param{{Name: "path", Required: true}}
	params, issues := Normalize(raw, schema)
	require.Empty(t, issues)
	require.Equal(t, "/tmp/x", params["path"])
	_, hasBogus := params["bogus"]
	require.False(t, hasBogus)
}

func TestNormalizeMissingRequiredReportsIssue(t *testing.T) {
	raw := `<limit>10</limit>`
	schema := []Param{{Name: "path", Required: true}, {Name: "limit"}}
	_, issues := Normalize(raw, schema)
	require.Len(t, issues, 1)
	require.Equal(t, "path", issues[0].Field)
	require.Equal(t, "missing_field", issues[0].Constraint)
}

func TestCoerceFalseBoolean(t *testing.T) {
	params, _ := Normalize(`<flag>false</flag>`, []Param{{Name: "flag"}})
	require.Equal(t, false, params["flag"])
}

func TestCoerceMalformedJSONFallsBackToString(t *testing.T) {
	params, _ := Normalize(`<data>[1,2</data>`, []Param{{Name: "data"}})
	require.Equal(t, "[1,2", params["data"])
}
