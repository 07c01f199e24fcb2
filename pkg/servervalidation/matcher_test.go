package servervalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prop(path, field, msg string) ErrorRecord {
	return ErrorRecord{Identity: PropertyIdentity(path, "", "", field), Message: msg}
}

// TestMatchPath_Modes 测试四种匹配方式
func TestMatchPath_Modes(t *testing.T) {
	records := []ErrorRecord{
		prop("a/1/b", "", "first"),
		prop("a/1/b/2/c", "", "second"),
		prop("x/1/b", "", "third"),
	}

	cases := []struct {
		name  string
		query string
		mode  MatchMode
		want  []string
	}{
		{"exact", "a/1/b", MatchExact, []string{"first"}},
		{"unset behaves as exact path", "a/1/b", MatchUnset, []string{"first"}},
		{"prefix only descendants", "a/1/b", MatchPrefix, []string{"second"}},
		{"suffix on slash boundary", "b", MatchSuffix, []string{"first", "third"}},
		{"suffix multi segment", "1/b", MatchSuffix, []string{"first", "third"}},
		{"contains interior segment", "1", MatchContains, []string{"first", "second", "third"}},
		{"contains interior b", "b", MatchContains, []string{"second"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := filterRecords(records, PropertyIdentity(tc.query, "", "", ""), tc.mode)
			assert.Equal(t, tc.want, got.Messages())
		})
	}
}

// TestMatchPath_Boundaries 测试路径边界（不做裸子串比较）
func TestMatchPath_Boundaries(t *testing.T) {
	// 前缀必须在 "/" 处断开
	assert.False(t, MatchPath("ab/1", "a", MatchPrefix))
	assert.True(t, MatchPath("a/1", "a", MatchPrefix))
	assert.False(t, MatchPath("a", "a", MatchPrefix))

	// 后缀不匹配半个段
	assert.False(t, MatchPath("a/1/xb", "b", MatchSuffix))
	// 第0段不参与后缀与包含匹配
	assert.False(t, MatchPath("b", "b", MatchSuffix))
	assert.False(t, MatchPath("b/1/c", "b", MatchContains))
	assert.False(t, MatchPath("a/1/b", "b", MatchContains))

	// 空查询在层级模式下不匹配
	assert.False(t, MatchPath("a/1", "", MatchPrefix))
	assert.False(t, MatchPath("a/1", "", MatchSuffix))
	assert.False(t, MatchPath("a/1", "", MatchContains))
}

// TestMatches_CultureSegmentField 测试语言、分段与字段名规则
func TestMatches_CultureSegmentField(t *testing.T) {
	r := ErrorRecord{Identity: PropertyIdentity("title", "en-US", "seg", "html"), Message: "bad"}

	assert.True(t, Matches(r, PropertyIdentity("title", "en-US", "seg", "html"), MatchUnset))
	assert.True(t, Matches(r, PropertyIdentity("title", "en-US", "seg", ""), MatchUnset), "empty field matches whole property")
	assert.False(t, Matches(r, PropertyIdentity("title", "en-US", "seg", "other"), MatchUnset))
	assert.True(t, Matches(r, PropertyIdentity("title", "en-US", "seg", "other"), MatchExact), "explicit mode ignores field")
	assert.False(t, Matches(r, PropertyIdentity("title", "da-DK", "seg", ""), MatchUnset))
	assert.False(t, Matches(r, PropertyIdentity("title", "en-US", "", ""), MatchUnset))
	assert.False(t, Matches(r, PropertyIdentity("title", "", "seg", ""), MatchUnset))

	invariant := prop("title", "", "")
	assert.True(t, Matches(invariant, PropertyIdentity("title", "null", "null", ""), MatchUnset))
}

// TestMatches_FieldAndCatchAll 测试原生字段与全匹配身份
func TestMatches_FieldAndCatchAll(t *testing.T) {
	field := ErrorRecord{Identity: FieldIdentity("Name"), Message: "required"}
	property := prop("Name", "", "required")

	assert.True(t, Matches(field, FieldIdentity("Name"), MatchUnset))
	assert.False(t, Matches(property, FieldIdentity("Name"), MatchUnset))
	assert.False(t, Matches(field, PropertyIdentity("Name", "", "", ""), MatchUnset))

	assert.True(t, Matches(field, Identity{}, MatchUnset))
	assert.True(t, Matches(property, Identity{}, MatchUnset))
}

// TestParseMatchMode 测试匹配方式解析
func TestParseMatchMode(t *testing.T) {
	for _, mode := range []MatchMode{MatchUnset, MatchExact, MatchPrefix, MatchSuffix, MatchContains} {
		got, err := ParseMatchMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	got, err := ParseMatchMode("PREFIX")
	require.NoError(t, err)
	assert.Equal(t, MatchPrefix, got)

	_, err = ParseMatchMode("regex")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}
