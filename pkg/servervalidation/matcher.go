package servervalidation

import (
	"fmt"
	"strings"
)

// ============================================================================
// 身份匹配
// ============================================================================

// MatchMode 属性路径的比较方式
type MatchMode int

const (
	// MatchUnset 未指定，按精确路径匹配且比较字段名
	MatchUnset MatchMode = iota
	// MatchExact 显式精确路径匹配，忽略字段名
	MatchExact
	// MatchPrefix 记录位于查询路径之下
	MatchPrefix
	// MatchSuffix 记录路径以查询段结尾
	MatchSuffix
	// MatchContains 查询段出现在记录路径中间
	MatchContains
)

var matchModeNames = map[MatchMode]string{
	MatchUnset:    "",
	MatchExact:    "exact",
	MatchPrefix:   "prefix",
	MatchSuffix:   "suffix",
	MatchContains: "contains",
}

// String 返回匹配方式名称
func (m MatchMode) String() string {
	if name, ok := matchModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MatchMode(%d)", int(m))
}

// IsSet 是否显式指定了匹配方式
func (m MatchMode) IsSet() bool {
	return m != MatchUnset
}

// ParseMatchMode 从字符串解析匹配方式，空串返回 MatchUnset
func ParseMatchMode(s string) (MatchMode, error) {
	for mode, name := range matchModeNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return MatchUnset, fmt.Errorf("%w: unknown match mode %q", ErrInvalidIdentity, s)
}

// MatchPath 按匹配方式比较记录路径与查询路径
// 层级模式要求非空查询，并且只在 "/" 边界上比较：
//   - prefix:   record 以 query+"/" 开头
//   - suffix:   record 以 "/"+query 结尾，第0段不参与（整体相等由 exact 负责）
//   - contains: record 包含 "/"+query+"/"，首段与末段都不参与
func MatchPath(recordPath, queryPath string, mode MatchMode) bool {
	switch mode {
	case MatchPrefix:
		return queryPath != "" && strings.HasPrefix(recordPath, queryPath+PathSeparator)
	case MatchSuffix:
		return queryPath != "" && strings.HasSuffix(recordPath, PathSeparator+queryPath)
	case MatchContains:
		return queryPath != "" && strings.Contains(recordPath, PathSeparator+queryPath+PathSeparator)
	default:
		return recordPath == queryPath
	}
}

// Matches 判断记录是否匹配查询身份
// 语言与分段必须相等；字段名只在未指定匹配方式且查询字段名非空时比较
func Matches(record ErrorRecord, query Identity, mode MatchMode) bool {
	query = query.Normalize()

	if query.IsCatchAll() && !mode.IsSet() {
		return true
	}

	if query.IsField() {
		// 字段订阅只关心原生字段错误
		return record.IsField() && record.FieldName == query.FieldName
	}

	if record.IsField() {
		return false
	}

	if !MatchPath(record.PropertyPath, query.PropertyPath, mode) {
		return false
	}

	if record.Culture != query.Culture || record.Segment != query.Segment {
		return false
	}

	if mode.IsSet() || query.FieldName == "" {
		return true
	}

	return record.FieldName == query.FieldName
}

// filterRecords 返回匹配的记录副本
func filterRecords(records []ErrorRecord, query Identity, mode MatchMode) Records {
	var out Records
	for _, r := range records {
		if Matches(r, query, mode) {
			out = append(out, r)
		}
	}
	return out
}
