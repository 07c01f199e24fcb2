package servervalidation

import (
	"fmt"
	"strings"
	"unicode"
)

// ============================================================================
// 错误记录
// ============================================================================

const (
	// InvariantCulture 不区分语言时的规范化语言值
	InvariantCulture = "invariant"

	// nullLiteral 服务端键中表示 null 的字面量
	nullLiteral = "null"

	// PathSeparator 层级路径分隔符
	PathSeparator = "/"
)

// Identity 验证错误的复合身份
// 说明：
//   - PropertyPath 为空表示原生字段错误（不是用户属性）
//   - Segment 为空表示不区分分段
//   - FieldName 为空表示"整个属性"
type Identity struct {
	PropertyPath string `json:"propertyPath,omitempty"`
	Culture      string `json:"culture" validate:"required"`
	Segment      string `json:"segment,omitempty"`
	FieldName    string `json:"fieldName,omitempty" validate:"required_without=PropertyPath"`
}

// PropertyIdentity 构造属性错误身份
func PropertyIdentity(propertyPath, culture, segment, fieldName string) Identity {
	return Identity{
		PropertyPath: propertyPath,
		Culture:      culture,
		Segment:      segment,
		FieldName:    fieldName,
	}.Normalize()
}

// FieldIdentity 构造原生字段错误身份
func FieldIdentity(fieldName string) Identity {
	return Identity{Culture: InvariantCulture, FieldName: fieldName}
}

// Normalize 规范化语言与分段
// 空语言或 "null" 折叠为 invariant，"null" 分段折叠为空
func (id Identity) Normalize() Identity {
	id.Culture = normalizeCulture(id.Culture)
	id.Segment = normalizeSegment(id.Segment)
	return id
}

// IsField 是否为原生字段身份
func (id Identity) IsField() bool {
	return id.PropertyPath == ""
}

// IsCatchAll 是否为匹配全部记录的身份（无属性路径也无字段名）
func (id Identity) IsCatchAll() bool {
	return id.PropertyPath == "" && id.FieldName == ""
}

// String 返回便于日志输出的身份描述
func (id Identity) String() string {
	if id.IsField() {
		return fmt.Sprintf("field(%s)", id.FieldName)
	}
	return fmt.Sprintf("property(%s, %s, %s, %s)", id.PropertyPath, id.Culture, id.Segment, id.FieldName)
}

// ErrorRecord 扁平化的验证错误记录
type ErrorRecord struct {
	Identity
	// Message 错误消息；嵌套复合错误的标记记录为空
	Message string `json:"message"`
}

// Records 记录的只读副本
type Records []ErrorRecord

// Messages 返回全部消息
func (rs Records) Messages() []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Message)
	}
	return out
}

// Paths 返回全部属性路径（字段错误返回空串）
func (rs Records) Paths() []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.PropertyPath)
	}
	return out
}

func normalizeCulture(culture string) string {
	if culture == "" || strings.EqualFold(culture, nullLiteral) {
		return InvariantCulture
	}
	return culture
}

func normalizeSegment(segment string) string {
	if strings.EqualFold(segment, nullLiteral) {
		return ""
	}
	return segment
}

// trimMessage 去掉首尾的空白与不可打印字符
func trimMessage(msg string) string {
	return strings.TrimFunc(msg, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	})
}
