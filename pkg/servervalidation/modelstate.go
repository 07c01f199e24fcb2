package servervalidation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// 服务端模型状态
// ============================================================================

// PropertiesSentinel 属性错误键的固定前缀
const PropertiesSentinel = "_Properties"

// ModelState 服务端返回的模型状态：键 -> 消息列表
type ModelState map[string]Messages

// Messages 消息列表
// 解码时非字符串元素（如嵌套数组）保留为原始 JSON 文本
type Messages []string

// UnmarshalJSON 实现 json.Unmarshaler
func (m *Messages) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// 单个字符串也接受
		var single string
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return fmt.Errorf("%w: messages must be an array: %v", ErrInvalidModelState, err)
		}
		*m = Messages{single}
		return nil
	}

	out := make(Messages, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidModelState, err)
			}
			out = append(out, s)
			continue
		}
		if bytes.Equal(item, []byte(nullLiteral)) {
			out = append(out, "")
			continue
		}
		out = append(out, string(item))
	}
	*m = out
	return nil
}

// First 返回第一条消息
func (m Messages) First() string {
	if len(m) == 0 {
		return ""
	}
	return m[0]
}

// DecodeModelState 解码服务端模型状态 JSON，要求顶层为对象
func DecodeModelState(data []byte) (ModelState, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidModelState)
	}
	var ms ModelState
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModelState, err)
	}
	return ms, nil
}

// sortedKeys 返回排序后的键，保证处理顺序稳定
func (ms ModelState) sortedKeys() []string {
	keys := make([]string, 0, len(ms))
	for k := range ms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================================
// 模型状态键解析
// ============================================================================

// ModelStateKey 模型状态键的解析结果：FieldKey 或 PropertyKey
type ModelStateKey interface {
	isModelStateKey()
}

// FieldKey 原生字段错误键，Name 为完整键（可能含点，如 Groups[0].Properties[2].Alias）
type FieldKey struct {
	Name string
}

// PropertyKey 属性错误键：_Properties.<alias>.<culture>.<segment>.<field>
type PropertyKey struct {
	Alias   string
	Culture string
	Segment string
	Field   string
}

func (FieldKey) isModelStateKey()    {}
func (PropertyKey) isModelStateKey() {}

// Identity 返回属性键对应的身份，parentPath 非空时作为路径前缀
func (k PropertyKey) Identity(parentPath string) Identity {
	path := k.Alias
	if parentPath != "" {
		path = parentPath + PathSeparator + k.Alias
	}
	return PropertyIdentity(path, k.Culture, k.Segment, k.Field)
}

// ParseModelStateKey 解析模型状态键
func ParseModelStateKey(key string) (ModelStateKey, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty model state key", ErrInvalidModelState)
	}

	parts := strings.Split(key, ".")
	if parts[0] != PropertiesSentinel {
		return FieldKey{Name: key}, nil
	}

	if len(parts) < 2 || parts[1] == "" {
		return nil, fmt.Errorf("%w: property key %q has no alias", ErrInvalidModelState, key)
	}

	pk := PropertyKey{Alias: parts[1]}
	if len(parts) > 2 {
		pk.Culture = parts[2]
	}
	if len(parts) > 3 {
		pk.Segment = parts[3]
	}
	if len(parts) > 4 {
		// 字段名本身可能带点
		pk.Field = strings.Join(parts[4:], ".")
	}
	pk.Culture = normalizeCulture(pk.Culture)
	pk.Segment = normalizeSegment(pk.Segment)
	return pk, nil
}
