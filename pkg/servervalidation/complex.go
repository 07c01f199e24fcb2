package servervalidation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// 复合（嵌套）错误解析
// ============================================================================

const (
	// nodeIDField 节点标识字段
	nodeIDField = "$id"

	// nodeTypeField 节点类型鉴别字段
	nodeTypeField = "$elementTypeAlias"

	// nodeModelStateField 节点模型状态字段
	nodeModelStateField = "ModelState"

	// maxNestedDepth 最大嵌套深度，防止恶意载荷导致栈溢出
	maxNestedDepth = 100
)

// NestedValidation 扁平化后的一个嵌套节点
type NestedValidation struct {
	// ValidationPath 由祖先标识拼接的路径
	ValidationPath string
	// ModelState 该节点自己的模型状态
	ModelState ModelState
}

// IsComplexPayload 消息是否为嵌套载荷（JSON 数组）
func IsComplexPayload(msg string) bool {
	return strings.HasPrefix(strings.TrimSpace(msg), "[")
}

// ParseComplexError 把嵌套的块验证树扁平化为 (路径, 模型状态) 列表
// 深度优先；缺少标识或模型状态的节点被跳过且不再向下递归
func ParseComplexError(payload []byte, rootPath string) ([]NestedValidation, error) {
	var nodes []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(payload), &nodes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	p := &complexParser{}
	for _, node := range nodes {
		if err := p.walk(node, rootPath, 1); err != nil {
			return nil, err
		}
	}
	return p.out, nil
}

type complexParser struct {
	out []NestedValidation
}

func (p *complexParser) walk(raw json.RawMessage, parentPath string, depth int) error {
	if depth > maxNestedDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrInvalidPayload, maxNestedDepth)
	}

	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil || node == nil {
		// 非对象节点
		return nil
	}

	id, ok := nodeID(node[nodeIDField])
	if !ok {
		return nil
	}
	msRaw, ok := node[nodeModelStateField]
	if !ok {
		return nil
	}
	var ms ModelState
	if err := json.Unmarshal(msRaw, &ms); err != nil || ms == nil {
		return nil
	}

	path := parentPath + PathSeparator + id
	p.out = append(p.out, NestedValidation{ValidationPath: path, ModelState: ms})

	keys := make([]string, 0, len(node))
	for k := range node {
		switch k {
		case nodeIDField, nodeTypeField, nodeModelStateField:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value := bytes.TrimSpace(node[k])
		if len(value) == 0 || value[0] != '[' {
			continue
		}
		var children []json.RawMessage
		if err := json.Unmarshal(value, &children); err != nil {
			continue
		}
		for _, child := range children {
			if err := p.walk(child, path, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// nodeID 读取节点标识，允许字符串或数字
func nodeID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
