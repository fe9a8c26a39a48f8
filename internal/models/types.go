package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// JSON 任意键值的 JSON 列，用于设备属性等自由结构
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// StringArray 字符串数组列
type StringArray []string

// Value 实现 driver.Valuer 接口
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan 实现 sql.Scanner 接口
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// AttributeField 属性模板字段
type AttributeField struct {
	Key      string `json:"key"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required"`
}

// AttributeTemplate 商品属性模板（声明式字段列表）
type AttributeTemplate []AttributeField

// Value 实现 driver.Valuer 接口
func (t AttributeTemplate) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan 实现 sql.Scanner 接口
func (t *AttributeTemplate) Scan(value interface{}) error {
	if value == nil {
		*t = AttributeTemplate{}
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, t)
}

// RequiredKeys 返回模板中的必填字段
func (t AttributeTemplate) RequiredKeys() []string {
	keys := make([]string, 0, len(t))
	for _, field := range t {
		key := strings.TrimSpace(field.Key)
		if field.Required && key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// RowErrorList 批处理行级错误列表（JSON 存储）
type RowErrorList []RowErrorEntry

// RowErrorEntry 行级错误
type RowErrorEntry struct {
	Row     int    `json:"row"`
	Ref     string `json:"ref,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Value 实现 driver.Valuer 接口
func (l RowErrorList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口
func (l *RowErrorList) Scan(value interface{}) error {
	if value == nil {
		*l = RowErrorList{}
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// postgres 的 json 列以 []byte 返回，sqlite 可能返回 string
func toBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
