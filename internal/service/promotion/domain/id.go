package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ID 是平台分配的裸数字标识，由资源标识串 "gid://shopify/Product/123" 去掉命名空间前缀得到。
type ID int64

// CleanID 把资源标识转换成裸数字 ID。
// 字符串按 "/" 切分取最后一段并解析前导整数；已经是数字的输入原样透传，
// 因此 CleanID(CleanID(x)) == CleanID(x)。无法解析时返回 0。
func CleanID(v any) ID {
	switch t := v.(type) {
	case ID:
		return t
	case int:
		return ID(t)
	case int32:
		return ID(t)
	case int64:
		return ID(t)
	case float64:
		return ID(int64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return ID(n)
		}
		if f, err := t.Float64(); err == nil {
			return ID(int64(f))
		}
		return 0
	case string:
		seg := t
		if i := strings.LastIndex(t, "/"); i >= 0 {
			seg = t[i+1:]
		}
		return ID(parseLeadingInt(seg))
	default:
		return 0
	}
}

// CleanRawID 解析 JSON 中的 itemId，兼容字符串和数字两种写法。
func CleanRawID(raw json.RawMessage) ID {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return CleanID(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return CleanID(n)
	}
	return 0
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// parseLeadingInt 读取字符串开头的十进制整数，忽略前导空白和之后的非数字字符。
func parseLeadingInt(s string) int64 {
	s = strings.TrimLeft(s, " \t\n\r")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	if neg {
		return -n
	}
	return n
}
