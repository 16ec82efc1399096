package slug

import (
	"net/url"
	"path"
	"strings"
)

// InvalidError 表示无法从 URL 推导出 slug。
type InvalidError struct {
	URL    string
	Reason string
}

func (e *InvalidError) Error() string {
	return "无法从 URL 推导 slug：" + e.Reason + "（" + e.URL + "）"
}

// FromURL 返回详情页 URL 路径的最后一个非空段，例如
// http://roaminghunger.com/trucks/example-truck/ -> example-truck。
//
// query/fragment 被忽略；段内的 %xx 会被解码。结果作为文件名使用，
// 因此解码后仍包含路径分隔符或是 "."/".." 的段视为非法。
func FromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &InvalidError{URL: raw, Reason: "URL 为空"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &InvalidError{URL: raw, Reason: err.Error()}
	}

	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "", &InvalidError{URL: raw, Reason: "路径为空"}
	}
	s := path.Base(p)
	if s == "." || s == ".." || s == "/" || strings.ContainsAny(s, `/\`) {
		return "", &InvalidError{URL: raw, Reason: "非法路径段 " + s}
	}
	return s, nil
}

// FileName 是记录文件名：<slug>.json。
func FileName(s string) string { return s + ".json" }
