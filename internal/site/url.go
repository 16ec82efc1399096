package site

import (
	"net/url"
	"strings"
)

// ResolveURL 把页面里的 href/src 解析为绝对 URL。
//
//	"/trucks/x/"            -> base 的 scheme+host + 路径
//	"//cdn.example/x.jpg"   -> 沿用 base 的 scheme
//	"http://other/x"        -> 原样返回
//
// href 为空时返回空串；base 不可解析时退化为字符串拼接。
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
	}
	if strings.HasPrefix(href, "//") {
		scheme := b.Scheme
		if scheme == "" {
			scheme = "http"
		}
		return scheme + ":" + href
	}
	h, err := url.Parse(href)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
	}
	if h.IsAbs() {
		return h.String()
	}
	return b.ResolveReference(h).String()
}
