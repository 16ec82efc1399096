package site

import "errors"

// ErrNotFound 表示选择器未命中或属性缺失。
var ErrNotFound = errors.New("site: 元素不存在")

// OrDefault 执行单个字段的抽取：成功返回抽取值；任何错误都返回 def，并报告 defaulted=true。
//
// 每个字段独立调用，一个字段失败不影响其它字段。
func OrDefault[T any](extract func() (T, error), def T) (v T, defaulted bool) {
	v, err := extract()
	if err != nil {
		return def, true
	}
	return v, false
}
