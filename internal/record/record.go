// Package record 负责记录文件的编码与形状校验。
package record

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/pretty"
	"github.com/xeipuuv/gojsonschema"

	"github.com/John-Robertt/rhtrucks/internal/domain"
)

//go:embed truck.schema.json
var truckSchema []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(truckSchema))
})

// 输出格式固定：2 空格缩进、每层 key 字典序、数组不折叠成单行。
var prettyOptions = &pretty.Options{Width: 0, Prefix: "", Indent: "  ", SortKeys: true}

// ValidationError 表示记录不符合固定形状。
type ValidationError struct {
	Errors []FieldError
}

type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "记录形状不合法：" + strings.Join(parts, "; ")
}

// EncodeJSON 把任意值编码为稳定的 JSON：相同输入 => 相同字节。
//
// 不转义 HTML 字符（& < >），以 '\n' 结尾。
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := pretty.PrettyOptions(buf.Bytes(), prettyOptions)
	out = bytes.TrimRight(out, " \n")
	return append(out, '\n'), nil
}

// Encode 编码一条记录，并在返回前做形状校验（校验失败不返回字节）。
func Encode(rec domain.TruckRecord) ([]byte, error) {
	b, err := EncodeJSON(rec)
	if err != nil {
		return nil, err
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate 用内嵌的 JSON Schema 校验记录字节。
func Validate(b []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("加载记录 schema 失败：%w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return fmt.Errorf("记录不是合法 JSON：%w", err)
	}
	if res.Valid() {
		return nil
	}

	ve := &ValidationError{Errors: make([]FieldError, 0, len(res.Errors()))}
	for _, desc := range res.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}

// Decode 校验并解析一条已落盘的记录（import 使用）。
func Decode(b []byte) (domain.TruckRecord, error) {
	if err := Validate(b); err != nil {
		return domain.TruckRecord{}, err
	}
	var rec domain.TruckRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.TruckRecord{}, err
	}
	return rec, nil
}
