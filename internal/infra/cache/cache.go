package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/rhtrucks/internal/infra/fsx"
)

// Store 是 <out>/cache/ 下的详情页 HTML 归档：cache/pages/<state>/<city>/<slug>.html。
//
// 跳过与否只看记录文件是否存在；开启归档时，记录缺失但页面已归档的 URL
// 直接重新解析归档，不再请求站点。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - 其它：允许写
type Store struct {
	Root     string // <out>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PagePath 返回某个详情页 HTML 归档的绝对路径。
func (s Store) PagePath(state, city, slug string) (string, error) {
	dir, err := s.pageDir(state, city)
	if err != nil {
		return "", err
	}
	if err := fsx.CheckName(slug); err != nil {
		return "", err
	}
	return filepath.Join(dir, slug+".html"), nil
}

// ReadPage 读取归档；不存在时 ok=false 且 err=nil。
func (s Store) ReadPage(state, city, slug string) ([]byte, bool, error) {
	path, err := s.PagePath(state, city, slug)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WritePage 覆盖写入归档（同一 slug 重新抓取时以最新页面为准）。
func (s Store) WritePage(state, city, slug string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	dir, err := s.pageDir(state, city)
	if err != nil {
		return err
	}
	if err := fsx.CheckName(slug); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, slug+".html", html)
}

func (s Store) pageDir(state, city string) (string, error) {
	if err := fsx.CheckName(state); err != nil {
		return "", err
	}
	if err := fsx.CheckName(city); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "cache", "pages", state, city), nil
}
