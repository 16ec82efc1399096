// Package roaminghunger 解析 roaminghunger.com 的城市列表页、餐车详情页与州/城市索引页。
//
// 所有 Parse* 都是纯函数：只依赖输入的 HTML 与站点根地址，不发请求。
package roaminghunger

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/site"
)

const DefaultRoot = "http://roaminghunger.com"

// 抽取失败时写入 fallbacks 的字段名。
const (
	FieldName         = "name"
	FieldDescription  = "description"
	FieldProfileImage = "profileImage"
)

const (
	selTotal       = ".total"
	selTeaser      = ".bg"
	selName        = "h1"
	selDescription = ".col-md-12 > p"
	selImage       = ".main_truck_image"
)

// ListingPageURL 返回城市列表第 page 页（1-based）：<listing-root><page>/。
func ListingPageURL(listingRoot string, page int) string {
	if !strings.HasSuffix(listingRoot, "/") {
		listingRoot += "/"
	}
	return listingRoot + strconv.Itoa(page) + "/"
}

// IndexURL 是州/城市索引页。
func IndexURL(root string) string {
	return strings.TrimRight(root, "/") + "/food-trucks/"
}

// Listing 是一页城市列表的解析结果。
type Listing struct {
	// Total 是页面声明的总条数；TotalFound=false 时为默认值 1。
	Total      int
	TotalFound bool

	// URLs 是本页 teaser 链接（已解析为绝对 URL，保持文档顺序）。
	URLs []string
	// MissingHref 是没有 href 的 teaser 数量（不计入 URLs）。
	MissingHref int
}

// ParseListing 解析一页城市列表。
func ParseListing(html []byte, root string) (Listing, error) {
	doc, err := newDoc(html)
	if err != nil {
		return Listing{}, err
	}

	total, defaulted := site.OrDefault(func() (int, error) {
		s := doc.Find(selTotal).First()
		if s.Length() == 0 {
			return 0, site.ErrNotFound
		}
		return firstInt(s.Text())
	}, 1)

	l := Listing{Total: total, TotalFound: !defaulted, URLs: make([]string, 0, 16)}
	doc.Find(selTeaser).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			l.MissingHref++
			return
		}
		l.URLs = append(l.URLs, site.ResolveURL(root, href))
	})
	return l, nil
}

// Profile 是详情页抽取结果；Fallbacks 列出回退为默认值的字段（按字段声明顺序）。
type Profile struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ProfileImage string   `json:"profileImage"`
	Fallbacks    []string `json:"fallbacks"`
}

// ParseProfile 解析详情页。每个字段独立抽取，缺失时回退为空串。
func ParseProfile(html []byte, root string) (Profile, error) {
	doc, err := newDoc(html)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{Fallbacks: []string{}}
	var defaulted bool

	p.Name, defaulted = site.OrDefault(func() (string, error) {
		s := doc.Find(selName).First()
		if s.Length() == 0 {
			return "", site.ErrNotFound
		}
		return strings.Trim(s.Text(), " \t\n\r"), nil
	}, "")
	if defaulted {
		p.Fallbacks = append(p.Fallbacks, FieldName)
	}

	p.Description, defaulted = site.OrDefault(func() (string, error) {
		ps := doc.Find(selDescription)
		if ps.Length() == 0 {
			return "", site.ErrNotFound
		}
		var b strings.Builder
		ps.Each(func(_ int, s *goquery.Selection) {
			b.WriteString(s.Text())
		})
		return b.String(), nil
	}, "")
	if defaulted {
		p.Fallbacks = append(p.Fallbacks, FieldDescription)
	}

	p.ProfileImage, defaulted = site.OrDefault(func() (string, error) {
		src, ok := doc.Find(selImage).First().Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return "", site.ErrNotFound
		}
		return site.ResolveURL(root, src), nil
	}, "")
	if defaulted {
		p.Fallbacks = append(p.Fallbacks, FieldProfileImage)
	}

	return p, nil
}

// ParseIndex 解析 /food-trucks/ 索引页，生成种子（state -> [{city, url}]）。
//
// 页面结构：第二个 .row 下的 .col-sm-3 列里有若干 .stateListing；
// 州名在 .subhead a，城市在 .cityList li a。城市链接若带 "1/" 页码后缀会被去掉，
// 使 url 成为可直接追加页码的列表根。同名州的城市会合并。
func ParseIndex(html []byte, root string) (domain.Seed, error) {
	doc, err := newDoc(html)
	if err != nil {
		return nil, err
	}

	scope := doc.Find(".row").Eq(1)
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	seed := domain.Seed{}
	scope.Find(".col-sm-3 .stateListing").Each(func(_ int, sl *goquery.Selection) {
		state := strings.TrimSpace(sl.Find(".subhead a").First().Text())
		if state == "" {
			return
		}
		if _, ok := seed[state]; !ok {
			seed[state] = []domain.CityURL{}
		}
		sl.Find(".cityList li").Each(func(_ int, li *goquery.Selection) {
			a := li.Find("a").First()
			href, ok := a.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return
			}
			city := strings.TrimSpace(a.Text())
			if city == "" {
				return
			}
			u := site.ResolveURL(root, href)
			if strings.HasSuffix(u, "/1/") {
				u = strings.TrimSuffix(u, "1/")
			}
			seed[state] = append(seed[state], domain.CityURL{City: city, URL: u})
		})
	})
	if len(seed) == 0 {
		return nil, errors.New("索引页未找到任何 .stateListing（页面结构可能已变化）")
	}
	return seed, nil
}

// newDoc 解析 HTML；空 body 得到空文档，各字段按缺省值处理。
func newDoc(html []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(html))
}

// firstInt 提取文本中第一段连续数字，例如 "Showing 1-12 of 37" -> 1，"37 Trucks" -> 37。
func firstInt(s string) (int, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0, site.ErrNotFound
	}
	return strconv.Atoi(b.String())
}
