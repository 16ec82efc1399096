package run

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/John-Robertt/rhtrucks/internal/config"
	"github.com/John-Robertt/rhtrucks/internal/metrics"
)

// fakeCity 是一个分页的城市列表：Declared 写进 .total，Actual 是真实存在的 teaser 数。
type fakeCity struct {
	Declared int
	Actual   int
	PerPage  int
	NoTotal  bool
}

// fakeSite 模拟 roaminghunger.com：城市列表按 <prefix><n>/ 分页，详情页在 /trucks/<slug>/。
type fakeSite struct {
	mu       sync.Mutex
	hits     map[string]int
	cities   map[string]fakeCity // key: 列表根路径，例如 /food-trucks/ca/la/
	profiles map[string]string   // key: 路径
	status   map[string]int      // key: 路径；强制返回该状态码
	drop     map[string]bool     // key: 路径；不回任何响应直接断开连接（传输失败）
	index    string

	srv *httptest.Server
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	fs := &fakeSite{
		hits:     map[string]int{},
		cities:   map[string]fakeCity{},
		profiles: map[string]string{},
		status:   map[string]int{},
		drop:     map[string]bool{},
	}
	fs.srv = httptest.NewServer(fs)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeSite) URL(p string) string { return fs.srv.URL + p }

func (fs *fakeSite) Hits(p string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[p]
}

func (fs *fakeSite) TotalHits() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, v := range fs.hits {
		n += v
	}
	return n
}

// HitsWithPrefix 统计某个城市列表的页面请求数。
func (fs *fakeSite) HitsWithPrefix(prefix string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for p, v := range fs.hits {
		if strings.HasPrefix(p, prefix) {
			n += v
		}
	}
	return n
}

func (fs *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path

	fs.mu.Lock()
	fs.hits[p]++
	code, forced := fs.status[p]
	dropped := fs.drop[p]
	body, isProfile := fs.profiles[p]
	index := fs.index
	var city fakeCity
	var prefix string
	for k, c := range fs.cities {
		if strings.HasPrefix(p, k) {
			city, prefix = c, k
		}
	}
	fs.mu.Unlock()

	switch {
	case dropped:
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("fakeSite: ResponseWriter 不支持 Hijack")
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	case forced:
		w.WriteHeader(code)
		return
	case isProfile:
		_, _ = w.Write([]byte(body))
		return
	case p == "/food-trucks/" && index != "":
		_, _ = w.Write([]byte(index))
		return
	case prefix != "":
		page, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(p, prefix), "/"))
		if err != nil || page < 1 {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(listingHTML(city, page)))
		return
	}
	http.NotFound(w, r)
}

func listingHTML(c fakeCity, page int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if !c.NoTotal {
		fmt.Fprintf(&b, `<span class="total">%d Food Trucks</span>`, c.Declared)
	}
	start := (page - 1) * c.PerPage
	for i := start; i < start+c.PerPage && i < c.Actual; i++ {
		fmt.Fprintf(&b, `<a class="bg" href="/trucks/truck-%d/">Truck %d</a>`, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func profileHTML(name, desc, img string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if name != "" {
		fmt.Fprintf(&b, "<h1>\n  %s\n</h1>", name)
	}
	if img != "" {
		fmt.Fprintf(&b, `<img class="main_truck_image" src="%s">`, img)
	}
	fmt.Fprintf(&b, `<div class="col-md-12"><p>%s</p></div>`, desc)
	b.WriteString("</body></html>")
	return b.String()
}

func testEff(dir, siteRoot string) config.Effective {
	return config.Effective{
		Dir:        dir,
		SiteRoot:   siteRoot,
		IndexURL:   siteRoot + "/food-trucks/",
		SeedFile:   filepath.Join(dir, "city-urls.json"),
		URLMapFile: filepath.Join(dir, "truck-urls.json"),
		OutDir:     dir,
		MaxPages:   100,
		Timeout:    5 * time.Second,
		LogLevel:   "info",
		LogFormat:  "console",
		Mongo:      config.MongoConfig{Database: "entree", Collection: "trucks"},
	}
}

func testDeps(t *testing.T, fs *fakeSite) Deps {
	t.Helper()
	return Deps{
		Client:  fs.srv.Client(),
		Metrics: metrics.New(),
		Log:     zaptest.NewLogger(t),
	}
}

func writeFile(t *testing.T, p string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}

func readFile(t *testing.T, p string) []byte {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("读文件失败：%v", err)
	}
	return b
}
