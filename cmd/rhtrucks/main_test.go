package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/rhtrucks/internal/domain"
)

// newSite 提供一个两页的城市列表（3 辆车，每页 2 条）以及对应详情页。
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/food-trucks/ca/la/1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><span class="total">3</span>
<a class="bg" href="/trucks/kogi/">Kogi</a><a class="bg" href="/trucks/taco-zone/">Taco Zone</a></body></html>`)
	})
	mux.HandleFunc("/food-trucks/ca/la/2/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><span class="total">3</span>
<a class="bg" href="/trucks/grilled-cheese/">Grilled Cheese</a></body></html>`)
	})
	for _, name := range []string{"kogi", "taco-zone", "grilled-cheese"} {
		name := name
		mux.HandleFunc("/trucks/"+name+"/", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<html><body><h1> %s </h1><div class="col-md-12"><p>About %s.</p></div></body></html>`, name, name)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeSeedFile(t *testing.T, dir, siteRoot string) {
	t.Helper()
	seed := fmt.Sprintf(`{"CA":[{"city":"Los Angeles","url":"%s/food-trucks/ca/la/"}]}`, siteRoot)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "city-urls.json"), []byte(seed), 0o644))
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_CollectThenHarvest(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()
	writeSeedFile(t, dir, srv.URL)

	code, stdout, stderr := runCLI(t, "collect", "--dir", dir, "--site-root", srv.URL)
	require.Equal(t, 0, code, "stderr=%s", stderr)

	// stdout 非 TTY：只能是一个 RunReport JSON。
	var rr domain.RunReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &rr), "stdout=%q", stdout)
	assert.Equal(t, domain.StageCollect, rr.Stage)
	assert.Equal(t, 1, rr.Summary.Processed)
	assert.Contains(t, stderr, "完成：processed=1")

	var urlMap domain.URLMap
	b, err := os.ReadFile(filepath.Join(dir, "truck-urls.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &urlMap))
	assert.Equal(t, []string{
		srv.URL + "/trucks/kogi/",
		srv.URL + "/trucks/taco-zone/",
		srv.URL + "/trucks/grilled-cheese/",
	}, urlMap["CA"]["Los Angeles"])

	code, stdout, stderr = runCLI(t, "harvest", "--dir", dir, "--site-root", srv.URL)
	require.Equal(t, 0, code, "stderr=%s", stderr)
	rr = domain.RunReport{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &rr))
	assert.Equal(t, 3, rr.Summary.Processed)

	for _, slug := range []string{"kogi", "taco-zone", "grilled-cheese"} {
		_, err := os.Stat(filepath.Join(dir, "CA", "Los Angeles", slug+".json"))
		assert.NoError(t, err, slug)
	}
	_, err = os.Stat(filepath.Join(dir, "cache", "report.json"))
	assert.NoError(t, err)

	// 第二次运行：全部已存在，跳过。
	code, stdout, _ = runCLI(t, "harvest", "--dir", dir, "--site-root", srv.URL)
	require.Equal(t, 0, code)
	rr = domain.RunReport{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &rr))
	assert.Equal(t, 3, rr.Summary.Skipped)
	assert.Equal(t, 0, rr.Summary.Processed)
}

func TestCLI_HarvestDryRunWritesNothing(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()
	urlMap := fmt.Sprintf(`{"CA":{"Los Angeles":["%s/trucks/kogi/"]}}`, srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "truck-urls.json"), []byte(urlMap), 0o644))

	code, stdout, _ := runCLI(t, "harvest", "--dry-run", "--dir", dir, "--site-root", srv.URL)
	require.Equal(t, 0, code)

	var rr domain.RunReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &rr))
	assert.True(t, rr.DryRun)
	assert.Equal(t, 1, rr.Summary.Planned)

	_, err := os.Stat(filepath.Join(dir, "CA"))
	assert.True(t, os.IsNotExist(err), "dry-run 不应创建城市目录")
	_, err = os.Stat(filepath.Join(dir, "cache", "report.json"))
	assert.True(t, os.IsNotExist(err), "dry-run 不应写 report.json")
}

func TestCLI_ConfigErrorReportsAndExits1(t *testing.T) {
	dir := t.TempDir()
	code, stdout, stderr := runCLI(t, "collect", "--dir", dir, "--max-pages", "0")
	assert.Equal(t, 1, code)

	var rr domain.RunReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &rr), "stdout=%q", stdout)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeConfigInvalid, rr.Items[0].ErrorCode)
	assert.Contains(t, stderr, "failed=1")
}

func TestCLI_ImportWithoutMongoURI(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RHTRUCKS_MONGO_URI", "")
	code, stdout, _ := runCLI(t, "import", "--dir", dir)
	assert.Equal(t, 1, code)

	var rr domain.RunReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &rr))
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeConfigInvalid, rr.Items[0].ErrorCode)
}

func TestCLI_UnknownFlagExits2(t *testing.T) {
	code, stdout, stderr := runCLI(t, "collect", "--no-such-flag")
	assert.Equal(t, 2, code)
	assert.Empty(t, stdout)
	assert.True(t, strings.Contains(stderr, "参数错误"), stderr)
}
