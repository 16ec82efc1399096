package roaminghunger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/rhtrucks/internal/domain"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	return b
}

func TestListingPageURL(t *testing.T) {
	assert.Equal(t, "http://roaminghunger.com/los-angeles/1/", ListingPageURL("http://roaminghunger.com/los-angeles/", 1))
	assert.Equal(t, "http://roaminghunger.com/los-angeles/12/", ListingPageURL("http://roaminghunger.com/los-angeles", 12))
	assert.Equal(t, "http://roaminghunger.com/food-trucks/", IndexURL("http://roaminghunger.com/"))
}

func TestParseListing(t *testing.T) {
	l, err := ParseListing(readFixture(t, "listing.html"), DefaultRoot)
	require.NoError(t, err)

	assert.True(t, l.TotalFound)
	assert.Equal(t, 37, l.Total)
	assert.Equal(t, []string{
		"http://roaminghunger.com/trucks/kogi-bbq/",
		"http://roaminghunger.com/trucks/the-grilled-cheese-truck/",
		"https://roaminghunger.com/trucks/absolute-truck/",
	}, l.URLs)
	assert.Equal(t, 1, l.MissingHref)
}

func TestParseListing_TotalDefaultsToOne(t *testing.T) {
	l, err := ParseListing(readFixture(t, "listing-no-total.html"), DefaultRoot)
	require.NoError(t, err)

	assert.False(t, l.TotalFound)
	assert.Equal(t, 1, l.Total)
	assert.Equal(t, []string{"http://roaminghunger.com/trucks/only-truck/"}, l.URLs)
}

func TestParseListing_UnparsableTotal(t *testing.T) {
	html := []byte(`<html><body><div class="total">many trucks</div></body></html>`)
	l, err := ParseListing(html, DefaultRoot)
	require.NoError(t, err)
	assert.False(t, l.TotalFound)
	assert.Equal(t, 1, l.Total)
	assert.Empty(t, l.URLs)
}

func TestParseListing_EmptyHTML(t *testing.T) {
	l, err := ParseListing(nil, DefaultRoot)
	require.NoError(t, err)
	assert.False(t, l.TotalFound)
	assert.Equal(t, 1, l.Total)
	assert.Empty(t, l.URLs)
}

func TestParseProfile_EmptyHTMLDefaultsEveryField(t *testing.T) {
	p, err := ParseProfile([]byte{}, DefaultRoot)
	require.NoError(t, err)
	assert.Equal(t, "", p.Name)
	assert.Equal(t, "", p.Description)
	assert.Equal(t, "", p.ProfileImage)
	assert.Equal(t, []string{FieldName, FieldDescription, FieldProfileImage}, p.Fallbacks)
}

// 详情页 fixture 与 golden 一一对应：testdata/profile-*.html -> golden/profile-*.json
func TestParseProfile_Golden(t *testing.T) {
	entries, err := os.ReadDir("testdata")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "profile-") && strings.HasSuffix(e.Name(), ".html") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		t.Fatalf("未找到任何 fixture（testdata/profile-*.html）")
	}

	update := os.Getenv("UPDATE_GOLDEN") == "1"
	for _, name := range names {
		base := strings.TrimSuffix(name, ".html")

		p, err := ParseProfile(readFixture(t, name), DefaultRoot)
		if err != nil {
			t.Fatalf("ParseProfile 失败：fixture=%s err=%v", name, err)
		}
		got, err := json.MarshalIndent(p, "", "  ")
		require.NoError(t, err)
		got = append(got, '\n')

		goldenPath := filepath.Join("golden", base+".json")
		if update {
			require.NoError(t, os.WriteFile(goldenPath, got, 0o644))
			continue
		}
		want, err := os.ReadFile(goldenPath)
		if err != nil {
			t.Fatalf("读取 golden 失败：%s err=%v（可用 UPDATE_GOLDEN=1 生成）", goldenPath, err)
		}
		if string(want) != string(got) {
			t.Fatalf("golden 不匹配：%s\n--- got ---\n%s（重新生成：UPDATE_GOLDEN=1 go test ./internal/site/roaminghunger）", goldenPath, got)
		}
	}
}

func TestParseProfile_MissingHeadingKeepsOtherFields(t *testing.T) {
	p, err := ParseProfile(readFixture(t, "profile-no-h1.html"), DefaultRoot)
	require.NoError(t, err)

	assert.Equal(t, "", p.Name)
	assert.Equal(t, "Still has a description.", p.Description)
	assert.NotEmpty(t, p.ProfileImage)
	assert.Equal(t, []string{FieldName}, p.Fallbacks)
}

func TestParseIndex(t *testing.T) {
	seed, err := ParseIndex(readFixture(t, "index.html"), DefaultRoot)
	require.NoError(t, err)

	want := domain.Seed{
		"California": {
			{City: "Los Angeles", URL: "http://roaminghunger.com/los-angeles/"},
			{City: "San Diego", URL: "http://roaminghunger.com/san-diego/"},
			{City: "Fresno", URL: "http://roaminghunger.com/fresno/"},
		},
		"Texas": {
			{City: "Austin", URL: "http://roaminghunger.com/austin/"},
			{City: "Houston", URL: "http://roaminghunger.com/houston/"},
		},
	}
	assert.Equal(t, want, seed)
}

func TestParseIndex_NoListings(t *testing.T) {
	_, err := ParseIndex([]byte(`<html><body><div class="row"></div></body></html>`), DefaultRoot)
	require.Error(t, err)
}

func TestFirstInt(t *testing.T) {
	n, err := firstInt("Showing 37 Food Trucks")
	require.NoError(t, err)
	assert.Equal(t, 37, n)

	n, err = firstInt("0 results")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = firstInt("none")
	require.Error(t, err)
}
