package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/rhtrucks/internal/domain"
)

func TestEncode_Golden(t *testing.T) {
	rec := domain.NewTruckRecord("Example Truck", "Tacos & more. <Fresh> daily.", "http://roaminghunger.com/img/example.jpg")

	got, err := Encode(rec)
	require.NoError(t, err)

	goldenPath := filepath.Join("testdata", "example-truck.json")
	if os.Getenv("UPDATE_GOLDEN") == "1" {
		require.NoError(t, os.WriteFile(goldenPath, got, 0o644))
		return
	}
	want, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "读取 golden 失败（可用 UPDATE_GOLDEN=1 生成）")
	assert.Equal(t, string(want), string(got))
}

func TestEncode_Deterministic(t *testing.T) {
	rec := domain.NewTruckRecord("A", "B", "")
	b1, err := Encode(rec)
	require.NoError(t, err)
	b2, err := Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.True(t, strings.HasSuffix(string(b1), "}\n"))
}

func TestEncodeJSON_SortsMapKeysAndIndents(t *testing.T) {
	got, err := EncodeJSON(map[string]any{"b": 1, "a": []string{}})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [],\n  \"b\": 1\n}\n", string(got))
}

func TestValidate_RejectsWrongShape(t *testing.T) {
	cases := map[string]string{
		"缺字段":      `{"name":"x"}`,
		"day 多余字段": strings.Replace(goldenString(t), `"day": "Sunday"`, `"day": "Sunday", "extra": 1`, 1),
		"顺序错误":     strings.Replace(goldenString(t), `"day": "Monday"`, `"day": "Sunday"`, 1),
		"多余字段":     strings.Replace(goldenString(t), `"address": ""`, `"address": "", "extra": ""`, 1),
	}
	for name, doc := range cases {
		err := Validate([]byte(doc))
		require.Error(t, err, name)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), "%s: 期望 *ValidationError，实际 %T", name, err)
	}
}

func TestValidate_NotJSON(t *testing.T) {
	err := Validate([]byte("{not json"))
	require.Error(t, err)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestDecode_RoundTrip(t *testing.T) {
	rec, err := Decode([]byte(goldenString(t)))
	require.NoError(t, err)
	assert.Equal(t, "Example Truck", rec.Name)
	assert.Equal(t, domain.DefaultPercentageFee, rec.PercentageFee)
	require.Len(t, rec.Hours, 7)
	assert.Equal(t, "Sunday", rec.Hours[6].Day)
}

func goldenString(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "example-truck.json"))
	require.NoError(t, err)
	return string(b)
}
