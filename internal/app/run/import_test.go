package run

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/rhtrucks/internal/domain"
	"github.com/John-Robertt/rhtrucks/internal/metrics"
	"github.com/John-Robertt/rhtrucks/internal/record"
)

type memSink struct {
	docs    map[domain.TruckKey]domain.TruckRecord
	failFor string
}

func (m *memSink) UpsertTruck(ctx context.Context, key domain.TruckKey, rec domain.TruckRecord) error {
	if key.Slug == m.failFor {
		return errors.New("boom")
	}
	if m.docs == nil {
		m.docs = map[domain.TruckKey]domain.TruckRecord{}
	}
	m.docs[key] = rec
	return nil
}

func writeRecord(t *testing.T, p string, rec domain.TruckRecord) {
	t.Helper()
	b, err := record.Encode(rec)
	require.NoError(t, err)
	writeFile(t, p, b)
}

func TestImport_UpsertsValidRecords(t *testing.T) {
	dir := t.TempDir()
	eff := testEff(dir, "http://roaminghunger.com")

	writeRecord(t, filepath.Join(dir, "CA", "Los Angeles", "kogi.json"), domain.NewTruckRecord("Kogi", "BBQ", ""))
	writeRecord(t, filepath.Join(dir, "TX", "Austin", "torchys.json"), domain.NewTruckRecord("Torchy's", "Tacos", ""))
	writeRecord(t, filepath.Join(dir, "TX", "Austin", "flaky.json"), domain.NewTruckRecord("Flaky", "", ""))
	writeFile(t, filepath.Join(dir, "CA", "Los Angeles", "broken.json"), []byte(`{"name": "x"}`))
	writeFile(t, filepath.Join(dir, "truck-urls.json"), []byte(`{}`))

	sink := &memSink{failFor: "flaky"}
	m := metrics.New()
	rr := Import(context.Background(), eff, sink, Deps{Metrics: m})

	require.Len(t, rr.Items, 4)
	assert.Equal(t, 2, rr.Summary.Processed)
	assert.Equal(t, 2, rr.Summary.Failed)
	assert.False(t, rr.Aborted)

	codes := map[string]string{}
	for _, it := range rr.Items {
		codes[it.Slug] = it.ErrorCode
	}
	assert.Equal(t, domain.ErrCodeRecordInvalid, codes["broken"])
	assert.Equal(t, domain.ErrCodeStoreFailed, codes["flaky"])

	got, ok := sink.docs[domain.TruckKey{State: "CA", City: "Los Angeles", Slug: "kogi"}]
	require.True(t, ok)
	assert.Equal(t, "Kogi", got.Name)
	assert.Len(t, sink.docs, 2)
}

func TestImport_NoSink(t *testing.T) {
	rr := Import(context.Background(), testEff(t.TempDir(), "http://roaminghunger.com"), nil, Deps{})
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeConfigInvalid, rr.Items[0].ErrorCode)
}

func TestImport_Canceled(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, filepath.Join(dir, "CA", "Los Angeles", "a.json"), domain.NewTruckRecord("A", "", ""))
	writeRecord(t, filepath.Join(dir, "CA", "Los Angeles", "b.json"), domain.NewTruckRecord("B", "", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memSink{}
	rr := Import(ctx, testEff(dir, "http://roaminghunger.com"), sink, Deps{})

	assert.True(t, rr.Aborted)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeCanceled, rr.Items[0].ErrorCode)
	assert.Empty(t, sink.docs)
}
