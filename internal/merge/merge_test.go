package merge

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/lehigh-university-libraries/vqaset/internal/imageindex"
	"github.com/lehigh-university-libraries/vqaset/internal/listing"
	"github.com/lehigh-university-libraries/vqaset/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listings = `{"item_id":"B1","main_image_id":"IMG1","brand":[{"value":"Acme"}],"model_year":[{"value":"2020"}]}
{"item_id":"B2","brand":[{"value":"NoImage"}]}
this is not json

{"item_id":"B3","main_image_id":"IMG3","model_year":[{"value":"soon"}],"bullet_point":[{"language_tag":"en_US","value":"Light"}]}
{"item_id":"B4","main_image_id":"IMG1","brand":[{"value":"Later"}]}
`

func testIndex() imageindex.Index {
	return imageindex.FromRecords(
		listing.ImageRecord{ImageID: "IMG1", Height: 100, Width: 200, Path: "img1.jpg"},
		listing.ImageRecord{ImageID: "IMG3", Height: 5, Width: 6, Path: "img3.jpg"},
	)
}

func TestRun(t *testing.T) {
	col, stats, err := Run(context.Background(), strings.NewReader(listings), testIndex(), listing.NewNormalizer(listing.Options{}))
	require.NoError(t, err)

	assert.Equal(t, Stats{Lines: 5, Merged: 3, Skipped: 1, ParseErrors: 1, FieldErrors: 1, Overwritten: 1}, stats)
	assert.Equal(t, []string{"IMG1", "IMG3"}, col.Keys())

	rec, ok := col.Get("IMG1")
	require.True(t, ok)
	assert.Equal(t, "Later", rec.Brand, "last listing for a main image wins")
	assert.Nil(t, rec.ModelYear)

	rec, ok = col.Get("IMG3")
	require.True(t, ok)
	assert.Nil(t, rec.ModelYear, "non-numeric model_year is dropped")
	assert.Equal(t, []string{"Light"}, rec.DescribeImageSource)
}

func TestRun_Idempotent(t *testing.T) {
	encode := func() []byte {
		col, _, err := Run(context.Background(), strings.NewReader(listings), testIndex(), listing.NewNormalizer(listing.Options{}))
		require.NoError(t, err)
		out, err := col.Encode()
		require.NoError(t, err)
		return out
	}

	first := encode()
	second := encode()
	assert.True(t, bytes.Equal(first, second))
}

func TestCollection_Encode(t *testing.T) {
	col, _, err := Run(context.Background(),
		strings.NewReader(`{"item_id":"B1","main_image_id":"IMG1","brand":[{"value":"Acme"}],"model_year":[{"value":"2020"}]}`),
		testIndex(), listing.NewNormalizer(listing.Options{}))
	require.NoError(t, err)

	out, err := col.Encode()
	require.NoError(t, err)

	expected := `{
  "IMG1": {
    "brand": "Acme",
    "item_id": "B1",
    "model_year": 2020,
    "describe_image_source": [],
    "image_metadata": {
      "IMG1": {
        "height": 100,
        "width": 200,
        "path": "img1.jpg"
      }
    }
  }
}
`
	assert.Equal(t, expected, string(out))
}

func TestCollection_EmptyEncode(t *testing.T) {
	out, err := NewCollection().Encode()
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(out))
}

func TestOpenListings_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(listings))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	location := filepath.Join(t.TempDir(), "listings_0.json.gz")
	require.NoError(t, os.WriteFile(location, buf.Bytes(), 0644))

	r, err := OpenListings(context.Background(), storage.NewFileStore(), location)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, listings, string(data))
	assert.NoError(t, r.Close())
}

func TestOpenListings_Plain(t *testing.T) {
	location := filepath.Join(t.TempDir(), "listings_0.json")
	require.NoError(t, os.WriteFile(location, []byte(listings), 0644))

	r, err := OpenListings(context.Background(), storage.NewFileStore(), location)
	require.NoError(t, err)
	defer r.Close()

	col, stats, err := Run(context.Background(), r, testIndex(), listing.NewNormalizer(listing.Options{}))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Lines)
	assert.Equal(t, []string{"IMG1", "IMG3"}, col.Keys())
}

func TestOpenListings_BadGzip(t *testing.T) {
	location := filepath.Join(t.TempDir(), "listings_0.json.gz")
	require.NoError(t, os.WriteFile(location, []byte(listings), 0644))

	r, err := OpenListings(context.Background(), storage.NewFileStore(), location)
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "failed to open gzip listings")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Run(ctx, strings.NewReader(listings), testIndex(), listing.NewNormalizer(listing.Options{}))
	assert.ErrorIs(t, err, context.Canceled)
}
