package imageindex

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/lehigh-university-libraries/vqaset/internal/storage"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuild(t *testing.T) {
	idx, errs := Build([]Row{
		{Line: 2, ImageID: "IMG1", Height: "100", Width: "200", Path: "a/img1.jpg"},
		{Line: 3, ImageID: "IMG2", Height: "tall", Width: "200", Path: "a/img2.jpg"},
		{Line: 4, ImageID: "IMG1", Height: "300", Width: "400", Path: "b/img1.jpg"},
		{Line: 5, ImageID: "IMG3", Height: "10", Width: "", Path: "c/img3.jpg"},
	})

	assert.Equal(t, 1, idx.Len())

	img, ok := idx.Lookup("IMG1")
	require.True(t, ok)
	assert.Equal(t, 300, img.Height, "last row for a duplicated id wins")
	assert.Equal(t, "b/img1.jpg", img.Path)

	_, ok = idx.Lookup("IMG2")
	assert.False(t, ok)

	require.Len(t, errs, 2)
	var rowErr *MalformedRowError
	require.ErrorAs(t, errs[0], &rowErr)
	assert.Equal(t, 3, rowErr.Line)
	assert.Equal(t, "IMG2", rowErr.ImageID)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func TestLoad_CSV(t *testing.T) {
	csv := "image_id,height,width,path\nIMG1,100,200,img1.jpg\nIMG2,x,200,img2.jpg\n\nIMG3,30,40,img3.jpg\n"
	location := writeFile(t, "images.csv", []byte(csv))

	idx, stats, err := Load(context.Background(), storage.NewFileStore(), location)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Rows: 3, Indexed: 2, Malformed: 1}, stats)

	img, ok := idx.Lookup("IMG1")
	require.True(t, ok)
	assert.Equal(t, 100, img.Height)
	assert.Equal(t, 200, img.Width)
	assert.Equal(t, "img1.jpg", img.Path)
}

func TestLoad_ColumnOrderAndGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("path,width,height,image_id\nimg1.jpg,200,100,IMG1\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	location := writeFile(t, "images.csv.gz", buf.Bytes())

	idx, _, err := Load(context.Background(), storage.NewFileStore(), location)
	require.NoError(t, err)

	img, ok := idx.Lookup("IMG1")
	require.True(t, ok)
	assert.Equal(t, 100, img.Height)
	assert.Equal(t, 200, img.Width)
}

func TestLoad_TSV(t *testing.T) {
	location := writeFile(t, "images.tsv", []byte("image_id\theight\twidth\tpath\nIMG1\t1\t2\tp.jpg\n"))
	idx, _, err := Load(context.Background(), storage.NewFileStore(), location)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestLoad_MissingColumn(t *testing.T) {
	location := writeFile(t, "images.csv", []byte("image_id,height,path\nIMG1,1,p.jpg\n"))
	_, _, err := Load(context.Background(), storage.NewFileStore(), location)
	assert.ErrorContains(t, err, `"width"`)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(context.Background(), storage.NewFileStore(), filepath.Join(t.TempDir(), "none.csv"))
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	location := writeFile(t, "images.txt", []byte("whatever"))
	_, _, err := Load(context.Background(), storage.NewFileStore(), location)
	assert.ErrorContains(t, err, "unsupported image table format")
}

func TestLoad_Excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"image_id", "height", "width", "path"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"IMG1", 100, 200, "img1.jpg"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	location := writeFile(t, "images.xlsx", buf.Bytes())

	idx, stats, err := Load(context.Background(), storage.NewFileStore(), location)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	img, ok := idx.Lookup("IMG1")
	require.True(t, ok)
	assert.Equal(t, 200, img.Width)
}

func TestLoad_Parquet(t *testing.T) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[parquetRow](&buf)
	_, err := w.Write([]parquetRow{
		{ImageID: "IMG1", Height: 100, Width: 200, Path: "img1.jpg"},
		{ImageID: "IMG2", Height: 5, Width: 6, Path: "img2.jpg"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	location := writeFile(t, "images.parquet", buf.Bytes())

	idx, stats, err := Load(context.Background(), storage.NewFileStore(), location)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Rows: 2, Indexed: 2}, stats)

	img, ok := idx.Lookup("IMG2")
	require.True(t, ok)
	assert.Equal(t, "img2.jpg", img.Path)
}
