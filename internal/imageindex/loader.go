package imageindex

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/lehigh-university-libraries/vqaset/internal/storage"
	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

// required header columns of the image table
var columns = []string{"image_id", "height", "width", "path"}

// LoadStats summarizes an image table load
type LoadStats struct {
	Rows      int
	Indexed   int
	Malformed int
}

// parquetRow is the parquet schema of the image table
type parquetRow struct {
	ImageID string `parquet:"image_id"`
	Height  int64  `parquet:"height"`
	Width   int64  `parquet:"width"`
	Path    string `parquet:"path"`
}

// Load reads an image table from store and indexes it. The format is picked
// from the extension: .csv, .tsv, .xlsx or .parquet, optionally gzipped (.gz)
// for the text formats.
func Load(ctx context.Context, store storage.Store, location string) (Index, LoadStats, error) {
	data, err := store.Read(ctx, location)
	if err != nil {
		return Index{}, LoadStats{}, fmt.Errorf("failed to read image table: %w", err)
	}

	name := strings.ToLower(location)
	if strings.HasSuffix(name, ".gz") {
		data, err = gunzip(data)
		if err != nil {
			return Index{}, LoadStats{}, fmt.Errorf("failed to decompress image table: %w", err)
		}
		name = strings.TrimSuffix(name, ".gz")
	}

	var rows []Row
	switch ext := path.Ext(name); ext {
	case ".csv", "":
		rows, err = parseDelimited(data, ',')
	case ".tsv":
		rows, err = parseDelimited(data, '\t')
	case ".xlsx":
		rows, err = parseExcel(data)
	case ".parquet":
		rows, err = parseParquet(data)
	default:
		return Index{}, LoadStats{}, fmt.Errorf("unsupported image table format: %s (supported: .csv, .tsv, .xlsx, .parquet)", ext)
	}
	if err != nil {
		return Index{}, LoadStats{}, err
	}

	idx, errs := Build(rows)
	stats := LoadStats{Rows: len(rows), Indexed: idx.Len(), Malformed: len(errs)}
	slog.Info("Image table loaded", "location", location, "rows", stats.Rows, "indexed", stats.Indexed, "malformed", stats.Malformed)

	return idx, stats, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// parseDelimited parses CSV or TSV content with a header row
func parseDelimited(data []byte, comma rune) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse image table: %w", err)
	}
	return rowsFromTable(records)
}

// parseExcel reads the first sheet of an xlsx workbook
func parseExcel(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rowsFromTable(records)
}

func parseParquet(data []byte) ([]Row, error) {
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet image table opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[parquetRow](pf)
	defer reader.Close()

	var out []Row
	batch := make([]parquetRow, 128)
	for {
		n, err := reader.Read(batch)
		for i := 0; i < n; i++ {
			r := batch[i]
			out = append(out, Row{
				Line:    len(out) + 1,
				ImageID: r.ImageID,
				Height:  strconv.FormatInt(r.Height, 10),
				Width:   strconv.FormatInt(r.Width, 10),
				Path:    r.Path,
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return out, nil
}

// rowsFromTable maps a header row plus data rows onto Rows. Columns are located
// by name so their order does not matter.
func rowsFromTable(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("empty image table")
	}

	pos := make(map[string]int, len(columns))
	for i, h := range records[0] {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range columns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("image table is missing column %q", c)
		}
	}

	cell := func(rec []string, col string) string {
		i := pos[col]
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		rows = append(rows, Row{
			Line:    i + 2,
			ImageID: cell(rec, "image_id"),
			Height:  cell(rec, "height"),
			Width:   cell(rec, "width"),
			Path:    cell(rec, "path"),
		})
	}
	return rows, nil
}
