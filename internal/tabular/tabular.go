// Package tabular turns uploaded CSV and XLSX files into loosely typed rows.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/newthinker/equicurve/internal/core"
)

// ProgressFunc receives the parsed fraction of a file in [0, 1].
type ProgressFunc func(fraction float64)

// chunkRows is how many records are read between progress reports.
const chunkRows = 500

// Delimiter sniffing looks at the first sniffRows records within sniffBytes.
const (
	sniffBytes = 64 << 10
	sniffRows  = 10
)

// delimiters are the separators ParseCSV can detect, in preference order.
var delimiters = []rune{',', '\t', '|', ';', '\x1e', '\x1f'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var floatPattern = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("file has no header row")

// Parse dispatches on the file extension: .xlsx goes to ParseXLSX,
// everything else is read as CSV.
func Parse(name string, data []byte, onProgress ProgressFunc) ([]core.Row, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ParseXLSX(bytes.NewReader(data), onProgress)
	}
	return ParseCSV(bytes.NewReader(data), int64(len(data)), onProgress)
}

// ParseCSV reads a delimited file with a header row. The delimiter is
// detected from the leading rows (see SniffDelimiter). size is the total input
// length used for progress; zero or negative disables fractional reports.
//
// Empty lines are skipped. A line of empty fields such as "," is kept as a
// row of nil values.
func ParseCSV(r io.Reader, size int64, onProgress ProgressFunc) ([]core.Row, error) {
	br := stripBOM(r)
	head, err := br.Peek(sniffBytes)
	if err == nil {
		// Input continues past the window; drop the partial last line.
		if i := bytes.LastIndexByte(head, '\n'); i >= 0 {
			head = head[:i+1]
		}
	}

	reader := csv.NewReader(br)
	reader.Comma = SniffDelimiter(head)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header []string
	var rows []core.Row
	read := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if header == nil {
			if isBlank(record) {
				continue
			}
			header = uniqueHeader(record)
			continue
		}

		rows = append(rows, buildRow(header, record))
		read++
		if read%chunkRows == 0 {
			report(onProgress, reader.InputOffset(), size)
		}
	}
	if header == nil {
		return nil, ErrNoHeader
	}

	if onProgress != nil {
		onProgress(1)
	}
	return rows, nil
}

// SniffDelimiter picks the separator giving the most consistent field count
// over the first rows of sample. A candidate must split rows into two or more
// fields on average and beat earlier candidates on both consistency and
// width. Comma is the fallback.
func SniffDelimiter(sample []byte) rune {
	best := ','
	bestDelta, bestAvg := -1, 0.0
	for _, d := range delimiters {
		delta, avg := fieldSpread(sample, d)
		if (bestDelta < 0 || delta <= bestDelta) && avg > bestAvg && avg > 1.99 {
			best, bestDelta, bestAvg = d, delta, avg
		}
	}
	return best
}

// fieldSpread returns the summed change in field count between consecutive
// rows and the average field count.
func fieldSpread(sample []byte, delim rune) (int, float64) {
	reader := csv.NewReader(bytes.NewReader(sample))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	delta, total, rows, prev := 0, 0, 0, -1
	for rows < sniffRows {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rows++
		n := len(record)
		total += n
		if prev >= 0 {
			delta += abs(n - prev)
		}
		prev = n
	}
	if rows == 0 {
		return 0, 0
	}
	return delta, float64(total) / float64(rows)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ParseXLSX reads the first sheet of a workbook. The first non-empty row is
// the header.
func ParseXLSX(r io.Reader, onProgress ProgressFunc) ([]core.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var header []string
	var rows []core.Row
	for i, record := range records {
		if isBlank(record) {
			continue
		}
		if header == nil {
			header = uniqueHeader(record)
			continue
		}
		rows = append(rows, buildRow(header, record))
		if (i+1)%chunkRows == 0 {
			report(onProgress, int64(i+1), int64(len(records)))
		}
	}
	if header == nil {
		return nil, ErrNoHeader
	}

	if onProgress != nil {
		onProgress(1)
	}
	return rows, nil
}

// Header returns the column names of the first non-empty row, sorted for
// stable output since rows are maps.
func Header(rows []core.Row) []string {
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		names := make([]string, 0, len(row))
		for name := range row {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
	return nil
}

// Value converts one raw cell the way the uploads are typed: empty cells
// become nil, true/false become bool, numeric literals become float64 and
// everything else stays a string.
func Value(cell string) any {
	if cell == "" {
		return nil
	}
	switch cell {
	case "true", "TRUE", "True":
		return true
	case "false", "FALSE", "False":
		return false
	}
	if floatPattern.MatchString(cell) {
		f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err == nil && math.Abs(f) <= 1<<53 {
			return f
		}
	}
	return cell
}

func buildRow(header, record []string) core.Row {
	row := make(core.Row, len(header))
	for i, name := range header {
		if i >= len(record) {
			break
		}
		row[name] = Value(record[i])
	}
	return row
}

// uniqueHeader renames repeated names to name_1, name_2, ...
func uniqueHeader(record []string) []string {
	seen := make(map[string]int, len(record))
	header := make([]string, len(record))
	for i, name := range record {
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			header[i] = fmt.Sprintf("%s_%d", name, n+1)
			continue
		}
		seen[name] = 0
		header[i] = name
	}
	return header
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}

func report(onProgress ProgressFunc, done, total int64) {
	if onProgress == nil || total <= 0 {
		return
	}
	onProgress(math.Min(1, float64(done)/float64(total)))
}

func stripBOM(r io.Reader) *bufio.Reader {
	br := bufio.NewReaderSize(r, sniffBytes)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
