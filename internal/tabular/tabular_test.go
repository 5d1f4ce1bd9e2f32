package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/newthinker/equicurve/internal/core"
)

func TestParseCSV_DynamicTyping(t *testing.T) {
	input := "Date,Close,Active,Note\n2024-01-01,100.5,true,\n2024-01-02,1e2,FALSE,N/A\n"

	rows, err := ParseCSV(strings.NewReader(input), int64(len(input)), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "2024-01-01", rows[0]["Date"])
	assert.Equal(t, 100.5, rows[0]["Close"])
	assert.Equal(t, true, rows[0]["Active"])
	assert.Nil(t, rows[0]["Note"])
	_, present := rows[0]["Note"]
	assert.True(t, present)

	assert.Equal(t, 100.0, rows[1]["Close"])
	assert.Equal(t, false, rows[1]["Active"])
	assert.Equal(t, "N/A", rows[1]["Note"])
}

func TestParseCSV_BOMAndBlankLines(t *testing.T) {
	input := "\xEF\xBB\xBFClose\n\n10\n\n11\n"

	rows, err := ParseCSV(strings.NewReader(input), int64(len(input)), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 10.0, rows[0]["Close"])
}

func TestParseCSV_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"comma", "Date,Close\n2024-01-01,100\n2024-01-02,110\n"},
		{"semicolon", "Date;Close\n2024-01-01;100\n2024-01-02;110\n"},
		{"tab", "Date\tClose\n2024-01-01\t100\n2024-01-02\t110\n"},
		{"pipe", "Date|Close\n2024-01-01|100\n2024-01-02|110\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseCSV(strings.NewReader(tt.input), int64(len(tt.input)), nil)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "2024-01-01", rows[0]["Date"])
			assert.Equal(t, 110.0, rows[1]["Close"])
		})
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   rune
	}{
		{"empty", "", ','},
		{"single column", "Close\n10\n11\n", ','},
		{"decimal commas", "Date;Close\n2024-01-01;100,5\n2024-01-02;101,25\n", ';'},
		{"quoted semicolon", "Note,Close\n\"a;b\",1\n\"c;d\",2\n", ','},
		{"stray comma", "a;b;c\n1,2;3;4\n5;6;7\n", ';'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, string(tt.want), string(SniffDelimiter([]byte(tt.sample))))
		})
	}
}

func TestParseCSV_EmptyFieldRowsKept(t *testing.T) {
	input := "Date,Close\n2024-01-01,100\n,\n\n2024-01-03,110\n"

	rows, err := ParseCSV(strings.NewReader(input), int64(len(input)), nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Nil(t, rows[1]["Close"])
	_, present := rows[1]["Date"]
	assert.True(t, present)
	assert.Equal(t, 110.0, rows[2]["Close"])
}

func TestParseCSV_DuplicateHeaders(t *testing.T) {
	input := "Price,Price,Price\n1,2,3\n"

	rows, err := ParseCSV(strings.NewReader(input), 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0]["Price"])
	assert.Equal(t, 2.0, rows[0]["Price_1"])
	assert.Equal(t, 3.0, rows[0]["Price_2"])
}

func TestParseCSV_RaggedRows(t *testing.T) {
	input := "A,B,C\n1\n1,2,3,4\n"

	rows, err := ParseCSV(strings.NewReader(input), 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Len(t, rows[0], 1)
	_, hasB := rows[0]["B"]
	assert.False(t, hasB)
	assert.Len(t, rows[1], 3)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""), 0, nil)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestParseCSV_Progress(t *testing.T) {
	var b strings.Builder
	b.WriteString("Close\n")
	for i := 0; i < 3*chunkRows+7; i++ {
		b.WriteString("100\n")
	}
	input := b.String()

	var reports []float64
	rows, err := ParseCSV(strings.NewReader(input), int64(len(input)), func(f float64) {
		reports = append(reports, f)
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3*chunkRows+7)

	require.Len(t, reports, 4)
	assert.Equal(t, 1.0, reports[len(reports)-1])
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i], reports[i-1])
		assert.LessOrEqual(t, reports[i], 1.0)
	}
}

func TestValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"True", true},
		{"false", false},
		{"42", 42.0},
		{"-0.5", -0.5},
		{".25", 0.25},
		{"3.", 3.0},
		{"1,000", "1,000"},
		{"$12", "$12"},
		{"2024-01-01 09:30", "2024-01-01 09:30"},
		{"99999999999999999999", "99999999999999999999"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Value(tt.in))
		})
	}
}

func TestHeader(t *testing.T) {
	assert.Nil(t, Header(nil))
	got := Header([]core.Row{{}, {"b": 1.0, "a": 2.0}})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Date", "Close"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"2024-01-01", 100}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"2024-01-02", 110.5}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	var last float64
	rows, err := ParseXLSX(bytes.NewReader(buf.Bytes()), func(p float64) { last = p })
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 100.0, rows[0]["Close"])
	assert.Equal(t, 110.5, rows[1]["Close"])
	assert.Equal(t, "2024-01-02", rows[1]["Date"])
	assert.Equal(t, 1.0, last)

	viaParse, err := Parse("prices.XLSX", buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, rows, viaParse)
}

func TestParse_DefaultsToCSV(t *testing.T) {
	rows, err := Parse("prices.txt", []byte("Close\n1\n"), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
