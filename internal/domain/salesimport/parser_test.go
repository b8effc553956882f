package salesimport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/types"
)

const exportHeader = "Date,Time,Item,SKU,Quantity,Total,Status,Category\n"

func parse(t *testing.T, p *Parser, csv string) (*ParseResult, error) {
	t.Helper()
	return p.ParseCSV(strings.NewReader(csv), Bounds{})
}

func TestParseCSV_GroupsRowsWithinTwoSeconds(t *testing.T) {
	p := NewParser(time.UTC, nil)
	res, err := parse(t, p, exportHeader+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,2,120.00,Approved,Honey\n"+
		"14/03/2026,10:00:02,Beeswax Candle,CND-1,1,45.00,Approved,Candles\n"+
		"14/03/2026,10:00:04,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n"+
		"14/03/2026,10:00:07,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n")
	require.NoError(t, err)

	require.Len(t, res.Groups, 2)
	assert.Len(t, res.Groups[0].Lines, 3, "consecutive gaps of 2s chain into one sale")
	assert.True(t, res.Groups[0].TotalAmount.Equal(types.MustMoney("225")))
	assert.Len(t, res.Groups[1].Lines, 1)
	assert.Equal(t, 4, res.TotalRows)
	assert.Equal(t, 4, res.ValidRows)
	require.NotNil(t, res.DateRange.Start)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), *res.DateRange.Start)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 7, 0, time.UTC), *res.DateRange.End)
}

func TestParseCSV_UnitPriceDefaultsToTotalOverQuantity(t *testing.T) {
	p := NewParser(time.UTC, nil)
	res, err := parse(t, p, exportHeader+"14/03/2026,10:00:00,Fynbos Honey,HNY-1,3,100.00,Approved,Honey\n")
	require.NoError(t, err)

	line := res.Groups[0].Lines[0]
	assert.True(t, line.UnitPrice.Equal(types.MustMoney("33.33")))
	assert.True(t, line.LineTotal.Equal(types.MustMoney("100")))
}

func TestParseCSV_MissingRequiredColumns(t *testing.T) {
	p := NewParser(time.UTC, nil)
	_, err := parse(t, p, "Date,Item,SKU\n14/03/2026,Fynbos Honey,HNY-1\n")
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeMissingColumns, appErr.Code)
	assert.Equal(t, []string{"time", "quantity", "total"}, appErr.Details["missing"])
	assert.Contains(t, appErr.Message, "time, quantity, total")
}

func TestParseCSV_MissingAllRequiredColumnsStillFindsHeader(t *testing.T) {
	p := NewParser(time.UTC, nil)
	_, err := parse(t, p, "SKU,Category\nHNY-1,Honey\n")

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeMissingColumns, appErr.Code)
	assert.Equal(t, []string{"date", "time", "item", "quantity", "total"}, appErr.Details["missing"])
}

func TestParseCSV_HeaderNotFound(t *testing.T) {
	p := NewParser(time.UTC, nil)
	_, err := parse(t, p, "foo,bar\n1,2\n")
	assert.True(t, apperror.HasCode(err, apperror.CodeHeaderNotFound))
}

func TestParseCSV_SkipsPreambleBeforeHeader(t *testing.T) {
	p := NewParser(time.UTC, nil)
	res, err := parse(t, p, "Sales export\nGenerated 15/03/2026\n\n"+exportHeader+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n")
	require.NoError(t, err)
	assert.Len(t, res.Groups, 1)
}

func TestParseCSV_NoValidRows(t *testing.T) {
	p := NewParser(time.UTC, nil)
	_, err := parse(t, p, exportHeader+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Declined,Honey\n"+
		"14/03/2026,10:05:00,Fynbos Honey,HNY-1,1,60.00,Refunded,Honey\n")

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeNoValidRows, appErr.Code)
	assert.Contains(t, appErr.Message, "no valid approved transactions found")
}

func TestParseCSV_WarnsAndSkipsBadRows(t *testing.T) {
	p := NewParser(time.UTC, nil)
	res, err := parse(t, p, exportHeader+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n"+
		"14/03/2026,10:01:00,Mystery,,1,60.00,Approved,Honey\n"+
		"14/03/2026,10:02:00,Fynbos Honey,HNY-1,abc,60.00,Approved,Honey\n"+
		"14/03/2026,10:03:00,Fynbos Honey,HNY-1,1.5,60.00,Approved,Honey\n"+
		"14/03/2026,10:04:00,Fynbos Honey,HNY-1,1,0,Approved,Honey\n"+
		"31/02/2026,10:05:00,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n")
	require.NoError(t, err)

	assert.Equal(t, 6, res.TotalRows)
	assert.Equal(t, 1, res.ValidRows)
	require.Len(t, res.Warnings, 5)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "row 3: missing SKU"))
	assert.True(t, strings.HasPrefix(res.Warnings[1], "row 4: invalid quantity"))
}

func TestParseCSV_DateBoundsAreInclusiveCalendarDays(t *testing.T) {
	p := NewParser(time.UTC, nil)
	res, err := p.ParseCSV(strings.NewReader(exportHeader+
		"13/03/2026,23:59:59,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n"+
		"14/03/2026,00:00:00,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n"+
		"15/03/2026,23:59:59,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n"+
		"16/03/2026,00:00:00,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n"),
		Bounds{
			Start: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ValidRows)
	assert.Empty(t, res.Warnings, "rows outside the window are dropped silently")
}

func TestParseCSV_RowFilterExcludes(t *testing.T) {
	filter, err := NewRowFilter(`category == "Gift Cards" || sku.startsWith("TIP")`)
	require.NoError(t, err)

	p := NewParser(time.UTC, filter)
	res, err := parse(t, p, exportHeader+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n"+
		"14/03/2026,11:00:00,Voucher,GC-50,1,50.00,Approved,Gift Cards\n"+
		"14/03/2026,12:00:00,Tip,TIP-1,1,10.00,Approved,\n")
	require.NoError(t, err)

	assert.Equal(t, 1, res.ValidRows)
	assert.Equal(t, 2, res.ExcludedRows)
}

func TestNewRowFilter(t *testing.T) {
	f, err := NewRowFilter("  ")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = NewRowFilter(`sku + 1`)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = NewRowFilter(`quantity * 2`)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "non-boolean expressions are rejected")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		cell      string
		y, m, d   int
		wantError bool
	}{
		{cell: "03/04/2026", y: 2026, m: 4, d: 3},
		{cell: "2026-04-03", y: 2026, m: 4, d: 3},
		{cell: "2026/04/03 10:00", y: 2026, m: 4, d: 3},
		{cell: "3.4.26", y: 2026, m: 4, d: 3},
		{cell: "2026-04-03T10:00:00", y: 2026, m: 4, d: 3},
		{cell: "04/13/2026", wantError: true},
		{cell: "31/02/2026", wantError: true},
		{cell: "yesterday", wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			y, m, d, err := parseDate(tt.cell)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []int{tt.y, tt.m, tt.d}, []int{y, m, d})
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		cell    string
		h, m, s int
	}{
		{cell: "10:05", h: 10, m: 5},
		{cell: "10:05:09", h: 10, m: 5, s: 9},
		{cell: "1:05:09 PM", h: 13, m: 5, s: 9},
		{cell: "12:00 am", h: 0},
		{cell: "12:30 PM", h: 12, m: 30},
	}
	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			h, m, s, _, err := parseClock(tt.cell)
			require.NoError(t, err)
			assert.Equal(t, []int{tt.h, tt.m, tt.s}, []int{h, m, s})
		})
	}

	_, _, _, _, err := parseClock("25:00")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := map[string]string{
		"120.00":     "120",
		"R 1,234.50": "1234.5",
		"1 234,50":   "1234.5",
		"45,5":       "455",
		"-12.30":     "-12.3",
		"(5.00)":     "-5",
		" (R 7,50) ": "-7.5",
	}
	for cell, want := range tests {
		t.Run(cell, func(t *testing.T) {
			got, err := parseAmount(cell)
			require.NoError(t, err)
			assert.True(t, got.Equal(types.MustMoney(want)), "got %s", got)
		})
	}

	_, err := parseAmount("R")
	assert.Error(t, err)
}

func TestGroupKey_RoundsToSecond(t *testing.T) {
	line := ParsedLine{
		Timestamp:  time.Date(2026, 3, 14, 10, 0, 0, 600_000_000, time.UTC),
		ProductSKU: "HNY-1",
		Quantity:   1,
		LineTotal:  types.MustMoney("60"),
	}
	g := NewGroup([]ParsedLine{line})
	assert.Equal(t, "yoco_import|2026-03-14T10:00:01Z|60.00|HNY-1", g.Key("yoco_import"))
}

func TestBatchAddError_IsBounded(t *testing.T) {
	b := &Batch{}
	for range maxBatchErrors + 20 {
		b.AddError("boom")
	}
	assert.Len(t, b.Errors, maxBatchErrors+1)
	assert.Equal(t, "further errors omitted", b.Errors[maxBatchErrors])
}

func TestParseCSV_ParenthesisedTotalIsSkipped(t *testing.T) {
	p := NewParser(time.UTC, nil)
	res, err := parse(t, p, exportHeader+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,(60.00),Approved,Honey\n"+
		"14/03/2026,10:05:00,Fynbos Honey,HNY-1,1,60.00,Approved,Honey\n")
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	assert.True(t, res.Groups[0].TotalAmount.Equal(types.MustMoney("60")))
	assert.Equal(t, 1, res.ValidRows)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "invalid total")
}
