package salesimport

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hivepos/internal/core/types"
)

func workbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &cells))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseXLSX_UsesColumnAliases(t *testing.T) {
	buf := workbook(t, [][]string{
		{"Shop export"},
		{"Date", "Time", "Item", "SKU", "Quantity", "Total", "Status", "Category"},
		{"14/03/2026", "10:00:00", "Fynbos Honey", "HNY-1", "2", "120.00", "Approved", "Honey"},
		{"14/03/2026", "10:00:01", "Beeswax Candle", "CND-1", "1", "45.00", "Approved", "Candles"},
	})

	res, err := NewParser(time.UTC, nil).ParseXLSX(buf, Bounds{})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Len(t, res.Groups[0].Lines, 2)
	assert.True(t, res.Groups[0].TotalAmount.Equal(types.MustMoney("165")))
}

func TestParseXLSX_RejectsNonSpreadsheet(t *testing.T) {
	_, err := NewParser(time.UTC, nil).ParseXLSX(strings.NewReader("Date,Time\n"), Bounds{})
	require.Error(t, err)
}
