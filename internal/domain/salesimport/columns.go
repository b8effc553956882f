package salesimport

import (
	"strings"
)

// field is a logical export column.
type field string

const (
	fieldDate      field = "date"
	fieldTime      field = "time"
	fieldItem      field = "item"
	fieldSKU       field = "sku"
	fieldQuantity  field = "quantity"
	fieldUnitPrice field = "unit price"
	fieldTotal     field = "total"
	fieldStatus    field = "status"
	fieldCategory  field = "category"
	fieldReceipt   field = "receipt number"
	fieldDiscount  field = "discount"
)

// columnAliases lists accepted header names per logical field, normalized.
var columnAliases = []struct {
	field   field
	aliases []string
}{
	{fieldDate, []string{"date", "transaction date", "sale date", "bill date"}},
	{fieldTime, []string{"time", "transaction time", "sale time", "bill time"}},
	{fieldItem, []string{"item", "item name", "product", "product name", "description"}},
	{fieldSKU, []string{"sku", "item sku", "product sku", "product code", "code"}},
	{fieldQuantity, []string{"quantity", "qty", "units", "quantity sold"}},
	{fieldUnitPrice, []string{"unit price", "price", "item price", "price per unit"}},
	{fieldTotal, []string{"total", "line total", "gross sales", "total amount", "amount", "net sales"}},
	{fieldStatus, []string{"status", "payment status", "transaction status"}},
	{fieldCategory, []string{"category", "item category", "product category"}},
	{fieldReceipt, []string{"receipt number", "receipt", "receipt no", "receipt #", "bill number", "bill #"}},
	{fieldDiscount, []string{"discount", "discounts", "discount amount"}},
}

// requiredFields must all be present in the header row.
var requiredFields = []field{fieldDate, fieldTime, fieldItem, fieldQuantity, fieldTotal}

// aliasIndex maps a normalized header to its logical field.
var aliasIndex = func() map[string]field {
	idx := make(map[string]field)
	for _, c := range columnAliases {
		for _, a := range c.aliases {
			idx[a] = c.field
		}
	}
	return idx
}()

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// columnMap resolves logical fields to record positions. The first matching
// column wins.
type columnMap map[field]int

func mapColumns(header []string) columnMap {
	cols := make(columnMap)
	for i, h := range header {
		f, ok := aliasIndex[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	return cols
}

func (c columnMap) missing() []string {
	var out []string
	for _, f := range requiredFields {
		if _, ok := c[f]; !ok {
			out = append(out, string(f))
		}
	}
	return out
}

func (c columnMap) has(f field) bool {
	_, ok := c[f]
	return ok
}

// get returns the trimmed cell for f, or "" when the column or cell is absent.
func (c columnMap) get(record []string, f field) string {
	i, ok := c[f]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// headerScanDepth is how many leading records are searched for the header row.
const headerScanDepth = 10

// findHeader returns the index of the header row: the first record naming a
// date column, else the first record naming any known column. -1 when none.
func findHeader(records [][]string) int {
	fallback := -1
	for i := 0; i < len(records) && i < headerScanDepth; i++ {
		cols := mapColumns(records[i])
		if cols.has(fieldDate) {
			return i
		}
		if fallback < 0 && len(cols) > 0 {
			fallback = i
		}
	}
	return fallback
}
