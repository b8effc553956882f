package salesimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/types"
)

// groupWindow is the largest gap between consecutive rows of one sale.
const groupWindow = 2000 * time.Millisecond

// Bounds limits parsed rows to the calendar dates [Start, End], inclusive.
// Zero values leave that side open.
type Bounds struct {
	Start time.Time
	End   time.Time
}

func (b Bounds) window(loc *time.Location) (lower, upper time.Time) {
	if !b.Start.IsZero() {
		y, m, d := b.Start.Date()
		lower = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	if !b.End.IsZero() {
		y, m, d := b.End.Date()
		upper = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return lower, upper
}

// Parser turns export records into transaction groups.
type Parser struct {
	loc    *time.Location
	filter *RowFilter
}

// NewParser creates a parser reading wall-clock timestamps in loc.
// filter may be nil.
func NewParser(loc *time.Location, filter *RowFilter) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc, filter: filter}
}

// ParseCSV parses a comma-separated export.
func (p *Parser) ParseCSV(r io.Reader, bounds Bounds) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperror.NewImportFile(apperror.CodeValidation, "malformed CSV: "+err.Error())
	}
	return p.ParseRecords(records, bounds)
}

// ParseRecords parses already-split rows, header included.
func (p *Parser) ParseRecords(records [][]string, bounds Bounds) (*ParseResult, error) {
	headerIdx := findHeader(records)
	if headerIdx < 0 {
		return nil, apperror.NewImportFile(apperror.CodeHeaderNotFound,
			fmt.Sprintf("no header row found in the first %d rows: expected a column such as \"Date\"", headerScanDepth))
	}

	cols := mapColumns(records[headerIdx])
	if missing := cols.missing(); len(missing) > 0 {
		return nil, apperror.NewImportFile(apperror.CodeMissingColumns,
			"missing required columns: "+strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}

	lower, upper := bounds.window(p.loc)
	result := &ParseResult{}
	var lines []ParsedLine

	for i, record := range records[headerIdx+1:] {
		if blank(record) {
			continue
		}
		result.TotalRows++
		rowNum := headerIdx + i + 2

		line, ok, warning := p.parseRow(record, cols, lower, upper)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", rowNum, warning))
		}
		if !ok {
			continue
		}

		if p.filter != nil {
			excluded, err := p.filter.Excludes(line)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: row filter: %v", rowNum, err))
			} else if excluded {
				result.ExcludedRows++
				continue
			}
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return nil, apperror.NewImportFile(apperror.CodeNoValidRows,
			"no valid approved transactions found: check the status, quantity and total columns and the date range").
			WithDetail("totalRows", result.TotalRows)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Timestamp.Before(lines[j].Timestamp)
	})

	result.ValidRows = len(lines)
	result.Groups = GroupLines(lines)
	first, last := lines[0].Timestamp, lines[len(lines)-1].Timestamp
	result.DateRange = DateRange{Start: &first, End: &last}
	return result, nil
}

// parseRow returns the line, whether it is kept, and an optional warning.
// Rows dropped by status, missing date/time or the date window produce no warning.
func (p *Parser) parseRow(record []string, cols columnMap, lower, upper time.Time) (ParsedLine, bool, string) {
	status := cols.get(record, fieldStatus)
	if status != "" && !strings.EqualFold(status, "approved") {
		return ParsedLine{}, false, ""
	}

	dateCell, timeCell := cols.get(record, fieldDate), cols.get(record, fieldTime)
	if dateCell == "" || timeCell == "" {
		return ParsedLine{}, false, ""
	}
	ts, err := parseTimestamp(dateCell, timeCell, p.loc)
	if err != nil {
		return ParsedLine{}, false, err.Error()
	}
	if (!lower.IsZero() && ts.Before(lower)) || (!upper.IsZero() && !ts.Before(upper)) {
		return ParsedLine{}, false, ""
	}

	name := cols.get(record, fieldItem)
	sku := cols.get(record, fieldSKU)
	if sku == "" {
		return ParsedLine{}, false, fmt.Sprintf("missing SKU for %q, row skipped", name)
	}

	qty, err := parseQuantity(cols.get(record, fieldQuantity))
	if err != nil || qty <= 0 {
		return ParsedLine{}, false, fmt.Sprintf("invalid quantity %q for %s, row skipped", cols.get(record, fieldQuantity), sku)
	}
	total, err := parseAmount(cols.get(record, fieldTotal))
	if err != nil || !total.IsPositive() {
		return ParsedLine{}, false, fmt.Sprintf("invalid total %q for %s, row skipped", cols.get(record, fieldTotal), sku)
	}

	unitPrice := types.Round(types.DivInt(total, qty))
	if cell := cols.get(record, fieldUnitPrice); cell != "" {
		if v, err := parseAmount(cell); err == nil && !v.IsNegative() {
			unitPrice = v
		}
	}
	discount := types.Zero()
	if cell := cols.get(record, fieldDiscount); cell != "" {
		if v, err := parseAmount(cell); err == nil {
			discount = v.Abs()
		}
	}

	return ParsedLine{
		Timestamp:     ts,
		ProductName:   name,
		ProductSKU:    sku,
		Quantity:      qty,
		UnitPrice:     unitPrice,
		Discount:      discount,
		LineTotal:     total,
		Status:        status,
		Category:      cols.get(record, fieldCategory),
		ReceiptNumber: cols.get(record, fieldReceipt),
	}, true, ""
}

// GroupLines merges time-ordered lines into sales: a line joins the current
// group when its gap to the previous line is at most groupWindow.
func GroupLines(lines []ParsedLine) []TransactionGroup {
	var groups []TransactionGroup
	start := 0
	for i := 1; i <= len(lines); i++ {
		if i < len(lines) && lines[i].Timestamp.Sub(lines[i-1].Timestamp) <= groupWindow {
			continue
		}
		if i > start {
			groups = append(groups, NewGroup(lines[start:i:i]))
		}
		start = i
	}
	return groups
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseTimestamp combines a date cell and a time cell in loc.
//
// Dates whose first component exceeds 31 are read year-month-day, anything
// else day/month/year. Days up to 12 are therefore ambiguous for exports
// written month-first; such files are read day-first.
func parseTimestamp(dateCell, timeCell string, loc *time.Location) (time.Time, error) {
	y, mo, d, err := parseDate(dateCell)
	if err != nil {
		return time.Time{}, err
	}
	h, mi, s, ns, err := parseClock(timeCell)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, time.Month(mo), d, h, mi, s, ns, loc), nil
}

func parseDate(cell string) (year, month, day int, err error) {
	token := strings.FieldsFunc(cell, func(r rune) bool { return r == ' ' || r == 'T' })
	if len(token) == 0 {
		return 0, 0, 0, fmt.Errorf("empty date")
	}
	parts := strings.FieldsFunc(token[0], func(r rune) bool { return r == '/' || r == '-' || r == '.' })
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("unrecognised date %q", cell)
	}

	var n [3]int
	for i, part := range parts {
		if n[i], err = strconv.Atoi(part); err != nil {
			return 0, 0, 0, fmt.Errorf("unrecognised date %q", cell)
		}
	}

	if n[0] > 31 {
		year, month, day = n[0], n[1], n[2]
	} else {
		day, month, year = n[0], n[1], n[2]
	}
	if year < 100 {
		year += 2000
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("unrecognised date %q", cell)
	}
	if t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC); t.Day() != day {
		return 0, 0, 0, fmt.Errorf("invalid calendar date %q", cell)
	}
	return year, month, day, nil
}

func parseClock(cell string) (hour, minute, second, nanos int, err error) {
	var clock, meridiem string
	for _, f := range strings.Fields(cell) {
		switch {
		case strings.Contains(f, ":"):
			clock = f
		case strings.EqualFold(f, "am"), strings.EqualFold(f, "pm"):
			meridiem = strings.ToLower(f)
		}
	}
	if clock == "" {
		return 0, 0, 0, 0, fmt.Errorf("unrecognised time %q", cell)
	}

	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, 0, fmt.Errorf("unrecognised time %q", cell)
	}
	if hour, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("unrecognised time %q", cell)
	}
	if minute, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("unrecognised time %q", cell)
	}
	if len(parts) == 3 {
		secs, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("unrecognised time %q", cell)
		}
		second = int(secs)
		nanos = int((secs - float64(second)) * float64(time.Second))
	}

	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 || second > 59 {
		return 0, 0, 0, 0, fmt.Errorf("unrecognised time %q", cell)
	}
	return hour, minute, second, nanos, nil
}

var errNoDigits = errors.New("no digits")

// parseAmount reads a money cell, ignoring currency symbols and thousands
// separators. A lone comma followed by exactly two digits is a decimal comma.
func parseAmount(cell string) (types.Money, error) {
	cell = strings.TrimSpace(cell)
	if strings.HasPrefix(cell, "(") && strings.HasSuffix(cell, ")") {
		// Accounting exports wrap credits in parentheses.
		cell = "-" + strings.Trim(cell, "()")
	}
	if i := strings.LastIndex(cell, ","); i >= 0 && !strings.Contains(cell, ".") && len(cell)-i-1 == 2 {
		cell = cell[:i] + "." + cell[i+1:]
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, cell)
	if strings.Trim(cleaned, ".-") == "" {
		return types.Zero(), errNoDigits
	}
	return decimal.NewFromString(cleaned)
}

func parseQuantity(cell string) (int, error) {
	v, err := parseAmount(cell)
	if err != nil {
		return 0, err
	}
	if !v.Equal(v.Truncate(0)) {
		return 0, fmt.Errorf("quantity %q is not a whole number", cell)
	}
	return int(v.IntPart()), nil
}
