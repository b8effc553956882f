package salesimport

import (
	"io"

	"github.com/xuri/excelize/v2"

	"hivepos/internal/core/apperror"
)

// ParseXLSX parses the first sheet of a spreadsheet export with the same
// column rules as ParseCSV.
func (p *Parser) ParseXLSX(r io.Reader, bounds Bounds) (*ParseResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperror.NewImportFile(apperror.CodeValidation, "unreadable spreadsheet: "+err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperror.NewImportFile(apperror.CodeHeaderNotFound, "spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperror.NewImportFile(apperror.CodeValidation, "unreadable sheet: "+err.Error())
	}
	return p.ParseRecords(rows, bounds)
}
