package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"biastest/internal/errors"

	"github.com/xuri/excelize/v2"
)

// DataReader reads one sheet of an xlsx workbook, or a CSV file, as text.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader picks the format from the file extension.
func NewDataReader(filePath string) *DataReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// ReadSheet returns the named sheet. The sheet name is ignored for CSV.
func (r *DataReader) ReadSheet(sheet string) (*Table, error) {
	if _, err := os.Stat(r.filePath); err != nil {
		return nil, errors.IOError(r.filePath, err)
	}

	var rows [][]string
	switch r.fileType {
	case "csv":
		file, err := os.Open(r.filePath)
		if err != nil {
			return nil, errors.IOError(r.filePath, err)
		}
		defer file.Close()
		if rows, err = csv.NewReader(file).ReadAll(); err != nil {
			return nil, errors.IOError(r.filePath, err)
		}
	default:
		f, err := excelize.OpenFile(r.filePath)
		if err != nil {
			return nil, errors.IOError(r.filePath, err)
		}
		defer f.Close()
		if rows, err = f.GetRows(sheet); err != nil {
			return nil, errors.Wrapf(err, "failed to read sheet %s", sheet)
		}
	}

	if len(rows) < 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("%s: sheet %q has no header row", r.filePath, sheet))
	}
	return processRows(rows), nil
}

// processRows converts raw string rows into a Table keyed by the header row.
func processRows(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}

	t := &Table{Headers: headers}
	for _, row := range rows[1:] {
		rowData := make(RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		t.Rows = append(t.Rows, rowData)
	}
	return t
}
