package localstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// codec reads and writes a whole table, header row first. encode gets the
// current file contents, nil when there is none.
type codec interface {
	decode(data []byte) ([][]string, error)
	encode(prev []byte, rows [][]string) ([]byte, error)
}

// codecFor picks the file format from the path extension.
func codecFor(path, sheet string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csvCodec{}, nil
	case ".xlsx":
		if sheet == "" {
			sheet = DefaultSheet
		}
		return xlsxCodec{sheet: sheet}, nil
	}
	return nil, fmt.Errorf("codecFor: unsupported ledger file extension %q (use .csv or .xlsx)", filepath.Ext(path))
}

type csvCodec struct{}

func (csvCodec) decode(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvCodec.decode: %w", err)
	}
	return rows, nil
}

func (csvCodec) encode(_ []byte, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("csvCodec.encode: %w", err)
	}
	return buf.Bytes(), nil
}

type xlsxCodec struct {
	sheet string
}

func (c xlsxCodec) decode(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsxCodec.decode: open workbook: %w", err)
	}
	defer f.Close()

	sheet := c.ledgerSheet(f)
	if sheet == "" {
		return nil, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsxCodec.decode: read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// encode rewrites only the ledger sheet. Other sheets of an existing
// workbook are kept as they are.
func (c xlsxCodec) encode(prev []byte, rows [][]string) ([]byte, error) {
	f, sheet, err := c.workbook(prev)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	amountCol := -1
	for i, name := range Columns {
		if name == "amount" {
			amountCol = i
		}
	}

	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
			// keep amounts numeric so the sheet can sum them
			if i > 0 && j == amountCol {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					cells[j] = n
				}
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("xlsxCodec.encode: %w", err)
		}
		if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
			return nil, fmt.Errorf("xlsxCodec.encode: write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsxCodec.encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ledgerSheet returns the configured sheet, or the first sheet when the
// workbook has no sheet of that name.
func (c xlsxCodec) ledgerSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}
	for _, s := range sheets {
		if s == c.sheet {
			return s
		}
	}
	return sheets[0]
}

// workbook opens prev with its ledger sheet emptied, or starts a new
// workbook. It returns the sheet to write.
func (c xlsxCodec) workbook(prev []byte) (*excelize.File, string, error) {
	if len(prev) == 0 {
		f := excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), c.sheet); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("xlsxCodec.encode: name sheet: %w", err)
		}
		return f, c.sheet, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(prev))
	if err != nil {
		return nil, "", fmt.Errorf("xlsxCodec.encode: open workbook: %w", err)
	}

	sheet := c.ledgerSheet(f)
	old, err := f.GetRows(sheet)
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("xlsxCodec.encode: read sheet %q: %w", sheet, err)
	}
	for row := len(old); row > 0; row-- {
		if err := f.RemoveRow(sheet, row); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("xlsxCodec.encode: clear row %d: %w", row, err)
		}
	}
	return f, sheet, nil
}
