package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const defaultPreviewRows = 5

type SheetSummary struct {
	Name    string     `json:"name"`
	Rows    int        `json:"rows"`
	Columns int        `json:"columns"`
	Preview [][]string `json:"preview"`
}

type Summary struct {
	Sheets []SheetSummary `json:"sheets"`
	// Indicators maps first-column labels to second-column values.
	Indicators map[string]string `json:"indicators"`
}

// Inspector reads generated xlsx reports without modifying them.
type Inspector struct {
	previewRows int
}

func NewInspector(previewRows int) *Inspector {
	if previewRows <= 0 {
		previewRows = defaultPreviewRows
	}
	return &Inspector{previewRows: previewRows}
}

func (i *Inspector) SummarizeFile(path string) (*Summary, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return i.summarize(f)
}

func (i *Inspector) SummarizeBytes(data []byte) (*Summary, error) {
	return i.SummarizeReader(bytes.NewReader(data))
}

func (i *Inspector) SummarizeReader(r io.Reader) (*Summary, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return i.summarize(f)
}

func (i *Inspector) summarize(f *excelize.File) (*Summary, error) {
	summary := &Summary{Indicators: make(map[string]string)}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}

		sheet := SheetSummary{Name: name, Rows: len(rows)}
		for idx, row := range rows {
			if len(row) > sheet.Columns {
				sheet.Columns = len(row)
			}
			if idx < i.previewRows {
				sheet.Preview = append(sheet.Preview, row)
			}
			if len(row) >= 2 {
				label := strings.TrimSpace(row[0])
				value := strings.TrimSpace(row[1])
				if label != "" && value != "" {
					if _, seen := summary.Indicators[label]; !seen {
						summary.Indicators[label] = value
					}
				}
			}
		}
		summary.Sheets = append(summary.Sheets, sheet)
	}
	return summary, nil
}
