// Пакет report - отрисовка табличных данных отчёта в файл
// заданного формата: CSV, JSON, EXCEL (xlsx) и PDF.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// ErrUnsupportedFormat - формат отчёта не поддерживается.
var ErrUnsupportedFormat = errors.New("неподдерживаемый формат отчёта")

// Renderer записывает отчёт в w.
type Renderer interface {
	Render(w io.Writer, data model.ReportData) error
	// Extension - расширение файла без точки.
	Extension() string
	ContentType() string
}

// ForFormat возвращает Renderer для формата (CSV, JSON, EXCEL, PDF).
func ForFormat(format string) (Renderer, error) {
	switch strings.ToUpper(format) {
	case model.FormatCSV:
		return csvRenderer{}, nil
	case model.FormatJSON:
		return jsonRenderer{}, nil
	case model.FormatExcel:
		return excelRenderer{}, nil
	case model.FormatPDF:
		return pdfRenderer{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// --- CSV ---

type csvRenderer struct{}

func (csvRenderer) Extension() string   { return "csv" }
func (csvRenderer) ContentType() string { return "text/csv; charset=utf-8" }

// Render пишет CSV с BOM, чтобы Excel распознал UTF-8.
func (csvRenderer) Render(w io.Writer, data model.ReportData) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(data.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(data.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// --- JSON ---

type jsonRenderer struct{}

func (jsonRenderer) Extension() string   { return "json" }
func (jsonRenderer) ContentType() string { return "application/json" }

// Render пишет массив объектов, ключи - названия колонок.
func (jsonRenderer) Render(w io.Writer, data model.ReportData) error {
	records := make([]map[string]string, 0, len(data.Rows))
	for _, row := range data.Rows {
		rec := make(map[string]string, len(data.Columns))
		for i, col := range data.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Title       string              `json:"title"`
		GeneratedAt time.Time           `json:"generatedAt"`
		Total       int                 `json:"total"`
		Records     []map[string]string `json:"records"`
	}{
		Title:       data.Title,
		GeneratedAt: time.Now().UTC(),
		Total:       len(records),
		Records:     records,
	})
}

// --- EXCEL ---

type excelRenderer struct{}

func (excelRenderer) Extension() string { return "xlsx" }
func (excelRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

const excelSheet = "Reporte"

func (excelRenderer) Render(w io.Writer, data model.ReportData) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", excelSheet); err != nil {
		return err
	}

	header := make([]any, len(data.Columns))
	for i, c := range data.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(excelSheet, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if len(data.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(data.Columns), 1)
		if err := f.SetCellStyle(excelSheet, "A1", last, style); err != nil {
			return err
		}
	}

	for r, row := range data.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(excelSheet, cell, &cells); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}

// --- PDF ---

type pdfRenderer struct{}

func (pdfRenderer) Extension() string   { return "pdf" }
func (pdfRenderer) ContentType() string { return "application/pdf" }

// Render рисует таблицу на альбомных страницах A4. Ширина колонок
// делится поровну, длинные значения обрезаются.
func (pdfRenderer) Render(w io.Writer, data model.ReportData) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(data.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 6, tr("Generado: "+time.Now().Format("02/01/2006 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(data.Columns) == 0 {
		return pdf.Output(w)
	}

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(len(data.Columns))

	drawHeader := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range data.Columns {
			pdf.CellFormat(colW, 7, tr(fit(pdf, c, colW)), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	drawHeader()

	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		if pdf.GetY()+6 > pageH-bottom-15 {
			pdf.AddPage()
			drawHeader()
		}
		for i := range data.Columns {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			pdf.CellFormat(colW, 6, tr(fit(pdf, v, colW)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

// fit обрезает строку по ширине ячейки.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
