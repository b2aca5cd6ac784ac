package model

import "time"

// Типы отчётов.
const (
	ReportContestsSummary       = "contests-summary"
	ReportValidationProgress    = "validation-progress"
	ReportDocumentStatus        = "document-status"
	ReportInscriptionsByContest = "inscriptions-by-contest"
)

// ReportTypes - поддерживаемые типы отчётов.
var ReportTypes = []string{
	ReportContestsSummary,
	ReportValidationProgress,
	ReportDocumentStatus,
	ReportInscriptionsByContest,
}

// Форматы отчётов.
const (
	FormatCSV   = "CSV"
	FormatJSON  = "JSON"
	FormatExcel = "EXCEL"
	FormatPDF   = "PDF"
)

// ReportFormats - поддерживаемые форматы.
var ReportFormats = []string{FormatCSV, FormatJSON, FormatExcel, FormatPDF}

// Статусы генерации отчёта.
const (
	ReportGenerating = "GENERATING"
	ReportCompleted  = "COMPLETED"
	ReportFailed     = "FAILED"
)

// GeneratedReport - запись о сгенерированном отчёте (таблица generated_reports).
type GeneratedReport struct {
	ID            string     `json:"id"`
	ReportType    string     `json:"reportType"`
	Format        string     `json:"format"`
	FileName      string     `json:"fileName"`
	GeneratedBy   string     `json:"generatedBy"`
	Parameters    []byte     `json:"-"`
	Status        string     `json:"status"`
	FilePath      string     `json:"-"`
	FileSize      int64      `json:"fileSize"`
	RecordCount   int        `json:"recordCount"`
	DownloadCount int        `json:"downloadCount"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// ReportFilter - фильтры списка отчётов.
type ReportFilter struct {
	ReportType string
	Status     string
}

// ReportData - табличные данные отчёта, независимые от формата.
type ReportData struct {
	Title   string
	Columns []string
	Rows    [][]string
}
