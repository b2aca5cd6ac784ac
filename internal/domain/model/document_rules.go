package model

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// typeKeywords - ключевые слова в имени файла для определения типа документа.
// Порядок важен: первое совпадение побеждает.
var typeKeywords = []struct {
	code     string
	keywords [][]string
}{
	{DocTypeDNIFront, [][]string{{"dni", "frontal"}, {"dni", "frente"}, {"dni_frontal"}}},
	{DocTypeDNIBack, [][]string{{"dni", "dorso"}, {"dni", "reverso"}, {"dni_dorso"}}},
	{DocTypeCUIL, [][]string{{"cuil"}}},
	{DocTypeCriminalRecord, [][]string{{"antecedentes"}}},
	{DocTypeNoSanctions, [][]string{{"sanciones"}}},
	{DocTypeSeniority, [][]string{{"antiguedad"}}},
	{DocTypeDegree, [][]string{{"titulo"}, {"analitico"}}},
	{DocTypeLeyMicaela, [][]string{{"micaela"}}},
}

// InferDocumentType определяет код типа документа.
// Приоритет: код от backend, затем имя типа из каталога, затем
// ключевые слова в имени файла. Если ничего не подошло - DocTypeUnknown.
func InferDocumentType(backendCode, backendName, fileName string) string {
	if backendCode != "" {
		return strings.ToUpper(backendCode)
	}
	if backendName != "" {
		for _, dt := range DocumentTypeCatalog {
			if strings.EqualFold(dt.Name, backendName) {
				return dt.Code
			}
		}
	}

	name := foldName(fileName)
	if name == "" {
		return DocTypeUnknown
	}
	for _, tk := range typeKeywords {
		for _, group := range tk.keywords {
			if containsAll(name, group) {
				return tk.code
			}
		}
	}
	return DocTypeUnknown
}

// foldName приводит имя к нижнему регистру и убирает диакритику.
func foldName(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		if r >= 0x300 && r <= 0x36f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func containsAll(s string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

// ComputeStats считает статистику и итоговый статус валидации.
//
// Основной сигнал - обязательные документы: любой отклонённый даёт
// REJECTED, все одобренные COMPLETED, часть одобренных PARTIAL,
// иначе PENDING. Если обязательных нет, те же правила применяются
// ко всем документам. Пустой список - PENDING.
func ComputeStats(docs []Document) DocumentStats {
	var s DocumentStats
	for _, d := range docs {
		s.Total++
		switch d.ValidationStatus {
		case DocumentApproved:
			s.Approved++
		case DocumentRejected:
			s.Rejected++
		default:
			s.Pending++
		}
		if d.IsRequired {
			s.Required++
			switch d.ValidationStatus {
			case DocumentApproved:
				s.RequiredApproved++
			case DocumentRejected:
				s.RequiredRejected++
			}
		}
	}

	base, approved, rejected := s.Required, s.RequiredApproved, s.RequiredRejected
	if base == 0 {
		base, approved, rejected = s.Total, s.Approved, s.Rejected
	}

	switch {
	case base == 0:
		s.ValidationStatus = ValidationPending
	case rejected > 0:
		s.ValidationStatus = ValidationRejected
		s.CompletionPercentage = percent(approved, base)
	case approved == base:
		s.ValidationStatus = ValidationCompleted
		s.CompletionPercentage = 100
	case approved > 0:
		s.ValidationStatus = ValidationPartial
		s.CompletionPercentage = percent(approved, base)
	default:
		s.ValidationStatus = ValidationPending
	}
	return s
}

// ReviewProgress - доля просмотренных (не PENDING) документов в процентах.
func ReviewProgress(s DocumentStats) int {
	return percent(s.Approved+s.Rejected, s.Total)
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
