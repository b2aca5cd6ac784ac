package validation

import (
	"slices"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// Предупреждения бизнес-правил. Они не блокируют сохранение.
const (
	WarnMagistratesWithoutBases = "Los concursos de magistrados generalmente requieren bases del concurso"
	WarnShortInscription        = "El período de inscripciones es muy corto (menos de 7 días)"
	WarnLongInscription         = "El período de inscripciones es muy largo (más de 60 días)"
	WarnManagementCategory      = "Este tipo de posición generalmente corresponde a la categoría 'Funcionarios y Personal Jerárquico'"
	WarnWeekendStart            = "La fecha de inicio de inscripciones cae en fin de semana"
)

const day = 24 * time.Hour

// BusinessWarnings возвращает предупреждения для итогового состояния конкурса.
func BusinessWarnings(c *model.Contest) []string {
	warnings := []string{}

	if deref(c.Category) == model.CategoryMagistrates && deref(c.BasesURL) == "" {
		warnings = append(warnings, WarnMagistratesWithoutBases)
	}

	if c.InscriptionStartDate != nil && c.InscriptionEndDate != nil {
		period := c.InscriptionEndDate.Sub(*c.InscriptionStartDate)
		switch {
		case period < 7*day:
			warnings = append(warnings, WarnShortInscription)
		case period > 60*day:
			warnings = append(warnings, WarnLongInscription)
		}
	}

	if pos := deref(c.Position); pos != "" && slices.Contains(model.ManagementPositions, pos) &&
		deref(c.Category) != model.CategoryManagement {
		warnings = append(warnings, WarnManagementCategory)
	}

	if c.InscriptionStartDate != nil {
		switch c.InscriptionStartDate.Weekday() {
		case time.Saturday, time.Sunday:
			warnings = append(warnings, WarnWeekendStart)
		}
	}

	return warnings
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
