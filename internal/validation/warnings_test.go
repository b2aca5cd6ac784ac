package validation

import (
	"slices"
	"testing"
	"time"

	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

func TestBusinessWarnings(t *testing.T) {
	// 2030-03-04 - понедельник, 2030-03-02 - суббота.
	monday := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2030, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		contest model.Contest
		want    []string
	}{
		{
			name: "без предупреждений",
			contest: model.Contest{
				Category:             ptr(model.CategoryEmployees),
				InscriptionStartDate: ptr(monday),
				InscriptionEndDate:   ptr(monday.Add(20 * day)),
			},
			want: []string{},
		},
		{
			name: "магистраты без базы",
			contest: model.Contest{
				Category: ptr(model.CategoryMagistrates),
			},
			want: []string{WarnMagistratesWithoutBases},
		},
		{
			name: "короткий период и выходной",
			contest: model.Contest{
				InscriptionStartDate: ptr(saturday),
				InscriptionEndDate:   ptr(saturday.Add(3 * day)),
			},
			want: []string{WarnShortInscription, WarnWeekendStart},
		},
		{
			name: "длинный период",
			contest: model.Contest{
				InscriptionStartDate: ptr(monday),
				InscriptionEndDate:   ptr(monday.Add(61 * day)),
			},
			want: []string{WarnLongInscription},
		},
		{
			name: "руководящая должность вне категории",
			contest: model.Contest{
				Category: ptr(model.CategoryEmployees),
				Position: ptr("Secretario/a General"),
			},
			want: []string{WarnManagementCategory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BusinessWarnings(&tt.contest)
			if !slices.Equal(got, tt.want) {
				t.Errorf("BusinessWarnings() = %v, ожидается %v", got, tt.want)
			}
		})
	}
}
