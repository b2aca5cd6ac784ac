// postulation_list.go - список постуляций для экрана управления:
// инскрипции backend, дополненные данными пользователей, поиск,
// страницы, общая статистика очереди и статистика документов по
// каждому постулянту страницы. Здесь же выбор следующего постулянта
// для проверки.
package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpd-concursos/concursos-admin/internal/backendclient"
	"github.com/mpd-concursos/concursos-admin/internal/domain/model"
)

// MsgNoPendingPostulations - очередь проверки пуста.
const MsgNoPendingPostulations = "No hay postulaciones pendientes de validación"

// PostulationQuery - параметры списка постуляций. Page начинается с 1.
type PostulationQuery struct {
	Page      int
	PageSize  int
	Search    string
	OnlyStats bool
}

// PostulationSummary - строка списка постуляций.
type PostulationSummary struct {
	InscriptionID   string              `json:"inscriptionId"`
	UserID          string              `json:"userId,omitempty"`
	DNI             string              `json:"dni"`
	FullName        string              `json:"fullName"`
	Email           string              `json:"email,omitempty"`
	State           string              `json:"state"`
	CentroDeVida    string              `json:"centroDeVida"`
	InscriptionDate *time.Time          `json:"inscriptionDate,omitempty"`
	Contest         ContestInfo         `json:"contest"`
	Documents       model.DocumentStats `json:"documents"`
}

// PostulationStats - сводка по всем инскрипциям.
type PostulationStats struct {
	Total               int `json:"total"`
	CompletedWithDocs   int `json:"completedWithDocs"`
	ValidationPending   int `json:"validationPending"`
	ValidationCompleted int `json:"validationCompleted"`
	ValidationRejected  int `json:"validationRejected"`
}

// PostulationList - страница постуляций и статистика.
type PostulationList struct {
	Postulations []PostulationSummary `json:"postulations"`
	Stats        PostulationStats     `json:"stats"`
	// Total - число постуляций под поиском.
	Total int `json:"-"`
}

// NextPostulation - следующий постулянт в очереди проверки.
type NextPostulation struct {
	HasNext      bool                `json:"hasNext"`
	Postulation  *PostulationSummary `json:"postulation,omitempty"`
	TotalPending int                 `json:"totalPending"`
}

// List возвращает страницу постуляций. При OnlyStats список пуст,
// документы не запрашиваются.
func (s *PostulationService) List(ctx context.Context, q PostulationQuery) (*PostulationList, error) {
	inscriptions, rows, err := s.postulationRows(ctx)
	if err != nil {
		return nil, err
	}

	res := &PostulationList{
		Postulations: []PostulationSummary{},
		Stats:        postulationStats(inscriptions),
	}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		rows = slices.DeleteFunc(rows, func(p PostulationSummary) bool {
			return !matchesSearch(p, search)
		})
	}
	res.Total = len(rows)
	if q.OnlyStats {
		return res, nil
	}

	page := max(q.Page, 1)
	size := max(q.PageSize, 1)
	start := min((page-1)*size, len(rows))
	end := min(start+size, len(rows))
	res.Postulations = rows[start:end]

	if err := s.fillPageDetails(ctx, res.Postulations); err != nil {
		return nil, err
	}
	return res, nil
}

// Next выбирает постулянта из очереди проверки с самой ранней
// инскрипцией, пропуская currentDNI. Если кроме currentDNI никого
// нет, возвращается он сам.
func (s *PostulationService) Next(ctx context.Context, currentDNI string) (*NextPostulation, error) {
	_, rows, err := s.postulationRows(ctx)
	if err != nil {
		return nil, err
	}

	queue := slices.DeleteFunc(rows, func(p PostulationSummary) bool {
		return !slices.Contains(model.ReviewQueueStates, p.State)
	})
	candidates := slices.DeleteFunc(slices.Clone(queue), func(p PostulationSummary) bool {
		return currentDNI != "" && p.DNI == currentDNI
	})
	if len(candidates) == 0 {
		candidates = queue
	}
	if len(candidates) == 0 {
		return &NextPostulation{}, nil
	}

	slices.SortStableFunc(candidates, func(a, b PostulationSummary) int {
		return compareInscriptionDate(a.InscriptionDate, b.InscriptionDate)
	})
	next := candidates[0]
	next.Contest = s.contestInfo(ctx, next.contestRef())

	s.logger.Debug("Следующая постуляция для проверки",
		slog.String("dni", next.DNI),
		slog.String("state", next.State),
		slog.Int("pending", len(candidates)),
	)
	return &NextPostulation{HasNext: true, Postulation: &next, TotalPending: len(candidates)}, nil
}

// postulationRows читает инскрипции и пользователей параллельно и
// соединяет их. Инскрипции без DNI пропускаются.
func (s *PostulationService) postulationRows(ctx context.Context) ([]model.BackendInscription, []PostulationSummary, error) {
	var (
		inscriptions []model.BackendInscription
		users        []model.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := s.backend.ListInscriptions(gctx, backendclient.InscriptionQuery{})
		if err != nil {
			return err
		}
		inscriptions = page.Content
		return nil
	})
	g.Go(func() error {
		page, err := s.backend.ListUsers(gctx, model.UserFilter{Size: userLookupSize})
		if err != nil {
			return err
		}
		users = page.Content
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, backendError("список постуляций", err, "")
	}

	byID := make(map[string]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	rows := make([]PostulationSummary, 0, len(inscriptions))
	skipped := 0
	for _, ins := range inscriptions {
		p := PostulationSummary{
			InscriptionID:   ins.ID,
			UserID:          ins.UserID,
			DNI:             ins.UserDNI,
			FullName:        ins.UserFullName,
			Email:           ins.UserEmail,
			State:           ins.State,
			CentroDeVida:    firstNonEmpty(ins.CentroDeVida, FallbackCentroDeVida),
			InscriptionDate: ins.InscriptionDate,
			Contest: ContestInfo{
				ID:       ins.ContestID,
				Title:    firstNonEmpty(ins.ContestTitle, FallbackContestTitle),
				Position: firstNonEmpty(ins.ContestPosition, FallbackContestPosition),
			},
		}
		if u, ok := byID[ins.UserID]; ok {
			p.DNI = firstNonEmpty(u.DNI, p.DNI)
			p.FullName = firstNonEmpty(u.FullName, p.FullName)
			p.Email = firstNonEmpty(u.Email, p.Email)
		}
		if p.DNI == "" {
			skipped++
			continue
		}
		rows = append(rows, p)
	}
	if skipped > 0 {
		s.logger.Debug("Пропущены инскрипции без DNI", slog.Int("skipped", skipped))
	}
	return inscriptions, rows, nil
}

// contestRef - инскрипция строки для поиска конкурса.
func (p PostulationSummary) contestRef() *model.BackendInscription {
	return &model.BackendInscription{
		ContestID:       p.Contest.ID,
		ContestTitle:    p.Contest.Title,
		ContestPosition: p.Contest.Position,
	}
}

// fillPageDetails дополняет строки страницы сведениями о конкурсе из
// локальной таблицы и статистикой документов. Запросы документов к
// backend идут параллельно с ограничением sizeProbeLimit.
func (s *PostulationService) fillPageDetails(ctx context.Context, rows []PostulationSummary) error {
	contests := map[int64]ContestInfo{}
	for i := range rows {
		id := rows[i].Contest.ID
		info, ok := contests[id]
		if !ok {
			info = s.contestInfo(ctx, rows[i].contestRef())
			contests[id] = info
		}
		rows[i].Contest = info
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeProbeLimit)
	for i := range rows {
		p := &rows[i]
		if p.UserID == "" {
			p.Documents = model.ComputeStats(nil)
			continue
		}
		g.Go(func() error {
			page, err := s.backend.ListDocuments(gctx, backendclient.DocumentQuery{UserID: p.UserID, Size: documentLookupSize})
			if err != nil {
				return err
			}
			user := &model.User{ID: p.UserID, DNI: p.DNI}
			owned := make([]model.Document, 0, len(page.Content))
			for _, d := range page.Content {
				if ownsDocument(d, user, p.DNI) {
					classifyDocument(&d)
					owned = append(owned, d)
				}
			}
			p.Documents = model.ComputeStats(owned)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return backendError("документы постуляций", err, "")
	}
	return nil
}

func postulationStats(inscriptions []model.BackendInscription) PostulationStats {
	st := PostulationStats{Total: len(inscriptions)}
	for _, ins := range inscriptions {
		switch ins.State {
		case model.InscriptionCompletedWithDocs:
			st.CompletedWithDocs++
			st.ValidationPending++
		case model.InscriptionActive, model.InscriptionPending:
			st.ValidationPending++
		case model.InscriptionApproved:
			st.ValidationCompleted++
		case model.InscriptionRejected:
			st.ValidationRejected++
		}
	}
	return st
}

// matchesSearch - совпадение по DNI, имени или email без учёта регистра.
// search уже в нижнем регистре.
func matchesSearch(p PostulationSummary, search string) bool {
	return strings.Contains(strings.ToLower(p.DNI), search) ||
		strings.Contains(strings.ToLower(p.FullName), search) ||
		strings.Contains(strings.ToLower(p.Email), search)
}

// compareInscriptionDate упорядочивает по дате, инскрипции без даты в конце.
func compareInscriptionDate(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(a.UnixNano(), b.UnixNano())
	}
}
