// Пакет perf - скользящая статистика запросов к API и к БД.
// Хранит последние N замеров в кольцевых буферах; статистика
// считается по окну времени в момент запроса.
package perf

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	// maxQueryLen - длина текста запроса в выдаче.
	maxQueryLen = 100
	topSlow     = 10
	topErrors   = 5
)

// sample - один замер.
type sample struct {
	at       time.Time
	label    string
	status   int
	duration time.Duration
	err      string
}

// ring - кольцевой буфер фиксированного размера.
type ring struct {
	items []sample
	next  int
	full  bool
}

func newRing(size int) *ring {
	return &ring{items: make([]sample, size)}
}

func (r *ring) add(s sample) {
	r.items[r.next] = s
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// since возвращает замеры не старше from в порядке записи.
func (r *ring) since(from time.Time) []sample {
	start, n := 0, r.next
	if r.full {
		start, n = r.next, len(r.items)
	}
	out := make([]sample, 0, n)
	for i := 0; i < n; i++ {
		if s := r.items[(start+i)%len(r.items)]; !s.at.Before(from) {
			out = append(out, s)
		}
	}
	return out
}

func (r *ring) reset() {
	clear(r.items)
	r.next = 0
	r.full = false
}

// Summary - агрегаты по окну.
type Summary struct {
	Count     int     `json:"count"`
	AvgMs     float64 `json:"avgMs"`
	P95Ms     float64 `json:"p95Ms"`
	MaxMs     float64 `json:"maxMs"`
	Errors    int     `json:"errors"`
	ErrorRate float64 `json:"errorRate"`
	PerMinute float64 `json:"perMinute"`
}

// QueryEntry - запрос к БД в выдаче.
type QueryEntry struct {
	Query      string    `json:"query"`
	DurationMs float64   `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"timestamp"`
}

// Snapshot - статистика за окно.
type Snapshot struct {
	WindowMs      int64        `json:"timeWindow"`
	Requests      Summary      `json:"requests"`
	Queries       Summary      `json:"queries"`
	SlowQueries   []QueryEntry `json:"slowQueries"`
	ErrorQueries  []QueryEntry `json:"errorQueries"`
	SlowThreshold float64      `json:"slowQueryThresholdMs"`
}

// Monitor собирает замеры. Безопасен для конкурентного использования.
type Monitor struct {
	mu            sync.Mutex
	queries       *ring
	requests      *ring
	slowThreshold time.Duration
	now           func() time.Time
}

// New создаёт монитор на maxSamples последних замеров каждого вида.
func New(maxSamples int, slowThreshold time.Duration) *Monitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &Monitor{
		queries:       newRing(maxSamples),
		requests:      newRing(maxSamples),
		slowThreshold: slowThreshold,
		now:           time.Now,
	}
}

// RecordQuery фиксирует выполнение SQL-запроса.
func (m *Monitor) RecordQuery(query string, d time.Duration, err error) {
	s := sample{at: m.now(), label: query, duration: d}
	if err != nil {
		s.err = err.Error()
	}
	m.mu.Lock()
	m.queries.add(s)
	m.mu.Unlock()
}

// RecordRequest фиксирует обработку HTTP-запроса.
// Ответы 5xx считаются ошибками.
func (m *Monitor) RecordRequest(method, path string, status int, d time.Duration) {
	s := sample{at: m.now(), label: method + " " + path, status: status, duration: d}
	if status >= 500 {
		s.err = "HTTP " + strconv.Itoa(status)
	}
	m.mu.Lock()
	m.requests.add(s)
	m.mu.Unlock()
}

// Reset удаляет все замеры.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.queries.reset()
	m.requests.reset()
	m.mu.Unlock()
}

// Snapshot считает статистику за последние window.
func (m *Monitor) Snapshot(window time.Duration) Snapshot {
	from := m.now().Add(-window)

	m.mu.Lock()
	queries := m.queries.since(from)
	requests := m.requests.since(from)
	m.mu.Unlock()

	snap := Snapshot{
		WindowMs:      window.Milliseconds(),
		Requests:      summarize(requests, window),
		Queries:       summarize(queries, window),
		SlowQueries:   []QueryEntry{},
		ErrorQueries:  []QueryEntry{},
		SlowThreshold: ms(m.slowThreshold),
	}

	slow := make([]sample, 0)
	for _, q := range queries {
		if q.duration >= m.slowThreshold {
			slow = append(slow, q)
		}
	}
	sort.Slice(slow, func(i, j int) bool { return slow[i].duration > slow[j].duration })
	for i := 0; i < len(slow) && i < topSlow; i++ {
		snap.SlowQueries = append(snap.SlowQueries, entry(slow[i]))
	}

	// Ошибочные запросы - самые свежие первыми.
	for i := len(queries) - 1; i >= 0 && len(snap.ErrorQueries) < topErrors; i-- {
		if queries[i].err != "" {
			snap.ErrorQueries = append(snap.ErrorQueries, entry(queries[i]))
		}
	}
	return snap
}

func entry(s sample) QueryEntry {
	q := []rune(s.label)
	text := s.label
	if len(q) > maxQueryLen {
		text = string(q[:maxQueryLen]) + "..."
	}
	return QueryEntry{Query: text, DurationMs: ms(s.duration), Error: s.err, At: s.at}
}

func summarize(samples []sample, window time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	durations := make([]time.Duration, len(samples))
	var total, maxD time.Duration
	errs := 0
	for i, s := range samples {
		durations[i] = s.duration
		total += s.duration
		maxD = max(maxD, s.duration)
		if s.err != "" {
			errs++
		}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	idx := int(math.Ceil(0.95*float64(len(durations)))) - 1

	sum := Summary{
		Count:     len(samples),
		AvgMs:     ms(total / time.Duration(len(samples))),
		P95Ms:     ms(durations[max(idx, 0)]),
		MaxMs:     ms(maxD),
		Errors:    errs,
		ErrorRate: round2(float64(errs) / float64(len(samples)) * 100),
	}
	if minutes := window.Minutes(); minutes > 0 {
		sum.PerMinute = round2(float64(len(samples)) / minutes)
	}
	return sum
}

func ms(d time.Duration) float64 {
	return round2(float64(d) / float64(time.Millisecond))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
